// Package convert renders a parsed document into a markdown corpus: one
// file per article, recital, and annex, each with YAML frontmatter and a
// single top-level heading.
//
// The converter consumes only the structural parse. Validation findings
// never change what is written; a flagged unit is still converted so the
// corpus and the report can be reviewed side by side.
package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coolbeans/fmxcorpus/pkg/config"
	"github.com/coolbeans/fmxcorpus/pkg/formex"
)

// defaultRules strips invisible characters that survive Formex text
// extraction: non-breaking and narrow non-breaking spaces, zero-width
// spaces, and byte order marks. Workflow postprocess rules run after these.
var defaultRules = []config.Rule{
	{Find: "\u00a0", Replace: " "},
	{Find: "\u202f", Replace: " "},
	{Find: "\u200b", Replace: ""},
	{Find: "\ufeff", Replace: ""},
}

// Converter writes markdown corpus files according to a workflow's corpus
// layout and postprocess rules.
type Converter struct {
	workflow    *config.Workflow
	generatedAt time.Time
}

// New creates a converter for one workflow. The timestamp is fixed at
// construction so every file of a run carries the same generated_at.
func New(workflow *config.Workflow) *Converter {
	return &Converter{workflow: workflow, generatedAt: time.Now().UTC()}
}

// Write renders every unit of the document into outputDir and returns the
// number of files written. Unit kinds without a configured section are
// skipped.
func (c *Converter) Write(doc *formex.ParsedDocument, outputDir string) (int, error) {
	written := 0

	if section, ok := c.workflow.Corpus.Sections[formex.UnitArticle]; ok {
		for i := range doc.Articles {
			article := &doc.Articles[i]
			vars := c.unitVars(map[string]string{
				"number":        article.Number,
				"title":         article.Title,
				"chapter":       article.Chapter,
				"chapter_title": article.ChapterTitle,
			})
			if err := c.writeUnit(outputDir, section, vars, articleBody(article)); err != nil {
				return written, err
			}
			written++
		}
	}

	if section, ok := c.workflow.Corpus.Sections[formex.UnitRecital]; ok {
		for _, recital := range doc.Recitals {
			vars := c.unitVars(map[string]string{
				"number": recital.Number,
				"title":  "Recital " + recital.Number,
			})
			if err := c.writeUnit(outputDir, section, vars, recital.Text); err != nil {
				return written, err
			}
			written++
		}
	}

	if section, ok := c.workflow.Corpus.Sections[formex.UnitAnnex]; ok {
		for _, annex := range doc.Annexes {
			vars := c.unitVars(map[string]string{
				"number": annex.Number,
				"title":  annex.Title,
			})
			if err := c.writeUnit(outputDir, section, vars, annex.Content); err != nil {
				return written, err
			}
			written++
		}
	}

	return written, nil
}

// unitVars merges the workflow source fields with the unit's own fields.
// Unit fields shadow source fields of the same name.
func (c *Converter) unitVars(unit map[string]string) map[string]string {
	vars := c.workflow.Source.TemplateVars()
	for key, value := range unit {
		vars[key] = value
	}
	return vars
}

func (c *Converter) writeUnit(outputDir string, section config.Section, vars map[string]string, body string) error {
	dir := filepath.Join(outputDir, section.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	filename := ExpandPlaceholders(section.Filename, vars)
	heading := ExpandPlaceholders(section.Heading, vars)

	frontmatter, err := c.renderFrontmatter(section, vars)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(frontmatter)
	sb.WriteString("---\n\n")
	sb.WriteString("# " + heading + "\n\n")
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n")

	text := c.postprocess(sb.String())

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// renderFrontmatter expands the base frontmatter map, overlays the
// section's own fields, and stamps the run timestamp.
func (c *Converter) renderFrontmatter(section config.Section, vars map[string]string) ([]byte, error) {
	fields := map[string]string{}
	for key, value := range c.workflow.Corpus.Frontmatter {
		fields[key] = ExpandPlaceholders(value, vars)
	}
	for key, value := range section.Frontmatter {
		fields[key] = ExpandPlaceholders(value, vars)
	}
	fields["generated_at"] = c.generatedAt.Format(time.RFC3339)

	data, err := yaml.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to render frontmatter: %w", err)
	}
	return data, nil
}

func (c *Converter) postprocess(text string) string {
	for _, rule := range defaultRules {
		text = strings.ReplaceAll(text, rule.Find, rule.Replace)
	}
	for _, rule := range c.workflow.Postprocess {
		text = strings.ReplaceAll(text, rule.Find, rule.Replace)
	}
	return text
}

// articleBody renders an article's paragraphs as markdown: numbered
// paragraphs in bold, lettered items as list entries.
func articleBody(article *formex.Article) string {
	var blocks []string
	for _, paragraph := range article.Paragraphs {
		var block strings.Builder
		if paragraph.Text != "" {
			if paragraph.Number != "" {
				block.WriteString("**" + paragraph.Number + ".** ")
			}
			block.WriteString(paragraph.Text)
		}
		for _, item := range paragraph.Items {
			if block.Len() > 0 {
				block.WriteString("\n")
			}
			if item.Letter != "" {
				block.WriteString("- (" + item.Letter + ") " + item.Text)
			} else {
				block.WriteString("- " + item.Text)
			}
		}
		if block.Len() > 0 {
			blocks = append(blocks, block.String())
		}
	}
	return strings.Join(blocks, "\n\n")
}

// ExpandPlaceholders substitutes {name} placeholders from vars. Unknown
// placeholders are left untouched so template mistakes stay visible in the
// output instead of vanishing.
func ExpandPlaceholders(template string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		template = strings.ReplaceAll(template, "{"+key+"}", vars[key])
	}
	return template
}
