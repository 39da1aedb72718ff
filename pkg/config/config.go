// Package config loads and validates workflow files. A workflow YAML
// describes everything one corpus build needs: where to find the document
// in Cellar, what shape to expect, and how to lay out the markdown output.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coolbeans/fmxcorpus/pkg/validate"
)

// Workflow is the root of a workflow file.
type Workflow struct {
	Source      Source          `yaml:"source"`
	SPARQL      SPARQL          `yaml:"sparql"`
	Fetch       Fetch           `yaml:"fetch"`
	Validation  validate.Config `yaml:"validation"`
	Corpus      Corpus          `yaml:"corpus"`
	Postprocess []Rule          `yaml:"postprocess"`
}

// Source identifies the document being ingested. Its fields are also the
// variables available to SPARQL query templates and frontmatter templates.
type Source struct {
	Celex        string `yaml:"celex"`
	Title        string `yaml:"title"`
	Language     string `yaml:"language"`
	LanguageCode string `yaml:"language_code"`
}

// SPARQL configures the Cellar query phase.
type SPARQL struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Steps          []Step `yaml:"steps"`
}

// Step is one SPARQL query in the resolution chain. The query template is
// rendered against the source fields plus the bindings of earlier steps;
// the named binding of the result is stored under the step's bind key.
// Collect steps store every row's binding, and the fetch stage's
// uri_contains filter selects among them; later query templates see only
// the first. A required step with no result aborts the pipeline.
type Step struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
	Bind     string `yaml:"bind"`
	Collect  bool   `yaml:"collect"`
	Required bool   `yaml:"required"`
}

// Fetch configures the document download. URIFrom names the context key
// (a step's bind) holding the candidate URIs. When the bound step collected
// several rows, URIContains selects the first candidate containing the
// given substring; empty means take the first candidate.
type Fetch struct {
	URIFrom           string `yaml:"uri_from"`
	URIContains       string `yaml:"uri_contains"`
	Accept            string `yaml:"accept"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
}

// Corpus configures the markdown output layout.
type Corpus struct {
	OutputDir   string             `yaml:"output_dir"`
	Frontmatter map[string]string  `yaml:"frontmatter"`
	Sections    map[string]Section `yaml:"sections"`
}

// Section configures output for one unit kind ("article", "recital",
// "annex"). Filename and Heading are {placeholder} templates over the
// unit's fields.
type Section struct {
	Dir         string            `yaml:"dir"`
	Filename    string            `yaml:"filename"`
	Heading     string            `yaml:"heading"`
	Frontmatter map[string]string `yaml:"frontmatter"`
}

// Rule is one find/replace postprocessing rule applied to final output text.
type Rule struct {
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

// Defaults applied by Load when the workflow leaves a field unset.
const (
	DefaultSPARQLTimeoutSeconds = 30
	DefaultRetryAttempts        = 3
	DefaultRetryDelaySeconds    = 5
	DefaultAcceptHeader         = "application/zip;mtype=fmx4"
)

// Load reads, validates, and defaults a workflow file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var workflow Workflow
	if err := yaml.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}

	if err := workflow.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow %s: %w", path, err)
	}
	workflow.applyDefaults()

	return &workflow, nil
}

// Validate checks the structural requirements of a workflow. Network-phase
// fields (sparql, fetch) are only required when SPARQL steps are declared,
// so local-only workflows stay small.
func (w *Workflow) Validate() error {
	if w.Source.Celex == "" {
		return fmt.Errorf("source.celex is required")
	}
	if w.Corpus.OutputDir == "" {
		return fmt.Errorf("corpus.output_dir is required")
	}
	if len(w.Corpus.Sections) == 0 {
		return fmt.Errorf("corpus.sections must define at least one section")
	}
	for kind, section := range w.Corpus.Sections {
		if section.Filename == "" {
			return fmt.Errorf("corpus.sections.%s.filename is required", kind)
		}
		if section.Heading == "" {
			return fmt.Errorf("corpus.sections.%s.heading is required", kind)
		}
	}

	if len(w.SPARQL.Steps) > 0 {
		if w.SPARQL.Endpoint == "" {
			return fmt.Errorf("sparql.endpoint is required when sparql.steps are declared")
		}
		seen := map[string]bool{}
		for i, step := range w.SPARQL.Steps {
			if step.Name == "" {
				return fmt.Errorf("sparql.steps[%d].name is required", i)
			}
			if step.Template == "" {
				return fmt.Errorf("sparql.steps[%d] (%s): template is required", i, step.Name)
			}
			if step.Bind == "" {
				return fmt.Errorf("sparql.steps[%d] (%s): bind is required", i, step.Name)
			}
			if seen[step.Bind] {
				return fmt.Errorf("sparql.steps[%d] (%s): bind %q already used by an earlier step", i, step.Name, step.Bind)
			}
			seen[step.Bind] = true
		}
		if w.Fetch.URIFrom != "" && !seen[w.Fetch.URIFrom] {
			return fmt.Errorf("fetch.uri_from %q does not match any step bind", w.Fetch.URIFrom)
		}
	}

	return nil
}

func (w *Workflow) applyDefaults() {
	if w.SPARQL.TimeoutSeconds == 0 {
		w.SPARQL.TimeoutSeconds = DefaultSPARQLTimeoutSeconds
	}
	if w.Fetch.RetryAttempts == 0 {
		w.Fetch.RetryAttempts = DefaultRetryAttempts
	}
	if w.Fetch.RetryDelaySeconds == 0 {
		w.Fetch.RetryDelaySeconds = DefaultRetryDelaySeconds
	}
	if w.Fetch.Accept == "" {
		w.Fetch.Accept = DefaultAcceptHeader
	}
	if w.Fetch.URIFrom == "" && len(w.SPARQL.Steps) > 0 {
		w.Fetch.URIFrom = w.SPARQL.Steps[len(w.SPARQL.Steps)-1].Bind
	}
	if w.Validation.CoverageThreshold == 0 {
		w.Validation.CoverageThreshold = validate.DefaultCoverageThreshold
	}
}

// TemplateVars returns the source fields as template variables for SPARQL
// query rendering and frontmatter expansion.
func (s *Source) TemplateVars() map[string]string {
	return map[string]string{
		"celex":         s.Celex,
		"title":         s.Title,
		"language":      s.Language,
		"language_code": s.LanguageCode,
	}
}
