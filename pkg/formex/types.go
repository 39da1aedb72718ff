// Package formex parses Formex 4 XML — the publication format used by the
// EU Publications Office — into structured articles, recitals, and annexes.
//
// Two independent walks are made over the same element tree: a structural
// parse that only follows recognized tag paths, and an exhaustive text
// extraction that collects every text node under each unit's subtree. The
// validate package compares the two to detect content the structural
// whitelist silently missed.
package formex

import "strings"

// Item is a lettered point within a paragraph, e.g. "(a) providers shall...".
type Item struct {
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Paragraph is a numbered text block within an article.
type Paragraph struct {
	Number string `json:"number"`
	Text   string `json:"text"`
	Items  []Item `json:"items,omitempty"`
}

// Article is one operative article of the regulation.
type Article struct {
	Number       string      `json:"number"`
	Title        string      `json:"title"`
	Chapter      string      `json:"chapter"`
	ChapterTitle string      `json:"chapter_title"`
	Paragraphs   []Paragraph `json:"paragraphs"`
}

// BodyText returns the article's reconstructed text: paragraph text and
// lettered items concatenated in document order.
func (a *Article) BodyText() string {
	var parts []string
	for _, paragraph := range a.Paragraphs {
		if paragraph.Text != "" {
			parts = append(parts, paragraph.Text)
		}
		for _, item := range paragraph.Items {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Recital is one numbered consideration from the preamble.
type Recital struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// Annex is one annex, parsed from its own Formex sub-document.
type Annex struct {
	Number  string `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ParsedDocument is the aggregate result of a structural parse. Each slice
// preserves source document order.
type ParsedDocument struct {
	Articles []Article `json:"articles"`
	Recitals []Recital `json:"recitals"`
	Annexes  []Annex   `json:"annexes"`
}

// Statistics summarizes a parsed document.
type Statistics struct {
	Articles   int `json:"articles"`
	Recitals   int `json:"recitals"`
	Annexes    int `json:"annexes"`
	Paragraphs int `json:"paragraphs"`
}

// Statistics returns counts for the parsed document.
func (d *ParsedDocument) Statistics() Statistics {
	stats := Statistics{
		Articles: len(d.Articles),
		Recitals: len(d.Recitals),
		Annexes:  len(d.Annexes),
	}
	for _, article := range d.Articles {
		stats.Paragraphs += len(article.Paragraphs)
	}
	return stats
}

// Unit identifier prefixes. A unit key is "article:6", "recital:12",
// or "annex:III" — the shared vocabulary between the parser, the source
// text index, and the validation report.
const (
	UnitArticle = "article"
	UnitRecital = "recital"
	UnitAnnex   = "annex"
)

// UnitKey builds the canonical identifier for a structural unit.
func UnitKey(kind, id string) string {
	return kind + ":" + id
}

// CollapseSpace normalizes whitespace: runs of spaces, tabs, newlines, and
// non-breaking spaces become a single space, with leading and trailing
// whitespace removed. Both tree-walks measure text on this basis so that
// coverage ratios are comparable.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
