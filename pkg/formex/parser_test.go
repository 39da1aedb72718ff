package formex

import (
	"strings"
	"testing"
)

const actXML = `<?xml version="1.0" encoding="UTF-8"?>
<ACT>
  <PREAMBLE>
    <GR.CONSID>
      <CONSID><NP><NO.P>(1)</NO.P><TXT>The purpose of this Regulation is to improve the functioning of the internal market.</TXT></NP></CONSID>
      <CONSID><NP><NO.P>(2)</NO.P><TXT>This Regulation should be applied in accordance with the Charter.</TXT></NP></CONSID>
    </GR.CONSID>
  </PREAMBLE>
  <ENACTING.TERMS>
    <DIVISION>
      <TITLE><TI>CHAPTER I</TI><STI>GENERAL PROVISIONS</STI></TITLE>
      <ARTICLE>
        <TI.ART>Article 1</TI.ART>
        <STI.ART>Subject matter</STI.ART>
        <PARAG>
          <NO.PARAG>1.</NO.PARAG>
          <ALINEA><P>This Regulation lays down harmonised rules.</P></ALINEA>
        </PARAG>
        <PARAG>
          <NO.PARAG>2.</NO.PARAG>
          <ALINEA>
            <P>This Regulation lays down:</P>
            <LIST>
              <ITEM><NP><NO.P>(a)</NO.P><TXT>rules for placing on the market;</TXT></NP></ITEM>
              <ITEM><NP><NO.P>(b)</NO.P><TXT>prohibitions of certain practices.</TXT></NP></ITEM>
            </LIST>
          </ALINEA>
        </PARAG>
      </ARTICLE>
      <ARTICLE>
        <TI.ART>Article 2</TI.ART>
        <STI.ART>Scope</STI.ART>
        <ALINEA><P>This Regulation applies to providers.</P><NOTE>OJ L 123, 12.5.2016, p. 1.</NOTE></ALINEA>
      </ARTICLE>
    </DIVISION>
  </ENACTING.TERMS>
</ACT>`

const annexXML = `<?xml version="1.0" encoding="UTF-8"?>
<ANNEX>
  <TITLE><TI>ANNEX III</TI><STI>High-risk AI systems</STI></TITLE>
  <CONTENTS>
    <P>High-risk AI systems are the following:</P>
    <LIST>
      <ITEM><NP><NO.P>(1)</NO.P><TXT>remote biometric identification systems.</TXT></NP></ITEM>
    </LIST>
  </CONTENTS>
</ANNEX>`

func loadSet(t *testing.T) *DocumentSet {
	t.Helper()

	act, err := LoadTree(strings.NewReader(actXML))
	if err != nil {
		t.Fatalf("failed to load act fixture: %v", err)
	}
	annex, err := LoadTree(strings.NewReader(annexXML))
	if err != nil {
		t.Fatalf("failed to load annex fixture: %v", err)
	}
	return &DocumentSet{
		ActPath: "act.fmx.xml",
		Act:     act,
		Annexes: []AnnexDocument{{Path: "annex.fmx.xml", Root: annex}},
	}
}

func TestParseDocument(t *testing.T) {
	doc, units, err := ParseDocument(loadSet(t))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	stats := doc.Statistics()
	if stats.Articles != 2 || stats.Recitals != 2 || stats.Annexes != 1 {
		t.Errorf("counts: got %d/%d/%d articles/recitals/annexes, want 2/2/1",
			stats.Articles, stats.Recitals, stats.Annexes)
	}
	if len(units) != 5 {
		t.Errorf("units: got %d, want 5", len(units))
	}

	art := doc.Articles[0]
	if art.Number != "1" {
		t.Errorf("article number: got %q, want %q", art.Number, "1")
	}
	if art.Title != "Subject matter" {
		t.Errorf("article title: got %q, want %q", art.Title, "Subject matter")
	}
	if art.Chapter != "CHAPTER I" || art.ChapterTitle != "GENERAL PROVISIONS" {
		t.Errorf("chapter context: got %q / %q, want CHAPTER I / GENERAL PROVISIONS",
			art.Chapter, art.ChapterTitle)
	}
	if len(art.Paragraphs) != 2 {
		t.Fatalf("paragraphs: got %d, want 2", len(art.Paragraphs))
	}
	if art.Paragraphs[0].Number != "1" || art.Paragraphs[1].Number != "2" {
		t.Errorf("paragraph numbers: got %q, %q, want 1, 2",
			art.Paragraphs[0].Number, art.Paragraphs[1].Number)
	}
	items := art.Paragraphs[1].Items
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
	if items[0].Letter != "a" || items[1].Letter != "b" {
		t.Errorf("item letters: got %q, %q, want a, b", items[0].Letter, items[1].Letter)
	}
	if items[0].Text != "rules for placing on the market;" {
		t.Errorf("item text: got %q", items[0].Text)
	}
}

func TestParseDocumentSingleAlineaArticle(t *testing.T) {
	doc, _, err := ParseDocument(loadSet(t))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	art := doc.Articles[1]
	if len(art.Paragraphs) != 1 {
		t.Fatalf("paragraphs: got %d, want 1", len(art.Paragraphs))
	}
	if got := art.Paragraphs[0].Text; got != "This Regulation applies to providers." {
		t.Errorf("paragraph text: got %q", got)
	}
	if strings.Contains(art.BodyText(), "OJ L 123") {
		t.Errorf("footnote text leaked into article body: %q", art.BodyText())
	}
}

func TestParseDocumentRecitals(t *testing.T) {
	doc, _, err := ParseDocument(loadSet(t))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	rec := doc.Recitals[0]
	if rec.Number != "1" {
		t.Errorf("recital number: got %q, want %q (parentheses stripped)", rec.Number, "1")
	}
	if !strings.HasPrefix(rec.Text, "The purpose of this Regulation") {
		t.Errorf("recital text: got %q", rec.Text)
	}
}

func TestParseDocumentAnnex(t *testing.T) {
	doc, _, err := ParseDocument(loadSet(t))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	annex := doc.Annexes[0]
	if annex.Number != "III" {
		t.Errorf("annex number: got %q, want %q", annex.Number, "III")
	}
	if annex.Title != "ANNEX III — High-risk AI systems" {
		t.Errorf("annex title: got %q", annex.Title)
	}
	if !strings.Contains(annex.Content, "(1) remote biometric identification systems.") {
		t.Errorf("annex content missing list item: %q", annex.Content)
	}
}

func TestParseDocumentMissingEnactingTerms(t *testing.T) {
	act, err := LoadTree(strings.NewReader(`<ACT><PREAMBLE/></ACT>`))
	if err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}

	_, _, err = ParseDocument(&DocumentSet{ActPath: "bad.fmx.xml", Act: act})
	if err == nil {
		t.Fatal("expected error for document without ENACTING.TERMS, got nil")
	}
	if !strings.Contains(err.Error(), "ENACTING.TERMS") {
		t.Errorf("error should name the missing container: %v", err)
	}
}

func TestBuildSourceIndex(t *testing.T) {
	doc, units, err := ParseDocument(loadSet(t))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	index := BuildSourceIndex(units)
	for _, key := range []string{"article:1", "article:2", "recital:1", "annex:III"} {
		if index[key] == "" {
			t.Errorf("source index missing %s", key)
		}
	}

	// Article 2 carries a footnote: the exhaustive walk keeps it, the
	// structural parse drops it, so the source side must be longer.
	parsed := CollapseSpace(doc.Articles[1].BodyText())
	source := index["article:2"]
	if len([]rune(source)) <= len([]rune(parsed)) {
		t.Errorf("exhaustive text should exceed parsed text for a footnoted article: source %d, parsed %d",
			len([]rune(source)), len([]rune(parsed)))
	}
	if !strings.Contains(source, "OJ L 123") {
		t.Errorf("exhaustive text missing footnote content: %q", source)
	}
}

func TestCollapseSpace(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  plain   text ", "plain text"},
		{"line\none\n\tline two", "line one line two"},
		{"non\u00a0breaking\u00a0space", "non breaking space"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CollapseSpace(tt.input); got != tt.want {
			t.Errorf("CollapseSpace(%q): got %q, want %q", tt.input, got, tt.want)
		}
	}
}
