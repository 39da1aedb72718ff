package formex

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Formex 4 tag paths recognized by the structural parser (verified against
// the published EU AI Act XML):
//
//	ACT > ENACTING.TERMS > DIVISION > ARTICLE > PARAG > ALINEA
//	ACT > PREAMBLE > GR.CONSID > CONSID > NP
//	ANNEX (separate files) > TITLE + CONTENTS
//
// Tags outside these paths are skipped, not rejected: the coverage check in
// the validate package exists precisely to catch text lost that way.

// UnitRef ties a structural unit's key to the subtree it was parsed from.
// The exhaustive extractor walks these same nodes, so the two extraction
// paths agree on unit boundaries by element identity rather than by
// re-interpreting the document.
type UnitRef struct {
	Key  string
	Node *xmlquery.Node
}

// ParseDocument runs the structural parse over a loaded document set and
// returns the parsed entities together with the unit boundaries.
//
// A document without an ENACTING.TERMS container is malformed and fails the
// whole parse. A missing individual article, recital, or annex is not fatal;
// it surfaces later as a count mismatch in the validation report.
func ParseDocument(set *DocumentSet) (*ParsedDocument, []UnitRef, error) {
	enacting := findElement(set.Act, "ENACTING.TERMS")
	if enacting == nil {
		return nil, nil, fmt.Errorf("malformed document %s: no ENACTING.TERMS container", set.ActPath)
	}

	doc := &ParsedDocument{}
	var units []UnitRef

	articles, articleUnits := parseArticles(enacting)
	doc.Articles = articles
	units = append(units, articleUnits...)

	if preamble := findElement(set.Act, "PREAMBLE"); preamble != nil {
		recitals, recitalUnits := parseRecitals(preamble)
		doc.Recitals = recitals
		units = append(units, recitalUnits...)
	}

	for _, annexDoc := range set.Annexes {
		annex, unit, err := parseAnnex(annexDoc)
		if err != nil {
			// A single malformed annex sub-document is skipped; the
			// validator reports the resulting count mismatch.
			continue
		}
		doc.Annexes = append(doc.Annexes, annex)
		units = append(units, unit)
	}

	return doc, units, nil
}

// parseArticles walks every ARTICLE under the enacting terms in document order.
func parseArticles(enacting *xmlquery.Node) ([]Article, []UnitRef) {
	var articles []Article
	var units []UnitRef

	for _, articleEl := range findElements(enacting, "ARTICLE") {
		number := strings.TrimSpace(strings.TrimPrefix(elementText(childElement(articleEl, "TI.ART")), "Article"))
		title := elementText(childElement(articleEl, "STI.ART"))
		chapter, chapterTitle := chapterContext(articleEl)

		var paragraphs []Paragraph
		for _, paragEl := range childElements(articleEl, "PARAG") {
			paragraphs = append(paragraphs, parseParagraph(paragEl))
		}
		// Single-paragraph articles carry ALINEA directly under ARTICLE.
		if directAlineas := childElements(articleEl, "ALINEA"); len(directAlineas) > 0 {
			paragraphs = append(paragraphs, parseAlineas("", directAlineas))
		}

		articles = append(articles, Article{
			Number:       number,
			Title:        title,
			Chapter:      chapter,
			ChapterTitle: chapterTitle,
			Paragraphs:   paragraphs,
		})
		units = append(units, UnitRef{Key: UnitKey(UnitArticle, number), Node: articleEl})
	}

	return articles, units
}

// parseRecitals walks every CONSID block under the preamble.
func parseRecitals(preamble *xmlquery.Node) ([]Recital, []UnitRef) {
	var recitals []Recital
	var units []UnitRef

	for _, considEl := range findElements(preamble, "CONSID") {
		np := childElement(considEl, "NP")
		if np == nil {
			continue
		}
		number := strings.Trim(elementText(childElement(np, "NO.P")), "()")

		var text string
		if txtEl := childElement(np, "TXT"); txtEl != nil {
			text = elementText(txtEl)
		} else {
			text = elementToText(np)
		}

		recitals = append(recitals, Recital{Number: number, Text: text})
		units = append(units, UnitRef{Key: UnitKey(UnitRecital, number), Node: considEl})
	}

	return recitals, units
}

// parseAnnex parses one annex sub-document into exactly one Annex entity.
func parseAnnex(annexDoc AnnexDocument) (Annex, UnitRef, error) {
	root := documentElement(annexDoc.Root)
	if root == nil {
		return Annex{}, UnitRef{}, fmt.Errorf("annex %s: no root element", annexDoc.Path)
	}

	titleEl := childElement(root, "TITLE")
	ti := elementText(childElement(titleEl, "TI"))
	sti := elementText(childElement(titleEl, "STI"))

	title := ti
	if sti != "" {
		title = ti + " — " + sti
	}

	number := ti
	if strings.Contains(ti, "ANNEX") {
		number = strings.TrimSpace(strings.ReplaceAll(ti, "ANNEX", ""))
	}

	var content string
	if contentsEl := childElement(root, "CONTENTS"); contentsEl != nil {
		content = elementToText(contentsEl)
	}

	annex := Annex{Number: number, Title: title, Content: content}
	return annex, UnitRef{Key: UnitKey(UnitAnnex, number), Node: root}, nil
}

// parseParagraph parses a PARAG element: its NO.PARAG number and the text
// and lettered items of its ALINEA children.
func parseParagraph(paragEl *xmlquery.Node) Paragraph {
	number := strings.TrimSuffix(elementText(childElement(paragEl, "NO.PARAG")), ".")

	alineas := childElements(paragEl, "ALINEA")
	if len(alineas) == 0 {
		return Paragraph{
			Number: number,
			Text:   elementTextExcept(paragEl, "NO.PARAG"),
		}
	}
	return parseAlineas(number, alineas)
}

// parseAlineas flattens a run of ALINEA blocks into one paragraph: plain
// text parts are joined, LIST items become lettered Items.
func parseAlineas(number string, alineas []*xmlquery.Node) Paragraph {
	var textParts []string
	var items []Item

	for _, alinea := range alineas {
		for child := alinea.FirstChild; child != nil; child = child.NextSibling {
			switch child.Type {
			case xmlquery.TextNode, xmlquery.CharDataNode:
				if t := CollapseSpace(child.Data); t != "" {
					textParts = append(textParts, t)
				}
			case xmlquery.ElementNode:
				switch child.Data {
				case "P":
					textParts = append(textParts, elementText(child))
				case "LIST":
					items = append(items, parseListItems(child)...)
				case "NP", "NOTE":
					// Bare NP blocks duplicate LIST content; NOTE
					// footnotes are excluded from body text.
				default:
					if t := elementText(child); t != "" {
						textParts = append(textParts, t)
					}
				}
			}
		}
	}

	return Paragraph{Number: number, Text: strings.Join(textParts, "\n"), Items: items}
}

// parseListItems parses the ITEM children of a LIST into lettered points.
func parseListItems(listEl *xmlquery.Node) []Item {
	var items []Item
	for _, itemEl := range childElements(listEl, "ITEM") {
		if np := childElement(itemEl, "NP"); np != nil {
			items = append(items, Item{
				Letter: strings.Trim(elementText(childElement(np, "NO.P")), "()"),
				Text:   elementText(childElement(np, "TXT")),
			})
		} else {
			items = append(items, Item{Text: elementText(itemEl)})
		}
	}
	return items
}

// chapterContext walks up the DIVISION ancestors of an article to find the
// nearest CHAPTER- or TITLE-level heading. Formex nests DIVISION for
// TITLE > CHAPTER > SECTION; the SECTION level is passed over.
func chapterContext(node *xmlquery.Node) (string, string) {
	for current := node.Parent; current != nil; current = current.Parent {
		if current.Type != xmlquery.ElementNode || current.Data != "DIVISION" {
			continue
		}
		titleEl := childElement(current, "TITLE")
		ti := elementText(childElement(titleEl, "TI"))
		upper := strings.ToUpper(ti)
		if ti != "" && (strings.Contains(upper, "CHAPTER") || strings.Contains(upper, "TITLE")) {
			return ti, elementText(childElement(titleEl, "STI"))
		}
	}
	return "", ""
}

// elementToText converts an element's children to plain text, preserving
// block structure with blank lines. Used for annex CONTENTS and recital
// bodies where the content is free-form.
func elementToText(el *xmlquery.Node) string {
	if el == nil {
		return ""
	}

	var parts []string
	for child := el.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if t := CollapseSpace(child.Data); t != "" {
				parts = append(parts, t)
			}
		case xmlquery.ElementNode:
			switch child.Data {
			case "P":
				parts = append(parts, elementText(child))
			case "LIST":
				for _, item := range parseListItems(child) {
					if item.Letter != "" {
						parts = append(parts, "("+item.Letter+") "+item.Text)
					} else {
						parts = append(parts, item.Text)
					}
				}
			case "NP":
				noP := elementText(childElement(child, "NO.P"))
				txt := elementText(childElement(child, "TXT"))
				if noP != "" {
					parts = append(parts, noP+" "+txt)
				} else {
					parts = append(parts, txt)
				}
			case "NOTE":
				// Footnotes are excluded from body text.
			default:
				if t := elementToText(child); t != "" {
					parts = append(parts, t)
				}
			}
		}
	}

	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// ── Tree helpers ──────────────────────────────────────────────────────────
//
// Formex tag names contain dots (TI.ART, NO.PARAG, GR.CONSID), so child and
// descendant lookups scan the tree directly instead of going through XPath
// name parsing.

// documentElement returns the root element of a parsed document node.
func documentElement(doc *xmlquery.Node) *xmlquery.Node {
	for child := doc.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child
		}
	}
	return nil
}

// childElement returns the first direct child element with the given tag.
func childElement(n *xmlquery.Node, tag string) *xmlquery.Node {
	if n == nil {
		return nil
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == tag {
			return child
		}
	}
	return nil
}

// childElements returns all direct child elements with the given tag.
func childElements(n *xmlquery.Node, tag string) []*xmlquery.Node {
	if n == nil {
		return nil
	}
	var result []*xmlquery.Node
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == tag {
			result = append(result, child)
		}
	}
	return result
}

// findElement returns the first descendant element with the given tag,
// depth-first in document order.
func findElement(n *xmlquery.Node, tag string) *xmlquery.Node {
	if n == nil {
		return nil
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == tag {
			return child
		}
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// findElements returns all descendant elements with the given tag in
// document order.
func findElements(n *xmlquery.Node, tag string) []*xmlquery.Node {
	if n == nil {
		return nil
	}
	var result []*xmlquery.Node
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == tag {
			result = append(result, child)
		}
		result = append(result, findElements(child, tag)...)
	}
	return result
}

// elementText returns the whitespace-collapsed text content of an element
// and all its descendants. Nil-safe.
func elementText(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	gatherText(n, &sb)
	return CollapseSpace(sb.String())
}

// elementTextExcept is elementText skipping direct child elements with the
// given tag.
func elementTextExcept(n *xmlquery.Node, skipTag string) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == skipTag {
			continue
		}
		gatherText(child, &sb)
		switch child.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			sb.WriteString(child.Data)
			sb.WriteByte(' ')
		}
	}
	return CollapseSpace(sb.String())
}

func gatherText(n *xmlquery.Node, sb *strings.Builder) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			sb.WriteString(child.Data)
			sb.WriteByte(' ')
		case xmlquery.ElementNode:
			gatherText(child, sb)
		}
	}
}
