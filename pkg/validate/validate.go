// Package validate cross-checks a structural parse against the exhaustive
// source text extraction and against the expected shape of the regulation.
//
// Validation is advisory: Run never aborts anything and has no side effects.
// The caller decides what to do with the report; the pipeline writes it to
// disk and continues converting regardless of findings.
package validate

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"

	"github.com/coolbeans/fmxcorpus/pkg/formex"
)

// Severity classifies how serious a finding is. Fail-severity issues mean
// the corpus is structurally wrong; warn-severity issues flag content that
// deserves a human look.
type Severity string

const (
	SeverityFail Severity = "fail"
	SeverityWarn Severity = "warn"
)

// IssueKind names the check that produced an issue.
type IssueKind string

const (
	IssueCountMismatch  IssueKind = "count-mismatch"
	IssueEmptyContent   IssueKind = "empty-content"
	IssueNumberingGap   IssueKind = "numbering-gap"
	IssueMissingContext IssueKind = "missing-structural-context"
	IssueLowCoverage    IssueKind = "low-coverage"
)

// Config carries the expected document shape. A nil expected count means
// the count is not checked for that kind; an explicit zero is checked like
// any other value.
type Config struct {
	ExpectedArticles  *int    `yaml:"expected_articles"`
	ExpectedRecitals  *int    `yaml:"expected_recitals"`
	ExpectedAnnexes   *int    `yaml:"expected_annexes"`
	CoverageThreshold float64 `yaml:"coverage_threshold"`
}

// DefaultCoverageThreshold is the minimum parsed/source text ratio a unit
// must reach before it is reported as partially covered.
const DefaultCoverageThreshold = 0.8

// Run executes every check against the parsed document and the exhaustive
// source text index and returns the report. Checks run in a fixed order so
// reports are stable across runs: counts, empty content, numbering gaps,
// structural context, coverage.
func Run(doc *formex.ParsedDocument, index formex.SourceTextIndex, config Config) *Report {
	threshold := config.CoverageThreshold
	if threshold == 0 {
		threshold = DefaultCoverageThreshold
	}

	report := NewReport(threshold)
	stats := doc.Statistics()

	checkCount(report, formex.UnitArticle, config.ExpectedArticles, stats.Articles)
	checkCount(report, formex.UnitRecital, config.ExpectedRecitals, stats.Recitals)
	checkCount(report, formex.UnitAnnex, config.ExpectedAnnexes, stats.Annexes)

	checkEmptyContent(report, doc)
	checkNumberingGaps(report, doc.Articles)
	checkStructuralContext(report, doc.Articles)
	checkCoverage(report, doc, index, threshold)

	return report
}

func checkCount(report *Report, kind string, expected *int, actual int) {
	report.Counts = append(report.Counts, CountCheck{Kind: kind, Expected: expected, Actual: actual})
	if expected != nil && actual != *expected {
		report.add(Issue{
			Kind:     IssueCountMismatch,
			Severity: SeverityFail,
			Detail:   fmt.Sprintf("expected %d %ss, parsed %d", *expected, kind, actual),
		})
	}
}

func checkEmptyContent(report *Report, doc *formex.ParsedDocument) {
	for i := range doc.Articles {
		article := &doc.Articles[i]
		if formex.CollapseSpace(article.BodyText()) == "" {
			report.add(Issue{
				Kind:     IssueEmptyContent,
				Severity: SeverityFail,
				Unit:     formex.UnitKey(formex.UnitArticle, article.Number),
				Detail:   "article has no extractable text",
			})
		}
	}
	for _, recital := range doc.Recitals {
		if formex.CollapseSpace(recital.Text) == "" {
			report.add(Issue{
				Kind:     IssueEmptyContent,
				Severity: SeverityFail,
				Unit:     formex.UnitKey(formex.UnitRecital, recital.Number),
				Detail:   "recital has no extractable text",
			})
		}
	}
	for _, annex := range doc.Annexes {
		if formex.CollapseSpace(annex.Content) == "" {
			report.add(Issue{
				Kind:     IssueEmptyContent,
				Severity: SeverityFail,
				Unit:     formex.UnitKey(formex.UnitAnnex, annex.Number),
				Detail:   "annex has no extractable content",
			})
		}
	}
}

// checkNumberingGaps flags irregular steps in the numeric article sequence:
// jumps, repeats, and regressions. Articles with non-numeric numbers
// (inserted "2a"-style articles) are passed over.
func checkNumberingGaps(report *Report, articles []formex.Article) {
	numbers := lo.FilterMap(articles, func(a formex.Article, _ int) (int, bool) {
		n, err := strconv.Atoi(a.Number)
		return n, err == nil
	})

	for i := 1; i < len(numbers); i++ {
		previous, current := numbers[i-1], numbers[i]
		var detail string
		switch {
		case current > previous+1:
			detail = fmt.Sprintf("article numbering jumps %d→%d", previous, current)
		case current == previous:
			detail = fmt.Sprintf("article number %d repeated", current)
		case current < previous:
			detail = fmt.Sprintf("article numbering regresses %d→%d", previous, current)
		default:
			continue
		}
		report.add(Issue{
			Kind:     IssueNumberingGap,
			Severity: SeverityWarn,
			Unit:     formex.UnitKey(formex.UnitArticle, strconv.Itoa(current)),
			Detail:   detail,
		})
	}
}

func checkStructuralContext(report *Report, articles []formex.Article) {
	for i := range articles {
		article := &articles[i]
		unit := formex.UnitKey(formex.UnitArticle, article.Number)
		if article.Title == "" {
			report.add(Issue{
				Kind:     IssueMissingContext,
				Severity: SeverityWarn,
				Unit:     unit,
				Detail:   "article has no title",
			})
		}
		if article.Chapter == "" {
			report.add(Issue{
				Kind:     IssueMissingContext,
				Severity: SeverityWarn,
				Unit:     unit,
				Detail:   "article has no chapter context",
			})
		}
	}
}

// checkCoverage compares the length of the structurally parsed text of each
// unit with the exhaustive extraction over the same subtree. Lengths are
// collapsed rune counts so the two sides measure the same thing.
func checkCoverage(report *Report, doc *formex.ParsedDocument, index formex.SourceTextIndex, threshold float64) {
	record := func(unit, parsedText string) {
		parsedLen := len([]rune(formex.CollapseSpace(parsedText)))
		sourceLen := len([]rune(index[unit]))
		ratio := coverageRatio(parsedLen, sourceLen)

		entry := CoverageEntry{
			Unit:      unit,
			ParsedLen: parsedLen,
			SourceLen: sourceLen,
			Ratio:     ratio,
			Covered:   CoverageFull,
		}
		if ratio < threshold {
			entry.Covered = CoveragePartial
			report.add(Issue{
				Kind:     IssueLowCoverage,
				Severity: SeverityWarn,
				Unit:     unit,
				Detail:   fmt.Sprintf("parsed text covers %.0f%% of source text (threshold %.0f%%)", ratio*100, threshold*100),
			})
		}
		report.Coverage = append(report.Coverage, entry)
	}

	for i := range doc.Articles {
		article := &doc.Articles[i]
		record(formex.UnitKey(formex.UnitArticle, article.Number), article.Title+"\n"+article.BodyText())
	}
	for _, recital := range doc.Recitals {
		record(formex.UnitKey(formex.UnitRecital, recital.Number), recital.Text)
	}
	for _, annex := range doc.Annexes {
		record(formex.UnitKey(formex.UnitAnnex, annex.Number), annex.Title+"\n"+annex.Content)
	}
}

// coverageRatio is parsed/source length. Two empty sides agree perfectly;
// parsed text with no source counterpart means the boundary walk went wrong
// and scores zero.
func coverageRatio(parsedLen, sourceLen int) float64 {
	if sourceLen == 0 {
		if parsedLen == 0 {
			return 1.0
		}
		return 0.0
	}
	return float64(parsedLen) / float64(sourceLen)
}
