package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Issue is a single validation finding.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Unit     string    `json:"unit,omitempty"`
	Detail   string    `json:"detail"`
}

// CountCheck records an expected-vs-actual entity count. Expected is nil
// when the workflow configured no expectation for the kind.
type CountCheck struct {
	Kind     string `json:"kind"`
	Expected *int   `json:"expected,omitempty"`
	Actual   int    `json:"actual"`
}

// CoverageState says whether a unit's parsed text reached the coverage
// threshold against its exhaustive source text.
type CoverageState string

const (
	CoverageFull    CoverageState = "full"
	CoveragePartial CoverageState = "partial"
)

// CoverageEntry is the per-unit coverage measurement. Lengths are rune
// counts of whitespace-collapsed text.
type CoverageEntry struct {
	Unit      string        `json:"unit"`
	ParsedLen int           `json:"parsed_len"`
	SourceLen int           `json:"source_len"`
	Ratio     float64       `json:"ratio"`
	Covered   CoverageState `json:"covered"`
}

// Report is the complete validation output: counts, ordered issues, and the
// full coverage table. It serializes to validation-report.json.
type Report struct {
	GeneratedAt       time.Time       `json:"generated_at"`
	CoverageThreshold float64         `json:"coverage_threshold"`
	Counts            []CountCheck    `json:"counts"`
	Issues            []Issue         `json:"issues"`
	Coverage          []CoverageEntry `json:"coverage"`
}

// NewReport creates an empty report stamped with the current time.
func NewReport(threshold float64) *Report {
	return &Report{
		GeneratedAt:       time.Now().UTC(),
		CoverageThreshold: threshold,
		Issues:            []Issue{},
	}
}

func (r *Report) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
}

// Fails returns the fail-severity issues.
func (r *Report) Fails() []Issue {
	return lo.Filter(r.Issues, func(issue Issue, _ int) bool {
		return issue.Severity == SeverityFail
	})
}

// Warns returns the warn-severity issues.
func (r *Report) Warns() []Issue {
	return lo.Filter(r.Issues, func(issue Issue, _ int) bool {
		return issue.Severity == SeverityWarn
	})
}

// HasFailures reports whether any fail-severity issue was found.
func (r *Report) HasFailures() bool {
	return len(r.Fails()) > 0
}

// ToJSON serializes the report with indentation for human diffing.
func (r *Report) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// String renders a terminal summary block.
func (r *Report) String() string {
	var sb strings.Builder
	sb.WriteString("Validation Report\n")
	sb.WriteString("=================\n")

	for _, count := range r.Counts {
		if count.Expected != nil {
			fmt.Fprintf(&sb, "%-10s %d/%d expected\n", count.Kind+"s:", count.Actual, *count.Expected)
		} else {
			fmt.Fprintf(&sb, "%-10s %d\n", count.Kind+"s:", count.Actual)
		}
	}

	partial := lo.CountBy(r.Coverage, func(entry CoverageEntry) bool {
		return entry.Covered == CoveragePartial
	})
	fmt.Fprintf(&sb, "Coverage:  %d units, %d below %.0f%% threshold\n",
		len(r.Coverage), partial, r.CoverageThreshold*100)

	fails, warns := r.Fails(), r.Warns()
	fmt.Fprintf(&sb, "Issues:    %d (%d fail, %d warn)\n", len(r.Issues), len(fails), len(warns))
	for _, issue := range r.Issues {
		if issue.Unit != "" {
			fmt.Fprintf(&sb, "  [%s] %s (%s): %s\n", issue.Severity, issue.Kind, issue.Unit, issue.Detail)
		} else {
			fmt.Fprintf(&sb, "  [%s] %s: %s\n", issue.Severity, issue.Kind, issue.Detail)
		}
	}

	return sb.String()
}

// WriteFile saves the report, choosing the format by file extension:
// .json gets the JSON serialization, anything else the text summary.
func (r *Report) WriteFile(path string) error {
	var data []byte
	if filepath.Ext(path) == ".json" {
		jsonData, err := r.ToJSON()
		if err != nil {
			return err
		}
		data = jsonData
	} else {
		data = []byte(r.String())
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}
