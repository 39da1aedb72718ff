// Package pipeline orchestrates a corpus build: resolve the document in
// Cellar, fetch it, parse it, validate the parse, and convert to markdown.
//
// Failure handling follows one rule: infrastructure failures (network,
// unreadable files, a malformed main document) abort the run; validation
// findings never do. The validation report is written and conversion
// proceeds even when the document fails every check, so a broken corpus can
// be inspected instead of being absent.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coolbeans/fmxcorpus/pkg/cellar"
	"github.com/coolbeans/fmxcorpus/pkg/config"
	"github.com/coolbeans/fmxcorpus/pkg/convert"
	"github.com/coolbeans/fmxcorpus/pkg/formex"
	"github.com/coolbeans/fmxcorpus/pkg/validate"
)

// ReportFilename is written next to (not inside) the corpus output
// directory, so corpus consumers that glob the directory never pick it up.
const ReportFilename = "validation-report.json"

// StepCounter tracks outcomes for one phase.
type StepCounter struct {
	OK     int
	Failed int
}

// Summary is the result of one pipeline run.
type Summary struct {
	Stats        formex.Statistics
	FilesWritten int
	ReportPath   string
	Failures     int
	Warnings     int
	Steps        map[string]StepCounter
}

// Runner executes the pipeline for one workflow.
type Runner struct {
	workflow *config.Workflow
	client   *cellar.Client
	fetcher  *cellar.Fetcher
	out      io.Writer
}

// NewRunner creates a runner with rate-limited default HTTP transports.
func NewRunner(workflow *config.Workflow) *Runner {
	timeout := time.Duration(workflow.SPARQL.TimeoutSeconds) * time.Second
	return &Runner{
		workflow: workflow,
		client:   cellar.NewClient(workflow.SPARQL.Endpoint, timeout),
		fetcher:  cellar.NewFetcher(workflow.Fetch, nil),
		out:      os.Stdout,
	}
}

// SetHTTPClient swaps the transport used for both the SPARQL and fetch
// phases. Tests use this to point the runner at a local server.
func (r *Runner) SetHTTPClient(client cellar.HTTPClient) {
	r.client = cellar.NewClientWithHTTP(r.workflow.SPARQL.Endpoint, client)
	r.fetcher = cellar.NewFetcher(r.workflow.Fetch, client)
}

// SetOutput redirects progress output.
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// Run executes the full pipeline: SPARQL resolution, fetch into a temp
// working directory, then the local build phases.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	steps := map[string]StepCounter{}

	uri, err := r.resolve(ctx, steps)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "fmxcorpus-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	fmt.Fprintf(r.out, "Fetching %s\n", uri)
	if err := r.fetcher.Download(ctx, uri, workDir); err != nil {
		return nil, fmt.Errorf("fetch phase: %w", err)
	}
	steps["fetch"] = StepCounter{OK: 1}

	summary, err := r.buildFromDir(workDir, steps)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// BuildFromDir runs the local phases (parse, validate, convert) against an
// already-fetched directory of Formex files. This is the whole pipeline for
// workflows without SPARQL steps.
func (r *Runner) BuildFromDir(dir string) (*Summary, error) {
	return r.buildFromDir(dir, map[string]StepCounter{})
}

// resolve runs the SPARQL step chain and returns the manifestation URI. A
// failed required step aborts; a failed optional step is only counted.
// Every row a collect step returned stays available for URI selection;
// later query templates interpolate the first row only.
func (r *Runner) resolve(ctx context.Context, steps map[string]StepCounter) (string, error) {
	vars := r.workflow.Source.TemplateVars()
	bound := map[string][]string{}
	counter := StepCounter{}

	for _, step := range r.workflow.SPARQL.Steps {
		fmt.Fprintf(r.out, "SPARQL step %s\n", step.Name)
		values, err := r.client.RunStep(ctx, step, vars)
		if err != nil {
			if step.Required {
				return "", fmt.Errorf("sparql phase: %w", err)
			}
			counter.Failed++
			continue
		}
		vars[step.Bind] = values[0]
		bound[step.Bind] = values
		counter.OK++
	}
	steps["sparql"] = counter

	return selectURI(r.workflow.Fetch, bound)
}

// selectURI picks the download URI from the candidates bound under
// uri_from, honoring the uri_contains filter when several rows were
// collected.
func selectURI(cfg config.Fetch, bound map[string][]string) (string, error) {
	candidates := bound[cfg.URIFrom]
	if len(candidates) == 0 {
		return "", fmt.Errorf("sparql phase: no URI bound under %q", cfg.URIFrom)
	}
	if cfg.URIContains == "" {
		return candidates[0], nil
	}
	for _, candidate := range candidates {
		if strings.Contains(candidate, cfg.URIContains) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("sparql phase: none of %d candidate URIs under %q contains %q",
		len(candidates), cfg.URIFrom, cfg.URIContains)
}

func (r *Runner) buildFromDir(dir string, steps map[string]StepCounter) (*Summary, error) {
	fmt.Fprintf(r.out, "Parsing Formex files in %s\n", dir)
	set, err := formex.LoadDocumentSet(dir)
	if err != nil {
		return nil, fmt.Errorf("parse phase: %w", err)
	}
	doc, units, err := formex.ParseDocument(set)
	if err != nil {
		return nil, fmt.Errorf("parse phase: %w", err)
	}
	steps["parse"] = StepCounter{OK: 1}

	stats := doc.Statistics()
	fmt.Fprintf(r.out, "Parsed %d articles, %d recitals, %d annexes\n",
		stats.Articles, stats.Recitals, stats.Annexes)

	index := formex.BuildSourceIndex(units)
	report := validate.Run(doc, index, r.workflow.Validation)

	// Clean first: a trailing slash on output_dir would otherwise move the
	// report inside the corpus directory.
	reportPath := filepath.Join(filepath.Dir(filepath.Clean(r.workflow.Corpus.OutputDir)), ReportFilename)
	if err := report.WriteFile(reportPath); err != nil {
		return nil, fmt.Errorf("validate phase: %w", err)
	}
	steps["validate"] = StepCounter{OK: 1}

	fails, warns := report.Fails(), report.Warns()
	fmt.Fprintf(r.out, "Validation: %d issues (%d fail, %d warn), report at %s\n",
		len(report.Issues), len(fails), len(warns), reportPath)

	written, err := convert.New(r.workflow).Write(doc, r.workflow.Corpus.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("convert phase: %w", err)
	}
	steps["convert"] = StepCounter{OK: written}
	fmt.Fprintf(r.out, "Wrote %d corpus files to %s\n", written, r.workflow.Corpus.OutputDir)

	summary := &Summary{
		Stats:        stats,
		FilesWritten: written,
		ReportPath:   reportPath,
		Failures:     len(fails),
		Warnings:     len(warns),
		Steps:        steps,
	}
	r.printSummary(summary)
	return summary, nil
}

func (r *Runner) printSummary(summary *Summary) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Build Summary")
	fmt.Fprintln(r.out, "=============")
	fmt.Fprintf(r.out, "Articles:  %d\n", summary.Stats.Articles)
	fmt.Fprintf(r.out, "Recitals:  %d\n", summary.Stats.Recitals)
	fmt.Fprintf(r.out, "Annexes:   %d\n", summary.Stats.Annexes)
	fmt.Fprintf(r.out, "Files:     %d\n", summary.FilesWritten)
	if summary.Failures > 0 {
		fmt.Fprintf(r.out, "Status:    %d fail-severity issues, see %s\n", summary.Failures, summary.ReportPath)
	} else if summary.Warnings > 0 {
		fmt.Fprintf(r.out, "Status:    clean, %d warnings\n", summary.Warnings)
	} else {
		fmt.Fprintln(r.out, "Status:    clean")
	}
}
