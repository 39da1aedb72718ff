package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coolbeans/fmxcorpus/pkg/config"
	"github.com/coolbeans/fmxcorpus/pkg/formex"
	"github.com/coolbeans/fmxcorpus/pkg/pipeline"
	"github.com/coolbeans/fmxcorpus/pkg/validate"
	"github.com/coolbeans/fmxcorpus/pkg/watch"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "fmxcorpus",
		Short: "Formex XML to markdown corpus builder",
		Long: `fmxcorpus builds a markdown corpus from an EU regulation published
as Formex 4 XML.

It resolves the regulation in the Publications Office Cellar via SPARQL,
fetches the Formex manifestation, parses articles, recitals, and annexes,
cross-validates the parse against an exhaustive text extraction, and
writes one markdown file per unit plus a validation report.

Validation findings are advisory: they are reported, never fatal. The
exit code reflects infrastructure failures only.`,
		Version: version,
	}

	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(convertCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the full pipeline from a workflow file",
		Long: `Run the full pipeline: SPARQL resolution, fetch, parse, validate,
and convert, as configured by the workflow file.

Example:
  fmxcorpus build --workflow ai-act.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowPath, _ := cmd.Flags().GetString("workflow")

			workflow, err := config.Load(workflowPath)
			if err != nil {
				return err
			}

			runner := pipeline.NewRunner(workflow)
			_, err = runner.Run(cmd.Context())
			return err
		},
	}
	cmd.Flags().StringP("workflow", "w", "workflow.yaml", "Workflow file")
	return cmd
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [dir]",
		Short: "Parse a local directory of Formex files",
		Long: `Parse an already-fetched directory of Formex files and print the
extracted structure.

Example:
  fmxcorpus parse ./formex --json > parsed.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			doc, _, err := parseDir(args[0])
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal document: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			stats := doc.Statistics()
			fmt.Printf("Articles:   %d\n", stats.Articles)
			fmt.Printf("Recitals:   %d\n", stats.Recitals)
			fmt.Printf("Annexes:    %d\n", stats.Annexes)
			fmt.Printf("Paragraphs: %d\n", stats.Paragraphs)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the full parsed document as JSON")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate a local directory of Formex files",
		Long: `Parse a local directory and run the validation checks against the
expectations in the workflow file.

Findings are printed but never affect the exit code; only infrastructure
failures (unreadable files, a malformed main document) do.

Example:
  fmxcorpus validate ./formex --workflow ai-act.yaml --format json
  fmxcorpus validate ./formex --workflow ai-act.yaml --report report.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowPath, _ := cmd.Flags().GetString("workflow")
			format, _ := cmd.Flags().GetString("format")
			reportPath, _ := cmd.Flags().GetString("report")

			workflow, err := config.Load(workflowPath)
			if err != nil {
				return err
			}

			doc, units, err := parseDir(args[0])
			if err != nil {
				return err
			}

			index := formex.BuildSourceIndex(units)
			report := validate.Run(doc, index, workflow.Validation)

			switch format {
			case "json":
				data, err := report.ToJSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			case "text", "":
				fmt.Print(report.String())
			default:
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}

			if reportPath != "" {
				if err := report.WriteFile(reportPath); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Report written to %s\n", reportPath)
			}
			return nil
		},
	}
	cmd.Flags().StringP("workflow", "w", "workflow.yaml", "Workflow file")
	cmd.Flags().String("format", "text", "Output format: text or json")
	cmd.Flags().String("report", "", "Also write the report to this file")
	return cmd
}

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [dir]",
		Short: "Build the corpus from a local directory, skipping network phases",
		Long: `Run the local phases (parse, validate, convert) against an
already-fetched directory of Formex files.

Example:
  fmxcorpus convert ./formex --workflow ai-act.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowPath, _ := cmd.Flags().GetString("workflow")

			workflow, err := config.Load(workflowPath)
			if err != nil {
				return err
			}

			runner := pipeline.NewRunner(workflow)
			_, err = runner.BuildFromDir(args[0])
			return err
		},
	}
	cmd.Flags().StringP("workflow", "w", "workflow.yaml", "Workflow file")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the corpus when the workflow or source files change",
		Long: `Watch the workflow file (and optionally a local Formex source
directory) and rebuild on change. With --source the rebuild runs the local
phases only; without it every rebuild runs the full pipeline.

Example:
  fmxcorpus watch --workflow ai-act.yaml --source ./formex`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowPath, _ := cmd.Flags().GetString("workflow")
			sourceDir, _ := cmd.Flags().GetString("source")

			rebuild := func() {
				workflow, err := config.Load(workflowPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "rebuild skipped: %v\n", err)
					return
				}
				runner := pipeline.NewRunner(workflow)
				if sourceDir != "" {
					_, err = runner.BuildFromDir(sourceDir)
				} else {
					_, err = runner.Run(context.Background())
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
				}
			}

			paths := []string{workflowPath}
			if sourceDir != "" {
				paths = append(paths, sourceDir)
			}
			watcher, err := watch.New(rebuild, paths...)
			if err != nil {
				return err
			}
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()

			rebuild()

			fmt.Printf("Watching %v for changes (Ctrl+C to stop)\n", paths)
			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			<-signals
			fmt.Println("\nStopped.")
			return nil
		},
	}
	cmd.Flags().StringP("workflow", "w", "workflow.yaml", "Workflow file")
	cmd.Flags().String("source", "", "Local Formex source directory to watch and build from")
	return cmd
}

func parseDir(dir string) (*formex.ParsedDocument, []formex.UnitRef, error) {
	set, err := formex.LoadDocumentSet(dir)
	if err != nil {
		return nil, nil, err
	}
	return formex.ParseDocument(set)
}
