package cmd

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/expindex/internal/observability"
	"github.com/3leaps/expindex/pkg/output"
	"github.com/3leaps/expindex/pkg/pipeline"
	"github.com/3leaps/expindex/pkg/publish"
	"github.com/3leaps/expindex/pkg/validate"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Validate metadata and write the experiments index",
	Long: `Validate every metadata file against the schema and write the sorted
index. If any file fails validation nothing is written and the full error
report is logged.

Example:
  expindex build
  expindex build --output dist/experiments.json
  expindex build --publish s3://site-assets/public/experiments.json --jsonl`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	return runPipeline(cmd, false)
}

// runPipeline executes the pipeline with appConfig. dryRun stops after
// validation and ignores the publish destination.
func runPipeline(cmd *cobra.Command, dryRun bool) error {
	cfg := appConfig
	opts := pipeline.Options{
		WorkDir:       cfg.WorkDir,
		SchemaPath:    cfg.Schema,
		Pattern:       cfg.Pattern,
		Output:        cfg.Output,
		IncludeHidden: cfg.IncludeHidden,
		DryRun:        dryRun,
	}
	if !dryRun && cfg.Publish.Enabled() {
		dest, err := publish.ParseDestination(cfg.Publish.Destination)
		if err != nil {
			return exitError("Invalid publish destination", err)
		}
		opts.Publish = dest
		opts.PublishOptions = cfg.Publish.Options()
	}

	observability.CLILogger.Debug("Starting run",
		zap.String("workdir", opts.WorkDir),
		zap.String("schema", opts.SchemaPath),
		zap.String("pattern", opts.Pattern),
		zap.Bool("dry_run", dryRun))

	report, err := pipeline.Run(cmd.Context(), opts, observability.CLILogger)

	if jsonlOutput && report != nil {
		if werr := writeRecords(context.WithoutCancel(cmd.Context()), cmd.OutOrStdout(), report, err); werr != nil {
			observability.CLILogger.Warn("Failed to write run records", zap.Error(werr))
		}
	}

	if err != nil {
		if dryRun {
			return exitError("Validation failed", err)
		}
		return exitError("Build failed", err)
	}
	return nil
}

// writeRecords emits one file record per checked file, an error record
// for operational failures and a closing summary.
func writeRecords(ctx context.Context, w io.Writer, report *pipeline.Report, runErr error) error {
	jw := output.NewJSONLWriter(w, report.RunID)
	defer func() { _ = jw.Close() }()

	for _, file := range report.ValidFiles {
		if err := jw.WriteFile(ctx, &output.FileRecord{File: file, Valid: true}); err != nil {
			return err
		}
	}
	for _, fe := range report.Errors {
		if err := jw.WriteFile(ctx, &output.FileRecord{File: fe.File, Errors: fe.Errors}); err != nil {
			return err
		}
	}
	if runErr != nil && !errors.Is(runErr, validate.ErrValidationFailed) {
		if err := jw.WriteError(ctx, output.ErrorRecordFor(runErr)); err != nil {
			return err
		}
	}

	sum := &output.SummaryRecord{
		Files:     report.Files,
		Valid:     report.Valid,
		Invalid:   report.Invalid,
		Published: report.Published,
		Duration:  report.Duration,
	}
	if report.Index != nil {
		sum.Output = report.Index.Output
		sum.SHA256 = report.Index.Digest
	}
	return jw.WriteSummary(ctx, sum)
}
