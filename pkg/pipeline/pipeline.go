// Package pipeline runs the experiment index build end to end: load the
// schema, discover metadata files, validate them, write the index and
// optionally publish it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/expindex/pkg/discovery"
	"github.com/3leaps/expindex/pkg/index"
	"github.com/3leaps/expindex/pkg/publish"
	"github.com/3leaps/expindex/pkg/schema"
	"github.com/3leaps/expindex/pkg/validate"
)

// Options configures one run. Zero values fall back to the package
// defaults of each stage.
type Options struct {
	// WorkDir is the root for discovery and for relative paths.
	WorkDir string

	SchemaPath    string
	Pattern       string
	Output        string
	IncludeHidden bool

	// DryRun stops after validation; nothing is written.
	DryRun bool

	// Publish, when set, receives a copy of the written index.
	Publish        *publish.Destination
	PublishOptions publish.Options
}

// Report summarizes a run.
type Report struct {
	RunID    string
	Files    int
	Valid    int
	Invalid  int
	Index    *index.Summary
	Duration time.Duration

	// ValidFiles lists the files that passed, in discovery order.
	ValidFiles []string

	// Errors holds the per-file violations when validation failed.
	Errors []validate.FileError

	// Published is the destination the index was copied to, if any.
	Published string
}

// Run executes the pipeline.
//
// On validation failure the full report is logged once at error level and
// the returned error is a *validate.FailedError. Every other error is
// operational and is returned without being logged.
func Run(ctx context.Context, opts Options, logger *zap.Logger) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	logger = logger.With(zap.String("run_id", report.RunID))

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}

	schemaPath := resolve(workDir, defaultString(opts.SchemaPath, schema.DefaultPath))
	doc, err := schema.Load(schemaPath)
	if err != nil {
		return report, err
	}
	v, err := schema.Compile(doc)
	if err != nil {
		return report, err
	}
	logger.Debug("Schema compiled", zap.String("schema", schemaPath))

	files, err := discovery.Discover(ctx, discovery.Config{
		Root:          workDir,
		Pattern:       defaultString(opts.Pattern, discovery.DefaultPattern),
		IncludeHidden: opts.IncludeHidden,
	})
	if err != nil {
		return report, err
	}
	report.Files = len(files)
	logger.Debug("Discovered metadata files", zap.Int("files", len(files)))

	result, err := validate.Run(ctx, v, os.DirFS(workDir), files)
	if err != nil {
		return report, err
	}
	report.Valid = len(result.Records)
	report.Invalid = len(result.Errors)
	for _, rec := range result.Records {
		report.ValidFiles = append(report.ValidFiles, rec.File)
	}

	if err := result.Err(); err != nil {
		report.Errors = result.Errors
		report.Duration = time.Since(start)
		logValidationErrors(logger, err)
		return report, err
	}

	if opts.DryRun {
		report.Duration = time.Since(start)
		logger.Info(fmt.Sprintf("Validated %d experiments", report.Valid))
		return report, nil
	}

	summary, err := index.Build(ctx, result, index.Options{
		WorkDir: workDir,
		Output:  defaultString(opts.Output, index.DefaultOutput),
	})
	if err != nil {
		return report, err
	}
	report.Index = summary
	logger.Info(fmt.Sprintf("Wrote %d experiments to %s", summary.Count, summary.Output),
		zap.Int("bytes", summary.Bytes),
		zap.String("sha256", summary.Digest))

	if opts.Publish != nil {
		if err := publish.To(ctx, opts.Publish, summary.Data, opts.PublishOptions); err != nil {
			return report, err
		}
		report.Published = opts.Publish.String()
		logger.Info("Published index", zap.String("destination", report.Published))
	}

	report.Duration = time.Since(start)
	return report, nil
}

func logValidationErrors(logger *zap.Logger, err error) {
	var fe *validate.FailedError
	if !errors.As(err, &fe) {
		logger.Error("Validation failed", zap.Error(err))
		return
	}

	data, rerr := fe.Report()
	if rerr != nil {
		logger.Error("Validation failed", zap.Error(err), zap.NamedError("report_error", rerr))
		return
	}
	logger.Error("Validation errors:\n"+string(data), zap.Int("invalid_files", len(fe.Entries)))
}

func resolve(workDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workDir, p)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
