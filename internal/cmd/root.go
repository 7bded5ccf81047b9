// Package cmd implements the expindex command line.
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/3leaps/expindex/internal/config"
	"github.com/3leaps/expindex/internal/observability"
	"github.com/3leaps/expindex/pkg/discovery"
	"github.com/3leaps/expindex/pkg/index"
	"github.com/3leaps/expindex/pkg/schema"
)

var (
	cfgFile     string
	jsonlOutput bool

	// appConfig is the configuration resolved for the running command.
	appConfig *config.Config
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "expindex",
	Short: "Build a validated index of experiment metadata",
	Long: `expindex collects experiment metadata.yml files, validates each one
against a JSON Schema and writes a single sorted JSON index.

Running expindex without a subcommand is the same as "expindex build".

Example:
  expindex
  expindex -C ./site build --output public/experiments.json
  expindex validate
  expindex build --publish s3://site-assets/public/experiments.json`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
	RunE:              runBuild,
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"workdir":        "workdir",
	"log-level":      "logging.level",
	"schema":         "schema",
	"pattern":        "pattern",
	"output":         "output",
	"include-hidden": "include_hidden",
	"publish":        "publish.destination",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (YAML)")
	pf.StringP("workdir", "C", ".", "Run as if started in this directory")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("schema", schema.DefaultPath, "JSON Schema for metadata files")
	pf.String("pattern", discovery.DefaultPattern, "Glob for metadata files, relative to the workdir")
	pf.String("output", index.DefaultOutput, "Index output path")
	pf.Bool("include-hidden", false, "Include metadata files under dot-directories")
	pf.String("publish", "", "Publish destination after writing (s3://bucket/key or file:///dir/)")
	pf.BoolVar(&jsonlOutput, "jsonl", false, "Emit JSONL run records on stdout")
}

// initConfig resolves flags, environment and config file into appConfig
// and configures the logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	v := config.New()
	flags := cmd.Root().PersistentFlags()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return exitError("Failed to bind flag "+name, err)
		}
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return exitError("Failed to load configuration", err)
	}
	if err := observability.InitCLILogger(cfg.Logging.Level, cmd.ErrOrStderr()); err != nil {
		return exitError("Invalid log level", err)
	}

	appConfig = cfg
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	// Errors raised before config loads still need a logger.
	_ = observability.InitCLILogger("info", stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	reportError(observability.CLILogger, err)
	return ExitCode(err)
}
