package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/expindex/internal/config"
	"github.com/3leaps/expindex/internal/observability"
	"github.com/3leaps/expindex/pkg/discovery"
	"github.com/3leaps/expindex/pkg/provider"
	"github.com/3leaps/expindex/pkg/publish"
	"github.com/3leaps/expindex/pkg/schema"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that inputs and destinations are usable",
	Long: `Run diagnostic checks against the resolved configuration: the working
directory, the schema, the discovery pattern, the output location and,
when publishing is configured, the destination and AWS credentials.

Nothing is written.

Example:
  expindex doctor
  expindex doctor --publish s3://site-assets/public/`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorCheck is one diagnostic. run returns a short detail on success.
type doctorCheck struct {
	name string
	run  func(ctx context.Context, cfg *config.Config) (string, error)
}

func doctorChecks(cfg *config.Config) []doctorCheck {
	checks := []doctorCheck{
		{"Go runtime", checkRuntime},
		{"working directory", checkWorkDir},
		{"schema", checkSchema},
		{"metadata discovery", checkDiscovery},
		{"output location", checkOutput},
	}
	if cfg.Publish.Enabled() {
		checks = append(checks, doctorCheck{"publish destination", checkPublish})
	}
	return checks
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	logger := observability.CLILogger
	cfg := appConfig
	checks := doctorChecks(cfg)

	logger.Info("=== expindex doctor ===")
	failed := 0
	for i, c := range checks {
		detail, err := c.run(cmd.Context(), cfg)
		prefix := fmt.Sprintf("[%d/%d] Checking %s...", i+1, len(checks), c.name)
		if err != nil {
			failed++
			logger.Error(prefix+" failed", zap.Error(err))
			continue
		}
		logger.Info(prefix + " ok: " + detail)
	}

	if failed > 0 {
		return exitError(fmt.Sprintf("%d of %d checks failed", failed, len(checks)), nil)
	}
	logger.Info("All checks passed")
	return nil
}

func checkRuntime(context.Context, *config.Config) (string, error) {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), nil
}

func checkWorkDir(_ context.Context, cfg *config.Config) (string, error) {
	abs, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

func checkSchema(_ context.Context, cfg *config.Config) (string, error) {
	p := cfg.Schema
	if !filepath.IsAbs(p) {
		p = filepath.Join(cfg.WorkDir, p)
	}
	doc, err := schema.Load(p)
	if err != nil {
		return "", err
	}
	if _, err := schema.Compile(doc); err != nil {
		return "", err
	}
	return p, nil
}

func checkDiscovery(ctx context.Context, cfg *config.Config) (string, error) {
	files, err := discovery.Discover(ctx, discovery.Config{
		Root:          cfg.WorkDir,
		Pattern:       cfg.Pattern,
		IncludeHidden: cfg.IncludeHidden,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d files match %s", len(files), cfg.Pattern), nil
}

// checkOutput finds the closest existing ancestor of the output file and
// requires it to be a directory.
func checkOutput(_ context.Context, cfg *config.Config) (string, error) {
	out := cfg.Output
	if !filepath.IsAbs(out) {
		out = filepath.Join(cfg.WorkDir, out)
	}
	if st, err := os.Stat(out); err == nil && st.IsDir() {
		return "", fmt.Errorf("%s is a directory", out)
	}

	dir := filepath.Dir(out)
	for {
		st, err := os.Stat(dir)
		if err == nil {
			if !st.IsDir() {
				return "", fmt.Errorf("%s is not a directory", dir)
			}
			if dir == filepath.Dir(out) {
				return out, nil
			}
			return out + " (parent directories will be created)", nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing ancestor for %s", out)
		}
		dir = parent
	}
}

func checkPublish(ctx context.Context, cfg *config.Config) (string, error) {
	dest, err := publish.ParseDestination(cfg.Publish.Destination)
	if err != nil {
		return "", err
	}
	if dest.Provider != provider.ProviderS3 {
		return dest.String(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Publish.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Publish.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("cannot load AWS config: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot retrieve AWS credentials: %w", err)
	}

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("%s (access key %s, source %s)", dest, maskAccessKey(creds.AccessKeyID), source), nil
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
