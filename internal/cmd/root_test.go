package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/expindex/pkg/output"
	"github.com/3leaps/expindex/pkg/provider"
	"github.com/3leaps/expindex/pkg/publish"
	"github.com/3leaps/expindex/pkg/validate"
)

const testSchema = `{
  "type": "object",
  "required": ["title"],
  "properties": {
    "title": {"type": "string"},
    "date_created": {"type": "string", "format": "date"}
  }
}`

func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
	appConfig = nil
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func validTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"scripts/schema.json":          testSchema,
		"experiments/old/metadata.yml": "title: Old\ndate_created: 2023-05-05\n",
		"experiments/new/metadata.yml": "title: New\ndate_created: 2024-01-01\n",
	})
}

func TestBuild_Success(t *testing.T) {
	for _, args := range [][]string{{}, {"build"}} {
		t.Run(strings.Join(append([]string{"expindex"}, args...), " "), func(t *testing.T) {
			dir := validTree(t)

			res := runCLI(t, append([]string{"-C", dir}, args...)...)
			require.Equal(t, ExitSuccess, res.code, res.stderr)
			assert.Contains(t, res.stderr, "INFO Wrote 2 experiments to public/experiments.json")
			assert.Empty(t, res.stdout)

			data, err := os.ReadFile(filepath.Join(dir, "public", "experiments.json"))
			require.NoError(t, err)
			var got []map[string]any
			require.NoError(t, json.Unmarshal(data, &got))
			require.Len(t, got, 2)
			assert.Equal(t, "New", got[0]["title"])
		})
	}
}

func TestBuild_ValidationFailure(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"scripts/schema.json":        testSchema,
		"experiments/a/metadata.yml": "title: A\n",
		"experiments/b/metadata.yml": "date_created: 2024-01-01\n",
	})

	res := runCLI(t, "-C", dir)
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "ERROR Validation errors:\n[")
	assert.Contains(t, res.stderr, `"file": "experiments/b/metadata.yml"`)
	assert.NotContains(t, res.stderr, "Build failed", "validation failures are logged once")
	assert.NoFileExists(t, filepath.Join(dir, "public", "experiments.json"))
}

func TestBuild_OperationalFailure(t *testing.T) {
	t.Run("unparsable metadata", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"scripts/schema.json":        testSchema,
			"experiments/a/metadata.yml": "title: [broken\n",
		})

		res := runCLI(t, "-C", dir)
		assert.Equal(t, ExitFailure, res.code)
		assert.Contains(t, res.stderr, "ERROR Build failed")
		assert.Contains(t, res.stderr, "experiments/a/metadata.yml")
		assert.NotContains(t, res.stderr, "Validation errors")
		assert.NoFileExists(t, filepath.Join(dir, "public", "experiments.json"))
	})

	t.Run("missing schema", func(t *testing.T) {
		res := runCLI(t, "-C", t.TempDir())
		assert.Equal(t, ExitFailure, res.code)
		assert.Contains(t, res.stderr, "ERROR Build failed")
	})

	t.Run("unknown flag", func(t *testing.T) {
		res := runCLI(t, "--no-such-flag")
		assert.Equal(t, ExitFailure, res.code)
		assert.Contains(t, res.stderr, "no-such-flag")
	})

	t.Run("bad log level", func(t *testing.T) {
		res := runCLI(t, "-C", validTree(t), "--log-level", "loud")
		assert.Equal(t, ExitFailure, res.code)
		assert.Contains(t, res.stderr, "Invalid log level")
	})
}

func TestBuild_FlagsEnvAndConfig(t *testing.T) {
	t.Run("flags", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"schemas/meta.json":      testSchema,
			"data/x/metadata.yml":    "title: X\n",
			"data/.wip/metadata.yml": "title: WIP\n",
		})

		res := runCLI(t, "-C", dir, "build",
			"--schema", "schemas/meta.json",
			"--pattern", "data/**/metadata.yml",
			"--output", "dist/index.json",
			"--include-hidden")
		require.Equal(t, ExitSuccess, res.code, res.stderr)
		assert.Contains(t, res.stderr, "Wrote 2 experiments to dist/index.json")
	})

	t.Run("environment", func(t *testing.T) {
		dir := validTree(t)
		t.Setenv("EXPINDEX_OUTPUT", "env/out.json")

		res := runCLI(t, "-C", dir)
		require.Equal(t, ExitSuccess, res.code, res.stderr)
		assert.FileExists(t, filepath.Join(dir, "env", "out.json"))
	})

	t.Run("config file", func(t *testing.T) {
		dir := validTree(t)
		cfgPath := filepath.Join(dir, "expindex.yaml")
		site := t.TempDir()
		content := "output: site.json\npublish:\n  destination: file://" + filepath.ToSlash(site) + "/\n"
		require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

		res := runCLI(t, "-C", dir, "--config", cfgPath)
		require.Equal(t, ExitSuccess, res.code, res.stderr)
		assert.FileExists(t, filepath.Join(dir, "site.json"))
		assert.FileExists(t, filepath.Join(site, "experiments.json"))
		assert.Contains(t, res.stderr, "Published index")
	})

	t.Run("invalid config file", func(t *testing.T) {
		dir := validTree(t)
		cfgPath := filepath.Join(dir, "expindex.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("ouptut: x.json\n"), 0o644))

		res := runCLI(t, "-C", dir, "--config", cfgPath)
		assert.Equal(t, ExitFailure, res.code)
		assert.Contains(t, res.stderr, "Failed to load configuration")
	})
}

func TestValidateCommand(t *testing.T) {
	dir := validTree(t)

	res := runCLI(t, "-C", dir, "validate", "--publish", "file:///nowhere/")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Validated 2 experiments")
	assert.NoDirExists(t, filepath.Join(dir, "public"))
}

func TestJSONLRecords(t *testing.T) {
	decode := func(t *testing.T, stdout string) []output.Record {
		t.Helper()
		var records []output.Record
		for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
			var r output.Record
			require.NoError(t, json.Unmarshal([]byte(line), &r), line)
			records = append(records, r)
		}
		return records
	}

	t.Run("success", func(t *testing.T) {
		res := runCLI(t, "-C", validTree(t), "--jsonl")
		require.Equal(t, ExitSuccess, res.code, res.stderr)

		records := decode(t, res.stdout)
		require.Len(t, records, 3)
		assert.Equal(t, output.TypeFile, records[0].Type)
		assert.Equal(t, output.TypeFile, records[1].Type)
		assert.Equal(t, output.TypeSummary, records[2].Type)

		var sum output.SummaryRecord
		require.NoError(t, json.Unmarshal(records[2].Data, &sum))
		assert.Equal(t, 2, sum.Valid)
		assert.Equal(t, "public/experiments.json", sum.Output)
		assert.Len(t, sum.SHA256, 64)
	})

	t.Run("operational error", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"scripts/schema.json":        testSchema,
			"experiments/a/metadata.yml": "title: [broken\n",
		})
		res := runCLI(t, "-C", dir, "validate", "--jsonl")
		assert.Equal(t, ExitFailure, res.code)

		records := decode(t, res.stdout)
		require.Len(t, records, 2)
		assert.Equal(t, output.TypeError, records[0].Type)

		var rec output.ErrorRecord
		require.NoError(t, json.Unmarshal(records[0].Data, &rec))
		assert.Equal(t, output.ErrCodeInvalidYAML, rec.Code)
		assert.Equal(t, "experiments/a/metadata.yml", rec.File)
	})
}

func TestVersionCommand(t *testing.T) {
	origVersion, origCommit, origDate := versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate
	defer SetVersionInfo(origVersion, origCommit, origDate)
	SetVersionInfo("1.2.3", "abc123", "2024-01-15")

	res := runCLI(t, "version")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "expindex 1.2.3 (commit abc123, built 2024-01-15"))

	res = runCLI(t, "version", "--json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &info))
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "abc123", info["commit"])

	t.Run("ignores broken config", func(t *testing.T) {
		res := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
		assert.Equal(t, ExitSuccess, res.code, res.stderr)
	})
}

func TestSetVersionInfo(t *testing.T) {
	origVersion, origCommit, origDate := versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate
	defer SetVersionInfo(origVersion, origCommit, origDate)

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{"set all values", "1.0.0", "abc123", "2024-01-15"},
		{"set dev version", "dev", "HEAD", "unknown"},
		{"set empty values", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitFailure},
		{"exit error", exitError("Build failed", errors.New("boom")), ExitFailure},
		{"custom code", &ExitError{Code: 3, Msg: "x"}, 3},
		{"zero code", &ExitError{Code: 0, Msg: "x"}, ExitFailure},
		{"validation", exitError("Build failed", &validate.FailedError{}), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestReportError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	reportError(logger, exitError("Build failed", &validate.FailedError{}))
	assert.Zero(t, logs.Len())

	reportError(logger, exitError("Build failed", errors.New("disk full")))
	reportError(logger, errors.New("raw"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Build failed", entries[0].Message)
	assert.Equal(t, "disk full", entries[0].ContextMap()["error"])
	assert.Equal(t, "Command failed", entries[1].Message)
	assert.NotContains(t, entries[0].ContextMap(), "reason")

	t.Run("provider failure carries reason", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		err := fmt.Errorf("%w: %w", publish.ErrPublishFailed, &provider.ProviderError{Op: "Put", Provider: provider.ProviderS3, Bucket: "b", Key: "k", Err: provider.ErrThrottled})
		reportError(zap.New(core), exitError("Build failed", err))

		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "throttled", fields["reason"])
		assert.Equal(t, true, fields["transient"])
	})
}

func TestExitError_Error(t *testing.T) {
	assert.Equal(t, "Build failed: boom", exitError("Build failed", errors.New("boom")).Error())
	assert.Equal(t, "3 of 5 checks failed", exitError("3 of 5 checks failed", nil).Error())
}
