package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/expindex/pkg/metadata"
	"github.com/3leaps/expindex/pkg/publish"
	"github.com/3leaps/expindex/pkg/schema"
	"github.com/3leaps/expindex/pkg/validate"
)

const testSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["title"],
  "properties": {
    "title": {"type": "string"},
    "date_created": {"type": "string", "format": "date"},
    "contact": {"type": "string", "format": "email"}
  }
}`

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

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestRun_Success(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"scripts/schema.json":               testSchema,
		"experiments/old/metadata.yml":      "title: Old\ndate_created: 2023-05-05\n",
		"experiments/undated/metadata.yml":  "title: Undated\n",
		"experiments/deep/new/metadata.yml": "title: New\ndate_created: 2024-01-01\ncontact: a@example.org\n",
		"experiments/old/notes.md":          "ignored",
		"experiments/.draft/metadata.yml":   "date_created: nope\n",
		"other/metadata.yml":                "title: elsewhere\n",
	})
	logger, logs := observed()

	report, err := Run(context.Background(), Options{WorkDir: dir}, logger)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 3, report.Valid)
	assert.Zero(t, report.Invalid)
	assert.NotEmpty(t, report.RunID)
	require.NotNil(t, report.Index)
	assert.Equal(t, 3, report.Index.Count)

	data, err := os.ReadFile(filepath.Join(dir, "public", "experiments.json"))
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 3)
	assert.Equal(t, "New", got[0]["title"])
	assert.Equal(t, "Old", got[1]["title"])
	assert.Equal(t, "Undated", got[2]["title"])
	assert.Equal(t, map[string]any{
		"root":     "experiments/deep/new/",
		"metadata": "experiments/deep/new/metadata.yml",
	}, got[0]["paths"])

	infos := logs.FilterLevelExact(zapcore.InfoLevel).All()
	require.Len(t, infos, 1)
	assert.Equal(t, "Wrote 3 experiments to public/experiments.json", infos[0].Message)
	assert.Equal(t, report.RunID, infos[0].ContextMap()["run_id"])
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRun_Idempotent(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"scripts/schema.json":        testSchema,
		"experiments/a/metadata.yml": "title: A\ndate_created: 2024-02-02\n",
		"experiments/b/metadata.yml": "title: B\ndate_created: 2024-02-02\n",
		"experiments/c/metadata.yml": "title: C\n",
	})
	out := filepath.Join(dir, "public", "experiments.json")

	_, err := Run(context.Background(), Options{WorkDir: dir}, nil)
	require.NoError(t, err)
	first, err := os.ReadFile(out)
	require.NoError(t, err)

	_, err = Run(context.Background(), Options{WorkDir: dir}, nil)
	require.NoError(t, err)
	second, err := os.ReadFile(out)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestRun_NoFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{"scripts/schema.json": testSchema})
	logger, logs := observed()

	report, err := Run(context.Background(), Options{WorkDir: dir}, logger)
	require.NoError(t, err)
	assert.Zero(t, report.Files)

	data, err := os.ReadFile(filepath.Join(dir, "public", "experiments.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
	assert.Equal(t, 1, logs.FilterMessage("Wrote 0 experiments to public/experiments.json").Len())
}

func TestRun_ValidationFailure(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"scripts/schema.json":        testSchema,
		"experiments/a/metadata.yml": "title: A\n",
		"experiments/b/metadata.yml": "date_created: 2024-13-45\n",
		"experiments/c/metadata.yml": "title: C\ncontact: not-an-email\n",
	})
	logger, logs := observed()

	report, err := Run(context.Background(), Options{WorkDir: dir}, logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, validate.ErrValidationFailed)
	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, 2, report.Invalid)
	require.Len(t, report.Errors, 2)
	for _, fe := range report.Errors {
		assert.NotEmpty(t, fe.Errors, fe.File)
	}

	_, statErr := os.Stat(filepath.Join(dir, "public"))
	assert.True(t, os.IsNotExist(statErr), "no output is written")

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	msg := errs[0].Message
	require.True(t, strings.HasPrefix(msg, "Validation errors:\n"))

	var entries []validate.FileError
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(msg, "Validation errors:\n")), &entries))
	require.Len(t, entries, 2)
	files := []string{entries[0].File, entries[1].File}
	assert.ElementsMatch(t, []string{"experiments/b/metadata.yml", "experiments/c/metadata.yml"}, files)
	assert.Zero(t, logs.FilterLevelExact(zapcore.InfoLevel).Len())
}

func TestRun_ValidationFailureKeepsPreviousOutput(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"scripts/schema.json":        testSchema,
		"experiments/a/metadata.yml": "date_created: 2024-01-01\n",
		"public/experiments.json":    "previous",
	})

	_, err := Run(context.Background(), Options{WorkDir: dir}, nil)
	require.Error(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "public", "experiments.json"))
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestRun_OperationalErrors(t *testing.T) {
	t.Run("missing schema", func(t *testing.T) {
		dir := writeTree(t, map[string]string{"experiments/a/metadata.yml": "title: A\n"})
		_, err := Run(context.Background(), Options{WorkDir: dir}, nil)
		assert.ErrorIs(t, err, schema.ErrSchemaNotFound)
	})

	t.Run("unparsable schema", func(t *testing.T) {
		dir := writeTree(t, map[string]string{"scripts/schema.json": "{not json"})
		_, err := Run(context.Background(), Options{WorkDir: dir}, nil)
		assert.ErrorIs(t, err, schema.ErrSchemaInvalid)
	})

	t.Run("unparsable metadata", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"scripts/schema.json":        testSchema,
			"experiments/a/metadata.yml": "date_created: 2024-01-01\n",
			"experiments/b/metadata.yml": "title: [broken\n",
		})
		logger, logs := observed()

		report, err := Run(context.Background(), Options{WorkDir: dir}, logger)
		require.Error(t, err)
		assert.ErrorIs(t, err, metadata.ErrInvalidYAML)
		assert.NotErrorIs(t, err, validate.ErrValidationFailed)
		assert.Empty(t, report.Errors)
		assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "operational errors are left to the caller")
		assert.Zero(t, logs.FilterLevelExact(zapcore.InfoLevel).Len())

		_, statErr := os.Stat(filepath.Join(dir, "public"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		dir := writeTree(t, map[string]string{"scripts/schema.json": testSchema})
		_, err := Run(context.Background(), Options{WorkDir: dir, Pattern: "experiments/[/metadata.yml"}, nil)
		require.Error(t, err)
	})
}

func TestRun_DryRun(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"scripts/schema.json":        testSchema,
		"experiments/a/metadata.yml": "title: A\n",
	})
	logger, logs := observed()

	report, err := Run(context.Background(), Options{WorkDir: dir, DryRun: true}, logger)
	require.NoError(t, err)
	assert.Nil(t, report.Index)
	assert.Equal(t, 1, logs.FilterMessage("Validated 1 experiments").Len())

	_, statErr := os.Stat(filepath.Join(dir, "public"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_CustomPathsAndPublish(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"schemas/meta.json":         testSchema,
		"data/x/metadata.yml":       "title: X\n",
		"data/.hidden/metadata.yml": "title: Hidden\n",
	})
	siteDir := t.TempDir()
	dest, err := publish.ParseDestination("file://" + filepath.ToSlash(siteDir) + "/")
	require.NoError(t, err)

	logger, logs := observed()
	report, err := Run(context.Background(), Options{
		WorkDir:       dir,
		SchemaPath:    "schemas/meta.json",
		Pattern:       "data/**/metadata.yml",
		Output:        "dist/index.json",
		IncludeHidden: true,
		Publish:       dest,
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)

	local, err := os.ReadFile(filepath.Join(dir, "dist", "index.json"))
	require.NoError(t, err)
	published, err := os.ReadFile(filepath.Join(siteDir, publish.DefaultKey))
	require.NoError(t, err)
	assert.Equal(t, string(local), string(published))
	assert.Equal(t, 1, logs.FilterMessage("Published index").Len())
}
