package index

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/3leaps/expindex/pkg/provider"
	"github.com/3leaps/expindex/pkg/provider/file"
	"github.com/3leaps/expindex/pkg/validate"
)

// Build errors.
var (
	// ErrNoResult indicates Build was called without a validation result.
	ErrNoResult = errors.New("no validation result")

	// ErrWriteFailed indicates the index could not be written.
	ErrWriteFailed = errors.New("failed to write index")
)

// Options configures Build.
type Options struct {
	// WorkDir is the directory relative outputs resolve against.
	WorkDir string

	// Output is the index path. Defaults to DefaultOutput.
	Output string

	// Putter overrides the local file writer. Used by tests.
	Putter provider.ObjectPutter
}

// Summary describes a written index.
type Summary struct {
	Count  int    `json:"count"`
	Output string `json:"output"`
	Bytes  int    `json:"bytes"`
	Digest string `json:"sha256"`

	// Data is the written index.
	Data []byte `json:"-"`
}

// Build writes the index for a fully valid result.
//
// When result holds any validation errors nothing is written and the
// returned error is a *validate.FailedError.
func Build(ctx context.Context, result *validate.Result, opts Options) (*Summary, error) {
	if result == nil {
		return nil, ErrNoResult
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	entries := Enrich(result.Records)
	Sort(entries)

	data, err := Marshal(entries)
	if err != nil {
		return nil, err
	}

	putter, key, err := writerFor(opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = putter.Close() }()

	if err := putter.PutObject(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	sum := sha256.Sum256(data)
	return &Summary{
		Count:  len(entries),
		Output: outputPath(opts),
		Bytes:  len(data),
		Digest: hex.EncodeToString(sum[:]),
		Data:   data,
	}, nil
}

func outputPath(opts Options) string {
	if opts.Output == "" {
		return DefaultOutput
	}
	return opts.Output
}

// writerFor returns the putter and key for the configured output.
//
// Relative outputs are keys under WorkDir. Absolute outputs, and relative
// ones that climb out of WorkDir, are keyed by base name under their own
// directory.
func writerFor(opts Options) (provider.ObjectPutter, string, error) {
	out := filepath.Clean(outputPath(opts))
	base := opts.WorkDir
	if base == "" {
		base = "."
	}
	key := filepath.ToSlash(out)
	if filepath.IsAbs(out) || out == ".." || strings.HasPrefix(key, "../") {
		full := out
		if !filepath.IsAbs(out) {
			full = filepath.Join(base, out)
		}
		base = filepath.Dir(full)
		key = filepath.Base(full)
	}

	if opts.Putter != nil {
		return opts.Putter, key, nil
	}

	p, err := file.New(file.Config{BaseDir: base})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return p, key, nil
}
