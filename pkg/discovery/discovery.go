// Package discovery enumerates experiment metadata files under a root
// directory using doublestar glob semantics.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern matches every experiment metadata file.
const DefaultPattern = "experiments/**/metadata.yml"

// Errors returned by Discover.
var (
	// ErrNoPattern is returned when the pattern is empty.
	ErrNoPattern = errors.New("a glob pattern is required")

	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrAbsolutePattern is returned for patterns that escape the root.
	ErrAbsolutePattern = errors.New("pattern must be relative to the root")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Config configures discovery.
type Config struct {
	// Root is the directory the pattern is evaluated against.
	// Empty means the current working directory.
	Root string

	// Pattern is a doublestar glob relative to Root.
	Pattern string

	// IncludeHidden controls whether paths with a dot-prefixed segment
	// are returned. Default: false.
	IncludeHidden bool
}

// Discover returns the slash-separated paths, relative to cfg.Root, of
// every file matching cfg.Pattern.
//
// Paths come back in traversal order; no sort is applied. A pattern that
// matches nothing (including a missing base directory) yields an empty,
// non-nil slice.
func Discover(ctx context.Context, cfg Config) ([]string, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return Glob(ctx, os.DirFS(root), cfg.Pattern, cfg.IncludeHidden)
}

// Glob is Discover over an arbitrary file system.
func Glob(ctx context.Context, fsys fs.FS, pattern string, includeHidden bool) ([]string, error) {
	normalized := NormalizePattern(pattern)
	if normalized == "" {
		return nil, ErrNoPattern
	}
	if path.IsAbs(normalized) {
		return nil, &PatternError{Pattern: pattern, Err: ErrAbsolutePattern}
	}
	if !doublestar.ValidatePattern(normalized) {
		return nil, &PatternError{Pattern: pattern, Err: ErrInvalidPattern}
	}

	files := []string{}
	err := doublestar.GlobWalk(fsys, normalized, func(p string, _ fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !includeHidden && IsHidden(p) {
			return nil
		}
		files = append(files, p)
		return nil
	}, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to discover %q: %w", pattern, err)
	}

	return files, nil
}
