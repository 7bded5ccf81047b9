// Package file writes objects to the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/3leaps/expindex/pkg/provider"
)

// DefaultFileMode is the permission applied to written objects.
const DefaultFileMode os.FileMode = 0o644

// Provider puts objects as files under a base directory.
//
// Keys are slash-separated paths relative to BaseDir. Writes go to a temp
// file in the destination directory and are renamed into place, so readers
// never observe a partial index.
type Provider struct {
	baseDir string
	mode    os.FileMode
}

var _ provider.ObjectPutter = (*Provider)(nil)

type Config struct {
	BaseDir string

	// Mode overrides DefaultFileMode when non-zero.
	Mode os.FileMode
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode := cfg.Mode
	if mode == 0 {
		mode = DefaultFileMode
	}
	return &Provider{baseDir: filepath.Clean(cfg.BaseDir), mode: mode}, nil
}

// BaseDir returns the directory keys are resolved against.
func (p *Provider) BaseDir() string { return p.baseDir }

func (p *Provider) Close() error { return nil }

// PutObject writes body to key, creating parent directories as needed.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	_ = contentLength
	if err := ctx.Err(); err != nil {
		return p.wrapError("Put", key, err)
	}

	full, err := p.fullPath(key)
	if err != nil {
		return p.wrapError("Put", key, err)
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return p.wrapError("Put", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".expindex-put-*")
	if err != nil {
		return p.wrapError("Put", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		return p.wrapError("Put", key, err)
	}
	if err := tmp.Chmod(p.mode); err != nil {
		return p.wrapError("Put", key, err)
	}
	if err := tmp.Close(); err != nil {
		return p.wrapError("Put", key, err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		return p.wrapError("Put", key, err)
	}
	return nil
}

// fullPath maps a slash-separated key to a path under baseDir. Keys that
// are empty or resolve outside baseDir are rejected.
func (p *Provider) fullPath(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", provider.ErrInvalidKey
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", provider.ErrInvalidKey
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(clean)), nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Bucket: p.baseDir, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	if errors.Is(err, os.ErrPermission) {
		wrapped.Err = fmt.Errorf("%w: %v", provider.ErrAccessDenied, err)
	}
	return wrapped
}
