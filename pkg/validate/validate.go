// Package validate runs every discovered metadata file through the compiled
// schema and separates valid records from per-file violation reports.
package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/3leaps/expindex/pkg/metadata"
	"github.com/3leaps/expindex/pkg/schema"
)

// ErrValidationFailed indicates at least one metadata file failed schema validation.
var ErrValidationFailed = errors.New("metadata validation failed")

// Record is a metadata document that passed validation.
type Record struct {
	// File is the slash-separated path the document was read from.
	File string

	// Document is the parsed value, unchanged.
	Document any
}

// FileError lists every violation found in one file.
type FileError struct {
	File   string             `json:"file"`
	Errors []schema.Violation `json:"errors"`
}

// Result holds the outcome of validating a set of files.
type Result struct {
	Records []Record
	Errors  []FileError
}

// Valid reports whether every file passed.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns a *FailedError when any file failed, nil otherwise.
func (r *Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &FailedError{Entries: r.Errors}
}

// FailedError is returned when one or more files violate the schema.
type FailedError struct {
	Entries []FileError
}

// Error implements error interface.
func (e *FailedError) Error() string {
	if len(e.Entries) == 1 {
		return fmt.Sprintf("%s: %s", ErrValidationFailed, e.Entries[0].File)
	}

	files := make([]string, len(e.Entries))
	for i, entry := range e.Entries {
		files[i] = entry.File
	}
	return fmt.Sprintf("%s for %d files: %s", ErrValidationFailed, len(e.Entries), strings.Join(files, ", "))
}

// Unwrap returns the underlying error type.
func (e *FailedError) Unwrap() error {
	return ErrValidationFailed
}

// Report renders the entries as 2-space indented JSON.
func (e *FailedError) Report() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e.Entries); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Run validates files, read from fsys, against v.
//
// Files are processed sequentially and every file is checked before
// returning, so the error list is complete for the run. Read and parse
// failures are not validation results: they abort immediately with an
// error and a nil Result.
func Run(ctx context.Context, v *schema.Validator, fsys fs.FS, files []string) (*Result, error) {
	result := &Result{
		Records: make([]Record, 0, len(files)),
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata file %s: %w", file, err)
		}

		doc, err := metadata.Parse(data, file)
		if err != nil {
			return nil, err
		}

		violations, err := v.Validate(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}

		if len(violations) > 0 {
			result.Errors = append(result.Errors, FileError{File: file, Errors: violations})
			continue
		}
		result.Records = append(result.Records, Record{File: file, Document: doc})
	}

	return result, nil
}
