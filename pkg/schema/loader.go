// Package schema loads the experiment metadata JSON Schema and compiles it
// into a reusable validator.
//
// The schema is read once per run from disk, compiled once, and the
// resulting Validator is handed explicitly to whatever validates documents.
// There is no package-level validator cache.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultPath is the schema location relative to the working directory.
const DefaultPath = "scripts/schema.json"

// Loader errors.
var (
	// ErrSchemaNotFound indicates the schema file could not be located.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrSchemaInvalid indicates the schema file is not valid JSON.
	ErrSchemaInvalid = errors.New("invalid schema document")
)

// Document is a parsed, unmodified JSON Schema document.
type Document struct {
	// Path is where the document was read from. Also used as the
	// resource location when compiling.
	Path string

	// Value is the decoded JSON value. Numbers are json.Number.
	Value any
}

// Load reads and parses the schema at path.
//
// Returns an error if:
//   - The file cannot be read (not found, permission denied, etc.)
//   - The file is empty or is not valid JSON
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading schema: %s", path)
		}
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	return Parse(data, path)
}

// Parse decodes raw schema bytes. The path is used for error messages and
// as the compile-time resource location.
func Parse(data []byte, path string) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSchemaInvalid, path)
	}

	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaInvalid, path, err)
	}

	return &Document{Path: path, Value: value}, nil
}

// resourceURL returns the location the document is registered under.
func (d *Document) resourceURL() string {
	if d.Path == "" {
		return "schema.json"
	}
	return d.Path
}
