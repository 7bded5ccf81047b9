// Package output provides JSONL records describing an index run.
//
// Each line is a typed envelope with a type-specific payload, so
// automation can follow a run without parsing log text.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/expindex/pkg/schema"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: expindex.<type>.v<version>
const (
	// TypeFile identifies per-file validation records.
	TypeFile = "expindex.file.v1"

	// TypeError identifies operational error records.
	TypeError = "expindex.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "expindex.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "expindex.file.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this run.
	RunID string `json:"run_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// FileRecord is the validation outcome for one metadata file.
type FileRecord struct {
	File   string             `json:"file"`
	Valid  bool               `json:"valid"`
	Errors []schema.Violation `json:"errors,omitempty"`
}

// ErrorRecord is the data payload for operational errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// File is the metadata file related to this error, if known.
	File string `json:"file,omitempty"`

	// Reason is the storage failure cause for write and publish errors.
	Reason string `json:"reason,omitempty"`

	// Transient is set when rerunning unchanged may succeed.
	Transient bool `json:"transient,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeInvalidYAML  = "INVALID_YAML"
	ErrCodeSchema       = "SCHEMA"
	ErrCodeDiscovery    = "DISCOVERY"
	ErrCodeWrite        = "WRITE"
	ErrCodePublish      = "PUBLISH"
	ErrCodeAccessDenied = "ACCESS_DENIED"
	ErrCodeCanceled     = "CANCELED"
	ErrCodeInternal     = "INTERNAL"
)

// SummaryRecord is emitted once at the end of a run.
type SummaryRecord struct {
	Files   int `json:"files"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`

	// Output and SHA256 are set when an index was written.
	Output string `json:"output,omitempty"`
	SHA256 string `json:"sha256,omitempty"`

	// Published is the destination URI, if the index was published.
	Published string `json:"published,omitempty"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
