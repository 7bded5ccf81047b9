// Package index turns validated metadata records into the published
// experiments index.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/3leaps/expindex/pkg/validate"
)

// DefaultOutput is the index location relative to the working directory.
const DefaultOutput = "public/experiments.json"

// Field names interpreted or injected by the index.
const (
	FieldDateCreated = "date_created"
	FieldPaths       = "paths"
)

// Paths is injected into every entry.
type Paths struct {
	// Root is the directory holding the metadata file, with trailing slash.
	Root string `json:"root"`

	// Metadata is the metadata file path as discovered.
	Metadata string `json:"metadata"`
}

// PathsFor derives Paths from a slash-separated metadata file path.
func PathsFor(file string) Paths {
	return Paths{
		Root:     file[:strings.LastIndex(file, "/")+1],
		Metadata: file,
	}
}

// Entry is one enriched record in the index.
type Entry map[string]any

// Enrich returns a shallow copy of every record with a "paths" field added.
//
// Records whose document is not a mapping contribute only their paths.
// The source documents are not modified.
func Enrich(records []validate.Record) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		src, _ := rec.Document.(map[string]any)
		entry := make(Entry, len(src)+1)
		for k, v := range src {
			entry[k] = v
		}
		entry[FieldPaths] = PathsFor(rec.File)
		entries = append(entries, entry)
	}
	return entries
}

// DateCreated returns the sort key for e.
//
// Missing, null, false, empty and zero values all yield "".
func (e Entry) DateCreated() string {
	switch v := e[FieldDateCreated].(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if !v {
			return ""
		}
		return "true"
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 0 {
			return ""
		}
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Sort orders entries by date_created, newest first.
//
// Keys are compared with root-locale collation. The sort is stable, so
// entries with equal keys keep their discovery order.
func Sort(entries []Entry) {
	c := collate.New(language.Und)
	var buf collate.Buffer
	keys := make([][]byte, len(entries))
	for i, e := range entries {
		keys[i] = append([]byte(nil), c.KeyFromString(&buf, e.DateCreated())...)
		buf.Reset()
	}

	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return bytes.Compare(keys[idx[a]], keys[idx[b]]) > 0
	})

	sorted := make([]Entry, len(entries))
	for i, j := range idx {
		sorted[i] = entries[j]
	}
	copy(entries, sorted)
}

// Marshal renders entries as a 2-space indented JSON array.
//
// HTML characters are not escaped and no trailing newline is written. An
// empty or nil slice renders as "[]".
func Marshal(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("failed to encode index: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
