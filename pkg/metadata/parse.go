// Package metadata parses experiment metadata.yml files into JSON-compatible
// values suitable for schema validation and JSON output.
//
// Parsing goes YAML node tree → generic value → JSON → generic value. The
// JSON round trip pins the value to the types a JSON Schema validator and
// the JSON encoder agree on (map[string]any, []any, string, bool,
// json.Number, nil).
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// FileName is the canonical metadata file name.
const FileName = "metadata.yml"

// Parse errors.
var (
	// ErrInvalidYAML indicates the file is not a single well-formed YAML document.
	ErrInvalidYAML = errors.New("invalid YAML in metadata")

	// ErrMultipleDocuments indicates the file holds more than one YAML document.
	ErrMultipleDocuments = errors.New("metadata file must contain a single YAML document")
)

// ParseError reports a metadata file that could not be parsed.
//
// A ParseError is fatal for the whole run; it is never folded into the
// per-file validation report.
type ParseError struct {
	File string
	Err  error
}

// Error implements error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInvalidYAML, e.File, e.Err)
}

// Unwrap exposes both ErrInvalidYAML and the underlying cause.
func (e *ParseError) Unwrap() []error {
	return []error{ErrInvalidYAML, e.Err}
}

// Parse decodes one YAML document from data.
//
// An empty file decodes to nil. Scalars YAML would resolve as timestamps
// keep their source text, so `date_created: 2024-01-01` stays
// "2024-01-01". The path is used for error messages only.
func Parse(data []byte, path string) (any, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &ParseError{File: path, Err: err}
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return nil, &ParseError{File: path, Err: ErrMultipleDocuments}
	} else if !errors.Is(err, io.EOF) {
		return nil, &ParseError{File: path, Err: err}
	}

	c := &converter{expanding: make(map[*yaml.Node]bool)}
	v, err := c.value(&doc)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}
	return toJSONValue(v, path)
}

// converter turns a yaml.Node tree into generic Go values.
type converter struct {
	// expanding holds the anchors currently being expanded.
	expanding map[*yaml.Node]bool
}

func (c *converter) value(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return c.value(n.Content[0])
	case yaml.AliasNode:
		if c.expanding[n.Alias] {
			return nil, fmt.Errorf("line %d: alias *%s refers to itself", n.Line, n.Value)
		}
		c.expanding[n.Alias] = true
		defer delete(c.expanding, n.Alias)
		return c.value(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := c.value(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		return c.mapping(n)
	case yaml.ScalarNode:
		return scalar(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

// mapping converts a mapping node. Keys brought in with `<<` never
// override keys written in the mapping itself, and earlier merge sources
// win over later ones.
func (c *converter) mapping(n *yaml.Node) (map[string]any, error) {
	out := make(map[string]any, len(n.Content)/2)
	var merges []*yaml.Node

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge" {
			merges = append(merges, v)
			continue
		}
		key, err := c.key(k)
		if err != nil {
			return nil, err
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("line %d: mapping key %q already defined", k.Line, key)
		}
		val, err := c.value(v)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}

	for _, m := range merges {
		if err := c.merge(out, m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *converter) merge(dst map[string]any, src *yaml.Node) error {
	resolved := src
	if resolved.Kind == yaml.AliasNode {
		resolved = resolved.Alias
	}

	var sources []*yaml.Node
	switch resolved.Kind {
	case yaml.MappingNode:
		sources = []*yaml.Node{src}
	case yaml.SequenceNode:
		sources = resolved.Content
	default:
		return fmt.Errorf("line %d: map merge requires a mapping or a list of mappings", src.Line)
	}

	for _, s := range sources {
		v, err := c.value(s)
		if err != nil {
			return err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("line %d: map merge requires a mapping or a list of mappings", s.Line)
		}
		for k, val := range m {
			if _, exists := dst[k]; !exists {
				dst[k] = val
			}
		}
	}
	return nil
}

// key renders a mapping key as a JSON object key. Scalars use their
// source text, null becomes "null" and collection keys their JSON form.
func (c *converter) key(n *yaml.Node) (string, error) {
	if n.Kind == yaml.ScalarNode {
		if n.ShortTag() == "!!null" {
			return "null", nil
		}
		return n.Value, nil
	}
	v, err := c.value(n)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("line %d: unsupported mapping key: %w", n.Line, err)
	}
	return string(data), nil
}

func scalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool", "!!int", "!!float":
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		// !!str, !!timestamp, !!binary and application tags.
		return n.Value, nil
	}
}

// toJSONValue round-trips v through JSON, decoding numbers as json.Number.
func toJSONValue(v any, path string) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &ParseError{File: path, Err: fmt.Errorf("failed to convert to JSON: %w", err)}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, &ParseError{File: path, Err: fmt.Errorf("failed to convert to JSON: %w", err)}
	}
	return out, nil
}
