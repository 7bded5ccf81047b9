package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrCompileFailed indicates the schema document is not a usable JSON Schema.
var ErrCompileFailed = errors.New("failed to compile schema")

// Violation is a single schema constraint failure.
//
// The JSON shape is part of the validation report written on failure.
type Violation struct {
	// InstanceLocation is the JSON pointer to the offending value
	// (e.g., "/contact/email"). Empty string means the document root.
	InstanceLocation string `json:"instanceLocation"`

	// Keyword is the failing constraint (e.g., "required", "format").
	Keyword string `json:"keyword"`

	// SchemaLocation is the absolute location of the failing keyword
	// within the schema.
	SchemaLocation string `json:"schemaLocation"`

	// Message describes the failure.
	Message string `json:"message"`
}

// String renders the violation as "pointer: message".
func (v Violation) String() string {
	if v.InstanceLocation == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.InstanceLocation, v.Message)
}

// Validator validates documents against one compiled schema.
//
// A Validator is immutable after Compile and safe to reuse for every
// document in a run.
type Validator struct {
	schema  *jsonschema.Schema
	printer *message.Printer
}

// Compile compiles doc into a Validator.
//
// Format keywords (date, email, uri, ...) are asserted, not just annotated.
// Documents without "$schema" are read as draft-07.
func Compile(doc *Document) (*Validator, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrCompileFailed)
	}

	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft7)
	c.AssertFormat()

	url := doc.resourceURL()
	if err := c.AddResource(url, doc.Value); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompileFailed, doc.Path, err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompileFailed, doc.Path, err)
	}

	return &Validator{
		schema:  compiled,
		printer: message.NewPrinter(language.English),
	}, nil
}

// Validate checks instance against the schema.
//
// Returns every leaf violation in validator order, or nil when the
// instance is valid. The error return is reserved for failures of the
// validator itself, not for invalid instances.
func (v *Validator) Validate(instance any) ([]Violation, error) {
	err := v.schema.Validate(instance)
	if err == nil {
		return nil, nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}

	var out []Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, v.violation(e))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(ve)

	return out, nil
}

func (v *Validator) violation(e *jsonschema.ValidationError) Violation {
	keywordPath := e.ErrorKind.KeywordPath()

	schemaLocation := e.SchemaURL
	if len(keywordPath) > 0 {
		if !strings.Contains(schemaLocation, "#") {
			schemaLocation += "#"
		}
		schemaLocation += "/" + strings.Join(keywordPath, "/")
	}

	return Violation{
		InstanceLocation: JSONPointer(e.InstanceLocation),
		Keyword:          strings.Join(keywordPath, "/"),
		SchemaLocation:   schemaLocation,
		Message:          e.ErrorKind.LocalizedString(v.printer),
	}
}

// JSONPointer joins tokens into an RFC 6901 pointer. No tokens yields "".
func JSONPointer(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteByte('/')
		tok = strings.ReplaceAll(tok, "~", "~0")
		tok = strings.ReplaceAll(tok, "/", "~1")
		b.WriteString(tok)
	}
	return b.String()
}
