// ABOUTME: Input schema compilation and argument validation for registered tools.
// ABOUTME: Checks required properties by name, then full JSON Schema conformance.

package packs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidSchema indicates a tool's input schema could not be compiled.
var ErrInvalidSchema = errors.New("invalid input schema")

// emptyObjectSchema is used for tools registered without an input schema.
var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// ArgumentError reports arguments that do not satisfy a tool's input schema.
// The handler is never invoked when this error is returned.
type ArgumentError struct {
	Tool     string
	Missing  []string // required properties that were absent
	Problems []string // other schema violations, one per failing location
}

func (e *ArgumentError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required argument: " + strings.Join(e.Missing, ", ")
	}
	if len(e.Problems) == 1 {
		return "invalid arguments: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid arguments: %d problems", len(e.Problems))
}

// inputSchema is the subset of the schema the registry reads directly.
type inputSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required"`
}

// argumentSchema is a compiled input schema plus its required property list.
type argumentSchema struct {
	required []string
	compiled *jsonschema.Schema
}

// compileSchema parses and compiles a tool's input schema.
func compileSchema(toolName string, raw json.RawMessage) (*argumentSchema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = emptyObjectSchema
	}

	var shape inputSchema
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: tool '%s': %v", ErrInvalidSchema, toolName, err)
	}
	if shape.Type != "" && shape.Type != "object" {
		return nil, fmt.Errorf("%w: tool '%s': top-level type must be object, got %q", ErrInvalidSchema, toolName, shape.Type)
	}

	location := "mem://tools/" + url.PathEscape(toolName) + ".json"
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(location, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: tool '%s': %v", ErrInvalidSchema, toolName, err)
	}
	compiled, err := compiler.Compile(location)
	if err != nil {
		return nil, fmt.Errorf("%w: tool '%s': %v", ErrInvalidSchema, toolName, err)
	}

	return &argumentSchema{
		required: shape.Required,
		compiled: compiled,
	}, nil
}

// validate checks decoded arguments against the schema.
// Missing required properties are reported on their own so callers can name them.
func (s *argumentSchema) validate(toolName string, args map[string]any) error {
	var missing []string
	for _, name := range s.required {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ArgumentError{Tool: toolName, Missing: missing}
	}

	if err := s.compiled.Validate(args); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return &ArgumentError{Tool: toolName, Problems: []string{err.Error()}}
		}
		return &ArgumentError{Tool: toolName, Problems: flattenValidationError(verr)}
	}
	return nil
}

// flattenValidationError collects the leaf causes of a validation error.
func flattenValidationError(verr *jsonschema.ValidationError) []string {
	var problems []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			problems = append(problems, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	sort.Strings(problems)
	return problems
}
