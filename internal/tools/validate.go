package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SchemaValidator validates tool arguments with JSON Schema. Schemas are
// compiled once per tool and cached by name.
type SchemaValidator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
	printer  *message.Printer
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		compiled: make(map[string]*jsonschema.Schema),
		printer:  message.NewPrinter(language.English),
	}
}

// Prepare compiles tool's parameter schema. A tool with no parameters is
// accepted and validates nothing.
func (v *SchemaValidator) Prepare(tool Tool) error {
	sch, err := compileSchema("mem://tools/"+tool.Name()+".json", tool.Parameters())
	if err != nil {
		return fmt.Errorf("compile parameters for %s: %w", tool.Name(), err)
	}
	v.mu.Lock()
	v.compiled[tool.Name()] = sch
	v.mu.Unlock()
	return nil
}

// Forget drops the cached schema for name.
func (v *SchemaValidator) Forget(name string) {
	v.mu.Lock()
	delete(v.compiled, name)
	v.mu.Unlock()
}

func (v *SchemaValidator) Validate(tool Tool, args map[string]any) error {
	v.mu.RLock()
	sch, ok := v.compiled[tool.Name()]
	v.mu.RUnlock()
	if !ok {
		if err := v.Prepare(tool); err != nil {
			return err
		}
		v.mu.RLock()
		sch = v.compiled[tool.Name()]
		v.mu.RUnlock()
	}
	if sch == nil {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}
	inst, err := toInstance(args)
	if err != nil {
		return &ValidationError{Tool: tool.Name(), Fields: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Tool: tool.Name(), Fields: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	return &ValidationError{Tool: tool.Name(), Fields: FieldErrors(ve, v.printer)}
}

// compileSchema compiles schema under url. A nil or empty schema yields a nil
// *Schema and no error.
func compileSchema(url string, schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	doc, err := toInstance(schema)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// CompileSchema compiles a standalone schema document for callers outside
// the registry.
func CompileSchema(url string, schema map[string]any) (*jsonschema.Schema, error) {
	return compileSchema(url, schema)
}

// toInstance round-trips v through JSON so the validator sees json.Number
// values and plain maps regardless of the Go types the caller used.
func toInstance(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// FieldErrors flattens a validation error tree into per-field diagnostics,
// sorted by field path.
func FieldErrors(ve *jsonschema.ValidationError, p *message.Printer) []FieldError {
	var out []FieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		if req, ok := e.ErrorKind.(*kind.Required); ok {
			for _, name := range req.Missing {
				out = append(out, FieldError{
					Field:   fieldPath(append(append([]string{}, e.InstanceLocation...), name)),
					Message: "is required",
				})
			}
			return
		}
		out = append(out, FieldError{
			Field:   fieldPath(e.InstanceLocation),
			Message: e.ErrorKind.LocalizedString(p),
		})
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func fieldPath(loc []string) string {
	if len(loc) == 0 {
		return "(root)"
	}
	return strings.Join(loc, ".")
}
