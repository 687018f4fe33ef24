// Package validation checks extracted action parameters against the JSON
// Schema each executor publishes.
package validation

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Validator checks params against a Draft 2020-12 schema.
type Validator interface {
	ValidateInput(input map[string]any, inputSchema []byte) error
}

// JSONSchemaValidator compiles each distinct schema once. Executors pass
// the same constant schema on every call, so the cache stays tiny.
type JSONSchemaValidator struct {
	compiled sync.Map // sha256 hex -> *jsonschema.Schema
}

func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{}
}

// ValidateInput reports violations as an ErrCodeValidation error. Its
// details carry "violations" (readable lines) and "fields" (the top-level
// params at fault, missing required ones included). An empty schema
// accepts anything.
func (v *JSONSchemaValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	if input == nil {
		return schema.NewError(schema.ErrCodeValidation, "no parameters to validate")
	}
	if len(inputSchema) == 0 {
		return nil
	}
	sch, err := v.schemaFor(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}
	doc, err := asJSON(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "parameters are not JSON").WithCause(err)
	}
	if err := sch.Validate(doc); err != nil {
		return violationError(err)
	}
	return nil
}

// Compile reports whether raw is a usable schema.
func (v *JSONSchemaValidator) Compile(raw []byte) error {
	_, err := v.schemaFor(raw)
	return err
}

func (v *JSONSchemaValidator) schemaFor(raw []byte) (*jsonschema.Schema, error) {
	sum := sha256.Sum256(raw)
	id := hex.EncodeToString(sum[:])
	if s, ok := v.compiled.Load(id); ok {
		return s.(*jsonschema.Schema), nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	url := "actiondesk://params/" + id[:16] + ".json"
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	actual, _ := v.compiled.LoadOrStore(id, s)
	return actual.(*jsonschema.Schema), nil
}

func (v *JSONSchemaValidator) size() int {
	n := 0
	v.compiled.Range(func(any, any) bool { n++; return true })
	return n
}

// asJSON re-reads input the way the validator expects: numbers as json.Number.
func asJSON(input map[string]any) (any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

func violationError(err error) *schema.Error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}
	var lines, fields []string
	walkLeaves(verr, func(leaf *jsonschema.ValidationError) {
		lines = append(lines, fmt.Sprintf("/%s: %s", joinPointer(leaf.InstanceLocation), leaf.Error()))
		switch {
		case len(leaf.InstanceLocation) > 0:
			fields = appendOnce(fields, leaf.InstanceLocation[0])
		default:
			if req, ok := leaf.ErrorKind.(*kind.Required); ok {
				for _, m := range req.Missing {
					fields = appendOnce(fields, m)
				}
			}
		}
	})
	if len(lines) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	msg := lines[0]
	if len(lines) > 1 {
		msg = fmt.Sprintf("%d parameter problems", len(lines))
	}
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": lines, "fields": fields})
}

func walkLeaves(e *jsonschema.ValidationError, fn func(*jsonschema.ValidationError)) {
	if len(e.Causes) == 0 {
		fn(e)
		return
	}
	for _, c := range e.Causes {
		walkLeaves(c, fn)
	}
}

func joinPointer(loc []string) string {
	var b bytes.Buffer
	for i, p := range loc {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(p)
	}
	return b.String()
}

func appendOnce(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

// ViolatedFields returns the "fields" detail of a validation error.
func ViolatedFields(err error) []string {
	var e *schema.Error
	if !errors.As(err, &e) || e.Details == nil {
		return nil
	}
	fields, _ := e.Details["fields"].([]string)
	return fields
}

var _ Validator = (*JSONSchemaValidator)(nil)
