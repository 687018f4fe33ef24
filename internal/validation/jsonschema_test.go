package validation

import (
	"sync"
	"testing"

	"github.com/rendis/actiondesk/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoiceSchema = `{
  "type": "object",
  "required": ["client_name", "amount"],
  "properties": {
    "client_name": {"type": "string", "minLength": 1},
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "client_email": {"type": "string", "format": "email"}
  }
}`

func TestValidateInput_Valid(t *testing.T) {
	v := NewJSONSchemaValidator()
	err := v.ValidateInput(map[string]any{"client_name": "Acme", "amount": 1500.0}, []byte(invoiceSchema))
	assert.NoError(t, err)
}

func TestValidateInput_NoSchema(t *testing.T) {
	v := NewJSONSchemaValidator()
	assert.NoError(t, v.ValidateInput(map[string]any{"anything": 1}, nil))
}

func TestValidateInput_NilInput(t *testing.T) {
	v := NewJSONSchemaValidator()
	err := v.ValidateInput(nil, []byte(invoiceSchema))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestValidateInput_TypeViolationNamesField(t *testing.T) {
	v := NewJSONSchemaValidator()
	err := v.ValidateInput(map[string]any{"client_name": "Acme", "amount": "lots"}, []byte(invoiceSchema))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Equal(t, []string{"amount"}, ViolatedFields(err))
}

func TestValidateInput_FormatViolation(t *testing.T) {
	v := NewJSONSchemaValidator()
	err := v.ValidateInput(map[string]any{
		"client_name":  "Acme",
		"amount":       10.0,
		"client_email": "not-an-email",
	}, []byte(invoiceSchema))
	require.Error(t, err)
	assert.Contains(t, ViolatedFields(err), "client_email")
}

func TestValidateInput_InvalidSchema(t *testing.T) {
	v := NewJSONSchemaValidator()
	err := v.ValidateInput(map[string]any{"a": 1}, []byte(`{"type": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input schema")
}

func TestValidateInput_CacheConcurrent(t *testing.T) {
	v := NewJSONSchemaValidator()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = v.ValidateInput(map[string]any{"client_name": "A", "amount": 1.0}, []byte(invoiceSchema))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, v.size())
}

func TestValidateInput_MissingRequiredNamesFields(t *testing.T) {
	v := NewJSONSchemaValidator()
	err := v.ValidateInput(map[string]any{"client_email": "ana@example.com"}, []byte(invoiceSchema))
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"client_name", "amount"}, ViolatedFields(err))
}

func TestCompile(t *testing.T) {
	v := NewJSONSchemaValidator()
	assert.NoError(t, v.Compile([]byte(invoiceSchema)))
	assert.Error(t, v.Compile([]byte(`{"type": 7}`)))
}
