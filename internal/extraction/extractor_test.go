package extraction

import (
	"context"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rendis/actiondesk/internal/llm"
	"github.com/rendis/actiondesk/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(c llm.Completer) *Extractor {
	return New(Config{Completer: c, Clock: fixedClock()})
}

func TestExtract_ScheduleFromModel(t *testing.T) {
	reply := "```json\n{\"summary\":\"Meeting with Sarah\",\"start_iso\":\"2026-10-17T15:00:00+08:00\",\"end_iso\":\"2026-10-17T16:00:00+08:00\"}\n```"
	x, err := newTestExtractor(replying(reply)).Extract(context.Background(), "meet Sarah tomorrow 3pm for an hour", schema.KindSchedule)
	require.NoError(t, err)

	assert.False(t, x.FromFallback)
	assert.Equal(t, "Meeting with Sarah", x.Params["summary"])
	assert.Equal(t, "2026-10-17T15:00:00+08:00", x.Params["start_iso"])
	assert.Equal(t, "2026-10-17T16:00:00+08:00", x.Params["end_iso"])
	assert.Equal(t, "", x.Params["description"])
	assert.Equal(t, "MYT", x.Params["timezone"])
}

func TestExtract_ScheduleDefaultsWhenModelOmitsTime(t *testing.T) {
	x, err := newTestExtractor(replying(`{"summary":"Team sync"}`)).
		Extract(context.Background(), "set up a team sync", schema.KindSchedule)
	require.NoError(t, err)

	assert.Equal(t, "2026-10-17T14:00:00+08:00", x.Params["start_iso"])
	assert.Equal(t, "2026-10-17T14:30:00+08:00", x.Params["end_iso"])
}

func TestExtract_ScheduleEndBeforeStartIsRepaired(t *testing.T) {
	x, err := newTestExtractor(replying(`{"summary":"Demo","start_iso":"2026-10-20T10:00:00+08:00","end_iso":"2026-10-20T09:00:00+08:00"}`)).
		Extract(context.Background(), "demo", schema.KindSchedule)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-20T10:30:00+08:00", x.Params["end_iso"])
}

func TestExtract_ScheduleFallbackWhenBackendUnreachable(t *testing.T) {
	x, err := newTestExtractor(unreachable()).
		Extract(context.Background(), "Schedule a meeting tomorrow at 2pm", schema.KindSchedule)
	require.NoError(t, err)

	assert.True(t, x.FromFallback)
	assert.Error(t, x.Cause)
	assert.Equal(t, "Meeting", x.Params["summary"])
	assert.Equal(t, "2026-10-17T14:00:00+08:00", x.Params["start_iso"])
	assert.Equal(t, "2026-10-17T14:30:00+08:00", x.Params["end_iso"])
}

func TestExtract_FallbackOnMalformedOutput(t *testing.T) {
	x, err := newTestExtractor(replying("Sorry, I can't do that.")).
		Extract(context.Background(), "call with Priya Sharma on monday", schema.KindSchedule)
	require.NoError(t, err)
	assert.True(t, x.FromFallback)
	assert.Equal(t, "Meeting with Priya Sharma", x.Params["summary"])
	assert.Equal(t, "2026-10-19T14:00:00+08:00", x.Params["start_iso"])
}

func TestExtract_InvoiceAmountCoercion(t *testing.T) {
	for _, amount := range []string{`"$1,500"`, `1500`, `"RM1,500.00"`} {
		t.Run(amount, func(t *testing.T) {
			reply := `{"client_name":"Acme","amount":` + amount + `,"description":"Design"}`
			x, err := newTestExtractor(replying(reply)).
				Extract(context.Background(), "invoice Acme", schema.KindGenerateInvoice)
			require.NoError(t, err)
			assert.False(t, x.FromFallback)
			assert.Equal(t, 1500.0, x.Params["amount"])
			assert.Equal(t, "MYR", x.Params["currency"])
			assert.Equal(t, 0.0, x.Params["tax_rate"])
		})
	}
}

func TestExtract_InvoiceNormalizesRateAndCurrency(t *testing.T) {
	reply := `{"client_name":"Acme","amount":100,"tax_rate":"6%","currency":"rm","due_date":"2026-11-30T00:00:00","client_email":""}`
	x, err := newTestExtractor(replying(reply)).
		Extract(context.Background(), "invoice Acme", schema.KindGenerateInvoice)
	require.NoError(t, err)

	assert.InDelta(t, 0.06, x.Params["tax_rate"], 1e-9)
	assert.Equal(t, "MYR", x.Params["currency"])
	assert.Equal(t, "2026-11-30", x.Params["due_date"])
	assert.Equal(t, "Professional services", x.Params["description"])
	assert.NotContains(t, x.Params, "client_email")
}

func TestExtract_InvoiceFallback(t *testing.T) {
	x, err := newTestExtractor(unreachable()).
		Extract(context.Background(), "Email john@x.com an invoice for $500 for consulting", schema.KindGenerateInvoice)
	require.NoError(t, err)

	assert.True(t, x.FromFallback)
	assert.Equal(t, "John", x.Params["client_name"])
	assert.Equal(t, 500.0, x.Params["amount"])
	assert.Equal(t, "Consulting", x.Params["description"])
	assert.Equal(t, "john@x.com", x.Params["client_email"])
	assert.Equal(t, "USD", x.Params["currency"])
}

func TestExtract_DollarSignAgreesAcrossPaths(t *testing.T) {
	const text = "invoice Acme for $500"
	model, err := newTestExtractor(replying(`{"client_name":"Acme","amount":500,"currency":"$"}`)).
		Extract(context.Background(), text, schema.KindGenerateInvoice)
	require.NoError(t, err)
	fallback, err := newTestExtractor(unreachable()).
		Extract(context.Background(), text, schema.KindGenerateInvoice)
	require.NoError(t, err)

	require.False(t, model.FromFallback)
	require.True(t, fallback.FromFallback)
	assert.Equal(t, "USD", model.Params["currency"])
	assert.Equal(t, model.Params["currency"], fallback.Params["currency"])
}

func TestExtract_InvoiceFallbackNamedClient(t *testing.T) {
	x, err := newTestExtractor(nil).
		Extract(context.Background(), "Invoice Acme Corp RM 1,500 for web design and email it", schema.KindGenerateInvoice)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", x.Params["client_name"])
	assert.Equal(t, 1500.0, x.Params["amount"])
	assert.Equal(t, "Web design", x.Params["description"])
}

func TestExtract_EmailFromModel(t *testing.T) {
	reply := `{"to":"John <john@x.com>","subject":"","body":"Hi John, the invoice is attached."}`
	x, err := newTestExtractor(replying(reply)).
		Extract(context.Background(), "email john the invoice", schema.KindSendEmail)
	require.NoError(t, err)

	assert.Equal(t, "john@x.com", x.Params["to"])
	assert.Equal(t, "Message from your assistant", x.Params["subject"])
	assert.NotContains(t, x.Params, "attachment_path")
}

func TestExtract_EmailWithoutRecipientFails(t *testing.T) {
	_, err := newTestExtractor(replying(`{"subject":"Hello","body":"Hi"}`)).
		Extract(context.Background(), "email my accountant", schema.KindSendEmail)
	require.Error(t, err)

	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, schema.ErrCodeExtraction, se.Code)
	assert.Equal(t, schema.KindSendEmail, se.Kind)
	assert.Equal(t, "to", se.Details["field"])
	assert.Contains(t, se.Details, "model_error")
}

func TestExtract_PaymentFallback(t *testing.T) {
	x, err := newTestExtractor(unreachable()).
		Extract(context.Background(), "create a payment link for RM19.99 for the ebook", schema.KindCreatePayment)
	require.NoError(t, err)
	assert.Equal(t, 19.99, x.Params["amount"])
	assert.Equal(t, "myr", x.Params["currency"])
	assert.Equal(t, "The ebook", x.Params["description"])
}

func TestExtract_InvalidFieldWithoutFallbackNamesField(t *testing.T) {
	s := paymentSchema()
	s.Fallback = nil

	ex := newTestExtractor(replying(`{"amount":19.99,"currency":"ringgits","description":"Ebook"}`))
	_, err := ex.ExtractWith(context.Background(), "pay", s)
	require.Error(t, err)

	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, schema.ErrCodeExtraction, se.Code)
	assert.Equal(t, "currency", se.Details["field"])
}

func TestExtract_MissingRequiredWithoutFallback(t *testing.T) {
	s := invoiceSchema()
	s.Fallback = nil

	_, err := newTestExtractor(replying(`{"amount":10}`)).ExtractWith(context.Background(), "invoice", s)
	var se *schema.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "client_name", se.Details["field"])
}

func TestExtract_UnknownKind(t *testing.T) {
	_, err := newTestExtractor(nil).Extract(context.Background(), "x", schema.KindNone)
	assert.True(t, schema.IsCode(err, schema.ErrCodeActionUnavailable))
}

func TestInstructionEmbedsContract(t *testing.T) {
	var gotSystem string
	var gotTemp float32
	c := llm.CompleterFunc(func(_ context.Context, system, _ string, temperature float32) (string, error) {
		gotSystem, gotTemp = system, temperature
		return `{"summary":"x"}`, nil
	})
	_, err := newTestExtractor(c).Extract(context.Background(), "x", schema.KindSchedule)
	require.NoError(t, err)

	assert.Equal(t, llm.TemperatureExtract, gotTemp)
	assert.Contains(t, gotSystem, "- summary (required)")
	assert.Contains(t, gotSystem, "- description (optional)")
	assert.Contains(t, gotSystem, "tomorrow at 14:00")
	assert.Contains(t, gotSystem, "Current time: 2026-10-16T10:00:00+08:00")
}

func TestScheduleFallbackAlwaysPopulated_Property(t *testing.T) {
	ex := newTestExtractor(unreachable())
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("schedule fallback fills summary, start and end", prop.ForAll(
		func(words []string) bool {
			x, err := ex.Extract(context.Background(), strings.Join(words, " "), schema.KindSchedule)
			if err != nil || !x.FromFallback {
				return false
			}
			for _, f := range []string{"summary", "start_iso", "end_iso"} {
				if s, _ := x.Params[f].(string); s == "" {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.OneConstOf("meet", "tomorrow", "at", "3pm", "with", "Ana", "friday", "10:30", "for", "an", "hour", "noon")),
	))

	properties.TestingRun(t)
}
