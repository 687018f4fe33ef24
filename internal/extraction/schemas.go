package extraction

import (
	"strings"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Schema is the static extraction contract for one action kind.
type Schema struct {
	Kind   schema.ActionKind
	Entity string

	Required []string
	Optional []string
	Defaults map[string]any

	// Rules and Examples are embedded verbatim into the model instruction.
	Rules    string
	Examples string

	// JSONSchema validates the normalized object.
	JSONSchema string

	// Normalize coerces types and fills derived fields in place.
	Normalize func(params map[string]any, clock Clock) error
	// Fallback produces a deterministic object from the raw text when the
	// model path fails. Nil means no fallback exists.
	Fallback func(text string, clock Clock) (map[string]any, error)
}

// DefaultSchemas returns the extraction table keyed by action kind.
func DefaultSchemas() map[schema.ActionKind]*Schema {
	return map[schema.ActionKind]*Schema{
		schema.KindSchedule:        scheduleSchema(),
		schema.KindSendEmail:       emailSchema(),
		schema.KindGenerateInvoice: invoiceSchema(),
		schema.KindCreatePayment:   paymentSchema(),
	}
}

func scheduleSchema() *Schema {
	return &Schema{
		Kind:     schema.KindSchedule,
		Entity:   "calendar event",
		Required: []string{"summary", "start_iso", "end_iso"},
		Optional: []string{"description", "timezone"},
		Defaults: map[string]any{"description": ""},
		Rules: strings.TrimSpace(`
- summary: short event title, e.g. "Meeting with Sarah".
- start_iso / end_iso: ISO-8601 with numeric offset, in the user's timezone.
- If no time is given, start tomorrow at 14:00; if no end or duration is given, end 30 minutes after start.
- description: any agenda or notes mentioned, otherwise "".`),
		Examples: strings.TrimSpace(`
"Schedule a meeting with Sarah tomorrow at 3pm for an hour" ->
{"summary":"Meeting with Sarah","start_iso":"<tomorrow>T15:00:00+08:00","end_iso":"<tomorrow>T16:00:00+08:00","description":""}`),
		JSONSchema: `{
  "type": "object",
  "required": ["summary", "start_iso", "end_iso"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "start_iso": {"type": "string", "format": "date-time"},
    "end_iso": {"type": "string", "format": "date-time"},
    "description": {"type": "string"},
    "timezone": {"type": "string"}
  }
}`,
		Normalize: normalizeSchedule,
		Fallback:  scheduleFallback,
	}
}

func emailSchema() *Schema {
	return &Schema{
		Kind:     schema.KindSendEmail,
		Entity:   "email",
		Required: []string{"to", "subject", "body"},
		Optional: []string{"attachment_path"},
		Defaults: map[string]any{"subject": "Message from your assistant"},
		Rules: strings.TrimSpace(`
- to: the recipient email address exactly as written.
- subject: concise subject line derived from the request.
- body: a short, polite plain-text email body written on the user's behalf.
- attachment_path: only when the user names a file to attach, otherwise omit.`),
		Examples: strings.TrimSpace(`
"Email john@x.com that the report is ready" ->
{"to":"john@x.com","subject":"Report ready","body":"Hi John,\n\nThe report is ready.\n\nBest regards"}`),
		JSONSchema: `{
  "type": "object",
  "required": ["to", "subject", "body"],
  "properties": {
    "to": {"type": "string", "format": "email"},
    "subject": {"type": "string", "minLength": 1},
    "body": {"type": "string", "minLength": 1},
    "attachment_path": {"type": "string"}
  }
}`,
		Normalize: normalizeEmail,
		Fallback:  emailFallback,
	}
}

func invoiceSchema() *Schema {
	return &Schema{
		Kind:     schema.KindGenerateInvoice,
		Entity:   "invoice",
		Required: []string{"client_name", "amount", "description"},
		Optional: []string{"invoice_number", "due_date", "tax_rate", "currency", "client_email"},
		Defaults: map[string]any{
			"description": "Professional services",
			"tax_rate":    0.0,
			"currency":    "MYR",
		},
		Rules: strings.TrimSpace(`
- client_name: the person or company being billed; use the email's name part if only an address is given.
- amount: a plain number without currency symbols or separators.
- description: what the invoice is for.
- tax_rate: a fraction (0.06 for 6%), 0 when not mentioned.
- currency: three-letter ISO code, MYR when not mentioned.
- due_date: YYYY-MM-DD only when stated.`),
		Examples: strings.TrimSpace(`
"Invoice Acme Corp RM 1,500 for web design" ->
{"client_name":"Acme Corp","amount":1500,"description":"Web design","currency":"MYR"}`),
		JSONSchema: `{
  "type": "object",
  "required": ["client_name", "amount", "description"],
  "properties": {
    "client_name": {"type": "string", "minLength": 1},
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "description": {"type": "string", "minLength": 1},
    "invoice_number": {"type": "string"},
    "due_date": {"type": "string", "format": "date"},
    "tax_rate": {"type": "number", "minimum": 0, "maximum": 1},
    "currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
    "client_email": {"type": "string", "format": "email"}
  }
}`,
		Normalize: normalizeInvoice,
		Fallback:  invoiceFallback,
	}
}

func paymentSchema() *Schema {
	return &Schema{
		Kind:     schema.KindCreatePayment,
		Entity:   "payment link",
		Required: []string{"amount", "currency", "description"},
		Optional: []string{"invoice_number", "customer_email"},
		Defaults: map[string]any{
			"currency":    "myr",
			"description": "Payment",
		},
		Rules: strings.TrimSpace(`
- amount: a plain decimal number in major units (19.99, not 1999).
- currency: lowercase three-letter ISO code, myr when not mentioned.
- description: what the payment is for.
- invoice_number / customer_email: only when stated.`),
		Examples: strings.TrimSpace(`
"Create a payment link for RM19.99 for the ebook" ->
{"amount":19.99,"currency":"myr","description":"Ebook"}`),
		JSONSchema: `{
  "type": "object",
  "required": ["amount", "currency", "description"],
  "properties": {
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "currency": {"type": "string", "pattern": "^[a-z]{3}$"},
    "description": {"type": "string", "minLength": 1},
    "invoice_number": {"type": "string"},
    "customer_email": {"type": "string", "format": "email"}
  }
}`,
		Normalize: normalizePayment,
		Fallback:  paymentFallback,
	}
}
