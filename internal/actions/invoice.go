package actions

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rendis/actiondesk/internal/expressions"
	"github.com/rendis/actiondesk/internal/validation"
	"github.com/rendis/actiondesk/pkg/schema"
)

// Invoice defaults.
const (
	DefaultTaxFormula   = "round(amount * tax_rate * 100) / 100"
	DefaultTotalFormula = "amount + tax"
	DefaultPaymentTerms = "Payment due within 30 days of the issue date."
	InvoiceDueDays      = 30
	invoiceDateLayout   = "2006-01-02"
)

// FileWriter stores generated documents and returns their path.
type FileWriter interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// FormulaEvaluator evaluates numeric formulas over named variables.
type FormulaEvaluator interface {
	EvaluateFloat(ctx context.Context, expression string, data map[string]any) (float64, error)
}

// Issuer is the business printed in the invoice header.
type Issuer struct {
	Name    string
	Email   string
	Address string
}

// Invoice is a fully computed invoice ready for layout.
type Invoice struct {
	Number      string
	IssueDate   string
	DueDate     string
	Issuer      Issuer
	ClientName  string
	ClientEmail string
	Description string
	Currency    string
	Amount      float64
	TaxRate     float64
	Tax         float64
	Total       float64
	Terms       string
}

const invoiceInputSchema = `{
  "type": "object",
  "properties": {
    "client_name": {"type": "string", "minLength": 1},
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "description": {"type": "string"},
    "tax_rate": {"type": "number", "minimum": 0, "maximum": 1},
    "currency": {"type": "string"},
    "invoice_number": {"type": "string"},
    "due_date": {"type": "string"},
    "client_email": {"type": "string"}
  },
  "required": ["client_name", "amount"]
}`

// InvoiceConfig holds the GenerateInvoice executor's collaborators.
type InvoiceConfig struct {
	Files        FileWriter
	Formulas     FormulaEvaluator
	Validator    validation.Validator
	Issuer       Issuer
	TaxFormula   string
	TotalFormula string
	Terms        string
	Location     *time.Location
	Now          func() time.Time
}

// InvoiceExecutor lays out invoices as spreadsheets and stores them.
type InvoiceExecutor struct {
	cfg InvoiceConfig
}

// NewInvoiceExecutor creates an InvoiceExecutor.
func NewInvoiceExecutor(cfg InvoiceConfig) *InvoiceExecutor {
	if cfg.Formulas == nil {
		cfg.Formulas = expressions.NewExprEngine()
	}
	if cfg.Validator == nil {
		cfg.Validator = validation.NewJSONSchemaValidator()
	}
	if cfg.TaxFormula == "" {
		cfg.TaxFormula = DefaultTaxFormula
	}
	if cfg.TotalFormula == "" {
		cfg.TotalFormula = DefaultTotalFormula
	}
	if cfg.Terms == "" {
		cfg.Terms = DefaultPaymentTerms
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &InvoiceExecutor{cfg: cfg}
}

func (e *InvoiceExecutor) Kind() schema.ActionKind { return schema.KindGenerateInvoice }

func (e *InvoiceExecutor) Schema() ExecutorSchema {
	return ExecutorSchema{
		Description: "Generate an invoice spreadsheet and store it",
		InputSchema: []byte(invoiceInputSchema),
	}
}

func (e *InvoiceExecutor) Execute(ctx context.Context, in Input) Result {
	kind := e.Kind()

	if err := e.cfg.Validator.ValidateInput(in.Params, []byte(invoiceInputSchema)); err != nil {
		return Result{Outcome: schema.Failed(kind, err)}
	}
	if e.cfg.Files == nil {
		return Result{Outcome: schema.Failed(kind, schema.NewError(schema.ErrCodeActionUnavailable, "file store not configured"))}
	}

	inv, err := e.compute(ctx, in.Params)
	if err != nil {
		return Result{Outcome: schema.Failed(kind, err)}
	}
	data, err := RenderInvoice(inv)
	if err != nil {
		return Result{Outcome: schema.Failed(kind, schema.NewError(schema.ErrCodeInternal, "could not lay out invoice").WithCause(err))}
	}
	path, err := e.cfg.Files.Write(ctx, InvoiceFilename(inv.Number, inv.ClientName), data)
	if err != nil {
		return Result{Outcome: schema.Failed(kind, schema.NewError(schema.ErrCodeStore, "could not store invoice").WithCause(err))}
	}

	payload := map[string]any{
		"invoiceNumber": inv.Number,
		"file":          path,
		"clientName":    inv.ClientName,
		"description":   inv.Description,
		"currency":      inv.Currency,
		"amount":        inv.Amount,
		"tax":           inv.Tax,
		"total":         inv.Total,
		"issueDate":     inv.IssueDate,
		"dueDate":       inv.DueDate,
	}
	if inv.ClientEmail != "" {
		payload["clientEmail"] = inv.ClientEmail
	}
	return Result{Outcome: schema.Succeeded(kind, payload)}
}

func (e *InvoiceExecutor) compute(ctx context.Context, p map[string]any) (Invoice, error) {
	now := e.cfg.Now().In(e.cfg.Location)

	inv := Invoice{
		Number:      stringParam(p, "invoice_number", "INV-"+now.Format("20060102150405")),
		IssueDate:   now.Format(invoiceDateLayout),
		DueDate:     stringParam(p, "due_date", now.AddDate(0, 0, InvoiceDueDays).Format(invoiceDateLayout)),
		Issuer:      e.cfg.Issuer,
		ClientName:  stringParam(p, "client_name", ""),
		ClientEmail: stringParam(p, "client_email", ""),
		Description: stringParam(p, "description", "Professional services"),
		Currency:    strings.ToUpper(stringParam(p, "currency", "MYR")),
		Amount:      floatParam(p, "amount", 0),
		TaxRate:     floatParam(p, "tax_rate", 0),
		Terms:       e.cfg.Terms,
	}

	vars := map[string]any{"amount": inv.Amount, "tax_rate": inv.TaxRate}
	tax, err := e.cfg.Formulas.EvaluateFloat(ctx, e.cfg.TaxFormula, vars)
	if err != nil {
		return Invoice{}, fmt.Errorf("tax formula: %w", err)
	}
	vars["tax"] = tax
	total, err := e.cfg.Formulas.EvaluateFloat(ctx, e.cfg.TotalFormula, vars)
	if err != nil {
		return Invoice{}, fmt.Errorf("total formula: %w", err)
	}
	inv.Tax, inv.Total = tax, total
	return inv, nil
}

var (
	nonAlnumRe     = regexp.MustCompile(`[^A-Za-z0-9]+`)
	unsafeNumberRe = regexp.MustCompile(`[^A-Za-z0-9-]+`)
)

// InvoiceFilename builds invoice_<number>_<client>.xlsx with every
// non-alphanumeric character removed from the client name.
func InvoiceFilename(number, client string) string {
	c := nonAlnumRe.ReplaceAllString(client, "")
	if c == "" {
		c = "client"
	}
	return fmt.Sprintf("invoice_%s_%s.xlsx", unsafeNumberRe.ReplaceAllString(number, ""), c)
}

var _ Executor = (*InvoiceExecutor)(nil)
