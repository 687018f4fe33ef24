package actions

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rendis/actiondesk/internal/expressions"
	"github.com/rendis/actiondesk/internal/validation"
	"github.com/rendis/actiondesk/pkg/schema"
)

// CheckoutRequest is a hosted checkout session to create.
type CheckoutRequest struct {
	AmountMinorUnits int64
	Currency         string
	Description      string
	CustomerEmail    string
	Metadata         map[string]string
	PaymentMethods   []string
	SuccessURL       string
	CancelURL        string
}

// CheckoutSession is the payment backend's view of a created session.
type CheckoutSession struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Status      string `json:"status,omitempty"`
	AmountTotal int64  `json:"amount_total,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

// PaymentBackend creates hosted checkout sessions with a service credential.
type PaymentBackend interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// DefaultPaymentProjection is the jq program applied to CheckoutSession.
const DefaultPaymentProjection = `{sessionId: .id, checkoutUrl: .url}`

// DefaultPaymentMethods selects checkout rails per lowercase currency.
// Currencies not listed get card only.
var DefaultPaymentMethods = map[string][]string{
	"myr": {"card", "fpx"},
	"sgd": {"card", "paynow"},
	"eur": {"card", "sepa_debit"},
}

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

var threeDecimalCurrencies = map[string]bool{
	"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
}

const paymentInputSchema = `{
  "type": "object",
  "properties": {
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "currency": {"type": "string", "minLength": 3, "maxLength": 3},
    "description": {"type": "string"},
    "invoice_number": {"type": "string"},
    "customer_email": {"type": "string"}
  },
  "required": ["amount", "currency"]
}`

// PaymentConfig holds the CreatePayment executor's collaborators.
type PaymentConfig struct {
	Payments   PaymentBackend
	SuccessURL string
	CancelURL  string
	// Methods overrides DefaultPaymentMethods.
	Methods    map[string][]string
	Validator  validation.Validator
	Projector  Projector
	Projection string
}

// PaymentExecutor creates payment links.
type PaymentExecutor struct {
	cfg PaymentConfig
}

// NewPaymentExecutor creates a PaymentExecutor.
func NewPaymentExecutor(cfg PaymentConfig) *PaymentExecutor {
	if len(cfg.Methods) == 0 {
		cfg.Methods = DefaultPaymentMethods
	}
	if cfg.Validator == nil {
		cfg.Validator = validation.NewJSONSchemaValidator()
	}
	if cfg.Projector == nil {
		cfg.Projector = expressions.NewGoJQEngine()
	}
	if cfg.Projection == "" {
		cfg.Projection = DefaultPaymentProjection
	}
	return &PaymentExecutor{cfg: cfg}
}

func (e *PaymentExecutor) Kind() schema.ActionKind { return schema.KindCreatePayment }

func (e *PaymentExecutor) Schema() ExecutorSchema {
	return ExecutorSchema{
		Description: "Create a hosted checkout link for a payment",
		InputSchema: []byte(paymentInputSchema),
		Projection:  e.cfg.Projection,
	}
}

func (e *PaymentExecutor) Execute(ctx context.Context, in Input) Result {
	kind := e.Kind()

	if err := e.cfg.Validator.ValidateInput(in.Params, []byte(paymentInputSchema)); err != nil {
		return Result{Outcome: schema.Failed(kind, err)}
	}
	if e.cfg.Payments == nil {
		return Result{Outcome: schema.Failed(kind, schema.NewError(schema.ErrCodeActionUnavailable, "payment backend not configured"))}
	}

	currency := strings.ToLower(stringParam(in.Params, "currency", "myr"))
	amount := floatParam(in.Params, "amount", 0)
	minor, err := ToMinorUnits(amount, currency)
	if err != nil {
		return Result{Outcome: schema.Failed(kind, err)}
	}

	invoiceNumber := stringParam(in.Params, "invoice_number", "")
	if invoiceNumber == "" {
		if inv, ok := priorResult(in.Prior, schema.KindGenerateInvoice); ok {
			invoiceNumber = stringParam(inv, "invoiceNumber", "")
		}
	}
	metadata := map[string]string{}
	if invoiceNumber != "" {
		metadata["invoice_number"] = invoiceNumber
	}

	req := CheckoutRequest{
		AmountMinorUnits: minor,
		Currency:         currency,
		Description:      stringParam(in.Params, "description", "Payment"),
		CustomerEmail:    stringParam(in.Params, "customer_email", ""),
		Metadata:         metadata,
		PaymentMethods:   e.MethodsFor(currency),
		SuccessURL:       e.cfg.SuccessURL,
		CancelURL:        e.cfg.CancelURL,
	}
	session, err := e.cfg.Payments.CreateCheckoutSession(ctx, req)
	if err != nil {
		return Result{Outcome: schema.Failed(kind, err)}
	}

	payload, err := e.cfg.Projector.Project(ctx, e.cfg.Projection, session)
	if err != nil {
		return Result{Outcome: schema.Failed(kind, err)}
	}
	payload["amount"] = amount
	payload["amountMinorUnits"] = minor
	payload["currency"] = currency
	payload["paymentMethods"] = req.PaymentMethods
	if invoiceNumber != "" {
		payload["invoiceNumber"] = invoiceNumber
	}
	return Result{Outcome: schema.Succeeded(kind, payload)}
}

// MethodsFor returns the checkout rails configured for currency.
func (e *PaymentExecutor) MethodsFor(currency string) []string {
	if m, ok := e.cfg.Methods[strings.ToLower(currency)]; ok && len(m) > 0 {
		return append([]string(nil), m...)
	}
	return []string{"card"}
}

// CurrencyExponent returns the number of minor-unit digits for currency.
func CurrencyExponent(currency string) int {
	c := strings.ToLower(currency)
	switch {
	case zeroDecimalCurrencies[c]:
		return 0
	case threeDecimalCurrencies[c]:
		return 3
	default:
		return 2
	}
}

// ToMinorUnits converts a decimal amount to the currency's smallest unit,
// rounding half up on the amount's shortest decimal representation so
// 1.005 becomes 101 rather than 100.
func ToMinorUnits(amount float64, currency string) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid amount %v", amount).
			WithDetails(map[string]any{"field": "amount"})
	}
	exp := CurrencyExponent(currency)

	whole, frac, _ := strings.Cut(strconv.FormatFloat(amount, 'f', -1, 64), ".")
	for len(frac) <= exp {
		frac += "0"
	}
	n, err := strconv.ParseInt(whole+frac[:exp], 10, 64)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "amount %v is out of range", amount).
			WithDetails(map[string]any{"field": "amount"}).WithCause(err)
	}
	if frac[exp] >= '5' {
		n++
	}
	return n, nil
}

var _ Executor = (*PaymentExecutor)(nil)
