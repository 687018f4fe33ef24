// Package stripe creates hosted Stripe Checkout sessions for the
// CreatePayment executor.
package stripe

import (
	"context"
	"errors"
	"net/http"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/pkg/schema"
)

// Config holds the service-level Stripe credential.
type Config struct {
	SecretKey string
	// BaseURL overrides the Stripe API URL.
	BaseURL    string
	HTTPClient *http.Client
}

// Checkout implements actions.PaymentBackend.
type Checkout struct {
	api *client.API
}

// NewCheckout creates a Checkout backend.
func NewCheckout(cfg Config) *Checkout {
	bc := &stripe.BackendConfig{
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.BaseURL != "" {
		bc.URL = stripe.String(cfg.BaseURL)
	}
	if cfg.HTTPClient != nil {
		bc.HTTPClient = cfg.HTTPClient
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, bc)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Checkout{api: api}
}

// CreateCheckoutSession creates a one-line-item payment session.
func (c *Checkout) CreateCheckoutSession(ctx context.Context, req actions.CheckoutRequest) (*actions.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		PaymentMethodTypes: stripe.StringSlice(req.PaymentMethods),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.AmountMinorUnits),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if len(req.Metadata) > 0 {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: map[string]string{}}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
			params.PaymentIntentData.Metadata[k] = v
		}
	}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &actions.CheckoutSession{
		ID:          sess.ID,
		URL:         sess.URL,
		Status:      string(sess.Status),
		AmountTotal: sess.AmountTotal,
		Currency:    string(sess.Currency),
	}, nil
}

func classify(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return schema.NewErrorf(schema.ErrCodeExternalCall, "stripe request failed: %s", err.Error()).WithCause(err)
	}
	msg := serr.Msg
	if serr.HTTPStatusCode == http.StatusUnauthorized {
		msg = "payment provider rejected the service key"
	}
	if msg == "" {
		msg = string(serr.Code)
	}
	return schema.NewError(schema.ErrCodeExternalCall, msg).
		WithCause(err).
		WithDetails(map[string]any{"status": serr.HTTPStatusCode, "code": string(serr.Code)})
}

var _ actions.PaymentBackend = (*Checkout)(nil)
