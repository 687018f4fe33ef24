package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/pkg/schema"
)

func stripeServer(t *testing.T, status int, body map[string]any) (*Checkout, *url.Values) {
	t.Helper()
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return NewCheckout(Config{SecretKey: "sk_test_123", BaseURL: srv.URL, HTTPClient: srv.Client()}), &form
}

func TestCheckout_CreatesSession(t *testing.T) {
	c, form := stripeServer(t, http.StatusOK, map[string]any{
		"id":           "cs_test_1",
		"object":       "checkout.session",
		"url":          "https://checkout.stripe.com/c/pay/cs_test_1",
		"status":       "open",
		"amount_total": 1999,
		"currency":     "myr",
	})

	sess, err := c.CreateCheckoutSession(context.Background(), actions.CheckoutRequest{
		AmountMinorUnits: 1999,
		Currency:         "myr",
		Description:      "Consulting",
		Metadata:         map[string]string{"invoice_number": "INV-1"},
		PaymentMethods:   []string{"card", "fpx"},
		SuccessURL:       "https://app.example.com/paid",
		CancelURL:        "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)
	assert.Equal(t, int64(1999), sess.AmountTotal)

	f := *form
	assert.Equal(t, "payment", f.Get("mode"))
	assert.Equal(t, "1999", f.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "myr", f.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "Consulting", f.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "card", f.Get("payment_method_types[0]"))
	assert.Equal(t, "fpx", f.Get("payment_method_types[1]"))
	assert.Equal(t, "INV-1", f.Get("metadata[invoice_number]"))
	assert.Equal(t, "INV-1", f.Get("payment_intent_data[metadata][invoice_number]"))
}

func TestCheckout_ProviderError(t *testing.T) {
	c, _ := stripeServer(t, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"type":    "invalid_request_error",
			"code":    "payment_method_unactivated",
			"message": "The payment method `fpx` is not activated for your account.",
		},
	})
	_, err := c.CreateCheckoutSession(context.Background(), actions.CheckoutRequest{
		AmountMinorUnits: 100, Currency: "myr", PaymentMethods: []string{"fpx"},
	})
	require.True(t, schema.IsCode(err, schema.ErrCodeExternalCall))
	assert.Contains(t, err.Error(), "is not activated")
}
