package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rendis/actiondesk/pkg/schema"
)

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

var currencyAliases = map[string]string{
	"rm":  "myr",
	"us$": "usd",
	"$":   "usd",
	"s$":  "sgd",
	"€":   "eur",
	"£":   "gbp",
	"¥":   "jpy",
}

func normalizeSchedule(p map[string]any, clock Clock) error {
	trimString(p, "summary")
	trimString(p, "description")

	start, ok := clock.ParseTimestamp(str(p["start_iso"]))
	if !ok {
		s, e := clock.DefaultWindow()
		p["start_iso"], p["end_iso"] = clock.Format(s), clock.Format(e)
	} else {
		end, ok := clock.ParseTimestamp(str(p["end_iso"]))
		if !ok || !end.After(start) {
			end = start.Add(DefaultDuration)
		}
		p["start_iso"], p["end_iso"] = clock.Format(start), clock.Format(end)
	}

	if str(p["timezone"]) == "" {
		p["timezone"] = clock.loc().String()
	}
	return nil
}

func normalizeEmail(p map[string]any, _ Clock) error {
	if to := str(p["to"]); to != "" {
		// "John <john@x.com>" -> "john@x.com"
		if addr := emailRe.FindString(to); addr != "" {
			p["to"] = addr
		}
	}
	trimString(p, "subject")
	trimString(p, "body")
	trimString(p, "attachment_path")
	return nil
}

func normalizeInvoice(p map[string]any, clock Clock) error {
	trimString(p, "client_name")
	trimString(p, "description")
	trimString(p, "invoice_number")

	if err := coerceAmountField(p, "amount"); err != nil {
		return err
	}
	if v, ok := p["tax_rate"]; ok {
		rate, err := coerceRate(v)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeExtraction, "field tax_rate: %s", err.Error()).
				WithDetails(map[string]any{"field": "tax_rate"})
		}
		p["tax_rate"] = rate
	}
	if c := str(p["currency"]); c != "" {
		p["currency"] = strings.ToUpper(canonicalCurrency(c))
	}
	if d := str(p["due_date"]); d != "" {
		if t, ok := clock.ParseTimestamp(d); ok {
			p["due_date"] = t.Format("2006-01-02")
		} else {
			delete(p, "due_date")
		}
	}
	return nil
}

func normalizePayment(p map[string]any, _ Clock) error {
	trimString(p, "description")
	trimString(p, "invoice_number")

	if err := coerceAmountField(p, "amount"); err != nil {
		return err
	}
	if c := str(p["currency"]); c != "" {
		p["currency"] = strings.ToLower(canonicalCurrency(c))
	}
	return nil
}

func coerceAmountField(p map[string]any, field string) error {
	v, ok := p[field]
	if !ok {
		return nil
	}
	amount, err := CoerceAmount(v)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExtraction, "field %s: %s", field, err.Error()).
			WithDetails(map[string]any{"field": field}).
			WithCause(err)
	}
	p[field] = amount
	return nil
}

// coerceRate accepts 0.06, 6, "6%" and "0.06" and returns a fraction.
func coerceRate(v any) (float64, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if strings.HasSuffix(s, "%") {
			f, err := CoerceAmount(strings.TrimSuffix(s, "%"))
			if err != nil {
				return 0, err
			}
			return f / 100, nil
		}
	}
	f, err := CoerceAmount(v)
	if err != nil {
		return 0, err
	}
	if f > 1 {
		f /= 100
	}
	return f, nil
}

func canonicalCurrency(c string) string {
	c = strings.TrimSpace(c)
	if alias, ok := currencyAliases[strings.ToLower(c)]; ok {
		return alias
	}
	return c
}

func trimString(p map[string]any, field string) {
	if s, ok := p[field].(string); ok {
		p[field] = strings.TrimSpace(s)
	}
}

// str renders scalar values as strings; nil and containers become "".
func str(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case nil:
		return ""
	case float64, int, int64, bool:
		return fmt.Sprint(s)
	default:
		return ""
	}
}
