package extraction

import (
	"regexp"
	"strings"

	"github.com/rendis/actiondesk/pkg/schema"
)

var (
	withNameRe  = regexp.MustCompile(`(?i:\bwith)\s+([A-Z][\w'-]*(?:\s+[A-Z][\w'-]*)*)`)
	quotedRe    = regexp.MustCompile(`["“]([^"”]{2,80})["”]`)
	clientCueRe = regexp.MustCompile(`(?i:\bfor|\bto|\bbill|\binvoice)\s+([A-Z][\w&.'-]*(?:\s+[A-Z][\w&.'-]*)*)`)
	forPhraseRe = regexp.MustCompile(`\bfor\s+([a-z][a-z0-9 &'/-]*[a-z0-9])`)
	currencyTok = regexp.MustCompile(`^(?:RM|USD|MYR|SGD|EUR|GBP|JPY)$`)

	phraseStops = []string{" and ", " then ", " to ", " with ", " by ", " due "}
)

func scheduleFallback(text string, clock Clock) (map[string]any, error) {
	start, end, _ := clock.HintWindow(text)
	return map[string]any{
		"summary":     fallbackSummary(text),
		"start_iso":   clock.Format(start),
		"end_iso":     clock.Format(end),
		"description": "",
	}, nil
}

func fallbackSummary(text string) string {
	if m := quotedRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := withNameRe.FindStringSubmatch(text); m != nil {
		return "Meeting with " + m[1]
	}
	if strings.Contains(strings.ToLower(text), "call") {
		return "Call"
	}
	return "Meeting"
}

func emailFallback(text string, _ Clock) (map[string]any, error) {
	to := emailRe.FindString(text)
	if to == "" {
		return nil, schema.NewError(schema.ErrCodeExtraction, "no recipient address found in the request").
			WithDetails(map[string]any{"field": "to"})
	}
	return map[string]any{
		"to":   to,
		"body": strings.TrimSpace(text),
	}, nil
}

func invoiceFallback(text string, _ Clock) (map[string]any, error) {
	amount, ok := FindAmount(text)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExtraction, "no amount found in the request").
			WithDetails(map[string]any{"field": "amount"})
	}

	email := emailRe.FindString(text)
	client := clientFromText(text, email)
	out := map[string]any{
		"client_name": client,
		"amount":      amount,
	}
	if d := describeFromText(text, client); d != "" {
		out["description"] = d
	}
	if c := FindCurrency(text); c != "" {
		out["currency"] = c
	}
	if email != "" {
		out["client_email"] = email
	}
	return out, nil
}

func paymentFallback(text string, _ Clock) (map[string]any, error) {
	amount, ok := FindAmount(text)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeExtraction, "no amount found in the request").
			WithDetails(map[string]any{"field": "amount"})
	}
	out := map[string]any{"amount": amount}
	if d := describeFromText(text, ""); d != "" {
		out["description"] = d
	}
	if c := FindCurrency(text); c != "" {
		out["currency"] = strings.ToLower(c)
	}
	if email := emailRe.FindString(text); email != "" {
		out["customer_email"] = email
	}
	return out, nil
}

func clientFromText(text, email string) string {
	for _, m := range clientCueRe.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[1])
		for len(words) > 0 && currencyTok.MatchString(words[len(words)-1]) {
			words = words[:len(words)-1]
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}
	if email != "" {
		return nameFromAddress(email)
	}
	return "Client"
}

// nameFromAddress turns "john.smith@x.com" into "John Smith".
func nameFromAddress(addr string) string {
	local, _, _ := strings.Cut(addr, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	if len(parts) == 0 {
		return "Client"
	}
	return strings.Join(parts, " ")
}

// describeFromText returns the last "for <words>" phrase that is not an
// amount or the client's name.
func describeFromText(text, client string) string {
	matches := forPhraseRe.FindAllStringSubmatch(strings.ToLower(text), -1)
	for i := len(matches) - 1; i >= 0; i-- {
		phrase := matches[i][1]
		for _, stop := range phraseStops {
			if idx := strings.Index(phrase, stop); idx >= 0 {
				phrase = phrase[:idx]
			}
		}
		phrase = strings.TrimSpace(phrase)
		if phrase == "" || strings.ContainsAny(phrase, "0123456789") || strings.EqualFold(phrase, client) {
			continue
		}
		return capitalize(phrase)
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
