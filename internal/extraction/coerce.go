package extraction

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rendis/actiondesk/pkg/schema"
)

var (
	currencyCodeRe = regexp.MustCompile(`(?i)us\$|s\$|usd|myr|rm|sgd|eur|gbp|jpy|aud|cad|inr|idr|thb`)
	currencySymRe  = regexp.MustCompile(`[$€£¥₹]`)

	markedAmountRe = regexp.MustCompile(`(?i)(?:[$€£¥₹]\s?|\b(?:rm|usd|myr|sgd|eur|gbp)\s?)(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
	cuedAmountRe   = regexp.MustCompile(`(?i)\b(?:for|of|amount|total|charge|pay|worth)\s+(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)\b(\s*(?:am|pm|:))?`)
)

// CoerceAmount converts a monetary value to float64. Strings have currency
// symbols, currency codes and thousands separators stripped first, so
// "$1,500", "RM 1,500.00" and 1500 all yield 1500.
func CoerceAmount(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return parseAmountString(n)
	case nil:
		return 0, schema.NewError(schema.ErrCodeExtraction, "amount is missing")
	}
	return 0, schema.NewErrorf(schema.ErrCodeExtraction, "amount has unsupported type %T", v)
}

func parseAmountString(s string) (float64, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = currencyCodeRe.ReplaceAllString(cleaned, "")
	cleaned = currencySymRe.ReplaceAllString(cleaned, "")
	cleaned = strings.NewReplacer(",", "", " ", "", "_", "").Replace(cleaned)

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeExtraction, "amount %q is not a number", s).WithCause(err)
	}
	return f, nil
}

// FindAmount returns the first monetary amount mentioned in text. Amounts
// with a currency marker win over amounts introduced by a cue word.
func FindAmount(text string) (float64, bool) {
	if m := markedAmountRe.FindStringSubmatch(text); m != nil {
		if f, err := parseAmountString(m[1]); err == nil {
			return f, true
		}
	}
	for _, m := range cuedAmountRe.FindAllStringSubmatch(text, -1) {
		// "for 3 pm" and "for 10:30" are times, not amounts.
		if m[2] != "" {
			continue
		}
		if f, err := parseAmountString(m[1]); err == nil {
			return f, true
		}
	}
	return 0, false
}

var currencyCues = []struct {
	re   *regexp.Regexp
	code string
}{
	{regexp.MustCompile(`\brm\s?\d|\bmyr\b|\bringgit\b`), "MYR"},
	{regexp.MustCompile(`\busd\b|us\$`), "USD"},
	{regexp.MustCompile(`\bsgd\b|\bs\$`), "SGD"},
	{regexp.MustCompile(`\beur\b|€|\beuros?\b`), "EUR"},
	{regexp.MustCompile(`\bgbp\b|£`), "GBP"},
	{regexp.MustCompile(`\bjpy\b|¥|\byen\b`), "JPY"},
	// A bare "$" is US dollars, as in canonicalCurrency; S$ and US$ match above.
	{regexp.MustCompile(`\$`), "USD"},
}

// FindCurrency returns the ISO code of an explicit currency mention, or "".
func FindCurrency(text string) string {
	lower := strings.ToLower(text)
	for _, c := range currencyCues {
		if c.re.MatchString(lower) {
			return c.code
		}
	}
	return ""
}
