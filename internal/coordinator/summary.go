package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rendis/actiondesk/internal/logging"
	"github.com/rendis/actiondesk/pkg/schema"
)

const conversationPersona = "You are a friendly, concise business assistant. " +
	"You can schedule meetings, send emails, generate invoices and create payment links when asked. " +
	"Answer the user's message directly."

const summaryPersona = "You are a friendly, concise business assistant. " +
	"You have just carried out actions for the user. Using only the facts below, " +
	"write a short confirmation that mentions each result concretely (times, recipients, invoice numbers, links). " +
	"If an account connection is required, tell the user to open the given link. Do not invent details.\n\n" +
	"What happened:\n"

// SummaryFallbackPrefix starts the reply when the summary cannot be generated.
const SummaryFallbackPrefix = "Sorry, I had trouble writing a summary, but here is what happened:"

// summarize asks the model for the final reply, or lists the context
// lines when it cannot.
func (c *Coordinator) summarize(ctx context.Context, run *requestState) string {
	lines := SummaryContext(run.priorOutcomes())
	facts := strings.Join(lines, "\n")

	if c.completer != nil {
		sctx, cancel := context.WithTimeout(ctx, c.llmWait)
		reply, err := c.completer.Complete(sctx, summaryPersona+facts, run.text, c.chatTemp)
		cancel()
		if err == nil && strings.TrimSpace(reply) != "" {
			return strings.TrimSpace(reply)
		}
		logging.LogWith(ctx, c.logger).Warn("summary generation failed", slog.Any("error", err))
		c.log(run, schema.LogWarn, "", "Summary generation failed; showing raw results")
	}

	var b strings.Builder
	b.WriteString(SummaryFallbackPrefix)
	for _, l := range lines {
		b.WriteString("\n- ")
		b.WriteString(l)
	}
	return b.String()
}

// SummaryContext renders one plain-language line per outcome.
func SummaryContext(outcomes []schema.Outcome) []string {
	lines := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		lines = append(lines, describeOutcome(o))
	}
	return lines
}

func describeOutcome(o schema.Outcome) string {
	info, _ := o.Kind.Info()
	switch o.Status {
	case schema.OutcomeAuthRequired:
		return fmt.Sprintf("%s connection is required before the %s can act. Connect here: %s",
			providerName(info.Provider), strings.ToLower(info.AgentLabel), o.AuthURL)
	case schema.OutcomeError:
		return fmt.Sprintf("The %s failed: %s", strings.ToLower(info.AgentLabel), o.Error)
	}

	r := o.Result
	switch o.Kind {
	case schema.KindSchedule:
		line := fmt.Sprintf("A calendar event %q was created from %v to %v.", field(r, "summary"), field(r, "start"), field(r, "end"))
		if link := field(r, "link"); link != "" {
			line += " Link: " + link
		}
		return line
	case schema.KindSendEmail:
		line := fmt.Sprintf("An email with subject %q was sent to %s.", field(r, "subject"), field(r, "to"))
		if att := field(r, "attachment"); att != "" {
			line += " Attached: " + att
		}
		return line
	case schema.KindGenerateInvoice:
		return fmt.Sprintf("Invoice %s was generated for %s: total %s %s, due %s. File: %s",
			field(r, "invoiceNumber"), field(r, "clientName"), strings.ToUpper(field(r, "currency")),
			money(r["total"]), field(r, "dueDate"), field(r, "file"))
	case schema.KindCreatePayment:
		return fmt.Sprintf("A payment link for %s %s was created: %s",
			strings.ToUpper(field(r, "currency")), money(r["amount"]), field(r, "checkoutUrl"))
	}
	return fmt.Sprintf("The %s completed.", strings.ToLower(info.AgentLabel))
}

func providerName(p string) string {
	if p == schema.ProviderGoogle {
		return "Google account"
	}
	return "Account"
}

func field(r map[string]any, key string) string {
	if r == nil {
		return ""
	}
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func money(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", n)
	case float32:
		return fmt.Sprintf("%.2f", n)
	case int:
		return fmt.Sprintf("%d.00", n)
	case int64:
		return fmt.Sprintf("%d.00", n)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
