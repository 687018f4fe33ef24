package detection

import (
	"regexp"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Rule is the lexical cue set for one action kind.
type Rule struct {
	Kind schema.ActionKind
	// Cue matches against the lowercased text.
	Cue *regexp.Regexp
	// Guard is an optional CEL expression over "text" and "clauses" that
	// must evaluate to true for the rule to fire.
	Guard string
	// Verb prefixes the human-readable description.
	Verb string
}

const negationGuard = `!text.matches("\\b(don't|do not|never|no need to|without) (send|e-?mail|mail)")`

// DefaultRules returns the built-in cue table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Kind:  schema.KindSchedule,
			Cue:   regexp.MustCompile(`\b(schedule|reschedule|calendar|meeting|appointment|book (a|an|the|me)|set up (a|an) (call|meeting|sync)|remind me)\b`),
			Guard: `!text.matches("\\b(cancel|delete) (the|my|a) (meeting|event|appointment)")`,
			Verb:  "Create a calendar event",
		},
		{
			Kind:  schema.KindGenerateInvoice,
			Cue:   regexp.MustCompile(`\b(invoice|invoices|invoicing|bill (them|him|her|the client|my client)|billing statement)\b`),
			Guard: `!text.matches("\\bwhat (is|are) (an? )?invoices?\\b")`,
			Verb:  "Generate an invoice",
		},
		{
			Kind: schema.KindCreatePayment,
			Cue:  regexp.MustCompile(`\b(payment link|pay link|checkout( link| session)?|collect (a )?payment|charge (them|him|her|the client|my client|\$|rm|\d)|payment page|request (a )?payment)`),
			Verb: "Create a payment link",
		},
		{
			Kind:  schema.KindSendEmail,
			Cue:   regexp.MustCompile(`\b(e-?mail|mail (it|this|that|them|him|her)|send (it|this|that) to|gmail)\b|\bsend\b[^.;]*@`),
			Guard: negationGuard,
			Verb:  "Send an email",
		},
	}
}
