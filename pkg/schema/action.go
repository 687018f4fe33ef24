package schema

import (
	"errors"
	"fmt"
	"time"
)

// ActionKind identifies one of the side-effecting capabilities the coordinator can perform.
type ActionKind string

const (
	KindSchedule        ActionKind = "schedule"
	KindSendEmail       ActionKind = "send_email"
	KindGenerateInvoice ActionKind = "generate_invoice"
	KindCreatePayment   ActionKind = "create_payment"
	KindNone            ActionKind = "none"
)

// Credential providers.
const (
	ProviderGoogle = "google"
)

// ActionKindInfo is the static presentation and ordering data for a kind.
type ActionKindInfo struct {
	Kind       ActionKind `json:"kind"`
	AgentLabel string     `json:"agent"`
	Icon       string     `json:"icon"`
	// Precedence breaks ties between cues found in the same clause.
	// Lower runs first: producers before carriers.
	Precedence int `json:"-"`
	// Provider names the external account the kind needs, if any.
	Provider string `json:"provider,omitempty"`
}

// ActionKinds is the closed lookup table of executable kinds, in precedence order.
var ActionKinds = []ActionKindInfo{
	{Kind: KindSchedule, AgentLabel: "Calendar Agent", Icon: "📅", Precedence: 0, Provider: ProviderGoogle},
	{Kind: KindGenerateInvoice, AgentLabel: "Invoice Agent", Icon: "🧾", Precedence: 1},
	{Kind: KindCreatePayment, AgentLabel: "Payment Agent", Icon: "💳", Precedence: 2},
	{Kind: KindSendEmail, AgentLabel: "Email Agent", Icon: "📧", Precedence: 3, Provider: ProviderGoogle},
}

// Info returns the lookup table entry for k.
func (k ActionKind) Info() (ActionKindInfo, bool) {
	for _, info := range ActionKinds {
		if info.Kind == k {
			return info, true
		}
	}
	return ActionKindInfo{}, false
}

// Valid reports whether k is an executable kind.
func (k ActionKind) Valid() bool {
	_, ok := k.Info()
	return ok
}

// ParseActionKind converts a wire value into an executable ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !k.Valid() {
		return KindNone, NewErrorf(ErrCodeValidation, "unknown action kind %q", s)
	}
	return k, nil
}

// DetectedAction is one candidate action found in the user's text.
type DetectedAction struct {
	Kind        ActionKind `json:"kind"`
	AgentLabel  string     `json:"agent"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
}

// NewDetectedAction builds a DetectedAction with the label and icon from the lookup table.
func NewDetectedAction(kind ActionKind, description string) DetectedAction {
	info, _ := kind.Info()
	return DetectedAction{
		Kind:        kind,
		AgentLabel:  info.AgentLabel,
		Description: description,
		Icon:        info.Icon,
	}
}

// OutcomeStatus is the terminal status of one executed action.
type OutcomeStatus string

const (
	OutcomeSuccess      OutcomeStatus = "success"
	OutcomeError        OutcomeStatus = "error"
	OutcomeAuthRequired OutcomeStatus = "auth_required"
)

// Outcome is the normalized result of one executed action.
type Outcome struct {
	Kind    ActionKind     `json:"kind"`
	Status  OutcomeStatus  `json:"status"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	AuthURL string         `json:"authUrl,omitempty"`
}

// Succeeded builds a success outcome.
func Succeeded(kind ActionKind, result map[string]any) Outcome {
	return Outcome{Kind: kind, Status: OutcomeSuccess, Result: result}
}

// Failed builds an error outcome from err.
func Failed(kind ActionKind, err error) Outcome {
	return Outcome{Kind: kind, Status: OutcomeError, Error: errorMessage(err)}
}

// NeedsAuth builds an auth-required outcome.
func NeedsAuth(kind ActionKind, authURL string) Outcome {
	return Outcome{
		Kind:    kind,
		Status:  OutcomeAuthRequired,
		Error:   "account connection required",
		AuthURL: authURL,
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Credential is a stored external-account authorization.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope,omitempty"`
}

// ExpiresWithin reports whether the credential expires within d of now.
// A zero expiry never expires.
func (c Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !c.Expiry.After(now.Add(d))
}

// CredentialKey is the (provider, user) pair a credential is stored under.
type CredentialKey struct {
	Provider string
	UserID   string
}

func (k CredentialKey) String() string {
	return fmt.Sprintf("%s/%s", k.Provider, k.UserID)
}
