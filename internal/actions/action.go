package actions

import (
	"context"
	"encoding/json"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Executor performs the side effect of one action kind.
//
// Execute never returns a Go error: every failure is folded into the
// Outcome of the Result. A credential the executor had to refresh is handed
// back in Result.Refreshed so the caller can persist it.
type Executor interface {
	Kind() schema.ActionKind
	Schema() ExecutorSchema
	Execute(ctx context.Context, in Input) Result
}

// ExecutorSchema describes an executor's inputs and the outcome payload it produces.
type ExecutorSchema struct {
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	// Projection is the jq program that shapes the provider response into
	// the outcome result.
	Projection string `json:"projection,omitempty"`
}

// Input is everything an executor receives for one run.
type Input struct {
	UserID      string
	Params      map[string]any
	Credentials CredentialLookup
	// Prior holds the outcomes of actions already executed in this request,
	// in execution order.
	Prior []schema.Outcome
}

// Result is the executor's report back to the coordinator.
type Result struct {
	Outcome   schema.Outcome
	Refreshed *schema.Credential
}

// CredentialLookup reads stored credentials. A missing credential is
// reported as (nil, nil).
type CredentialLookup interface {
	Get(ctx context.Context, provider, userID string) (*schema.Credential, error)
}

// Authorizer builds the consent URL a user must visit to connect an account.
type Authorizer interface {
	AuthURL(userID string) (string, error)
}

// TokenRefresher exchanges a refresh token for a new access token.
// An Unauthenticated error means the grant was revoked.
type TokenRefresher interface {
	Refresh(ctx context.Context, cred schema.Credential) (*schema.Credential, error)
}

// ExecutorInfo is the summary returned by Registry.List.
type ExecutorInfo struct {
	Kind        schema.ActionKind `json:"kind"`
	AgentLabel  string            `json:"agent"`
	Icon        string            `json:"icon"`
	Description string            `json:"description"`
	Provider    string            `json:"provider,omitempty"`
}

// priorResult returns the result payload of the most recent successful outcome of kind.
func priorResult(prior []schema.Outcome, kind schema.ActionKind) (map[string]any, bool) {
	for i := len(prior) - 1; i >= 0; i-- {
		o := prior[i]
		if o.Kind == kind && o.Status == schema.OutcomeSuccess {
			return o.Result, true
		}
	}
	return nil, false
}
