// Package credentials persists per-user external-account credentials and
// keeps them fresh.
package credentials

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Store reads and writes credentials keyed by (provider, user).
// Get reports a missing credential as (nil, nil). Put replaces atomically:
// concurrent readers see either the old or the new credential.
type Store interface {
	Get(ctx context.Context, provider, userID string) (*schema.Credential, error)
	Put(ctx context.Context, provider, userID string, cred schema.Credential) error
	List(ctx context.Context) ([]schema.CredentialKey, error)
}

func validKey(provider, userID string) (schema.CredentialKey, error) {
	provider = strings.TrimSpace(provider)
	userID = schema.NormalizeEmail(userID)
	if provider == "" || userID == "" || strings.Contains(provider, "/") {
		return schema.CredentialKey{}, schema.NewErrorf(schema.ErrCodeValidation,
			"invalid credential key %q/%q", provider, userID)
	}
	return schema.CredentialKey{Provider: provider, UserID: userID}, nil
}

// parseKey reverses CredentialKey.String. User ids may contain slashes.
func parseKey(s string) (schema.CredentialKey, bool) {
	provider, user, ok := strings.Cut(s, "/")
	if !ok || provider == "" || user == "" {
		return schema.CredentialKey{}, false
	}
	return schema.CredentialKey{Provider: provider, UserID: user}, true
}

func encode(cred schema.Credential) ([]byte, error) {
	data, err := json.Marshal(cred)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "encode credential").WithCause(err)
	}
	return data, nil
}

func decode(key schema.CredentialKey, data []byte) (*schema.Credential, error) {
	var cred schema.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode credential %s", key).WithCause(err)
	}
	return &cred, nil
}
