package credentials

import (
	"context"

	"github.com/rendis/actiondesk/internal/secrets"
	"github.com/rendis/actiondesk/pkg/schema"
)

// VaultStore keeps credentials in a secrets.Vault under "<provider>/<user>".
type VaultStore struct {
	vault secrets.Vault
}

// NewVaultStore wraps v.
func NewVaultStore(v secrets.Vault) *VaultStore {
	return &VaultStore{vault: v}
}

func (s *VaultStore) Get(ctx context.Context, provider, userID string) (*schema.Credential, error) {
	key, err := validKey(provider, userID)
	if err != nil {
		return nil, err
	}
	data, err := s.vault.Get(ctx, key.String())
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeStore, "read credential %s", key).WithCause(err)
	}
	return decode(key, data)
}

func (s *VaultStore) Put(ctx context.Context, provider, userID string, cred schema.Credential) error {
	key, err := validKey(provider, userID)
	if err != nil {
		return err
	}
	data, err := encode(cred)
	if err != nil {
		return err
	}
	if err := s.vault.Put(ctx, key.String(), data); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "write credential %s", key).WithCause(err)
	}
	return nil
}

// List returns every stored credential key. Vault entries that are not
// credential keys are skipped.
func (s *VaultStore) List(ctx context.Context) ([]schema.CredentialKey, error) {
	names, err := s.vault.Keys(ctx, "")
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list credentials").WithCause(err)
	}
	keys := make([]schema.CredentialKey, 0, len(names))
	for _, n := range names {
		if k, ok := parseKey(n); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

var _ Store = (*VaultStore)(nil)
