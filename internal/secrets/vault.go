package secrets

import (
	"context"
	"sort"
	"strings"
)

// Vault stores small values encrypted at rest and hands them back decrypted.
type Vault interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Backend persists blobs that are already sealed. *store.LibSQLStore
// satisfies it.
type Backend interface {
	PutSealed(ctx context.Context, key string, blob []byte) error
	GetSealed(ctx context.Context, key string) ([]byte, error)
	DeleteSealed(ctx context.Context, key string) error
	SealedKeys(ctx context.Context) ([]string, error)
}

// SealedVault is a Vault over a Backend. Each value is sealed with its own
// key as the label.
type SealedVault struct {
	backend Backend
	sealer  *Sealer
}

func NewSealedVault(b Backend, s *Sealer) *SealedVault {
	return &SealedVault{backend: b, sealer: s}
}

func (v *SealedVault) Put(ctx context.Context, key string, value []byte) error {
	blob, err := v.sealer.Seal(value, key)
	if err != nil {
		return err
	}
	return v.backend.PutSealed(ctx, key, blob)
}

// Get passes backend errors through unchanged, so a missing key keeps the
// backend's not-found code.
func (v *SealedVault) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := v.backend.GetSealed(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.sealer.Open(blob, key)
}

func (v *SealedVault) Delete(ctx context.Context, key string) error {
	return v.backend.DeleteSealed(ctx, key)
}

// Keys returns the sorted keys starting with prefix. An empty prefix
// matches everything.
func (v *SealedVault) Keys(ctx context.Context, prefix string) ([]string, error) {
	all, err := v.backend.SealedKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

var _ Vault = (*SealedVault)(nil)
