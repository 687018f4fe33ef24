package secrets

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/actiondesk/pkg/schema"
)

// memBackend keeps sealed blobs in a map so tests can inspect them.
type memBackend map[string][]byte

func (m memBackend) PutSealed(_ context.Context, key string, blob []byte) error {
	m[key] = bytes.Clone(blob)
	return nil
}

func (m memBackend) GetSealed(_ context.Context, key string) ([]byte, error) {
	blob, ok := m[key]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "%s not found", key)
	}
	return blob, nil
}

func (m memBackend) DeleteSealed(_ context.Context, key string) error {
	if _, ok := m[key]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "%s not found", key)
	}
	delete(m, key)
	return nil
}

func (m memBackend) SealedKeys(context.Context) ([]string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

func newTestVault(t *testing.T) (*SealedVault, memBackend) {
	t.Helper()
	s, err := NewSealer(KeyConfig{MasterKey: bytes.Repeat([]byte{0x2a}, keySize)})
	require.NoError(t, err)
	b := memBackend{}
	return NewSealedVault(b, s), b
}

func TestSealedVaultRoundTrip(t *testing.T) {
	v, b := newTestVault(t)
	ctx := context.Background()
	cred := []byte(`{"access_token":"ya29.a0","refresh_token":"1//0g"}`)

	require.NoError(t, v.Put(ctx, "google/ana@example.com", cred))
	assert.NotContains(t, string(b["google/ana@example.com"]), "ya29.a0", "stored sealed")

	got, err := v.Get(ctx, "google/ana@example.com")
	require.NoError(t, err)
	assert.JSONEq(t, string(cred), string(got))

	// A refresh overwrites in place.
	require.NoError(t, v.Put(ctx, "google/ana@example.com", []byte(`{"access_token":"ya29.b1"}`)))
	got, err = v.Get(ctx, "google/ana@example.com")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"ya29.b1"}`, string(got))
}

func TestSealedVaultMissingAndDeleted(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	_, err := v.Get(ctx, "google/nobody@example.com")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	require.NoError(t, v.Put(ctx, "google/ana@example.com", []byte("x")))
	require.NoError(t, v.Delete(ctx, "google/ana@example.com"))
	_, err = v.Get(ctx, "google/ana@example.com")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSealedVaultRejectsMovedBlob(t *testing.T) {
	v, b := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Put(ctx, "google/ana@example.com", []byte("ana-token")))
	b["google/bo@example.com"] = b["google/ana@example.com"]

	_, err := v.Get(ctx, "google/bo@example.com")
	assert.True(t, schema.IsCode(err, schema.ErrCodeVault))
}

func TestSealedVaultKeys(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()
	for _, k := range []string{"google/bo@example.com", "stripe/acct", "google/ana@example.com"} {
		require.NoError(t, v.Put(ctx, k, []byte("x")))
	}

	all, err := v.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"google/ana@example.com", "google/bo@example.com", "stripe/acct"}, all)

	google, err := v.Keys(ctx, "google/")
	require.NoError(t, err)
	assert.Equal(t, []string{"google/ana@example.com", "google/bo@example.com"}, google)
}
