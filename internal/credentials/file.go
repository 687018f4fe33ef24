package credentials

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rendis/actiondesk/internal/filestore"
	"github.com/rendis/actiondesk/internal/secrets"
	"github.com/rendis/actiondesk/pkg/schema"
)

const credSuffix = ".cred"

// FileStore keeps one sealed file per credential in a local file store.
// Writes go through a temp file and rename.
type FileStore struct {
	files  *filestore.Local
	sealer *secrets.Sealer
}

// NewFileStore stores credentials in files, sealed with sealer.
func NewFileStore(files *filestore.Local, sealer *secrets.Sealer) *FileStore {
	return &FileStore{files: files, sealer: sealer}
}

func fileName(key schema.CredentialKey) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key.String())) + credSuffix
}

func (s *FileStore) Get(ctx context.Context, provider, userID string) (*schema.Credential, error) {
	key, err := validKey(provider, userID)
	if err != nil {
		return nil, err
	}
	sealed, err := s.files.Read(ctx, fileName(key))
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	data, err := s.sealer.Open(sealed, key.String())
	if err != nil {
		return nil, err
	}
	return decode(key, data)
}

func (s *FileStore) Put(ctx context.Context, provider, userID string, cred schema.Credential) error {
	key, err := validKey(provider, userID)
	if err != nil {
		return err
	}
	data, err := encode(cred)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(data, key.String())
	if err != nil {
		return err
	}
	_, err = s.files.Write(ctx, fileName(key), sealed)
	return err
}

func (s *FileStore) List(ctx context.Context) ([]schema.CredentialKey, error) {
	names, err := s.files.List(ctx)
	if err != nil {
		return nil, err
	}
	var keys []schema.CredentialKey
	for _, n := range names {
		enc, ok := strings.CutSuffix(n, credSuffix)
		if !ok {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(enc)
		if err != nil {
			continue
		}
		if k, ok := parseKey(string(raw)); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

var _ Store = (*FileStore)(nil)
