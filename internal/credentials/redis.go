package credentials

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rendis/actiondesk/internal/secrets"
	"github.com/rendis/actiondesk/pkg/schema"
)

// DefaultRedisPrefix namespaces credential keys in a shared Redis.
const DefaultRedisPrefix = "actiondesk:cred:"

// RedisStore keeps sealed credentials in Redis. SET replaces the value in
// one command.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	sealer *secrets.Sealer
}

// NewRedisStore connects to addr. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(addr, password string, db int, prefix string, sealer *secrets.Sealer) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreWithClient(rdb, prefix, sealer)
}

// NewRedisStoreWithClient uses an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, sealer *secrets.Sealer) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, sealer: sealer}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, provider, userID string) (*schema.Credential, error) {
	key, err := validKey(provider, userID)
	if err != nil {
		return nil, err
	}
	sealed, err := s.client.Get(ctx, s.prefix+key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeStore, "redis get %s", key).WithCause(err)
	}
	data, err := s.sealer.Open(sealed, key.String())
	if err != nil {
		return nil, err
	}
	return decode(key, data)
}

func (s *RedisStore) Put(ctx context.Context, provider, userID string, cred schema.Credential) error {
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
	if err := s.client.Set(ctx, s.prefix+key.String(), sealed, 0).Err(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "redis set %s", key).WithCause(err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]schema.CredentialKey, error) {
	var keys []schema.CredentialKey
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if k, ok := parseKey(strings.TrimPrefix(iter.Val(), s.prefix)); ok {
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "redis scan").WithCause(err)
	}
	return keys, nil
}

var _ Store = (*RedisStore)(nil)
