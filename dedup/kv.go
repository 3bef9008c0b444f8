package dedup

import (
	"context"
	"time"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/natsclient"
)

// KVStore is the multi-instance idempotency store backed by a JetStream
// key-value bucket. The bucket TTL expires claims server-side, and Create's
// compare-and-set makes the claim atomic across pipeline instances.
type KVStore struct {
	bucket *natsclient.KVBucket
}

// NewKVStore opens (or creates) the bucket on the given client.
func NewKVStore(ctx context.Context, client *natsclient.Client, bucket string, ttl time.Duration) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "KVStore", "NewKVStore", "nats client required")
	}

	b, err := client.EnsureKVBucket(ctx, bucket, ttl)
	if err != nil {
		return nil, err
	}
	return &KVStore{bucket: b}, nil
}

// CheckAndMark atomically claims the key across all instances sharing the
// bucket.
func (s *KVStore) CheckAndMark(ctx context.Context, key string) (Result, error) {
	won, err := s.bucket.Create(ctx, sanitizeKey(key), []byte{1})
	if err != nil {
		return Duplicate, err
	}
	if won {
		return Accepted, nil
	}
	return Duplicate, nil
}

// Close is a no-op; the bucket belongs to the shared NATS client.
func (s *KVStore) Close() error { return nil }

// sanitizeKey maps identity keys onto the KV key alphabet. JetStream keys
// cannot contain spaces or start with a dot.
func sanitizeKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '=':
			out = append(out, c)
		case c == '.' && i > 0:
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
