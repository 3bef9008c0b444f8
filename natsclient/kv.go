package natsclient

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/fieldstream/errors"
)

// KVBucket wraps a JetStream key-value bucket. The idempotency store uses
// Create's compare-and-set semantics to claim identity keys atomically
// across pipeline instances.
type KVBucket struct {
	kv jetstream.KeyValue
}

// EnsureKVBucket opens the named bucket, creating it with the given TTL if
// it does not exist yet.
func (c *Client) EnsureKVBucket(ctx context.Context, bucket string, ttl time.Duration) (*KVBucket, error) {
	js := c.JetStream()
	if js == nil {
		return nil, errors.WrapTransient(errors.ErrConnectionLost, "Client", "EnsureKVBucket", "open bucket "+bucket)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket: bucket,
			TTL:    ttl,
		})
		if err != nil {
			return nil, errors.WrapTransient(err, "Client", "EnsureKVBucket", "create bucket "+bucket)
		}
	}
	return &KVBucket{kv: kv}, nil
}

// Create stores the key only if it does not already exist. Returns true if
// this call won the key, false if another writer holds it.
func (b *KVBucket) Create(ctx context.Context, key string, value []byte) (bool, error) {
	_, err := b.kv.Create(ctx, key, value)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return false, nil
	}
	return false, errors.WrapTransient(err, "KVBucket", "Create", "create key "+key)
}

// Get returns the stored value, or (nil, false, nil) when the key is absent.
func (b *KVBucket) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.WrapTransient(err, "KVBucket", "Get", "get key "+key)
	}
	return entry.Value(), true, nil
}

// Delete removes the key. Deleting an absent key is not an error.
func (b *KVBucket) Delete(ctx context.Context, key string) error {
	if err := b.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return errors.WrapTransient(err, "KVBucket", "Delete", "delete key "+key)
	}
	return nil
}
