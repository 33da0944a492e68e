package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/pkg/retry"
)

// KVEntry is a value with its revision
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KV operation behavior
type KVOptions struct {
	Timeout time.Duration // per-operation timeout, 0 disables
	Retry   retry.Config  // policy for Get
}

// DefaultKVOptions returns the defaults used by parameter storage
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout: 5 * time.Second,
		Retry:   retry.Quick(),
	}
}

// KVStore wraps a bucket with timeouts, retries and error normalization.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
}

// NewKVStore wraps bucket
func NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{bucket: bucket, options: options}
}

// Bucket returns the bucket name
func (kv *KVStore) Bucket() string {
	return kv.bucket.Bucket()
}

func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get reads key, retrying transient failures. A missing key returns
// ErrKVKeyNotFound without retrying.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	cfg := kv.options.Retry
	cfg.Retryable = func(err error) bool { return !IsKVNotFoundError(err) }

	return retry.DoWithResult(ctx, cfg, func() (*KVEntry, error) {
		opCtx, cancel := kv.applyTimeout(ctx)
		defer cancel()

		entry, err := kv.bucket.Get(opCtx, key)
		if err != nil {
			if IsKVNotFoundError(err) {
				return nil, ErrKVKeyNotFound
			}
			return nil, fmt.Errorf("kv get %s: %w", key, err)
		}
		return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
	})
}

// Put writes key unconditionally
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, errors.WrapTransient(err, "KVStore", "Put", fmt.Sprintf("put %s", key))
	}
	return rev, nil
}

// Delete removes key
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if IsKVNotFoundError(err) {
			return ErrKVKeyNotFound
		}
		return errors.WrapTransient(err, "KVStore", "Delete", fmt.Sprintf("delete %s", key))
	}
	return nil
}

// Watch creates a long-lived watcher for pattern. It does not apply the
// operation timeout.
func (kv *KVStore) Watch(ctx context.Context, pattern string, opts ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	watcher, err := kv.bucket.Watch(ctx, pattern, opts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Watch", fmt.Sprintf("watch %s", pattern))
	}
	return watcher, nil
}

// IsKVNotFoundError checks if error indicates key not found
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrKVKeyNotFound) || stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}

// Well-known KV errors
var (
	ErrKVKeyNotFound = fmt.Errorf("kv: %w", errors.ErrKeyNotFound)
)
