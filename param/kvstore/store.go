// Package kvstore implements param.Store on a JetStream key-value bucket.
// Each parameter is one key holding a JSON encoded param.Value.
package kvstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/nodekit/errors"
	"github.com/c360/nodekit/natsclient"
	"github.com/c360/nodekit/param"
)

// DefaultBucket is the bucket used when none is configured.
const DefaultBucket = "nodekit_params"

const closeTimeout = 2 * time.Second

// Store is a param.Store backed by a KV bucket.
type Store struct {
	kv     *natsclient.KVStore
	logger *slog.Logger

	mu       sync.Mutex
	callback param.ChangeCallback
	watcher  jetstream.KeyWatcher
	done     chan struct{}
}

// New wraps an existing KV store.
func New(kv *natsclient.KVStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:     kv,
		logger: logger.With("component", "kvstore", "bucket", kv.Bucket()),
	}
}

// Open creates or binds bucket on client and wraps it.
func Open(ctx context.Context, client *natsclient.Client, bucket string, logger *slog.Logger) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "node parameters",
		History:     1,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "kvstore", "Open", "bind parameter bucket")
	}
	return New(natsclient.NewKVStore(kv), logger), nil
}

// GetParameters fetches names in the background. Missing keys resolve to
// unset values.
func (s *Store) GetParameters(ctx context.Context, names ...string) *param.Future {
	f := param.NewFuture()
	go func() {
		out := make([]param.Parameter, 0, len(names))
		for _, name := range names {
			p := param.Parameter{Name: name}
			entry, err := s.kv.Get(ctx, name)
			switch {
			case natsclient.IsKVNotFoundError(err):
			case err != nil:
				f.Complete(nil, errors.WrapTransient(err, "kvstore", "GetParameters", "fetch "+name))
				return
			default:
				p.Value = decode(entry.Value)
			}
			out = append(out, p)
		}
		f.Complete(out, nil)
	}()
	return f
}

// SetParameters writes each parameter to its key.
func (s *Store) SetParameters(ctx context.Context, params []param.Parameter) error {
	for _, p := range params {
		data, err := json.Marshal(p.Value)
		if err != nil {
			return errors.WrapInvalid(err, "kvstore", "SetParameters", "encode "+p.Name)
		}
		if _, err := s.kv.Put(ctx, p.Name, data); err != nil {
			return err
		}
	}
	return nil
}

// OnParameterChange registers cb and starts watching the bucket for
// updates made after this call.
func (s *Store) OnParameterChange(cb param.ChangeCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.callback != nil {
		return errors.WrapInvalid(errors.ErrCallbackExists, "kvstore", "OnParameterChange",
			"register change callback")
	}

	watcher, err := s.kv.Watch(context.Background(), ">", jetstream.UpdatesOnly())
	if err != nil {
		return err
	}

	s.callback = cb
	s.watcher = watcher
	s.done = make(chan struct{})
	go s.watch(watcher, cb, s.done)
	return nil
}

func (s *Store) watch(w jetstream.KeyWatcher, cb param.ChangeCallback, done chan struct{}) {
	defer close(done)

	for entry := range w.Updates() {
		if entry == nil {
			continue
		}

		p := param.Parameter{Name: entry.Key()}
		if entry.Operation() == jetstream.KeyValuePut {
			p.Value = decode(entry.Value())
		}

		res := cb([]param.Parameter{p})
		if !res.Successful {
			s.logger.Warn("Parameter change rejected",
				"parameter", p.Name, "revision", entry.Revision(), "reason", res.Reason)
		}
	}
}

// Close stops the change watcher.
func (s *Store) Close() error {
	s.mu.Lock()
	w, done := s.watcher, s.done
	s.watcher = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Stop()
	select {
	case <-done:
	case <-time.After(closeTimeout):
		s.logger.Warn("Parameter watcher did not stop in time")
	}
	if err != nil {
		return errors.WrapTransient(err, "kvstore", "Close", "stop watcher")
	}
	return nil
}

// decode reads the JSON form written by SetParameters and falls back to
// inferring a kind from raw text written by other tools.
func decode(data []byte) param.Value {
	var v param.Value
	if err := json.Unmarshal(data, &v); err == nil {
		return v
	}
	return param.InferValue(string(data))
}
