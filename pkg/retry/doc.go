// Package retry provides exponential backoff for transient failures.
//
// The runtime uses it when connecting to NATS and when the parameter store
// fetches initial values, both of which can race a broker that is still
// starting.
//
// # Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay (startup)
//
// # Usage
//
//	entry, err := retry.DoWithResult(ctx, retry.Quick(), func() (jetstream.KeyValueEntry, error) {
//	    return kv.Get(ctx, key)
//	})
//
// Errors wrapped with NonRetryable stop the loop at once. Config.Retryable
// narrows which errors are retried at all.
package retry
