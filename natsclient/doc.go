// Package natsclient manages the NATS connection shared by the transport
// node and the parameter store.
//
// The Client wraps a *nats.Conn with connection status tracking, a circuit
// breaker that fails fast after repeated dial failures, and JetStream access
// for key-value buckets. KVStore adds per-operation timeouts and retried
// reads on top of a jetstream.KeyValue.
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("talker"),
//	    natsclient.WithLogger(logger),
//	    natsclient.WithConnectRetry(retry.Quick()),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "params"})
//	kv := natsclient.NewKVStore(bucket)
//
// # Circuit Breaker
//
// Each failed dial or bucket operation counts toward a threshold (default
// 5). Reaching it opens the circuit: Connect and bucket calls return
// ErrCircuitOpen until the backoff elapses, after which the client moves
// back to disconnected and may dial again. The backoff doubles up to one
// minute and resets on success.
//
// # Testing
//
// NewTestClient starts a NATS server container through testcontainers and
// returns a connected client. Tests using it carry the integration build
// tag.
package natsclient
