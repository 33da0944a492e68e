package testutil

import (
	"testing"
	"time"
)

// WaitClosed fails t if done is still open after timeout.
func WaitClosed(t testing.TB, done <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("%s did not finish within %v", what, timeout)
	}
}
