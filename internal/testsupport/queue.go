package testsupport

import (
	"context"
	"testing"
	"time"

	"shelfscan/internal/dispatch"
	"shelfscan/internal/logging"
)

// StartQueue starts a dispatch queue over transport and stops it on cleanup.
func StartQueue(t testing.TB, transport dispatch.Transport, opts ...dispatch.Option) *dispatch.Queue {
	t.Helper()

	opts = append([]dispatch.Option{dispatch.WithLogger(logging.NewNop())}, opts...)
	q := dispatch.NewQueue(transport, opts...)
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("queue start: %v", err)
	}
	t.Cleanup(q.Stop)
	return q
}

// WaitFor polls cond until it holds or three seconds pass.
func WaitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
