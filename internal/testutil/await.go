package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/specialistvlad/livebind/internal/async"
	"github.com/stretchr/testify/require"
)

// Await drains q until f settles and returns its result. It fails the test
// after two seconds.
func Await[T any](t *testing.T, q *async.Queue, f *async.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		q.RunPending()
		if v, err, ok := f.Result(); ok {
			// Drain continuations registered on f itself.
			q.RunPending()
			return v, err
		}
		require.NoError(t, q.Wait(ctx), "future did not settle")
	}
}
