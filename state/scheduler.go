package state

import (
	"context"
	"time"
)

// Repeat runs fun immediately and then once per delay until ctx is cancelled.
// A run that has already begun always completes. The returned channel is closed after the last run.
func Repeat(ctx context.Context, delay time.Duration, fun func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(delay)
		defer ticker.Stop()
		for ctx.Err() == nil {
			fun(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}
