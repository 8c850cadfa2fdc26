package ctxutil

import (
	"context"
	"time"
)

// WithDelayedTimeout returns a context that outlives its parent's
// cancellation by delay, so in-flight store writes can drain.
func WithDelayedTimeout(parent context.Context, delay time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-parent.Done()
		time.AfterFunc(delay, cancel)
	}()
	return ctx, cancel
}
