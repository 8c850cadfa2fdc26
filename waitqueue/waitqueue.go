// Package waitqueue paces batch work against an upstream that tolerates at
// most a fixed number of operations per interval.
package waitqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type WaitQueue struct {
	timer           *time.Timer
	spacing         time.Duration
	capacity        int32
	intervalTicker  *time.Ticker
	intervalCounter atomic.Int32
	sendLock        *sync.Mutex
	cancelTicker    context.CancelFunc
	done            chan struct{}
}

// New creates a queue allowing at most capacity operations per interval,
// with at least spacing between consecutive operations.
func New(ctx context.Context, interval, spacing time.Duration, capacity int32) *WaitQueue {
	ctx, cancel := context.WithCancel(ctx)
	wq := &WaitQueue{
		timer:           time.NewTimer(0),
		spacing:         spacing,
		capacity:        capacity,
		done:            make(chan struct{}),
		intervalTicker:  time.NewTicker(interval),
		intervalCounter: atomic.Int32{},
		sendLock:        &sync.Mutex{},
		cancelTicker:    cancel,
	}

	go wq.runTicker(ctx)
	return wq
}

func (w *WaitQueue) runTicker(ctx context.Context) {
	defer func() { w.done <- struct{}{} }()
	for {
		select {
		case <-w.intervalTicker.C:
			w.intervalCounter.Store(0)
		case <-ctx.Done():
			return
		}
	}
}

func (w *WaitQueue) Close() {
	w.cancelTicker()
	<-w.done
}

func (w *WaitQueue) RunSingle(ctx context.Context, fn func() error) error {
	return w.RunMany(ctx, 1, fn)
}

func (w *WaitQueue) RunMany(ctx context.Context, n int32, fn func() error) error {
	<-w.timer.C
	defer w.timer.Reset(w.spacing)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := w.tryRun(fn, n); nil != err {
				if errors.Is(err, errIntervalCapReached) {
					continue
				}
				return err
			}
			return nil
		}
	}
}

var errIntervalCapReached = errors.New("wait queue interval capacity has reached, waiting for next interval")

func (w *WaitQueue) tryRun(fn func() error, n int32) error {
	w.sendLock.Lock()
	defer w.sendLock.Unlock()

	if c := w.intervalCounter.Load(); w.capacity-c >= n {
		if err := fn(); nil != err {
			return err
		}
		w.intervalCounter.Add(n)
		return nil
	}
	return errIntervalCapReached
}
