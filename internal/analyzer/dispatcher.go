package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDispatcherClosed is returned when dispatching to a closed loop.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// InlineDispatcher runs callbacks on the calling goroutine.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(ctx context.Context, fn func()) error {
	fn()
	return nil
}

// LoopDispatcher runs callbacks one after another on a single owner
// goroutine, the way a UI toolkit's main loop would.
type LoopDispatcher struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoopDispatcher starts the owner goroutine.
func NewLoopDispatcher() *LoopDispatcher {
	d := &LoopDispatcher{
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *LoopDispatcher) run() {
	for {
		select {
		case task := <-d.tasks:
			task()
		case <-d.done:
			return
		}
	}
}

// Dispatch queues fn on the owner goroutine and waits until it has run.
// If ctx ends after fn was handed over, fn still runs but Dispatch returns early.
func (d *LoopDispatcher) Dispatch(ctx context.Context, fn func()) error {
	select {
	case <-d.done:
		return ErrDispatcherClosed
	default:
	}

	ran := make(chan error, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				ran <- fmt.Errorf("dispatched callback panicked: %v", r)
			}
		}()
		fn()
		ran <- nil
	}

	select {
	case d.tasks <- task:
	case <-d.done:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ran:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the owner goroutine. Pending Dispatch calls fail.
func (d *LoopDispatcher) Close() {
	d.once.Do(func() {
		close(d.done)
	})
}
