// Package actor runs components as single goroutines draining a private FIFO
// mailbox. A component's state is touched only by its own goroutine, so it
// needs no locks.
package actor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/telemetryhub/internal/ctxlog"
)

// Handler processes one message. self is the address of the running actor;
// the handler retires the actor by calling self.Stop.
type Handler[M any] func(ctx context.Context, self *Addr[M], msg M)

// Addr is the handle to a running actor. Pointer identity is actor identity.
type Addr[M any] struct {
	name string

	mu     sync.Mutex
	queue  []M
	closed bool

	wake  chan struct{}
	done  chan struct{}
	alive atomic.Bool
}

// Start spawns an actor goroutine that runs h for every message sent to the
// returned address, one at a time, in send order. The actor stops when h
// calls Stop, when Stop is called from outside, or when ctx is cancelled.
func Start[M any](ctx context.Context, name string, h Handler[M]) *Addr[M] {
	a := &Addr[M]{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	a.alive.Store(true)
	go a.run(ctx, h)
	return a
}

// Name returns the name the actor was started with.
func (a *Addr[M]) Name() string {
	return a.name
}

// Send enqueues msg without blocking. It reports false if the actor has
// stopped, in which case msg is dropped.
func (a *Addr[M]) Send(msg M) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.queue = append(a.queue, msg)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

// Connected reports whether the actor still accepts mail. It reads a local
// flag and never waits on the actor.
func (a *Addr[M]) Connected() bool {
	return a.alive.Load()
}

// Stop closes the mailbox and returns the messages that were queued but not
// yet handled. The message currently being handled, if any, runs to
// completion. Calling Stop more than once returns nil after the first call.
func (a *Addr[M]) Stop() []M {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.alive.Store(false)
	pending := a.queue
	a.queue = nil
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return pending
}

// Done is closed once the actor goroutine has exited.
func (a *Addr[M]) Done() <-chan struct{} {
	return a.done
}

func (a *Addr[M]) run(ctx context.Context, h Handler[M]) {
	defer close(a.done)
	defer a.Stop()

	logger := ctxlog.FromContext(ctx).With("actor", a.name)
	logger.Debug("Actor started.")
	defer logger.Debug("Actor stopped.")

	for {
		msg, ok := a.next(ctx)
		if !ok {
			return
		}
		h(ctx, a, msg)
	}
}

// next blocks until a message is queued, the mailbox is closed, or ctx ends.
func (a *Addr[M]) next(ctx context.Context) (M, bool) {
	var zero M
	for {
		if ctx.Err() != nil {
			return zero, false
		}

		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return zero, false
		}
		if len(a.queue) > 0 {
			msg := a.queue[0]
			a.queue[0] = zero
			a.queue = a.queue[1:]
			a.mu.Unlock()
			return msg, true
		}
		a.mu.Unlock()

		select {
		case <-a.wake:
		case <-ctx.Done():
			return zero, false
		}
	}
}
