package optimization

import (
	"context"
	"sync"
)

// RunState is the lifecycle state of a Controller.
type RunState int

const (
	StateCreated RunState = iota
	StateRunning
	StateCancelling
	StateTerminated
)

func (s RunState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Handle refers to the eventual result of a run.
type Handle[T any] struct {
	done   chan struct{}
	result Result[T]
	err    error
}

// Done is closed once the run has returned.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run returns or ctx is done.
func (h *Handle[T]) Wait(ctx context.Context) (Result[T], error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		var zero Result[T]
		return zero, ctx.Err()
	}
}

// Controller drives the run/pause/resume/stop/cancel lifecycle of an
// Algorithm. It starts at most one run; see Resume.
// All methods are safe for concurrent use.
type Controller[T any] struct {
	alg    Algorithm[T]
	parent context.Context

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	handle *Handle[T]
	state  RunState
}

// NewController binds an algorithm to a new controller. Cancelling parent
// cancels the run as well.
func NewController[T any](parent context.Context, alg Algorithm[T]) *Controller[T] {
	ctx, cancel := context.WithCancel(parent)
	return &Controller[T]{
		alg:    alg,
		parent: parent,
		ctx:    ctx,
		cancel: cancel,
		state:  StateCreated,
	}
}

// Algorithm returns the controlled algorithm.
func (c *Controller[T]) Algorithm() Algorithm[T] {
	return c.alg
}

// Run starts the algorithm unless a run was already started, and returns the
// handle of that run.
func (c *Controller[T]) Run() *Handle[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil {
		return c.handle
	}

	h := &Handle[T]{done: make(chan struct{})}
	c.handle = h
	c.state = StateRunning

	ctx, cancel := c.ctx, c.cancel
	go func() {
		// the run context also bounds any migration task the run spawned
		defer cancel()

		h.result, h.err = c.alg.Optimize(ctx)

		c.mu.Lock()
		c.state = StateTerminated
		c.mu.Unlock()
		close(h.done)
	}()

	return h
}

// Pause requests cancellation and returns the current handle, which is nil if
// Run was never called. A paused run cannot continue from its last generation.
func (c *Controller[T]) Pause() *Handle[T] {
	return c.Stop()
}

// Stop requests cancellation and returns the current handle, which is nil if
// Run was never called.
func (c *Controller[T]) Stop() *Handle[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestCancel()
	return c.handle
}

// Resume issues a fresh cancellation context and calls Run. Once a run has
// been started, Resume returns its handle instead of starting a new one.
func (c *Controller[T]) Resume() *Handle[T] {
	c.mu.Lock()
	if c.handle == nil {
		c.cancel()
		c.ctx, c.cancel = context.WithCancel(c.parent)
	}
	c.mu.Unlock()

	return c.Run()
}

// Cancel requests cancellation without returning a handle.
func (c *Controller[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestCancel()
}

// State returns the current lifecycle state.
func (c *Controller[T]) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller[T]) requestCancel() {
	c.cancel()
	if c.state == StateRunning {
		c.state = StateCancelling
	}
}
