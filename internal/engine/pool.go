// Package engine owns the heavyweight singletons a run depends on (the OCR
// engine and the inpainting network). Each lives in a Pool of size one:
// created on first use, shared by every page, torn down at the end of the run.
package engine

import (
	"context"
	"errors"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Use after Close.
var ErrClosed = errors.New("engine: pool closed")

// Factory creates the pooled instance.
type Factory[T io.Closer] func(ctx context.Context) (T, error)

// Pool serialises access to a single lazily created instance.
type Pool[T io.Closer] struct {
	sem     *semaphore.Weighted
	factory Factory[T]

	mu      sync.Mutex
	inst    T
	created bool
	initErr error
	closed  bool
}

// NewPool creates an empty pool. Nothing is built until Warm or Use.
func NewPool[T io.Closer](factory Factory[T]) *Pool[T] {
	return &Pool[T]{
		sem:     semaphore.NewWeighted(1),
		factory: factory,
	}
}

// Warm creates the instance if needed and returns the creation error. A
// failed creation is remembered; later calls return the same error.
func (p *Pool[T]) Warm(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	_, err := p.get(ctx)
	return err
}

// Use runs fn with exclusive access to the instance.
func (p *Pool[T]) Use(ctx context.Context, fn func(T) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	inst, err := p.get(ctx)
	if err != nil {
		return err
	}
	return fn(inst)
}

// Ready reports whether the instance exists.
func (p *Pool[T]) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

func (p *Pool[T]) get(ctx context.Context) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero T
	if p.closed {
		return zero, ErrClosed
	}
	if p.created {
		return p.inst, nil
	}
	if p.initErr != nil {
		return zero, p.initErr
	}

	inst, err := p.factory(ctx)
	if err != nil {
		p.initErr = err
		return zero, err
	}
	p.inst = inst
	p.created = true
	return inst, nil
}

// Close waits for any in-flight use, then closes the instance. It is safe
// to call more than once.
func (p *Pool[T]) Close() error {
	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if !p.created {
		return nil
	}
	p.created = false
	return p.inst.Close()
}
