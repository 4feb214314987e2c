// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package future

import (
	"context"
	"sync"
)

// Future represents a value which may or may not currently be available,
// but will be available at some point in the future, or an error if that value
// could not be made available.
//
// Callbacks registered with OnComplete run exactly once, on the goroutine that
// completes the Future, or immediately on the registering goroutine when the
// Future is already complete.
type Future[T any] interface {
	// Await blocks until the Future is completed or context is canceled and
	// returns either a result or an error.
	Await(ctx context.Context) (T, error)
	// IsDone returns true once the Future has been completed
	IsDone() bool
	// Result returns the outcome without blocking. The boolean is false while
	// the Future is not yet completed.
	Result() (*Result[T], bool)
	// OnComplete registers a callback invoked with the outcome of the Future
	OnComplete(callback func(*Result[T]))
}

// Promise is the writable, single-assignment side of a Future.
type Promise[T any] interface {
	// Success completes the underlying Future with a value.
	Success(value T)
	// Failure fails the underlying Future with an error.
	Failure(err error)
	// Future returns the underlying Future.
	Future() Future[T]
}

// NewPromise returns a new Promise
func NewPromise[T any]() Promise[T] {
	return &promise[T]{future: &future[T]{done: make(chan struct{})}}
}

// Completed returns a Future already completed with the given value
func Completed[T any](value T) Future[T] {
	p := NewPromise[T]()
	p.Success(value)
	return p.Future()
}

// future implements the Future interface.
type future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	result    *Result[T]
	callbacks []func(*Result[T])
}

// Verify future satisfies the Future interface.
var _ Future[int] = (*future[int])(nil)

// Await blocks until the Future is completed or context is canceled and
// returns either a result or an error.
func (x *future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-x.done:
		return x.result.success, x.result.failure
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// IsDone returns true once the Future has been completed
func (x *future[T]) IsDone() bool {
	select {
	case <-x.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome without blocking
func (x *future[T]) Result() (*Result[T], bool) {
	if !x.IsDone() {
		return nil, false
	}
	return x.result, true
}

// OnComplete registers a callback invoked with the outcome of the Future
func (x *future[T]) OnComplete(callback func(*Result[T])) {
	x.mu.Lock()
	if x.result == nil {
		x.callbacks = append(x.callbacks, callback)
		x.mu.Unlock()
		return
	}
	result := x.result
	x.mu.Unlock()
	callback(result)
}

// complete sets the outcome and fires the callbacks outside of the mutex.
// It returns false when the Future was already completed.
func (x *future[T]) complete(result *Result[T]) bool {
	x.mu.Lock()
	if x.result != nil {
		x.mu.Unlock()
		return false
	}
	x.result = result
	callbacks := x.callbacks
	x.callbacks = nil
	close(x.done)
	x.mu.Unlock()

	for _, callback := range callbacks {
		callback(result)
	}
	return true
}

// promise implements the Promise interface.
type promise[T any] struct {
	future *future[T]
}

// Verify promise satisfies the Promise interface.
var _ Promise[int] = (*promise[int])(nil)

// Success completes the underlying Future with a given value.
func (p *promise[T]) Success(value T) {
	p.future.complete(&Result[T]{success: value})
}

// Failure fails the underlying Future with a given error.
func (p *promise[T]) Failure(err error) {
	p.future.complete(&Result[T]{failure: err})
}

// Future returns the underlying Future.
func (p *promise[T]) Future() Future[T] {
	return p.future
}
