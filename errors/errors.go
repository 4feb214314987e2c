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

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalMonitorState is returned when a client releases or waits on a lock
	// context it does not hold.
	ErrIllegalMonitorState = errors.New("illegal monitor state")

	// ErrDuplicateLockContext is returned when a client thread already has a queued
	// request on the lock.
	ErrDuplicateLockContext = errors.New("lock context already exists")

	// ErrNotGreedyHolder is returned when a recall commit is received from a client
	// that does not hold the lock greedily.
	ErrNotGreedyHolder = errors.New("client is not a greedy holder")

	// ErrInvalidLockLevel is returned when a lock request carries an unknown level.
	ErrInvalidLockLevel = errors.New("invalid lock level")

	// ErrLockNotFound is returned when an operation targets a lock that does not exist.
	ErrLockNotFound = errors.New("lock not found")

	// ErrLockTableClosed is returned when the lock table has been closed.
	ErrLockTableClosed = errors.New("lock table is closed")

	// ErrStoreClosed is returned when an object store operation is attempted after close.
	ErrStoreClosed = errors.New("object store is closed")

	// ErrObjectNotFound is returned when an object cannot be found in the store.
	ErrObjectNotFound = errors.New("object not found")

	// ErrRunnerNotStarted is returned when the stage runner is used before it is started.
	ErrRunnerNotStarted = errors.New("stage runner is not started")

	// ErrServerNotStarted is returned when the server is used before it is started.
	ErrServerNotStarted = errors.New("server is not started")

	// ErrSinkClosed is returned when a response is sent to a closed sink.
	ErrSinkClosed = errors.New("response sink is closed")

	// ErrInvalidMaxCommitSize is returned when the commit batch cap is not positive.
	ErrInvalidMaxCommitSize = errors.New("max commit size must be greater than zero")

	// ErrInvalidMaxTxnsPerGrouping is returned when the per-grouping transaction cap is not positive.
	ErrInvalidMaxTxnsPerGrouping = errors.New("max transactions per grouping must be greater than zero")

	// ErrInvalidShardCount is returned when the lock table is configured without shards.
	ErrInvalidShardCount = errors.New("shard count must be greater than zero")

	// ErrInvalidNatsURL is returned when a NATS component has no server url.
	ErrInvalidNatsURL = errors.New("nats server url is required")

	// ErrInvalidPublishSubject is returned when a response publisher has no subject.
	ErrInvalidPublishSubject = errors.New("publish subject is required")
)

// FatalError marks a broken invariant that cannot be patched around locally.
// Callers must propagate it to the top-level fatal handler instead of recovering.
type FatalError struct {
	reason string
	cause  error
	dump   string
}

// enforce compilation error
var _ error = (*FatalError)(nil)

// NewFatalError returns an instance of FatalError
func NewFatalError(reason string, cause error) *FatalError {
	return &FatalError{reason: reason, cause: cause}
}

// WithDump attaches a diagnostic dump to the fatal error
func (f *FatalError) WithDump(dump string) *FatalError {
	f.dump = dump
	return f
}

// Reason returns the broken invariant
func (f *FatalError) Reason() string {
	return f.reason
}

// Dump returns the diagnostic dump captured when the error was raised
func (f *FatalError) Dump() string {
	return f.dump
}

// Error implements the standard error interface
func (f *FatalError) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("fatal: %s: %v", f.reason, f.cause)
	}
	return "fatal: " + f.reason
}

func (f *FatalError) Unwrap() error {
	return f.cause
}

// IsFatal returns true when the error chain carries a FatalError
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// NewIllegalMonitorStateError wraps ErrIllegalMonitorState with the offending operation
func NewIllegalMonitorStateError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalMonitorState, fmt.Sprintf(format, args...))
}
