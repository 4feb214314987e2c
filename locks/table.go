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

// Package locks implements the distributed lock state machine: one state
// machine per resource, each behind its own mutex, with a greedy fast path
// that clients give up when they receive a recall.
package locks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/internal/validation"
	"github.com/objcoord/objcoord/log"
)

type shard struct {
	mu    sync.RWMutex
	locks map[ID]*lock
}

// Table is the registry of locks. Locks are created on first request and
// removed once they have no context left.
type Table struct {
	shards     []*shard
	shardCount int
	sink       Sink
	timer      Timer
	logger     log.Logger
}

// NewTable creates an instance of Table
func NewTable(sink Sink, opts ...Option) (*Table, error) {
	t := &Table{
		sink:       sink,
		shardCount: DefaultShardCount,
		logger:     log.DefaultLogger,
	}
	for _, opt := range opts {
		opt.Apply(t)
	}

	if err := validation.New(validation.FailFast()).
		AddValidator(validation.NewPositiveValidator(t.shardCount, gerrors.ErrInvalidShardCount)).
		Validate(); err != nil {
		return nil, err
	}

	t.logger = t.logger.With("component", "locks")
	if t.timer == nil {
		t.timer = NewQuartzTimer(t.logger)
	}

	t.shards = make([]*shard, t.shardCount)
	for i := range t.shards {
		t.shards[i] = &shard{locks: make(map[ID]*lock)}
	}
	return t, nil
}

// Start starts the timeout timer
func (t *Table) Start(ctx context.Context) {
	t.timer.Start(ctx)
}

// Stop stops the timeout timer. Pending timeouts are dropped.
func (t *Table) Stop(ctx context.Context) {
	t.timer.Stop(ctx)
}

// Lock requests the lock at the given level. The outcome is delivered to the sink.
func (t *Table) Lock(ctx context.Context, id ID, client ClientID, thread ThreadID, level Level) error {
	if !level.IsValid() {
		return gerrors.ErrInvalidLockLevel
	}
	return t.mutate(ctx, id, true, func(l *lock) error {
		return l.request(client, thread, level, Pending, 0)
	})
}

// TryLock requests the lock at the given level with a deadline. A request that
// cannot be granted at once is refused when timeout is not positive, otherwise
// it is refused when the timeout elapses.
func (t *Table) TryLock(ctx context.Context, id ID, client ClientID, thread ThreadID, level Level, timeout time.Duration) error {
	if !level.IsValid() {
		return gerrors.ErrInvalidLockLevel
	}
	return t.mutate(ctx, id, true, func(l *lock) error {
		return l.tryLock(client, thread, level, timeout)
	})
}

// Unlock releases a plain hold
func (t *Table) Unlock(ctx context.Context, id ID, client ClientID, thread ThreadID) error {
	return notHeld(id, t.mutate(ctx, id, false, func(l *lock) error {
		return l.unlock(client, thread)
	}))
}

// Wait turns a plain hold into a waiter, releasing the hold
func (t *Table) Wait(ctx context.Context, id ID, client ClientID, thread ThreadID, timeout time.Duration) error {
	return notHeld(id, t.mutate(ctx, id, false, func(l *lock) error {
		return l.wait(client, thread, timeout)
	}))
}

// Notify moves one waiter, or all of them, back to pending.
// It returns the number of waiters notified.
func (t *Table) Notify(ctx context.Context, id ID, client ClientID, thread ThreadID, all bool) (int, error) {
	var notified int
	err := t.mutate(ctx, id, false, func(l *lock) error {
		var err error
		notified, err = l.notify(client, thread, all)
		return err
	})
	return notified, notHeld(id, err)
}

// RecallCommit reconciles the contexts a greedy holder reports after a recall
func (t *Table) RecallCommit(ctx context.Context, id ID, client ClientID, contexts []Context) error {
	err := t.mutate(ctx, id, false, func(l *lock) error {
		return l.recallCommit(client, contexts)
	})
	if errors.Is(err, gerrors.ErrLockNotFound) {
		return gerrors.ErrNotGreedyHolder
	}
	return err
}

// ClearStateForNode removes every context of a departed client, lock by lock.
// It returns the number of contexts removed.
func (t *Table) ClearStateForNode(ctx context.Context, client ClientID) int {
	removed := 0
	for _, entry := range t.all() {
		_ = t.mutate(ctx, entry.id, false, func(l *lock) error {
			removed += l.clearStateForNode(client)
			return nil
		})
	}
	if removed > 0 {
		t.logger.Infof("cleared %d lock contexts of %s", removed, client)
	}
	return removed
}

// Snapshot returns a copy of the lock state
func (t *Table) Snapshot(id ID) (*Snapshot, bool) {
	l, ok := t.get(id)
	if !ok {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.removed.Load() {
		return nil, false
	}
	return l.snapshot(), true
}

// Locks returns the ids of the locks currently in the table
func (t *Table) Locks() []ID {
	locks := t.all()
	ids := make([]ID, 0, len(locks))
	for _, l := range locks {
		ids = append(ids, l.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of locks in the table
func (t *Table) Len() int {
	count := 0
	for _, s := range t.shards {
		s.mu.RLock()
		count += len(s.locks)
		s.mu.RUnlock()
	}
	return count
}

// mutate runs fn under the lock mutex, delivers the produced responses once
// the mutex is released and drops the lock when it has no context left.
func (t *Table) mutate(ctx context.Context, id ID, create bool, fn func(*lock) error) error {
	for {
		var l *lock
		if create {
			l = t.getOrCreate(id)
		} else {
			var ok bool
			if l, ok = t.get(id); !ok {
				return gerrors.ErrLockNotFound
			}
		}

		l.mu.Lock()
		if l.removed.Load() {
			l.mu.Unlock()
			if !create {
				return gerrors.ErrLockNotFound
			}
			continue
		}

		err := fn(l)
		responses := l.flush()
		empty := l.isEmpty()
		if empty {
			l.removed.Store(true)
		}
		l.mu.Unlock()

		if empty {
			t.delete(l)
		}
		t.deliver(ctx, responses)
		return err
	}
}

// notHeld turns a missing lock into a monitor state error
func notHeld(id ID, err error) error {
	if errors.Is(err, gerrors.ErrLockNotFound) {
		return gerrors.NewIllegalMonitorStateError("%s is not held", id)
	}
	return err
}

func (t *Table) expire(l *lock, key string) {
	l.mu.Lock()
	if l.removed.Load() {
		l.mu.Unlock()
		return
	}
	l.expire(key)
	responses := l.flush()
	empty := l.isEmpty()
	if empty {
		l.removed.Store(true)
	}
	l.mu.Unlock()

	if empty {
		t.delete(l)
	}
	t.deliver(context.Background(), responses)
}

func (t *Table) deliver(ctx context.Context, responses []*Response) {
	if len(responses) == 0 {
		return
	}
	if err := t.sink.Deliver(ctx, responses...); err != nil {
		t.logger.Errorf("failed to deliver %d lock responses: %v", len(responses), err)
	}
}

func (t *Table) shardFor(id ID) *shard {
	return t.shards[xxh3.HashString(string(id))%uint64(len(t.shards))]
}

func (t *Table) get(id ID) (*lock, bool) {
	s := t.shardFor(id)
	s.mu.RLock()
	l, ok := s.locks[id]
	s.mu.RUnlock()
	return l, ok
}

func (t *Table) getOrCreate(id ID) *lock {
	s := t.shardFor(id)
	s.mu.RLock()
	l, ok := s.locks[id]
	s.mu.RUnlock()
	if ok && !l.removed.Load() {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok && !l.removed.Load() {
		return l
	}
	l = newLock(id, t)
	s.locks[id] = l
	return l
}

func (t *Table) delete(l *lock) {
	s := t.shardFor(l.id)
	s.mu.Lock()
	if s.locks[l.id] == l {
		delete(s.locks, l.id)
	}
	s.mu.Unlock()
}

func (t *Table) all() []*lock {
	var locks []*lock
	for _, s := range t.shards {
		s.mu.RLock()
		for _, l := range s.locks {
			locks = append(locks, l)
		}
		s.mu.RUnlock()
	}
	return locks
}
