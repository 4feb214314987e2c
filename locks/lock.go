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

package locks

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	gerrors "github.com/objcoord/objcoord/errors"
)

type lockContext struct {
	client   ClientID
	thread   ThreadID
	level    Level
	typ      ContextType
	timeout  time.Duration
	timerKey string
}

func (c *lockContext) isPending() bool {
	return c.typ == Pending || c.typ == TryPending
}

func (c *lockContext) isHolder() bool {
	return c.typ == Holder || c.typ == GreedyHolder
}

func (c *lockContext) toContext() Context {
	return Context{Client: c.client, Thread: c.thread, Level: c.level, Type: c.typ, Timeout: c.timeout}
}

// lock is the state machine of one resource. Contexts are kept in order:
// greedy holders first, then plain holders, then pending and waiting
// contexts in arrival order. Responses produced while mu is held are
// buffered in out and delivered by the table after mu is released.
type lock struct {
	mu       sync.Mutex
	id       ID
	contexts []*lockContext
	recalled bool
	removed  *atomic.Bool
	out      []*Response
	table    *Table
}

func newLock(id ID, table *Table) *lock {
	return &lock{
		id:      id,
		removed: atomic.NewBool(false),
		table:   table,
	}
}

func (l *lock) request(client ClientID, thread ThreadID, level Level, typ ContextType, timeout time.Duration) error {
	holder := l.greedyHolder(client)
	if canAwardOnClient(level, holder) {
		return nil
	}

	if l.recalled {
		// greedy holders report their queued requests in their recall commit
		if holder == nil {
			return l.queue(client, thread, level, typ, timeout)
		}
		return nil
	}

	if _, existing := l.find(client, thread); existing != nil {
		return gerrors.ErrDuplicateLockContext
	}

	switch level {
	case Write:
		if !l.hasHolders() {
			request := &lockContext{client: client, thread: thread, level: level}
			if l.hasWaiters() {
				l.award(request, Holder, true)
			} else {
				l.awardGreedily(request)
			}
			return nil
		}
	case Read:
		if !l.hasHolders() || (l.hasOnlyReadHolders() && !l.hasPendingWrites()) {
			l.awardGreedily(&lockContext{client: client, thread: thread, level: level})
			return nil
		}
	}

	if l.hasGreedyHolders() {
		l.recall(level)
	}
	return l.queue(client, thread, level, typ, timeout)
}

func (l *lock) tryLock(client ClientID, thread ThreadID, level Level, timeout time.Duration) error {
	if timeout <= 0 && !l.canAwardRequest(client, level) {
		if l.hasGreedyHolders() && l.greedyHolder(client) == nil {
			l.recall(level)
		}
		l.respond(CannotAward, client, thread, level)
		return nil
	}
	return l.request(client, thread, level, TryPending, timeout)
}

func (l *lock) unlock(client ClientID, thread ThreadID) error {
	index, context := l.find(client, thread)
	if context == nil || context.typ != Holder {
		return gerrors.NewIllegalMonitorStateError("%s/%s does not hold %s", client, thread, l.id)
	}
	l.removeAt(index)
	l.afterRelease()
	return nil
}

func (l *lock) wait(client ClientID, thread ThreadID, timeout time.Duration) error {
	index, context := l.find(client, thread)
	if context == nil || context.typ != Holder {
		return gerrors.NewIllegalMonitorStateError("%s/%s cannot wait on %s without holding it", client, thread, l.id)
	}
	l.removeAt(index)
	context.typ = Waiter
	context.timeout = timeout
	l.addWaiter(context)
	l.afterRelease()
	return nil
}

func (l *lock) notify(client ClientID, thread ThreadID, all bool) (int, error) {
	_, context := l.find(client, thread)
	if (context == nil || context.typ != Holder) && l.greedyHolder(client) == nil {
		return 0, gerrors.NewIllegalMonitorStateError("%s/%s cannot notify on %s without holding it", client, thread, l.id)
	}

	var waiters []*lockContext
	for _, c := range l.contexts {
		if c.typ == Waiter {
			waiters = append(waiters, c)
			if !all {
				break
			}
		}
	}
	for _, waiter := range waiters {
		l.changeWaiterToPending(waiter)
	}
	return len(waiters), nil
}

func (l *lock) recallCommit(client ClientID, reported []Context) error {
	index := -1
	for i, c := range l.contexts {
		if c.typ != GreedyHolder {
			break
		}
		if c.client == client {
			index = i
			break
		}
	}
	if index < 0 {
		return gerrors.ErrNotGreedyHolder
	}
	if err := l.validateReported(client, reported); err != nil {
		return err
	}

	l.removeAt(index)
	l.dropUnreported(client, reported)
	for _, rc := range reported {
		if i, existing := l.find(client, rc.Thread); existing != nil {
			// a request queued while the client held the lock greedily keeps its place
			if existing.isPending() && (rc.Type == Pending || (rc.Type == TryPending && rc.Timeout > 0)) {
				existing.level = rc.Level
				if existing.typ != rc.Type {
					l.cancelTimer(existing)
					existing.typ = rc.Type
					existing.timeout = rc.Timeout
					l.scheduleTimeout(existing)
				}
				continue
			}
			l.cancelTimer(existing)
			l.removeAt(i)
		}

		context := &lockContext{client: client, thread: rc.Thread, level: rc.Level}
		switch rc.Type {
		case Holder:
			l.award(context, Holder, false)
		case Pending:
			_ = l.queue(client, rc.Thread, rc.Level, Pending, 0)
		case TryPending:
			if rc.Timeout <= 0 {
				l.respond(CannotAward, client, rc.Thread, rc.Level)
				continue
			}
			_ = l.queue(client, rc.Thread, rc.Level, TryPending, rc.Timeout)
		case Waiter:
			context.typ = Waiter
			context.timeout = rc.Timeout
			l.addWaiter(context)
		}
	}

	if !l.hasGreedyHolders() {
		l.recalled = false
	} else if !l.recalled && l.hasPendingRequests() {
		l.recall(Write)
	}
	l.processPendingRequests()
	return nil
}

func (l *lock) validateReported(client ClientID, reported []Context) error {
	seen := make(map[ThreadID]struct{}, len(reported))
	for _, rc := range reported {
		if !rc.Level.IsValid() {
			return gerrors.ErrInvalidLockLevel
		}
		switch rc.Type {
		case Holder, Pending, TryPending, Waiter:
		default:
			return gerrors.NewIllegalMonitorStateError("%s context reported by %s in recall commit of %s", rc.Type, client, l.id)
		}
		if _, ok := seen[rc.Thread]; ok {
			return gerrors.ErrDuplicateLockContext
		}
		seen[rc.Thread] = struct{}{}
	}
	return nil
}

// dropUnreported removes the contexts of the client that its recall commit
// does not mention
func (l *lock) dropUnreported(client ClientID, reported []Context) {
	threads := make(map[ThreadID]struct{}, len(reported))
	for _, rc := range reported {
		threads[rc.Thread] = struct{}{}
	}
	for i := len(l.contexts) - 1; i >= 0; i-- {
		c := l.contexts[i]
		if c.client != client {
			continue
		}
		if _, ok := threads[c.thread]; ok {
			continue
		}
		l.cancelTimer(c)
		l.removeAt(i)
	}
}

func (l *lock) clearStateForNode(client ClientID) int {
	kept := l.contexts[:0]
	removed := 0
	for _, c := range l.contexts {
		if c.client == client {
			l.cancelTimer(c)
			removed++
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(l.contexts); i++ {
		l.contexts[i] = nil
	}
	l.contexts = kept
	if removed > 0 {
		l.afterRelease()
	}
	return removed
}

// expire handles a fired timeout. Stale keys are ignored.
func (l *lock) expire(key string) {
	for _, c := range l.contexts {
		if c.timerKey != key {
			continue
		}
		c.timerKey = ""
		switch c.typ {
		case TryPending:
			l.remove(c)
			l.respond(CannotAward, c.client, c.thread, c.level)
		case Waiter:
			l.changeWaiterToPending(c)
			l.respond(WaitTimeout, c.client, c.thread, c.level)
		}
		l.processPendingRequests()
		return
	}
}

func (l *lock) afterRelease() {
	if !l.hasGreedyHolders() {
		l.recalled = false
	}
	l.processPendingRequests()
}

func (l *lock) processPendingRequests() {
	if l.recalled {
		return
	}

	request := l.nextRequestIfCanAward()
	if request == nil {
		return
	}

	switch request.level {
	case Read:
		l.awardAllReads(request)
	case Write:
		if l.hasWaiters() {
			l.award(request, Holder, true)
			return
		}
		l.awardGreedily(request)
		if l.hasPendingRequestsFromOtherClients(request.client) {
			l.recall(Write)
		}
	}
}

func (l *lock) nextRequestIfCanAward() *lockContext {
	for i, c := range l.contexts {
		if !c.isPending() {
			continue
		}
		switch c.level {
		case Write:
			if l.hasHolders() {
				return nil
			}
		case Read:
			if l.hasWriteHolder() {
				return nil
			}
		}
		l.removeAt(i)
		return c
	}
	return nil
}

// awardAllReads grants the request and every pending read queued before the
// first pending write, then recalls the new greedy readers on behalf of that write.
func (l *lock) awardAllReads(request *lockContext) {
	reads := []*lockContext{request}
	kept := l.contexts[:0]
	pendingWrite := false
	for _, c := range l.contexts {
		if c.isPending() {
			if c.level == Write {
				pendingWrite = true
			} else if !pendingWrite {
				reads = append(reads, c)
				continue
			}
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(l.contexts); i++ {
		l.contexts[i] = nil
	}
	l.contexts = kept

	for _, c := range reads {
		l.awardGreedily(c)
	}
	if pendingWrite {
		l.recall(Write)
	}
}

func (l *lock) awardGreedily(request *lockContext) {
	l.cancelTimer(request)
	if holder := l.greedyHolder(request.client); holder != nil {
		if canAwardOnClient(request.level, holder) {
			return
		}
		l.remove(holder)
	}

	// a greedy hold covers every plain hold of the same client
	for i := len(l.contexts) - 1; i >= 0; i-- {
		c := l.contexts[i]
		if c.typ == Holder && c.client == request.client {
			l.removeAt(i)
		}
	}

	request.thread = GreedyThreadID
	l.award(request, GreedyHolder, true)
}

func (l *lock) award(request *lockContext, typ ContextType, respond bool) {
	l.cancelTimer(request)
	request.typ = typ
	request.timeout = 0

	if typ == GreedyHolder {
		l.contexts = append(l.contexts, nil)
		copy(l.contexts[1:], l.contexts)
		l.contexts[0] = request
	} else {
		at := 0
		for at < len(l.contexts) && l.contexts[at].typ == GreedyHolder {
			at++
		}
		l.insertAt(at, request)
	}

	if respond {
		l.respond(Award, request.client, request.thread, request.level)
	}
}

func (l *lock) queue(client ClientID, thread ThreadID, level Level, typ ContextType, timeout time.Duration) error {
	if _, existing := l.find(client, thread); existing != nil {
		return gerrors.ErrDuplicateLockContext
	}
	context := &lockContext{client: client, thread: thread, level: level, typ: typ}
	if typ == TryPending {
		context.timeout = timeout
		l.scheduleTimeout(context)
	}
	l.contexts = append(l.contexts, context)
	return nil
}

func (l *lock) addWaiter(waiter *lockContext) {
	l.contexts = append(l.contexts, waiter)
	l.scheduleTimeout(waiter)
}

func (l *lock) changeWaiterToPending(waiter *lockContext) {
	l.cancelTimer(waiter)
	l.remove(waiter)
	waiter.typ = Pending
	waiter.timeout = 0
	l.contexts = append(l.contexts, waiter)

	if l.hasGreedyHolders() {
		l.recall(waiter.level)
	}
}

func (l *lock) recall(level Level) {
	if l.recalled {
		return
	}
	for _, c := range l.contexts {
		if c.typ != GreedyHolder {
			break
		}
		l.respond(Recall, c.client, GreedyThreadID, level)
		l.recalled = true
	}
}

func (l *lock) respond(typ ResponseType, client ClientID, thread ThreadID, level Level) {
	l.out = append(l.out, &Response{Type: typ, Lock: l.id, Client: client, Thread: thread, Level: level})
}

func (l *lock) flush() []*Response {
	out := l.out
	l.out = nil
	return out
}

func (l *lock) scheduleTimeout(context *lockContext) {
	if context.timeout <= 0 {
		return
	}
	key := string(l.id) + "/" + uuid.NewString()
	if err := l.table.timer.Schedule(key, context.timeout, func() { l.table.expire(l, key) }); err != nil {
		l.table.logger.Warnf("failed to schedule timeout of %s on %s: %v", context.toContext(), l.id, err)
		return
	}
	context.timerKey = key
}

func (l *lock) cancelTimer(context *lockContext) {
	if context.timerKey == "" {
		return
	}
	l.table.timer.Cancel(context.timerKey)
	context.timerKey = ""
}

func (l *lock) snapshot() *Snapshot {
	contexts := make([]Context, 0, len(l.contexts))
	for _, c := range l.contexts {
		contexts = append(contexts, c.toContext())
	}
	return &Snapshot{ID: l.id, Recalled: l.recalled, Contexts: contexts}
}

func (l *lock) isEmpty() bool {
	return len(l.contexts) == 0
}

func (l *lock) find(client ClientID, thread ThreadID) (int, *lockContext) {
	for i, c := range l.contexts {
		if c.client == client && c.thread == thread {
			return i, c
		}
	}
	return -1, nil
}

func (l *lock) greedyHolder(client ClientID) *lockContext {
	for _, c := range l.contexts {
		if c.typ != GreedyHolder {
			return nil
		}
		if c.client == client {
			return c
		}
	}
	return nil
}

func (l *lock) hasGreedyHolders() bool {
	return len(l.contexts) > 0 && l.contexts[0].typ == GreedyHolder
}

func (l *lock) hasHolders() bool {
	return len(l.contexts) > 0 && l.contexts[0].isHolder()
}

func (l *lock) hasWriteHolder() bool {
	for _, c := range l.contexts {
		if !c.isHolder() {
			return false
		}
		if c.level == Write {
			return true
		}
	}
	return false
}

func (l *lock) hasOnlyReadHolders() bool {
	return !l.hasWriteHolder()
}

func (l *lock) hasPendingWrites() bool {
	for _, c := range l.contexts {
		if c.isPending() && c.level == Write {
			return true
		}
	}
	return false
}

func (l *lock) hasPendingRequests() bool {
	for _, c := range l.contexts {
		if c.isPending() {
			return true
		}
	}
	return false
}

func (l *lock) hasPendingRequestsFromOtherClients(client ClientID) bool {
	for _, c := range l.contexts {
		if c.isPending() && c.client != client {
			return true
		}
	}
	return false
}

func (l *lock) hasWaiters() bool {
	for _, c := range l.contexts {
		if c.typ == Waiter {
			return true
		}
	}
	return false
}

func (l *lock) canAwardRequest(client ClientID, level Level) bool {
	if canAwardOnClient(level, l.greedyHolder(client)) {
		return true
	}
	if l.recalled {
		return false
	}
	switch level {
	case Write:
		return !l.hasHolders()
	case Read:
		return !l.hasHolders() || (l.hasOnlyReadHolders() && !l.hasPendingWrites())
	}
	return false
}

func (l *lock) insertAt(index int, context *lockContext) {
	l.contexts = append(l.contexts, nil)
	copy(l.contexts[index+1:], l.contexts[index:])
	l.contexts[index] = context
}

func (l *lock) removeAt(index int) {
	copy(l.contexts[index:], l.contexts[index+1:])
	l.contexts[len(l.contexts)-1] = nil
	l.contexts = l.contexts[:len(l.contexts)-1]
}

func (l *lock) remove(context *lockContext) {
	for i, c := range l.contexts {
		if c == context {
			l.removeAt(i)
			return
		}
	}
}

func canAwardOnClient(level Level, holder *lockContext) bool {
	return holder != nil && (holder.level == Write || level == Read)
}
