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

package txn

import (
	"sync"

	"github.com/objcoord/objcoord/object"
)

// LookupContext carries a submitted transaction to the lookup stage.
type LookupContext struct {
	Txn *object.Transaction
	// InitiateApply is false for transactions already applied before a restart
	InitiateApply bool
}

// Sequencer orders submitted transactions for the lookup stage and tracks the
// transactions the coordinator reports as pending.
type Sequencer interface {
	// AddLookupContexts queues the contexts in submission order
	AddLookupContexts(contexts []*LookupContext)
	// Next returns the next context ready for lookup or nil when none is ready
	Next() *LookupContext
	// MakePending records a transaction blocked on object availability
	MakePending(txn *object.Transaction)
	// MakeUnpending releases a transaction previously reported as pending
	MakeUnpending(txn *object.Transaction)
}

// sequencer is the default Sequencer. A queued transaction touching an object of
// a pending transaction, or of an earlier queued transaction held back for that
// reason, is held back as well, which keeps per-object submission order.
type sequencer struct {
	mu      sync.Mutex
	queue   []*LookupContext
	blocked map[object.ObjectID]int
}

// enforce compilation error
var _ Sequencer = (*sequencer)(nil)

// NewSequencer creates the default Sequencer
func NewSequencer() Sequencer {
	return &sequencer{blocked: make(map[object.ObjectID]int)}
}

func (s *sequencer) AddLookupContexts(contexts []*LookupContext) {
	s.mu.Lock()
	s.queue = append(s.queue, contexts...)
	s.mu.Unlock()
}

func (s *sequencer) Next() *LookupContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	var held map[object.ObjectID]struct{}
	for i, lc := range s.queue {
		if !s.isBlocked(lc.Txn, held) {
			copy(s.queue[i:], s.queue[i+1:])
			s.queue[len(s.queue)-1] = nil
			s.queue = s.queue[:len(s.queue)-1]
			return lc
		}
		if held == nil {
			held = make(map[object.ObjectID]struct{})
		}
		for _, id := range lc.Txn.ObjectIDs {
			held[id] = struct{}{}
		}
	}
	return nil
}

func (s *sequencer) MakePending(txn *object.Transaction) {
	s.mu.Lock()
	for _, id := range txn.ObjectIDs {
		s.blocked[id]++
	}
	s.mu.Unlock()
}

func (s *sequencer) MakeUnpending(txn *object.Transaction) {
	s.mu.Lock()
	for _, id := range txn.ObjectIDs {
		if s.blocked[id] <= 1 {
			delete(s.blocked, id)
			continue
		}
		s.blocked[id]--
	}
	s.mu.Unlock()
}

func (s *sequencer) isBlocked(txn *object.Transaction, held map[object.ObjectID]struct{}) bool {
	for _, id := range txn.ObjectIDs {
		if s.blocked[id] > 0 {
			return true
		}
		if _, ok := held[id]; ok {
			return true
		}
	}
	return false
}
