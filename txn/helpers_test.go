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
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/objcoord/objcoord/gtx"
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/store"
)

// recordingStages records stage signals instead of scheduling them
type recordingStages struct {
	mu             sync.Mutex
	lookups        int
	applyCompletes int
	commits        int
	recalls        int
	applied        []*ApplyContext
	cursor         int
}

var _ StageCoordinator = (*recordingStages)(nil)

func (s *recordingStages) RequestLookupStage() {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
}

func (s *recordingStages) RequestApplyCompleteStage() {
	s.mu.Lock()
	s.applyCompletes++
	s.mu.Unlock()
}

func (s *recordingStages) RequestCommitStage() {
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
}

func (s *recordingStages) RequestRecallAllStage() {
	s.mu.Lock()
	s.recalls++
	s.mu.Unlock()
}

func (s *recordingStages) AddToApplyStage(ctx *ApplyContext) {
	s.mu.Lock()
	s.applied = append(s.applied, ctx)
	s.mu.Unlock()
}

// takeApplied returns the apply contexts received since the last call
func (s *recordingStages) takeApplied() []*ApplyContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.applied[s.cursor:]
	s.cursor = len(s.applied)
	return out
}

func (s *recordingStages) appliedIDs() []object.ServerTransactionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]object.ServerTransactionID, 0, len(s.applied))
	for _, ctx := range s.applied {
		ids = append(ids, ctx.Txn.ID)
	}
	return ids
}

func (s *recordingStages) commitSignals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// fifoSequencer hands transactions out in submission order without holding any back
type fifoSequencer struct {
	queue []*LookupContext
}

func (f *fifoSequencer) AddLookupContexts(contexts []*LookupContext) {
	f.queue = append(f.queue, contexts...)
}

func (f *fifoSequencer) Next() *LookupContext {
	if len(f.queue) == 0 {
		return nil
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next
}

func (f *fifoSequencer) MakePending(*object.Transaction)   {}
func (f *fifoSequencer) MakeUnpending(*object.Transaction) {}

type fixture struct {
	coordinator *Coordinator
	stages      *recordingStages
	store       *store.Memory
	authority   *gtx.Memory
}

func newFixture(t *testing.T, objects int, opts ...Option) *fixture {
	t.Helper()
	memory := store.NewMemory()
	for i := 1; i <= objects; i++ {
		memory.Put(&object.ManagedObject{ID: object.ObjectID(i)})
	}
	stages := &recordingStages{}
	authority := gtx.NewMemory()
	opts = append([]Option{WithLogger(log.DiscardLogger)}, opts...)
	coordinator, err := NewCoordinator(memory, authority, stages, opts...)
	require.NoError(t, err)
	return &fixture{coordinator: coordinator, stages: stages, store: memory, authority: authority}
}

func newTxn(node object.NodeID, id object.TransactionID, oids ...object.ObjectID) *object.Transaction {
	return &object.Transaction{
		ID:        object.NewServerTransactionID(node, id),
		Source:    node,
		ObjectIDs: oids,
	}
}

func objectRange(from, to int) []object.ObjectID {
	ids := make([]object.ObjectID, 0, to-from+1)
	for i := from; i <= to; i++ {
		ids = append(ids, object.ObjectID(i))
	}
	return ids
}

// completeApplies acknowledges every transaction sent to apply since the last call
func (f *fixture) completeApplies(t *testing.T) {
	t.Helper()
	for _, ctx := range f.stages.takeApplied() {
		if ctx.NeedsApply {
			f.coordinator.ApplyComplete(ctx.Txn.ID)
		}
	}
	require.NoError(t, f.coordinator.ProcessApplyComplete())
}

// commitAll drains commit pending and releases the committed objects to the store
func (f *fixture) commitAll(t *testing.T) []*CommitBatch {
	t.Helper()
	var batches []*CommitBatch
	for {
		batch, err := f.coordinator.CommitBatch()
		require.NoError(t, err)
		if batch == nil {
			return batches
		}
		batches = append(batches, batch)
		require.NoError(t, f.store.Release(context.Background(), batch.Objects))
		f.authority.Commit(batch.TxnIDs...)
	}
}

// assertExclusive checks that every checked out object belongs to exactly one active grouping
func assertExclusive(t *testing.T, c *Coordinator) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	roots := make(map[*grouping]struct{})
	for id := range c.checkedOut {
		owner := c.owner(id)
		require.True(t, owner.active, "%s owned by inactive %s", id, owner)
		_, ok := owner.objects[id]
		require.True(t, ok, "%s missing from its owner %s", id, owner)
		roots[owner] = struct{}{}
	}
	for root := range roots {
		for id := range root.objects {
			require.Same(t, root, c.owner(id), "%s shared by two groupings", id)
		}
	}
}
