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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/future"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/store"
)

func TestCoordinator(t *testing.T) {
	ctx := context.Background()

	t.Run("With lookup, apply and commit", func(t *testing.T) {
		f := newFixture(t, 3)
		txn := newTxn("node-1", 1, 1, 2, 4)
		txn.NewObjectIDs = []object.ObjectID{4}
		txn.NewRoots = map[string]object.ObjectID{"root": 4}

		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{txn}))
		require.NoError(t, f.coordinator.RunLookup())

		applied := f.stages.takeApplied()
		require.Len(t, applied, 1)
		assert.True(t, applied[0].NeedsApply)
		assert.Len(t, applied[0].Objects, 3)
		assert.True(t, applied[0].Objects[4].IsNew)

		diagnostics := f.coordinator.Diagnostics()
		assert.Equal(t, 3, diagnostics.CheckedOut)
		assert.Equal(t, 1, diagnostics.ApplyPending)

		f.coordinator.ApplyComplete(txn.ID)
		require.NoError(t, f.coordinator.ProcessApplyComplete())
		assert.Equal(t, 1, f.coordinator.Diagnostics().CommitPending)

		batch, err := f.coordinator.CommitBatch()
		require.NoError(t, err)
		require.NotNil(t, batch)
		assert.Equal(t, []object.ServerTransactionID{txn.ID}, batch.TxnIDs)
		assert.Len(t, batch.Objects, 3)
		assert.Equal(t, object.ObjectID(4), batch.NewRoots["root"])
		assert.Equal(t, Diagnostics{}, f.coordinator.Diagnostics())

		batch, err = f.coordinator.CommitBatch()
		require.NoError(t, err)
		assert.Nil(t, batch)
	})

	t.Run("With already applied transaction", func(t *testing.T) {
		f := newFixture(t, 1)
		txn := newTxn("node-1", 1, 1)
		f.authority.MarkApplied(txn.ID)

		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{txn}))
		require.NoError(t, f.coordinator.RunLookup())

		applied := f.stages.takeApplied()
		require.Len(t, applied, 1)
		assert.False(t, applied[0].NeedsApply)
		assert.Empty(t, applied[0].Objects)
		assert.False(t, f.store.IsCheckedOut(1))
		assert.Equal(t, Diagnostics{}, f.coordinator.Diagnostics())
	})

	t.Run("With grouping merge", func(t *testing.T) {
		f := newFixture(t, 3)
		t1 := newTxn("node-1", 1, 1, 2)
		t2 := newTxn("node-2", 1, 3)
		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{t1, t2}))
		require.NoError(t, f.coordinator.RunLookup())
		f.completeApplies(t)
		require.Equal(t, 2, f.coordinator.Diagnostics().CommitPending)

		g1 := f.coordinator.owner(1)
		g2 := f.coordinator.owner(3)
		require.NotSame(t, g1, g2)

		t3 := newTxn("node-3", 1, 1, 2, 3)
		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{t3}))
		require.NoError(t, f.coordinator.RunLookup())
		assertExclusive(t, f.coordinator)

		merged := f.coordinator.owner(1)
		assert.Same(t, merged, f.coordinator.owner(2))
		assert.Same(t, merged, f.coordinator.owner(3))
		assert.Equal(t, t3.ID, merged.prime)
		assert.Len(t, merged.objects, 3)
		assert.ElementsMatch(t, []object.ServerTransactionID{t1.ID, t2.ID, t3.ID}, merged.members)
		assert.False(t, g1.active)
		assert.False(t, g2.active)
		assert.False(t, f.coordinator.commitPending.Contains(t1.ID))
		assert.False(t, f.coordinator.commitPending.Contains(t2.ID))
		assert.Zero(t, f.coordinator.Diagnostics().CommitPending)

		f.completeApplies(t)
		batches := f.commitAll(t)
		require.Len(t, batches, 1)
		assert.ElementsMatch(t, []object.ServerTransactionID{t1.ID, t2.ID, t3.ID}, batches[0].TxnIDs)
		assert.Len(t, batches[0].Objects, 3)
	})

	t.Run("With commit batching", func(t *testing.T) {
		f := newFixture(t, 120, WithMaxCommitSize(50))
		txns := []*object.Transaction{
			newTxn("node-1", 1, objectRange(1, 40)...),
			newTxn("node-1", 2, objectRange(41, 80)...),
			newTxn("node-1", 3, objectRange(81, 120)...),
		}
		require.NoError(t, f.coordinator.Submit(ctx, txns))
		require.NoError(t, f.coordinator.RunLookup())
		f.completeApplies(t)
		require.Equal(t, 3, f.coordinator.Diagnostics().CommitPending)

		signals := f.stages.commitSignals()
		for i, txn := range txns {
			batch, err := f.coordinator.CommitBatch()
			require.NoError(t, err)
			require.NotNil(t, batch)
			assert.LessOrEqual(t, len(batch.Objects), 50)
			assert.Len(t, batch.Objects, 40)
			assert.Equal(t, []object.ServerTransactionID{txn.ID}, batch.TxnIDs)
			if i < len(txns)-1 {
				assert.Equal(t, signals+i+1, f.stages.commitSignals(), "commit stage must be re-signaled")
			}
		}
		assert.Equal(t, signals+2, f.stages.commitSignals())
		assert.Zero(t, f.coordinator.Diagnostics().CheckedOut)
	})

	t.Run("With oversized grouping committed alone", func(t *testing.T) {
		f := newFixture(t, 10, WithMaxCommitSize(4))
		txn := newTxn("node-1", 1, objectRange(1, 10)...)
		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{txn}))
		require.NoError(t, f.coordinator.RunLookup())
		f.completeApplies(t)
		batches := f.commitAll(t)
		require.Len(t, batches, 1)
		assert.Len(t, batches[0].Objects, 10)
	})

	t.Run("With pending order preserved", func(t *testing.T) {
		f := newFixture(t, 3)
		external := future.NewPromise[*store.LookupResult]()
		require.True(t, f.store.Lookup("external", []object.ObjectID{1, 2}, external))
		held, _ := external.Future().Result()

		t1 := newTxn("node-1", 1, 1)
		t2 := newTxn("node-1", 2, 2)
		t3 := newTxn("node-1", 3, 3)
		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{t1, t2, t3}))
		require.NoError(t, f.coordinator.RunLookup())
		assert.Equal(t, []object.ServerTransactionID{t3.ID}, f.stages.appliedIDs())
		assert.Equal(t, 2, f.coordinator.Diagnostics().PendingTransactions)
		assert.Equal(t, 2, f.coordinator.Diagnostics().PendingObjectRequests)

		f.completeApplies(t)
		batches := f.commitAll(t)
		require.Len(t, batches, 1)
		assert.Equal(t, []object.ServerTransactionID{t3.ID}, batches[0].TxnIDs)

		objects := []*object.ManagedObject{held.Success().Objects[2], held.Success().Objects[1]}
		require.NoError(t, f.store.ReleaseAllReadOnly(ctx, objects))
		require.NoError(t, f.coordinator.RunLookup())

		assert.Equal(t, []object.ServerTransactionID{t3.ID, t1.ID, t2.ID}, f.stages.appliedIDs())
		assert.Zero(t, f.coordinator.Diagnostics().PendingTransactions)
		assert.Zero(t, f.coordinator.Diagnostics().PendingObjectRequests)
		assertExclusive(t, f.coordinator)
	})

	t.Run("With grouping limit reached", func(t *testing.T) {
		f := newFixture(t, 1, WithMaxTxnsPerGrouping(1))
		t1 := newTxn("node-1", 1, 1)
		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{t1}))
		require.NoError(t, f.coordinator.RunLookup())

		t2 := newTxn("node-2", 1, 1)
		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{t2}))
		require.NoError(t, f.coordinator.RunLookup())
		assert.Equal(t, []object.ServerTransactionID{t1.ID}, f.stages.appliedIDs())
		assert.Equal(t, 1, f.coordinator.Diagnostics().PendingTransactions)

		f.completeApplies(t)
		batches := f.commitAll(t)
		require.Len(t, batches, 1)
		assert.Equal(t, []object.ServerTransactionID{t1.ID}, batches[0].TxnIDs)

		require.NoError(t, f.coordinator.RunLookup())
		assert.Equal(t, []object.ServerTransactionID{t1.ID, t2.ID}, f.stages.appliedIDs())
		f.completeApplies(t)
		batches = f.commitAll(t)
		require.Len(t, batches, 1)
		assert.Equal(t, []object.ServerTransactionID{t2.ID}, batches[0].TxnIDs)
	})

	t.Run("With recall of lookup only groupings", func(t *testing.T) {
		f := newFixture(t, 2, WithSequencer(&fifoSequencer{}))
		external := future.NewPromise[*store.LookupResult]()
		require.True(t, f.store.Lookup("external", []object.ObjectID{2}, external))

		t0 := newTxn("node-1", 1, 2)
		t1 := newTxn("node-1", 2, 1, 2)
		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{t0, t1}))
		require.NoError(t, f.coordinator.RunLookup())

		diagnostics := f.coordinator.Diagnostics()
		assert.Equal(t, 2, diagnostics.PendingTransactions)
		assert.Equal(t, 1, diagnostics.CheckedOut)
		assert.True(t, f.store.IsCheckedOut(1))

		f.coordinator.RecallAll()
		assert.Equal(t, 1, f.stages.recalls)
		require.NoError(t, f.coordinator.Recall(ctx, true))
		assert.Zero(t, f.coordinator.Diagnostics().CheckedOut)
		assert.False(t, f.store.IsCheckedOut(1))

		held, _ := external.Future().Result()
		require.NoError(t, f.store.ReleaseAllReadOnly(ctx, []*object.ManagedObject{held.Success().Objects[2]}))
		require.NoError(t, f.coordinator.RunLookup())
		assert.Equal(t, []object.ServerTransactionID{t0.ID, t1.ID}, f.stages.appliedIDs())
		assert.Same(t, f.coordinator.owner(1), f.coordinator.owner(2))
		assertExclusive(t, f.coordinator)

		f.completeApplies(t)
		batches := f.commitAll(t)
		require.Len(t, batches, 1)
		assert.ElementsMatch(t, []object.ServerTransactionID{t0.ID, t1.ID}, batches[0].TxnIDs)
	})

	t.Run("With recall keeping transaction groupings", func(t *testing.T) {
		f := newFixture(t, 1)
		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{newTxn("node-1", 1, 1)}))
		require.NoError(t, f.coordinator.RunLookup())
		require.NoError(t, f.coordinator.Recall(ctx, true))
		assert.Equal(t, 1, f.coordinator.Diagnostics().CheckedOut)
		assert.True(t, f.store.IsCheckedOut(1))
	})
}

func TestCoordinatorExclusivity(t *testing.T) {
	ctx := context.Background()
	const objects, total = 30, 300
	f := newFixture(t, objects, WithMaxTxnsPerGrouping(5), WithMaxCommitSize(12))
	random := rand.New(rand.NewSource(42))

	committed := make(map[object.ServerTransactionID]struct{}, total)
	submitted := 0
	for round := 0; round < 1000 && len(committed) < total; round++ {
		if submitted < total {
			batch := make([]*object.Transaction, 0, 10)
			for i := 0; i < 10 && submitted < total; i++ {
				submitted++
				seen := object.NewIDSet()
				for j := 0; j < 1+random.Intn(4); j++ {
					seen.Add(object.ObjectID(1 + random.Intn(objects)))
				}
				batch = append(batch, newTxn("node-1", object.TransactionID(submitted), sortedIDs(seen)...))
			}
			require.NoError(t, f.coordinator.Submit(ctx, batch))
		}

		require.NoError(t, f.coordinator.RunLookup())
		assertExclusive(t, f.coordinator)
		f.completeApplies(t)
		assertExclusive(t, f.coordinator)
		for _, batch := range f.commitAll(t) {
			for _, id := range batch.TxnIDs {
				_, dup := committed[id]
				require.False(t, dup, "%s committed twice", id)
				committed[id] = struct{}{}
			}
		}
		assertExclusive(t, f.coordinator)
	}

	assert.Len(t, committed, total)
	assert.Equal(t, Diagnostics{}, f.coordinator.Diagnostics())
}

func TestCoordinatorFatal(t *testing.T) {
	ctx := context.Background()

	t.Run("With unknown apply complete", func(t *testing.T) {
		f := newFixture(t, 0)
		f.coordinator.ApplyComplete(object.NewServerTransactionID("node-1", 99))
		err := f.coordinator.ProcessApplyComplete()
		require.Error(t, err)
		require.True(t, gerrors.IsFatal(err))
		var fatal *gerrors.FatalError
		require.ErrorAs(t, err, &fatal)
		assert.Contains(t, fatal.Dump(), "coordinator:")
	})
	t.Run("With prefetch failure", func(t *testing.T) {
		f := newFixture(t, 1)
		require.NoError(t, f.store.Close())
		err := f.coordinator.Submit(ctx, []*object.Transaction{newTxn("node-1", 1, 1)})
		require.True(t, gerrors.IsFatal(err))
		var fatal *gerrors.FatalError
		require.ErrorAs(t, err, &fatal)
		assert.Contains(t, fatal.Dump(), "low watermark=1")
		assert.Contains(t, fatal.Dump(), "txn=txn:node-1:1")
	})
	t.Run("With lookup of non-existent objects", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, f.coordinator.Submit(ctx, []*object.Transaction{newTxn("node-1", 1, 7)}))
		err := f.coordinator.RunLookup()
		require.True(t, gerrors.IsFatal(err))
		assert.Contains(t, err.Error(), "lookup for non-existent objects")
	})
	t.Run("With duplicate prime in commit pending", func(t *testing.T) {
		f := newFixture(t, 0)
		prime := object.NewServerTransactionID("node-1", 1)
		g := newTxnGrouping(prime)
		g.applyCount = 1
		f.coordinator.applyPending[prime] = g
		require.True(t, f.coordinator.commitPending.PutIfAbsent(prime, g))

		f.coordinator.ApplyComplete(prime)
		err := f.coordinator.ProcessApplyComplete()
		require.True(t, gerrors.IsFatal(err))
		var fatal *gerrors.FatalError
		require.ErrorAs(t, err, &fatal)
		assert.Equal(t, "duplicate prime transaction in commit pending", fatal.Reason())
		assert.Contains(t, fatal.Dump(), "checkedOut=0 applyPending=0 commitPending=1")
	})
	t.Run("With duplicate grouping entry on lookup", func(t *testing.T) {
		f := newFixture(t, 0)
		obj := &object.ManagedObject{ID: 1}
		owned := map[object.ObjectID]*object.ManagedObject{1: obj}
		f.coordinator.checkedOut[1] = newLookupGrouping(owned)

		request := newLookupRequest(newTxn("node-1", 1, 1), []object.ObjectID{1})
		request.promise.Success(&store.LookupResult{Objects: map[object.ObjectID]*object.ManagedObject{1: obj}})
		f.coordinator.processedLookups.Push(request)

		err := f.coordinator.RunLookup()
		require.True(t, gerrors.IsFatal(err))
		var fatal *gerrors.FatalError
		require.ErrorAs(t, err, &fatal)
		assert.Equal(t, "duplicate grouping entry", fatal.Reason())
		assert.Contains(t, fatal.Dump(), "checkedOut=1 applyPending=0 commitPending=0")
	})
	t.Run("With committed object not checked out", func(t *testing.T) {
		f := newFixture(t, 0)
		obj := &object.ManagedObject{ID: 1}
		f.coordinator.checkedOut[1] = newLookupGrouping(map[object.ObjectID]*object.ManagedObject{1: obj})

		prime := object.NewServerTransactionID("node-1", 1)
		g := newTxnGrouping(prime)
		g.objects[1] = obj
		require.True(t, f.coordinator.commitPending.PutIfAbsent(prime, g))

		batch, err := f.coordinator.CommitBatch()
		require.Nil(t, batch)
		require.True(t, gerrors.IsFatal(err))
		var fatal *gerrors.FatalError
		require.ErrorAs(t, err, &fatal)
		assert.Equal(t, "committed object not checked out", fatal.Reason())
		assert.Contains(t, fatal.Dump(), "checkedOut=1 applyPending=0 commitPending=0")
	})
	t.Run("With invalid options", func(t *testing.T) {
		_, err := NewCoordinator(store.NewMemory(), nil, &recordingStages{}, WithMaxCommitSize(0), WithMaxTxnsPerGrouping(-1))
		require.ErrorIs(t, err, gerrors.ErrInvalidMaxCommitSize)
		require.ErrorIs(t, err, gerrors.ErrInvalidMaxTxnsPerGrouping)
	})
}
