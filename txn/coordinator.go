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

// Package txn implements the object checkout and transaction pipeline: it
// checks objects out of the store, groups transactions sharing objects, and
// drives them through lookup, apply, apply-complete and commit.
package txn

import (
	"context"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/future"
	"github.com/objcoord/objcoord/gtx"
	"github.com/objcoord/objcoord/internal/queue"
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/store"
)

// Coordinator owns the checkout and grouping tables. All table mutations
// happen under one mutex; store lookups never block and other store calls
// are made outside of it.
type Coordinator struct {
	mu sync.Mutex

	checkedOut            map[object.ObjectID]*grouping
	applyPending          map[object.ServerTransactionID]*grouping
	commitPending         *orderedMap[object.ServerTransactionID, *grouping]
	pendingObjectRequests mapset.Set[object.ObjectID]
	pending               *pendingList

	processedLookups *queue.MpscQueue[*lookupRequest]
	processedApplys  *queue.MpscQueue[object.ServerTransactionID]

	store     store.Store
	authority gtx.Authority
	sequencer Sequencer
	stages    StageCoordinator

	maxCommitSize      int
	maxTxnsPerGrouping int
	logger             log.Logger
}

// NewCoordinator creates an instance of Coordinator
func NewCoordinator(objects store.Store, authority gtx.Authority, stages StageCoordinator, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		checkedOut:            make(map[object.ObjectID]*grouping),
		applyPending:          make(map[object.ServerTransactionID]*grouping),
		commitPending:         newOrderedMap[object.ServerTransactionID, *grouping](),
		pendingObjectRequests: mapset.NewThreadUnsafeSet[object.ObjectID](),
		pending:               newPendingList(),
		processedLookups:      queue.NewMpscQueue[*lookupRequest](),
		processedApplys:       queue.NewMpscQueue[object.ServerTransactionID](),
		store:                 objects,
		authority:             authority,
		stages:                stages,
		maxCommitSize:         DefaultMaxCommitSize,
		maxTxnsPerGrouping:    DefaultMaxTxnsPerGrouping,
		logger:                log.DefaultLogger,
	}

	for _, opt := range opts {
		opt.Apply(c)
	}

	if c.sequencer == nil {
		c.sequencer = NewSequencer()
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	c.logger = c.logger.With("component", "coordinator")
	return c, nil
}

// Submit registers a batch of transactions. Objects the batch needs are
// prefetched, and created objects are created, in one store call.
// Any failure is fatal: the diagnostic state is logged and a FatalError returned.
func (c *Coordinator) Submit(ctx context.Context, txns []*object.Transaction) error {
	contexts, err := c.createAndPrefetchObjectsFor(ctx, txns)
	if err != nil {
		c.logger.Error(err)
		return gerrors.NewFatalError("prefetch and create objects", err).WithDump(c.dumpOnError(txns))
	}
	c.sequencer.AddLookupContexts(contexts)
	c.stages.RequestLookupStage()
	return nil
}

func (c *Coordinator) createAndPrefetchObjectsFor(ctx context.Context, txns []*object.Transaction) ([]*LookupContext, error) {
	contexts := make([]*LookupContext, 0, len(txns))
	oids := object.NewIDSet()
	newOids := object.NewIDSet()
	for _, txn := range txns {
		if txn == nil {
			return nil, fmt.Errorf("nil transaction in batch")
		}
		initiateApply := c.authority.InitiateApply(txn.ID)
		if initiateApply {
			newOids.Append(txn.NewObjectIDs...)
			for _, id := range txn.ObjectIDs {
				if !newOids.Contains(id) {
					oids.Add(id)
				}
			}
		}
		contexts = append(contexts, &LookupContext{Txn: txn, InitiateApply: initiateApply})
	}
	oids = oids.Difference(newOids)
	if err := c.store.PrefetchAndCreate(ctx, sortedIDs(oids), sortedIDs(newOids)); err != nil {
		return nil, err
	}
	return contexts, nil
}

// RunLookup runs the lookup stage: it first re-evaluates pending transactions
// when asynchronous lookups completed, then drains the sequencer.
func (c *Coordinator) RunLookup() error {
	if err := c.processPendingIfNecessary(); err != nil {
		return err
	}

	for {
		lc := c.sequencer.Next()
		if lc == nil {
			return nil
		}

		if !lc.InitiateApply {
			c.stages.AddToApplyStage(&ApplyContext{Txn: lc.Txn})
			continue
		}

		if err := c.lookupObjectsForApply(lc.Txn); err != nil {
			return err
		}
	}
}

func (c *Coordinator) processPendingIfNecessary() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processPendingLocked()
}

func (c *Coordinator) processPendingLocked() error {
	var err error
	processed := c.processedLookups.Drain(func(request *lookupRequest) {
		if err == nil {
			err = c.addLookedUpObjects(request)
		}
	})
	if err != nil || processed == 0 {
		return err
	}

	for _, txn := range c.pending.Copy() {
		if err := c.lookupLocked(txn); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) lookupObjectsForApply(txn *object.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(txn)
}

func (c *Coordinator) lookupLocked(txn *object.Transaction) error {
	makePending := false
	newRequests := object.NewIDSet()
	for _, id := range txn.ObjectIDs {
		if c.pendingObjectRequests.Contains(id) {
			makePending = true
			continue
		}
		if owner := c.owner(id); owner == nil || owner.limitReached(c.maxTxnsPerGrouping) {
			newRequests.Add(id)
		}
	}

	if !newRequests.IsEmpty() {
		request := newLookupRequest(txn, sortedIDs(newRequests))
		if c.store.Lookup(txn.Source, request.ids, request.promise) {
			if err := c.addLookedUpObjects(request); err != nil {
				return err
			}
		} else {
			makePending = true
			c.pendingObjectRequests.Append(request.ids...)
			request.promise.Future().OnComplete(func(*future.Result[*store.LookupResult]) {
				c.processedLookups.Push(request)
				c.stages.RequestLookupStage()
			})
		}
	}

	if makePending {
		c.makePending(txn)
		return nil
	}

	merged, err := c.mergeTransactionGroupings(txn)
	if err != nil {
		return err
	}
	c.applyPending[txn.ID] = merged

	objects, err := c.requiredObjects(txn, merged)
	if err != nil {
		return err
	}
	c.stages.AddToApplyStage(&ApplyContext{Txn: txn, Objects: objects, NeedsApply: true})
	c.makeUnpending(txn)
	return nil
}

// owner returns the active grouping owning the object
func (c *Coordinator) owner(id object.ObjectID) *grouping {
	g, ok := c.checkedOut[id]
	if !ok {
		return nil
	}
	r := g.root()
	if r != g {
		c.checkedOut[id] = r
	}
	return r
}

func (c *Coordinator) addLookedUpObjects(request *lookupRequest) error {
	result, done := request.promise.Future().Result()
	switch {
	case !done:
		return c.fatal("lookup result read before completion", fmt.Errorf("%s", request))
	case result.Failure() != nil:
		return c.fatal("object lookup failed", fmt.Errorf("%s: %w", request, result.Failure()))
	}

	lookup := result.Success()
	if lookup == nil || len(lookup.Missing) > 0 {
		return c.fatal("lookup for non-existent objects", fmt.Errorf("%s missing=%v", request, missingIDs(lookup)))
	}
	if len(lookup.Objects) == 0 {
		return c.fatal("looked up objects are empty", fmt.Errorf("%s", request))
	}

	g := newLookupGrouping(lookup.Objects)
	for id := range lookup.Objects {
		c.pendingObjectRequests.Remove(id)
		if existing := c.owner(id); existing != nil {
			return c.fatal("duplicate grouping entry", fmt.Errorf("%s already owned by %s", id, existing))
		}
		c.checkedOut[id] = g
	}
	return nil
}

func (c *Coordinator) makePending(txn *object.Transaction) {
	if c.pending.Add(txn) {
		c.sequencer.MakePending(txn)
	}
}

func (c *Coordinator) makeUnpending(txn *object.Transaction) {
	if c.pending.Remove(txn) {
		c.sequencer.MakeUnpending(txn)
	}
}

func (c *Coordinator) requiredObjects(txn *object.Transaction, g *grouping) (map[object.ObjectID]*object.ManagedObject, error) {
	objects := make(map[object.ObjectID]*object.ManagedObject, len(txn.ObjectIDs))
	for _, id := range txn.ObjectIDs {
		obj, ok := g.objects[id]
		if !ok || obj == nil {
			return nil, c.fatal("object missing after lookup", fmt.Errorf("%s not found for %s in %s", id, txn.ID, g))
		}
		objects[id] = obj
	}
	return objects, nil
}

// ApplyComplete records that the transaction's mutation has been applied.
// It is safe to call from any goroutine.
func (c *Coordinator) ApplyComplete(id object.ServerTransactionID) {
	c.processedApplys.Push(id)
	c.stages.RequestApplyCompleteStage()
}

// ProcessApplyComplete runs the apply-complete stage
func (c *Coordinator) ProcessApplyComplete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.processedApplys.Drain(func(id object.ServerTransactionID) {
		if err == nil {
			err = c.processApplyTxnComplete(id)
		}
	})
	return err
}

func (c *Coordinator) processApplyTxnComplete(id object.ServerTransactionID) error {
	g, ok := c.applyPending[id]
	if !ok {
		return c.fatal("null grouping on apply complete", fmt.Errorf("%s is not apply pending", id))
	}
	delete(c.applyPending, id)
	g = g.root()

	if !g.applyComplete() {
		return nil
	}

	if _, ok := c.applyPending[g.prime]; ok {
		return c.fatal("prime transaction still apply pending", fmt.Errorf("%s", g))
	}
	if !c.commitPending.PutIfAbsent(g.prime, g) {
		return c.fatal("duplicate prime transaction in commit pending", fmt.Errorf("%s", g))
	}
	c.stages.RequestCommitStage()
	return nil
}

// CommitBatch drains commit-pending groupings into one batch, in the order
// they became commit pending. A grouping is not added when it would push the
// batch over the max commit size, unless the batch is still empty. It returns
// nil when nothing is commit pending and re-signals the commit stage when
// groupings remain.
func (c *Coordinator) CommitBatch() (*CommitBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.commitPending.Len() == 0 {
		return nil, nil
	}

	batch := &CommitBatch{NewRoots: make(map[string]object.ObjectID)}
	committed := make([]*grouping, 0, 1)
	count := 0
	for {
		prime, g, ok := c.commitPending.Front()
		if !ok {
			break
		}
		if count > 0 && count+len(g.objects) > c.maxCommitSize {
			break
		}
		c.commitPending.Delete(prime)
		count += len(g.objects)
		committed = append(committed, g)
	}

	for _, g := range committed {
		for name, id := range g.newRoots {
			batch.NewRoots[name] = id
		}
		batch.TxnIDs = append(batch.TxnIDs, g.members...)
		for id, obj := range g.objects {
			if c.owner(id) != g {
				return nil, c.fatal("committed object not checked out", fmt.Errorf("%s of %s", id, g))
			}
			delete(c.checkedOut, id)
			batch.Objects = append(batch.Objects, obj)
		}
		g.active = false
	}
	sort.Slice(batch.Objects, func(i, j int) bool { return batch.Objects[i].ID < batch.Objects[j].ID })

	if c.commitPending.Len() > 0 {
		c.stages.RequestCommitStage()
	}
	return batch, nil
}

// RecallAll is called by the store when its collection cycle starts
func (c *Coordinator) RecallAll() {
	c.stages.RequestRecallAllStage()
}

// Recall runs the recall stage. With all set, every object held by a grouping
// without an owning transaction is released back to the store read-only.
func (c *Coordinator) Recall(ctx context.Context, all bool) error {
	c.mu.Lock()
	if err := c.processPendingLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	var released []*object.ManagedObject
	if all {
		recalled := make(map[*grouping]struct{})
		for id := range c.checkedOut {
			g := c.owner(id)
			if !g.prime.IsNull() {
				continue
			}
			delete(c.checkedOut, id)
			if _, ok := recalled[g]; ok {
				continue
			}
			recalled[g] = struct{}{}
			for _, obj := range g.objects {
				released = append(released, obj)
			}
			g.active = false
		}
	}
	c.mu.Unlock()

	if len(released) == 0 {
		return nil
	}
	c.logger.Infof("recalling %d objects to the object store", len(released))
	return c.store.ReleaseAllReadOnly(ctx, released)
}

func sortedIDs(ids object.IDSet) []object.ObjectID {
	out := ids.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
