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

// Package stage runs the transaction pipeline stages. Each stage is a single
// goroutine woken by a coalescing signal, so a stage never runs concurrently
// with itself and signals raised while it runs trigger exactly one more pass.
package stage

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/gtx"
	"github.com/objcoord/objcoord/internal/queue"
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/store"
	"github.com/objcoord/objcoord/txn"
)

// Pipeline is the set of stage entry points the runner drives.
type Pipeline interface {
	RunLookup() error
	ApplyComplete(id object.ServerTransactionID)
	ProcessApplyComplete() error
	CommitBatch() (*txn.CommitBatch, error)
	Recall(ctx context.Context, all bool) error
}

// enforce compilation error
var _ Pipeline = (*txn.Coordinator)(nil)

// Runner is the default stage scheduler.
type Runner struct {
	store     store.Store
	authority gtx.Authority
	pipeline  Pipeline

	applier      Applier
	committers   []Committer
	observer     Observer
	fatalHandler func(error)
	logger       log.Logger

	lookupSignal        chan struct{}
	applySignal         chan struct{}
	applyCompleteSignal chan struct{}
	commitSignal        chan struct{}
	recallSignal        chan struct{}
	applyQueue          *queue.MpscQueue[*txn.ApplyContext]

	started   *atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelFunc
	group     *errgroup.Group
	fatalOnce sync.Once
}

// enforce compilation error
var _ txn.StageCoordinator = (*Runner)(nil)

// NewRunner creates an instance of Runner
func NewRunner(objects store.Store, authority gtx.Authority, opts ...Option) *Runner {
	r := &Runner{
		store:               objects,
		authority:           authority,
		applier:             PayloadApplier{},
		observer:            nopObserver{},
		logger:              log.DefaultLogger,
		lookupSignal:        make(chan struct{}, 1),
		applySignal:         make(chan struct{}, 1),
		applyCompleteSignal: make(chan struct{}, 1),
		commitSignal:        make(chan struct{}, 1),
		recallSignal:        make(chan struct{}, 1),
		applyQueue:          queue.NewMpscQueue[*txn.ApplyContext](),
		started:             atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt.Apply(r)
	}
	if r.fatalHandler == nil {
		r.fatalHandler = func(err error) {
			r.logger.Fatal(err)
		}
	}
	r.logger = r.logger.With("component", "stage")
	return r
}

// Start launches one worker per stage
func (r *Runner) Start(ctx context.Context, pipeline Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.Load() {
		return nil
	}

	r.pipeline = pipeline
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	r.cancel = cancel
	r.group = group

	r.spawn(ctx, "lookup", r.lookupSignal, func(context.Context) error { return r.pipeline.RunLookup() })
	r.spawn(ctx, "apply", r.applySignal, r.runApply)
	r.spawn(ctx, "apply-complete", r.applyCompleteSignal, func(context.Context) error { return r.pipeline.ProcessApplyComplete() })
	r.spawn(ctx, "commit", r.commitSignal, r.runCommit)
	r.spawn(ctx, "recall", r.recallSignal, func(ctx context.Context) error { return r.pipeline.Recall(ctx, true) })

	r.started.Store(true)
	r.logger.Info("stage runner started")
	return nil
}

// Stop stops every worker and returns the fatal error that stopped the runner, if any
func (r *Runner) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started.Load() {
		return gerrors.ErrRunnerNotStarted
	}
	r.cancel()
	err := r.group.Wait()
	r.started.Store(false)
	r.logger.Info("stage runner stopped")
	return err
}

// RequestLookupStage implements txn.StageCoordinator
func (r *Runner) RequestLookupStage() { signal(r.lookupSignal) }

// RequestApplyCompleteStage implements txn.StageCoordinator
func (r *Runner) RequestApplyCompleteStage() { signal(r.applyCompleteSignal) }

// RequestCommitStage implements txn.StageCoordinator
func (r *Runner) RequestCommitStage() { signal(r.commitSignal) }

// RequestRecallAllStage implements txn.StageCoordinator
func (r *Runner) RequestRecallAllStage() { signal(r.recallSignal) }

// AddToApplyStage implements txn.StageCoordinator
func (r *Runner) AddToApplyStage(ctx *txn.ApplyContext) {
	r.applyQueue.Push(ctx)
	signal(r.applySignal)
}

func (r *Runner) spawn(ctx context.Context, name string, wake <-chan struct{}, run func(context.Context) error) {
	r.group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
				if err := run(ctx); err != nil {
					r.fail(name, err)
					return err
				}
			}
		}
	})
}

func (r *Runner) fail(name string, err error) {
	r.fatalOnce.Do(func() {
		r.logger.Errorf("%s stage failed: %v", name, err)
		r.fatalHandler(err)
	})
}

func (r *Runner) runApply(ctx context.Context) error {
	for {
		apply, ok := r.applyQueue.Pop()
		if !ok {
			return nil
		}
		if !apply.NeedsApply {
			r.logger.Debugf("skipping apply of replayed %s", apply.Txn.ID)
			continue
		}
		if err := r.applier.Apply(ctx, apply); err != nil {
			return gerrors.NewFatalError("apply transaction "+apply.Txn.ID.String(), err)
		}
		r.observer.OnApplied(ctx, apply)
		r.pipeline.ApplyComplete(apply.Txn.ID)
	}
}

func (r *Runner) runCommit(ctx context.Context) error {
	batch, err := r.pipeline.CommitBatch()
	if err != nil || batch == nil {
		return err
	}

	for _, committer := range r.committers {
		if err := committer.Commit(ctx, batch); err != nil {
			return gerrors.NewFatalError("commit batch", err)
		}
	}
	if err := r.store.Release(ctx, batch.Objects); err != nil {
		return gerrors.NewFatalError("release committed objects", err)
	}
	r.authority.Commit(batch.TxnIDs...)
	r.observer.OnCommitted(ctx, batch)
	return nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
