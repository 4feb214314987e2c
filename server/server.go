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

// Package server wires the object coordination node: the object store, the
// global transaction authority, the transaction pipeline with its stage
// runner, and the distributed lock table with its response sink.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"
	"go.uber.org/atomic"
	otelmetric "go.opentelemetry.io/otel/metric"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/gtx"
	"github.com/objcoord/objcoord/internal/errorschain"
	"github.com/objcoord/objcoord/internal/validation"
	"github.com/objcoord/objcoord/locks"
	"github.com/objcoord/objcoord/locks/natssink"
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/metric"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/stage"
	"github.com/objcoord/objcoord/store"
	"github.com/objcoord/objcoord/txn"
)

// Server is a coordinating node
type Server struct {
	nodeID        object.NodeID
	logger        log.Logger
	store         store.Store
	authority     gtx.Authority
	applier       stage.Applier
	committers    []stage.Committer
	lockSink      locks.Sink
	natsConfig    *natssink.Config
	meterProvider otelmetric.MeterProvider
	fatalHandler  func(error)
	fatalOnce     sync.Once

	maxCommitSize      int
	maxTxnsPerGrouping int
	shardCount         int

	runner         *stage.Runner
	coordinator    *txn.Coordinator
	table          *locks.Table
	natsSink       *natssink.Sink
	pipelineMetric *metric.PipelineMetric
	lockMetric     *metric.LockMetric

	started *atomic.Bool
	mu      sync.RWMutex
}

// New creates an instance of Server
func New(opts ...Option) (*Server, error) {
	s := &Server{
		logger:             log.DefaultLogger,
		maxCommitSize:      txn.DefaultMaxCommitSize,
		maxTxnsPerGrouping: txn.DefaultMaxTxnsPerGrouping,
		shardCount:         locks.DefaultShardCount,
		started:            atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt.Apply(s)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	if s.nodeID == "" {
		s.nodeID = object.NodeID(uuid.NewString())
	}
	if s.store == nil {
		s.store = store.NewMemory(store.WithLogger(s.logger))
	}
	if s.authority == nil {
		s.authority = gtx.NewMemory()
	}
	if s.applier == nil {
		s.applier = stage.PayloadApplier{}
	}
	if committer, ok := s.store.(stage.Committer); ok {
		s.committers = append([]stage.Committer{committer}, s.committers...)
	}
	if s.fatalHandler == nil {
		s.fatalHandler = func(err error) {
			s.logger.Fatal(err)
		}
	}
	s.logger = s.logger.With("node", string(s.nodeID))
	return s, nil
}

// Start builds and starts every component
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.Load() {
		return nil
	}

	provider := metric.NewProvider()
	if s.meterProvider != nil {
		provider = metric.NewProviderFrom(s.meterProvider)
	}
	meter := provider.Meter()

	pipelineMetric, err := metric.NewPipelineMetric(meter, s)
	if err != nil {
		return err
	}

	runner := stage.NewRunner(s.store, s.authority,
		stage.WithLogger(s.logger),
		stage.WithApplier(s.applier),
		stage.WithCommitters(s.committers...),
		stage.WithObserver(pipelineMetric),
		stage.WithFatalHandler(s.fatal))

	coordinator, err := txn.NewCoordinator(s.store, s.authority, runner,
		txn.WithLogger(s.logger),
		txn.WithMaxCommitSize(s.maxCommitSize),
		txn.WithMaxTxnsPerGrouping(s.maxTxnsPerGrouping))
	if err != nil {
		return s.abortStart(ctx, err, pipelineMetric)
	}

	sink, err := s.responseSink()
	if err != nil {
		return s.abortStart(ctx, err, pipelineMetric)
	}

	lockMetric, err := metric.NewLockMetric(meter, sink)
	if err != nil {
		return s.abortStart(ctx, err, pipelineMetric)
	}

	table, err := locks.NewTable(lockMetric, locks.WithLogger(s.logger), locks.WithShardCount(s.shardCount))
	if err != nil {
		return s.abortStart(ctx, err, pipelineMetric)
	}

	if err := lockMetric.Observe(meter, table); err != nil {
		return s.abortStart(ctx, err, pipelineMetric)
	}

	s.pipelineMetric = pipelineMetric
	s.lockMetric = lockMetric
	s.runner = runner
	s.coordinator = coordinator
	s.table = table

	table.Start(ctx)
	if err := runner.Start(ctx, coordinator); err != nil {
		table.Stop(ctx)
		return s.abortStart(ctx, err, pipelineMetric)
	}

	s.started.Store(true)
	s.logger.Infof("server %s started", s.nodeID)
	return nil
}

// Stop stops every component and releases the store. The returned error
// includes the fatal error that stopped the pipeline, if any.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started.Load() {
		return gerrors.ErrServerNotStarted
	}

	s.logger.Infof("server %s stopping", s.nodeID)
	s.table.Stop(ctx)

	err := errorschain.New(errorschain.ReturnAll()).
		AddErrorFn(func() error { return s.runner.Stop(ctx) }).
		AddErrorFn(func() error { return s.closeNatsSink(ctx) }).
		AddErrorFn(s.pipelineMetric.Unregister).
		AddErrorFn(s.lockMetric.Unregister).
		AddErrorFn(s.store.Close).
		AddErrorFn(s.logger.Flush).
		Error()

	s.started.Store(false)
	return err
}

// NodeID returns the identity of this node
func (s *Server) NodeID() object.NodeID {
	return s.nodeID
}

// Running returns true when the server is started
func (s *Server) Running() bool {
	return s.started.Load()
}

// Submit hands a batch of transactions to the pipeline
func (s *Server) Submit(ctx context.Context, txns []*object.Transaction) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started.Load() {
		return gerrors.ErrServerNotStarted
	}
	if err := s.coordinator.Submit(ctx, txns); err != nil {
		if gerrors.IsFatal(err) {
			s.fatal(err)
		}
		return err
	}
	return nil
}

// RecallAll schedules the recall stage, which releases the objects held for
// blocked transactions back to the store
func (s *Server) RecallAll() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started.Load() {
		return gerrors.ErrServerNotStarted
	}
	s.coordinator.RecallAll()
	return nil
}

// Locks returns the lock table. It returns nil when the server is not started.
func (s *Server) Locks() *locks.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Authority returns the global transaction authority
func (s *Server) Authority() gtx.Authority {
	return s.authority
}

// Store returns the object store
func (s *Server) Store() store.Store {
	return s.store
}

// MembershipDelegate returns the memberlist delegate clearing the lock state
// of departed nodes
func (s *Server) MembershipDelegate() (memberlist.EventDelegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started.Load() {
		return nil, gerrors.ErrServerNotStarted
	}
	return locks.NewMembershipDelegate(s.table, locks.ClientID(s.nodeID)), nil
}

// Diagnostics returns the pipeline table sizes
func (s *Server) Diagnostics() txn.Diagnostics {
	s.mu.RLock()
	coordinator := s.coordinator
	s.mu.RUnlock()
	if coordinator == nil {
		return txn.Diagnostics{}
	}
	return coordinator.Diagnostics()
}

// Dump returns the full pipeline state
func (s *Server) Dump() string {
	s.mu.RLock()
	coordinator := s.coordinator
	s.mu.RUnlock()
	if coordinator == nil {
		return ""
	}
	return coordinator.Dump()
}

// fatal hands the first fatal error of the node to the fatal handler
func (s *Server) fatal(err error) {
	s.fatalOnce.Do(func() {
		s.fatalHandler(err)
	})
}

func (s *Server) validate() error {
	chain := validation.New(validation.AllErrors()).
		AddValidator(validation.NewPositiveValidator(s.maxCommitSize, gerrors.ErrInvalidMaxCommitSize)).
		AddValidator(validation.NewPositiveValidator(s.maxTxnsPerGrouping, gerrors.ErrInvalidMaxTxnsPerGrouping)).
		AddValidator(validation.NewPositiveValidator(s.shardCount, gerrors.ErrInvalidShardCount))
	if s.natsConfig != nil {
		s.natsConfig.Sanitize()
		chain = chain.AddValidator(s.natsConfig)
	}
	return chain.Validate()
}

func (s *Server) responseSink() (locks.Sink, error) {
	if s.natsConfig != nil {
		sink, err := natssink.New(s.natsConfig, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create the nats lock sink: %w", err)
		}
		s.natsSink = sink
		return sink, nil
	}
	if s.lockSink != nil {
		return s.lockSink, nil
	}
	return locks.SinkFunc(func(_ context.Context, responses ...*locks.Response) error {
		for _, response := range responses {
			s.logger.Debugf("dropping %s response for client %s on lock %s", response.Type, response.Client, response.Lock)
		}
		return nil
	}), nil
}

func (s *Server) abortStart(ctx context.Context, err error, pipelineMetric *metric.PipelineMetric) error {
	return errorschain.New(errorschain.ReturnAll()).
		AddError(err).
		AddErrorFn(pipelineMetric.Unregister).
		AddErrorFn(func() error { return s.closeNatsSink(ctx) }).
		Error()
}

func (s *Server) closeNatsSink(ctx context.Context) error {
	if s.natsSink == nil {
		return nil
	}
	err := s.natsSink.Close(ctx)
	s.natsSink = nil
	return err
}
