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

package metric

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/objcoord/objcoord/stage"
	"github.com/objcoord/objcoord/txn"
)

// DiagnosticsSource returns the coordinator table sizes
type DiagnosticsSource interface {
	Diagnostics() txn.Diagnostics
}

// PipelineMetric defines the transaction pipeline metrics. The table sizes
// are observed from the coordinator diagnostics; the counters are fed by
// the stage runner.
type PipelineMetric struct {
	checkedOut            metric.Int64ObservableGauge
	applyPending          metric.Int64ObservableGauge
	commitPending         metric.Int64ObservableGauge
	pendingTransactions   metric.Int64ObservableGauge
	pendingObjectRequests metric.Int64ObservableGauge

	appliedCount   metric.Int64Counter
	committedCount metric.Int64Counter
	batchCount     metric.Int64Counter
	objectCount    metric.Int64Counter

	registration metric.Registration
}

// enforce compilation error
var _ stage.Observer = (*PipelineMetric)(nil)

// NewPipelineMetric creates an instance of PipelineMetric and registers the
// table size callback
func NewPipelineMetric(meter metric.Meter, source DiagnosticsSource) (*PipelineMetric, error) {
	m := new(PipelineMetric)
	var err error

	gauges := []struct {
		target      *metric.Int64ObservableGauge
		name        string
		description string
	}{
		{&m.checkedOut, "pipeline.checkedout.count", "Number of checked out objects"},
		{&m.applyPending, "pipeline.applypending.count", "Number of transactions waiting for apply"},
		{&m.commitPending, "pipeline.commitpending.count", "Number of groupings waiting for commit"},
		{&m.pendingTransactions, "pipeline.pending.count", "Number of transactions blocked on objects"},
		{&m.pendingObjectRequests, "pipeline.pendingobjects.count", "Number of objects with an outstanding lookup"},
	}
	for _, gauge := range gauges {
		if *gauge.target, err = meter.Int64ObservableGauge(gauge.name, metric.WithDescription(gauge.description)); err != nil {
			return nil, fmt.Errorf("failed to create %s instrument, %w", gauge.name, err)
		}
	}

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&m.appliedCount, "pipeline.applied.count", "Total number of applied transactions"},
		{&m.committedCount, "pipeline.committed.count", "Total number of committed transactions"},
		{&m.batchCount, "pipeline.commitbatches.count", "Total number of commit batches"},
		{&m.objectCount, "pipeline.committedobjects.count", "Total number of committed objects"},
	}
	for _, counter := range counters {
		if *counter.target, err = meter.Int64Counter(counter.name, metric.WithDescription(counter.description)); err != nil {
			return nil, fmt.Errorf("failed to create %s instrument, %w", counter.name, err)
		}
	}

	if m.registration, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		diagnostics := source.Diagnostics()
		observer.ObserveInt64(m.checkedOut, int64(diagnostics.CheckedOut))
		observer.ObserveInt64(m.applyPending, int64(diagnostics.ApplyPending))
		observer.ObserveInt64(m.commitPending, int64(diagnostics.CommitPending))
		observer.ObserveInt64(m.pendingTransactions, int64(diagnostics.PendingTransactions))
		observer.ObserveInt64(m.pendingObjectRequests, int64(diagnostics.PendingObjectRequests))
		return nil
	}, m.checkedOut, m.applyPending, m.commitPending, m.pendingTransactions, m.pendingObjectRequests); err != nil {
		return nil, fmt.Errorf("failed to register pipeline callback, %w", err)
	}
	return m, nil
}

// OnApplied implements stage.Observer
func (x *PipelineMetric) OnApplied(ctx context.Context, _ *txn.ApplyContext) {
	x.appliedCount.Add(ctx, 1)
}

// OnCommitted implements stage.Observer
func (x *PipelineMetric) OnCommitted(ctx context.Context, batch *txn.CommitBatch) {
	x.batchCount.Add(ctx, 1)
	x.committedCount.Add(ctx, int64(len(batch.TxnIDs)))
	x.objectCount.Add(ctx, int64(len(batch.Objects)))
}

// Unregister removes the table size callback
func (x *PipelineMetric) Unregister() error {
	return x.registration.Unregister()
}
