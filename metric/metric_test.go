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
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/objcoord/objcoord/locks"
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/txn"
)

// instrumentFailingMeter fails the creation of the named instruments
type instrumentFailingMeter struct {
	metric.Meter
	failures map[string]error
}

func (m instrumentFailingMeter) Int64Counter(name string, opts ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	if err, ok := m.failures[name]; ok {
		return nil, err
	}
	return m.Meter.Int64Counter(name, opts...)
}

func (m instrumentFailingMeter) Int64ObservableGauge(name string, opts ...metric.Int64ObservableGaugeOption) (metric.Int64ObservableGauge, error) {
	if err, ok := m.failures[name]; ok {
		return nil, err
	}
	return m.Meter.Int64ObservableGauge(name, opts...)
}

func (m instrumentFailingMeter) RegisterCallback(f metric.Callback, instruments ...metric.Observable) (metric.Registration, error) {
	if err, ok := m.failures["callback"]; ok {
		return nil, err
	}
	return m.Meter.RegisterCallback(f, instruments...)
}

type namedGauge struct {
	noop.Int64ObservableGauge
	name string
}

type recordingCounter struct {
	noop.Int64Counter
	name  string
	meter *recordingMeter
}

func (c recordingCounter) Add(_ context.Context, incr int64, opts ...metric.AddOption) {
	key := c.name
	attrs := metric.NewAddConfig(opts).Attributes()
	if value, ok := attrs.Value(attribute.Key("type")); ok {
		key += "/" + value.AsString()
	}
	c.meter.mu.Lock()
	c.meter.counters[key] += incr
	c.meter.mu.Unlock()
}

// recordingMeter keeps counter totals and lets the test run the callbacks
type recordingMeter struct {
	noop.Meter
	mu        sync.Mutex
	counters  map[string]int64
	callbacks []metric.Callback
}

func newRecordingMeter() *recordingMeter {
	return &recordingMeter{counters: make(map[string]int64)}
}

func (m *recordingMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return recordingCounter{name: name, meter: m}, nil
}

func (m *recordingMeter) Int64ObservableGauge(name string, _ ...metric.Int64ObservableGaugeOption) (metric.Int64ObservableGauge, error) {
	return namedGauge{name: name}, nil
}

func (m *recordingMeter) RegisterCallback(f metric.Callback, _ ...metric.Observable) (metric.Registration, error) {
	m.callbacks = append(m.callbacks, f)
	return noop.Registration{}, nil
}

func (m *recordingMeter) counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type recordingObserver struct {
	noop.Observer
	values map[string]int64
}

func (o *recordingObserver) ObserveInt64(observable metric.Int64Observable, value int64, _ ...metric.ObserveOption) {
	o.values[observable.(namedGauge).name] = value
}

func (m *recordingMeter) observe(t *testing.T) map[string]int64 {
	t.Helper()
	observer := &recordingObserver{values: make(map[string]int64)}
	for _, callback := range m.callbacks {
		require.NoError(t, callback(context.Background(), observer))
	}
	return observer.values
}

type fixedDiagnostics txn.Diagnostics

func (d fixedDiagnostics) Diagnostics() txn.Diagnostics {
	return txn.Diagnostics(d)
}

func TestPipelineMetric(t *testing.T) {
	t.Run("With noop meter", func(t *testing.T) {
		meter := NewProviderFrom(noop.NewMeterProvider()).Meter()
		instruments, err := NewPipelineMetric(meter, fixedDiagnostics{})
		require.NoError(t, err)
		require.NotNil(t, instruments)
		require.NoError(t, instruments.Unregister())
		require.NotNil(t, NewProvider().Meter())
	})
	t.Run("With observed tables and counters", func(t *testing.T) {
		meter := newRecordingMeter()
		instruments, err := NewPipelineMetric(meter, fixedDiagnostics{
			CheckedOut:            4,
			ApplyPending:          2,
			CommitPending:         1,
			PendingTransactions:   3,
			PendingObjectRequests: 5,
		})
		require.NoError(t, err)

		assert.Equal(t, map[string]int64{
			"pipeline.checkedout.count":     4,
			"pipeline.applypending.count":   2,
			"pipeline.commitpending.count":  1,
			"pipeline.pending.count":        3,
			"pipeline.pendingobjects.count": 5,
		}, meter.observe(t))

		ctx := context.Background()
		instruments.OnApplied(ctx, &txn.ApplyContext{})
		instruments.OnApplied(ctx, &txn.ApplyContext{})
		instruments.OnCommitted(ctx, &txn.CommitBatch{
			TxnIDs:  []object.ServerTransactionID{object.NewServerTransactionID("n", 1), object.NewServerTransactionID("n", 2)},
			Objects: []*object.ManagedObject{{ID: 1}, {ID: 2}, {ID: 3}},
		})
		assert.EqualValues(t, 2, meter.counter("pipeline.applied.count"))
		assert.EqualValues(t, 2, meter.counter("pipeline.committed.count"))
		assert.EqualValues(t, 1, meter.counter("pipeline.commitbatches.count"))
		assert.EqualValues(t, 3, meter.counter("pipeline.committedobjects.count"))
	})
}

func TestPipelineMetricErrors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	baseMeter := noop.NewMeterProvider().Meter("test")

	testCases := []struct {
		name    string
		failKey string
	}{
		{name: "checked out gauge", failKey: "pipeline.checkedout.count"},
		{name: "pending gauge", failKey: "pipeline.pending.count"},
		{name: "applied counter", failKey: "pipeline.applied.count"},
		{name: "committed objects counter", failKey: "pipeline.committedobjects.count"},
		{name: "callback", failKey: "callback"},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			meter := instrumentFailingMeter{
				Meter:    baseMeter,
				failures: map[string]error{tt.failKey: errBoom},
			}

			instruments, err := NewPipelineMetric(meter, fixedDiagnostics{})
			require.ErrorIs(t, err, errBoom)
			require.Nil(t, instruments)
		})
	}
}

func TestLockMetric(t *testing.T) {
	ctx := context.Background()
	t.Run("With responses counted by type", func(t *testing.T) {
		meter := newRecordingMeter()
		sink := locks.NewMemorySink()
		instruments, err := NewLockMetric(meter, sink)
		require.NoError(t, err)

		table, err := locks.NewTable(instruments, locks.WithLogger(log.DiscardLogger))
		require.NoError(t, err)
		require.NoError(t, instruments.Observe(meter, table))

		require.NoError(t, table.Lock(ctx, "l1", "A", 1, locks.Write))
		require.NoError(t, table.Lock(ctx, "l1", "B", 1, locks.Read))
		require.NoError(t, table.TryLock(ctx, "l1", "C", 1, locks.Write, 0))
		require.NoError(t, table.Lock(ctx, "l2", "C", 1, locks.Read))

		assert.EqualValues(t, 2, meter.counter("locks.responses.count/award"))
		assert.EqualValues(t, 1, meter.counter("locks.responses.count/recall"))
		assert.EqualValues(t, 1, meter.counter("locks.responses.count/cannot-award"))
		assert.Len(t, sink.Responses(), 4)
		assert.Equal(t, map[string]int64{"locks.count": 2}, meter.observe(t))
		require.NoError(t, instruments.Unregister())
	})
	t.Run("With instrument failures", func(t *testing.T) {
		errBoom := errors.New("boom")
		baseMeter := noop.NewMeterProvider().Meter("test")

		_, err := NewLockMetric(instrumentFailingMeter{Meter: baseMeter, failures: map[string]error{"locks.responses.count": errBoom}}, locks.NewMemorySink())
		require.ErrorIs(t, err, errBoom)

		instruments, err := NewLockMetric(baseMeter, locks.NewMemorySink())
		require.NoError(t, err)
		require.NoError(t, instruments.Unregister())
		err = instruments.Observe(instrumentFailingMeter{Meter: baseMeter, failures: map[string]error{"locks.count": errBoom}}, nil)
		require.ErrorIs(t, err, errBoom)
		err = instruments.Observe(instrumentFailingMeter{Meter: baseMeter, failures: map[string]error{"callback": errBoom}}, nil)
		require.ErrorIs(t, err, errBoom)
	})
}
