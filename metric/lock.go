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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/objcoord/objcoord/locks"
)

// LockCounter returns the number of locks in a table
type LockCounter interface {
	Len() int
}

// LockMetric defines the lock table metrics. It decorates the response sink
// of the table to count responses by type.
type LockMetric struct {
	sink          locks.Sink
	responseCount metric.Int64Counter
	locksCount    metric.Int64ObservableGauge
	registration  metric.Registration
	typeOptions   map[locks.ResponseType]metric.AddOption
}

// enforce compilation error
var _ locks.Sink = (*LockMetric)(nil)

// NewLockMetric wraps the given sink
func NewLockMetric(meter metric.Meter, sink locks.Sink) (*LockMetric, error) {
	m := &LockMetric{sink: sink, typeOptions: make(map[locks.ResponseType]metric.AddOption)}
	var err error
	if m.responseCount, err = meter.Int64Counter(
		"locks.responses.count",
		metric.WithDescription("Total number of lock responses by type"),
	); err != nil {
		return nil, fmt.Errorf("failed to create responseCount instrument, %w", err)
	}

	for _, typ := range []locks.ResponseType{locks.Award, locks.Recall, locks.CannotAward, locks.WaitTimeout} {
		m.typeOptions[typ] = metric.WithAttributes(attribute.String("type", typ.String()))
	}
	return m, nil
}

// Observe registers the lock count gauge of the given table
func (x *LockMetric) Observe(meter metric.Meter, table LockCounter) error {
	var err error
	if x.locksCount, err = meter.Int64ObservableGauge(
		"locks.count",
		metric.WithDescription("Number of locks in the table"),
	); err != nil {
		return fmt.Errorf("failed to create locksCount instrument, %w", err)
	}
	if x.registration, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		observer.ObserveInt64(x.locksCount, int64(table.Len()))
		return nil
	}, x.locksCount); err != nil {
		return fmt.Errorf("failed to register locks callback, %w", err)
	}
	return nil
}

// Deliver implements locks.Sink
func (x *LockMetric) Deliver(ctx context.Context, responses ...*locks.Response) error {
	for _, response := range responses {
		if option, ok := x.typeOptions[response.Type]; ok {
			x.responseCount.Add(ctx, 1, option)
		}
	}
	return x.sink.Deliver(ctx, responses...)
}

// Unregister removes the lock count callback
func (x *LockMetric) Unregister() error {
	if x.registration == nil {
		return nil
	}
	return x.registration.Unregister()
}
