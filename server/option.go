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

package server

import (
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/objcoord/objcoord/gtx"
	"github.com/objcoord/objcoord/locks"
	"github.com/objcoord/objcoord/locks/natssink"
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/stage"
	"github.com/objcoord/objcoord/store"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(*Server)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Server)

func (f OptionFunc) Apply(s *Server) {
	f(s)
}

// WithLogger sets the server logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(s *Server) {
		s.logger = logger
	})
}

// WithNodeID sets the identity of this node. It is also the lock client id
// of this node in membership events. Defaults to a random uuid.
func WithNodeID(id object.NodeID) Option {
	return OptionFunc(func(s *Server) {
		s.nodeID = id
	})
}

// WithStore sets the object store. Stores that also implement
// stage.Committer are added to the commit stage.
func WithStore(objects store.Store) Option {
	return OptionFunc(func(s *Server) {
		s.store = objects
	})
}

// WithAuthority sets the global transaction authority
func WithAuthority(authority gtx.Authority) Option {
	return OptionFunc(func(s *Server) {
		s.authority = authority
	})
}

// WithApplier sets the mutation applier of the apply stage
func WithApplier(applier stage.Applier) Option {
	return OptionFunc(func(s *Server) {
		s.applier = applier
	})
}

// WithCommitters adds commit batch consumers
func WithCommitters(committers ...stage.Committer) Option {
	return OptionFunc(func(s *Server) {
		s.committers = append(s.committers, committers...)
	})
}

// WithLockSink sets the destination of the lock responses
func WithLockSink(sink locks.Sink) Option {
	return OptionFunc(func(s *Server) {
		s.lockSink = sink
	})
}

// WithNatsSink publishes the lock responses over NATS.
// It takes precedence over WithLockSink.
func WithNatsSink(config *natssink.Config) Option {
	return OptionFunc(func(s *Server) {
		s.natsConfig = config
	})
}

// WithMeterProvider sets the OpenTelemetry meter provider.
// The global provider is used otherwise.
func WithMeterProvider(provider otelmetric.MeterProvider) Option {
	return OptionFunc(func(s *Server) {
		s.meterProvider = provider
	})
}

// WithFatalHandler sets the handler of broken invariants
func WithFatalHandler(handler func(error)) Option {
	return OptionFunc(func(s *Server) {
		s.fatalHandler = handler
	})
}

// WithMaxCommitSize sets the object cap of a commit batch
func WithMaxCommitSize(size int) Option {
	return OptionFunc(func(s *Server) {
		s.maxCommitSize = size
	})
}

// WithMaxTxnsPerGrouping sets the member cap of a grouping
func WithMaxTxnsPerGrouping(count int) Option {
	return OptionFunc(func(s *Server) {
		s.maxTxnsPerGrouping = count
	})
}

// WithShardCount sets the number of lock table shards
func WithShardCount(count int) Option {
	return OptionFunc(func(s *Server) {
		s.shardCount = count
	})
}
