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
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/gtx"
	"github.com/objcoord/objcoord/locks"
	"github.com/objcoord/objcoord/locks/natssink"
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/store"
	"github.com/objcoord/objcoord/store/boltstore"
	"github.com/objcoord/objcoord/txn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type failingApplier struct{}

func (failingApplier) Apply(context.Context, *txn.ApplyContext) error {
	return errors.New("corrupted payload")
}

type failingStore struct {
	*store.Memory
}

func (failingStore) PrefetchAndCreate(context.Context, []object.ObjectID, []object.ObjectID) error {
	return errors.New("disk gone")
}

func newServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{
		WithLogger(log.DiscardLogger),
		WithMeterProvider(noop.NewMeterProvider()),
		WithNodeID("node-a"),
	}, opts...)
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func TestServer(t *testing.T) {
	ctx := context.Background()
	t.Run("With transactions committed through the pipeline", func(t *testing.T) {
		memory := store.NewMemory(store.WithLogger(log.DiscardLogger))
		memory.Put(&object.ManagedObject{ID: 1}, &object.ManagedObject{ID: 2})
		authority := gtx.NewMemory()

		s := newServer(t, WithStore(memory), WithAuthority(authority))
		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.Start(ctx))
		require.True(t, s.Running())

		require.NoError(t, s.Submit(ctx, []*object.Transaction{
			{
				ID:        object.NewServerTransactionID("node-b", 1),
				Source:    "node-b",
				ObjectIDs: []object.ObjectID{1, 2},
				Payload:   map[object.ObjectID][]byte{1: []byte("x"), 2: []byte("y")},
			},
			{
				ID:        object.NewServerTransactionID("node-c", 1),
				Source:    "node-c",
				ObjectIDs: []object.ObjectID{2},
				Payload:   map[object.ObjectID][]byte{2: []byte("z")},
			},
		}))

		require.Eventually(t, func() bool {
			obj, ok := memory.Get(2)
			return ok && string(obj.Data) == "z" && !memory.IsCheckedOut(2) && s.Diagnostics() == txn.Diagnostics{}
		}, 2*time.Second, 10*time.Millisecond)

		obj, _ := memory.Get(1)
		assert.Equal(t, []byte("x"), obj.Data)
		assert.Equal(t, authority.CurrentSequence()+1, authority.LowWatermark())
		assert.NotEmpty(t, s.Dump())
		assert.Same(t, authority, s.Authority())
		assert.Same(t, memory, s.Store())

		require.NoError(t, s.RecallAll())
		require.NoError(t, s.Stop(ctx))
		assert.False(t, s.Running())
	})
	t.Run("With durable store committing roots", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "objects.db")
		durable, err := boltstore.Open(path, boltstore.WithLogger(log.DiscardLogger))
		require.NoError(t, err)
		require.NoError(t, durable.Put(&object.ManagedObject{ID: 1}))

		s := newServer(t, WithStore(durable))
		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.Submit(ctx, []*object.Transaction{
			{
				ID:           object.NewServerTransactionID("node-b", 1),
				Source:       "node-b",
				ObjectIDs:    []object.ObjectID{1, 5},
				NewObjectIDs: []object.ObjectID{5},
				NewRoots:     map[string]object.ObjectID{"orders": 5},
				Payload:      map[object.ObjectID][]byte{1: []byte("one"), 5: []byte("five")},
			},
		}))

		require.Eventually(t, func() bool {
			obj, err := durable.Get(5)
			return err == nil && string(obj.Data) == "five" && !durable.IsCheckedOut(1)
		}, 2*time.Second, 10*time.Millisecond)
		require.NoError(t, s.Stop(ctx))

		reopened, err := boltstore.Open(path, boltstore.WithLogger(log.DiscardLogger))
		require.NoError(t, err)
		defer func() { require.NoError(t, reopened.Close()) }()
		root, ok := reopened.Root("orders")
		require.True(t, ok)
		assert.Equal(t, object.ObjectID(5), root)
		obj, err := reopened.Get(1)
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), obj.Data)
	})
	t.Run("With lock responses delivered to the sink", func(t *testing.T) {
		sink := locks.NewMemorySink()
		s := newServer(t, WithLockSink(sink))
		require.Nil(t, s.Locks())
		require.NoError(t, s.Start(ctx))

		table := s.Locks()
		require.NotNil(t, table)
		require.NoError(t, table.Lock(ctx, "orders", "node-b", 1, locks.Write))
		require.NoError(t, table.Lock(ctx, "orders", "node-c", 1, locks.Read))
		assert.Equal(t, []*locks.Response{
			{Type: locks.Award, Lock: "orders", Client: "node-b", Thread: locks.GreedyThreadID, Level: locks.Write},
			{Type: locks.Recall, Lock: "orders", Client: "node-b", Thread: locks.GreedyThreadID, Level: locks.Read},
		}, sink.Take())

		delegate, err := s.MembershipDelegate()
		require.NoError(t, err)
		delegate.NotifyLeave(&memberlist.Node{Name: "node-b"})
		assert.Equal(t, []*locks.Response{
			{Type: locks.Award, Lock: "orders", Client: "node-c", Thread: locks.GreedyThreadID, Level: locks.Read},
		}, sink.Take())

		require.NoError(t, s.Stop(ctx))
	})
	t.Run("With fatal error routed to the handler", func(t *testing.T) {
		memory := store.NewMemory(store.WithLogger(log.DiscardLogger))
		memory.Put(&object.ManagedObject{ID: 1})
		fatal := make(chan error, 1)

		s := newServer(t,
			WithStore(memory),
			WithApplier(failingApplier{}),
			WithFatalHandler(func(err error) { fatal <- err }))
		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.Submit(ctx, []*object.Transaction{
			{
				ID:        object.NewServerTransactionID("node-b", 1),
				Source:    "node-b",
				ObjectIDs: []object.ObjectID{1},
			},
		}))

		select {
		case err := <-fatal:
			assert.True(t, gerrors.IsFatal(err))
		case <-time.After(2 * time.Second):
			t.Fatal("fatal handler not called")
		}

		err := s.Stop(ctx)
		require.Error(t, err)
		assert.True(t, gerrors.IsFatal(err))
	})
	t.Run("With fatal submit routed to the handler", func(t *testing.T) {
		fatal := make(chan error, 2)
		s := newServer(t,
			WithStore(failingStore{Memory: store.NewMemory(store.WithLogger(log.DiscardLogger))}),
			WithFatalHandler(func(err error) { fatal <- err }))
		require.NoError(t, s.Start(ctx))

		batch := []*object.Transaction{
			{
				ID:        object.NewServerTransactionID("node-b", 1),
				Source:    "node-b",
				ObjectIDs: []object.ObjectID{1},
			},
		}
		err := s.Submit(ctx, batch)
		require.Error(t, err)
		assert.True(t, gerrors.IsFatal(err))
		assert.ErrorContains(t, err, "disk gone")

		select {
		case handled := <-fatal:
			assert.Same(t, err, handled)
		case <-time.After(2 * time.Second):
			t.Fatal("fatal handler not called")
		}

		require.Error(t, s.Submit(ctx, batch))
		assert.Empty(t, fatal)
		_ = s.Stop(ctx)
	})
	t.Run("With server not started", func(t *testing.T) {
		s := newServer(t)
		assert.NotEmpty(t, s.NodeID())
		require.ErrorIs(t, s.Submit(ctx, nil), gerrors.ErrServerNotStarted)
		require.ErrorIs(t, s.RecallAll(), gerrors.ErrServerNotStarted)
		require.ErrorIs(t, s.Stop(ctx), gerrors.ErrServerNotStarted)
		_, err := s.MembershipDelegate()
		require.ErrorIs(t, err, gerrors.ErrServerNotStarted)
		assert.Equal(t, txn.Diagnostics{}, s.Diagnostics())
		assert.Empty(t, s.Dump())
	})
	t.Run("With random node id by default", func(t *testing.T) {
		s, err := New(WithLogger(log.DiscardLogger))
		require.NoError(t, err)
		assert.NotEmpty(t, s.NodeID())
	})
}

func TestServerConfig(t *testing.T) {
	t.Run("With invalid caps", func(t *testing.T) {
		s, err := New(
			WithLogger(log.DiscardLogger),
			WithMaxCommitSize(0),
			WithMaxTxnsPerGrouping(-1),
			WithShardCount(0))
		require.Nil(t, s)
		require.ErrorIs(t, err, gerrors.ErrInvalidMaxCommitSize)
		require.ErrorIs(t, err, gerrors.ErrInvalidMaxTxnsPerGrouping)
		require.ErrorIs(t, err, gerrors.ErrInvalidShardCount)
	})
	t.Run("With invalid nats sink", func(t *testing.T) {
		config := &natssink.Config{}
		_, err := New(WithLogger(log.DiscardLogger), WithNatsSink(config))
		require.ErrorIs(t, err, gerrors.ErrInvalidNatsURL)
		assert.Equal(t, natssink.DefaultSubject, config.Subject)
	})
	t.Run("With custom caps", func(t *testing.T) {
		s, err := New(
			WithLogger(log.DiscardLogger),
			WithMaxCommitSize(10),
			WithMaxTxnsPerGrouping(2),
			WithShardCount(4))
		require.NoError(t, err)
		assert.Equal(t, 10, s.maxCommitSize)
		assert.Equal(t, 2, s.maxTxnsPerGrouping)
		assert.Equal(t, 4, s.shardCount)
	})
}
