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

package store

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/atomic"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/future"
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/object"
)

// Memory is an in-memory Store. Lookups of objects that are already checked
// out complete asynchronously once the holder releases them.
type Memory struct {
	mu        sync.RWMutex
	objects   map[object.ObjectID]*object.ManagedObject
	checkouts *CheckoutTable
	factory   object.Factory
	logger    log.Logger
	closed    *atomic.Bool
}

// enforce compilation error
var _ Store = (*Memory)(nil)

// NewMemory creates an instance of Memory
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		objects:   make(map[object.ObjectID]*object.ManagedObject),
		checkouts: NewCheckoutTable(),
		factory:   object.DefaultFactory{},
		logger:    log.DiscardLogger,
		closed:    atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt.Apply(m)
	}
	return m
}

// Put seeds the store with the given objects
func (m *Memory) Put(objects ...*object.ManagedObject) {
	m.mu.Lock()
	for _, obj := range objects {
		m.objects[obj.ID] = obj.Clone()
	}
	m.mu.Unlock()
}

// Get returns a copy of the stored object
func (m *Memory) Get(id object.ObjectID) (*object.ManagedObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[id]
	if !ok {
		return nil, false
	}
	return obj.Clone(), true
}

// IDs returns the sorted ids of every stored object
func (m *Memory) IDs() []object.ObjectID {
	m.mu.RLock()
	ids := make([]object.ObjectID, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsCheckedOut returns true when the object is checked out
func (m *Memory) IsCheckedOut(id object.ObjectID) bool {
	return m.checkouts.IsCheckedOut(id)
}

// PrefetchAndCreate creates the new objects. Existing objects are already resident.
func (m *Memory) PrefetchAndCreate(_ context.Context, _, created []object.ObjectID) error {
	if m.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	m.mu.Lock()
	for _, id := range created {
		if _, ok := m.objects[id]; !ok {
			m.objects[id] = m.factory.NewObject(id)
		}
	}
	m.mu.Unlock()
	return nil
}

// Lookup checks the objects out
func (m *Memory) Lookup(source object.NodeID, ids []object.ObjectID, promise future.Promise[*LookupResult]) bool {
	resolve := func() {
		promise.Success(m.resolve(ids))
	}
	if m.checkouts.CheckoutOrPark(ids, resolve) {
		resolve()
		return true
	}
	m.logger.Debugf("lookup from %s parked on %d objects", source, len(ids))
	return false
}

// Release persists and checks the objects back in
func (m *Memory) Release(_ context.Context, objects []*object.ManagedObject) error {
	if m.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	ids := make([]object.ObjectID, 0, len(objects))
	m.mu.Lock()
	for _, obj := range objects {
		stored := obj.Clone()
		stored.IsNew = false
		m.objects[obj.ID] = stored
		ids = append(ids, obj.ID)
	}
	m.mu.Unlock()
	m.checkouts.Checkin(ids)
	return nil
}

// ReleaseAllReadOnly checks the objects back in without persisting them
func (m *Memory) ReleaseAllReadOnly(_ context.Context, objects []*object.ManagedObject) error {
	if m.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	ids := make([]object.ObjectID, 0, len(objects))
	for _, obj := range objects {
		ids = append(ids, obj.ID)
	}
	m.checkouts.Checkin(ids)
	return nil
}

// Close closes the store
func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *Memory) resolve(ids []object.ObjectID) *LookupResult {
	result := &LookupResult{Objects: make(map[object.ObjectID]*object.ManagedObject, len(ids))}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range ids {
		obj, ok := m.objects[id]
		if !ok {
			result.Missing = append(result.Missing, id)
			continue
		}
		result.Objects[id] = obj.Clone()
	}
	return result
}
