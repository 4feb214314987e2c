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

// Package boltstore is a durable object store backed by bbolt.
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/future"
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/store"
	"github.com/objcoord/objcoord/txn"
)

const (
	boltFileMode os.FileMode = 0o600
	objectBucket             = "objects"
	rootBucket               = "roots"
)

var defaultBoltOptions = &bbolt.Options{Timeout: 5 * time.Second, NoGrowSync: true}

// Store persists objects in a bbolt file. Objects created by a transaction
// live in memory until their first release. Concurrency of checkouts is
// tracked in memory, as in store.Memory.
//
// Store also commits the new root bindings of every commit batch.
type Store struct {
	db        *bbolt.DB
	path      string
	created   map[object.ObjectID]*object.ManagedObject
	mu        sync.RWMutex
	checkouts *store.CheckoutTable
	factory   object.Factory
	logger    log.Logger
	closed    *atomic.Bool
}

// enforce compilation error
var _ store.Store = (*Store)(nil)

// Open opens (or creates) the bbolt file at the given path
func Open(path string, opts ...Option) (*Store, error) {
	optionsCopy := *defaultBoltOptions
	db, err := bbolt.Open(path, boltFileMode, &optionsCopy)
	if err != nil {
		return nil, fmt.Errorf("boltstore: opening %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{objectBucket, rootBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstore: initializing buckets: %w", err)
	}

	s := &Store{
		db:        db,
		path:      path,
		created:   make(map[object.ObjectID]*object.ManagedObject),
		checkouts: store.NewCheckoutTable(),
		factory:   object.DefaultFactory{},
		logger:    log.DiscardLogger,
		closed:    atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt.Apply(s)
	}
	return s, nil
}

// Path returns the bbolt file path
func (s *Store) Path() string {
	return s.path
}

// Put writes the given objects
func (s *Store) Put(objects ...*object.ManagedObject) error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return s.write(objects)
}

// Get reads an object
func (s *Store) Get(id object.ObjectID) (*object.ManagedObject, error) {
	if s.closed.Load() {
		return nil, gerrors.ErrStoreClosed
	}
	var obj *object.ManagedObject
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(objectBucket)).Get(objectKey(id))
		if raw == nil {
			return gerrors.ErrObjectNotFound
		}
		var err error
		obj, err = decodeObject(id, raw)
		return err
	})
	return obj, err
}

// Root returns the object bound to the given root name
func (s *Store) Root(name string) (object.ObjectID, bool) {
	if s.closed.Load() {
		return object.NullObjectID, false
	}
	var id object.ObjectID
	found := false
	_ = s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(rootBucket)).Get([]byte(name))
		if len(raw) == 8 {
			id = object.ObjectID(binary.BigEndian.Uint64(raw))
			found = true
		}
		return nil
	})
	return id, found
}

// IsCheckedOut returns true when the object is checked out
func (s *Store) IsCheckedOut(id object.ObjectID) bool {
	return s.checkouts.IsCheckedOut(id)
}

// PrefetchAndCreate creates the new objects in memory. Existing objects are
// read on lookup.
func (s *Store) PrefetchAndCreate(_ context.Context, _, created []object.ObjectID) error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range created {
		if _, ok := s.created[id]; !ok {
			s.created[id] = s.factory.NewObject(id)
		}
	}
	return nil
}

// Lookup checks the objects out
func (s *Store) Lookup(source object.NodeID, ids []object.ObjectID, promise future.Promise[*store.LookupResult]) bool {
	resolve := func() {
		result, err := s.resolve(ids)
		if err != nil {
			promise.Failure(err)
			return
		}
		promise.Success(result)
	}
	if s.checkouts.CheckoutOrPark(ids, resolve) {
		resolve()
		return true
	}
	s.logger.Debugf("lookup from %s parked on %d objects", source, len(ids))
	return false
}

// Release writes the objects and checks them back in
func (s *Store) Release(_ context.Context, objects []*object.ManagedObject) error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	if err := s.write(objects); err != nil {
		return err
	}

	ids := make([]object.ObjectID, 0, len(objects))
	s.mu.Lock()
	for _, obj := range objects {
		delete(s.created, obj.ID)
		ids = append(ids, obj.ID)
	}
	s.mu.Unlock()
	s.checkouts.Checkin(ids)
	return nil
}

// ReleaseAllReadOnly checks the objects back in without writing them
func (s *Store) ReleaseAllReadOnly(_ context.Context, objects []*object.ManagedObject) error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	ids := make([]object.ObjectID, 0, len(objects))
	for _, obj := range objects {
		ids = append(ids, obj.ID)
	}
	s.checkouts.Checkin(ids)
	return nil
}

// Commit writes the new root bindings of a commit batch
func (s *Store) Commit(_ context.Context, batch *txn.CommitBatch) error {
	if s.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	if len(batch.NewRoots) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(rootBucket))
		for name, id := range batch.NewRoots {
			if err := bucket.Put([]byte(name), objectKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the bbolt file
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) write(objects []*object.ManagedObject) error {
	if len(objects) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(objectBucket))
		for _, obj := range objects {
			if err := bucket.Put(objectKey(obj.ID), encodeObject(obj)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) resolve(ids []object.ObjectID) (*store.LookupResult, error) {
	result := &store.LookupResult{Objects: make(map[object.ObjectID]*object.ManagedObject, len(ids))}
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(objectBucket))
		for _, id := range ids {
			if obj, ok := s.created[id]; ok {
				result.Objects[id] = obj.Clone()
				continue
			}
			raw := bucket.Get(objectKey(id))
			if raw == nil {
				result.Missing = append(result.Missing, id)
				continue
			}
			obj, err := decodeObject(id, raw)
			if err != nil {
				return err
			}
			result.Objects[id] = obj
		}
		return nil
	})
	return result, err
}
