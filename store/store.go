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

// Package store defines the object store contract used by the transaction
// pipeline and ships an in-memory implementation.
package store

import (
	"context"

	"github.com/objcoord/objcoord/future"
	"github.com/objcoord/objcoord/object"
)

// LookupResult is the outcome of a batched lookup
type LookupResult struct {
	// Objects maps every resolved id to its checked out object
	Objects map[object.ObjectID]*object.ManagedObject
	// Missing lists ids the store has no record of
	Missing []object.ObjectID
}

// Store is the object store the coordinator checks objects out of.
//
// Lookup must not block: it either completes the promise before returning
// true, or returns false and completes the promise later from another goroutine
// once every requested object has been released by its current holder.
type Store interface {
	// PrefetchAndCreate warms the existing ids and creates the new ones
	PrefetchAndCreate(ctx context.Context, existing, created []object.ObjectID) error
	// Lookup checks the given objects out on behalf of the source node
	Lookup(source object.NodeID, ids []object.ObjectID, promise future.Promise[*LookupResult]) bool
	// Release persists the given objects and checks them back in
	Release(ctx context.Context, objects []*object.ManagedObject) error
	// ReleaseAllReadOnly checks the given objects back in without persisting them
	ReleaseAllReadOnly(ctx context.Context, objects []*object.ManagedObject) error
	// Close releases the store resources
	Close() error
}
