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
	"sync"

	"github.com/objcoord/objcoord/object"
)

type parkedLookup struct {
	ids     []object.ObjectID
	resolve func()
}

// CheckoutTable tracks which objects are checked out of a store and parks
// lookups that must wait for a release. Parked lookups are resumed in arrival
// order and a parked lookup reserves its ids against later parked lookups.
type CheckoutTable struct {
	mu         sync.Mutex
	checkedOut object.IDSet
	parked     []*parkedLookup
}

// NewCheckoutTable creates an instance of CheckoutTable
func NewCheckoutTable() *CheckoutTable {
	return &CheckoutTable{checkedOut: object.NewIDSet()}
}

// CheckoutOrPark checks out every id when none is held and returns true.
// Otherwise resolve is parked until a later Checkin frees all the ids and false is returned.
func (t *CheckoutTable) CheckoutOrPark(ids []object.ObjectID, resolve func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.available(ids, t.reserved()) {
		t.checkout(ids)
		return true
	}
	t.parked = append(t.parked, &parkedLookup{ids: ids, resolve: resolve})
	return false
}

// Checkin returns the given ids and resumes every parked lookup that became
// satisfiable. The resumed lookups run on the calling goroutine, outside of the table lock.
func (t *CheckoutTable) Checkin(ids []object.ObjectID) {
	t.mu.Lock()
	for _, id := range ids {
		t.checkedOut.Remove(id)
	}

	var ready []func()
	reserved := object.NewIDSet()
	remaining := t.parked[:0]
	for _, p := range t.parked {
		if t.available(p.ids, reserved) {
			t.checkout(p.ids)
			ready = append(ready, p.resolve)
			continue
		}
		reserved.Append(p.ids...)
		remaining = append(remaining, p)
	}
	for i := len(remaining); i < len(t.parked); i++ {
		t.parked[i] = nil
	}
	t.parked = remaining
	t.mu.Unlock()

	for _, resolve := range ready {
		resolve()
	}
}

// IsCheckedOut returns true when the id is currently checked out
func (t *CheckoutTable) IsCheckedOut(id object.ObjectID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkedOut.Contains(id)
}

// Parked returns the number of parked lookups
func (t *CheckoutTable) Parked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.parked)
}

func (t *CheckoutTable) reserved() object.IDSet {
	if len(t.parked) == 0 {
		return nil
	}
	reserved := object.NewIDSet()
	for _, p := range t.parked {
		reserved.Append(p.ids...)
	}
	return reserved
}

func (t *CheckoutTable) available(ids []object.ObjectID, reserved object.IDSet) bool {
	for _, id := range ids {
		if t.checkedOut.Contains(id) {
			return false
		}
		if reserved != nil && reserved.Contains(id) {
			return false
		}
	}
	return true
}

func (t *CheckoutTable) checkout(ids []object.ObjectID) {
	t.checkedOut.Append(ids...)
}
