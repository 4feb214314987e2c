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

package txn

import (
	"fmt"

	"github.com/objcoord/objcoord/object"
)

// grouping holds a set of objects checked out together on behalf of its
// member transactions. A grouping absorbed by a merge is retired and points at
// the grouping that absorbed it; owners are always resolved through root.
type grouping struct {
	prime      object.ServerTransactionID
	objects    map[object.ObjectID]*object.ManagedObject
	members    []object.ServerTransactionID
	newRoots   map[string]object.ObjectID
	applyCount int
	active     bool
	absorbedBy *grouping
}

func newTxnGrouping(prime object.ServerTransactionID) *grouping {
	return &grouping{
		prime:    prime,
		objects:  make(map[object.ObjectID]*object.ManagedObject),
		newRoots: make(map[string]object.ObjectID),
		active:   true,
	}
}

// newLookupGrouping holds looked up objects with no owning transaction yet
func newLookupGrouping(objects map[object.ObjectID]*object.ManagedObject) *grouping {
	return &grouping{
		prime:    object.NullServerTransactionID,
		objects:  objects,
		newRoots: make(map[string]object.ObjectID),
		active:   true,
	}
}

// root returns the active grouping this grouping was merged into, compressing the path.
func (g *grouping) root() *grouping {
	r := g
	for r.absorbedBy != nil {
		r = r.absorbedBy
	}
	for g != r {
		next := g.absorbedBy
		g.absorbedBy = r
		g = next
	}
	return r
}

func (g *grouping) size() int {
	return len(g.objects) + len(g.members)
}

func (g *grouping) limitReached(maxTxns int) bool {
	return len(g.members) >= maxTxns
}

// adopt takes over the tables of other without copying them
func (g *grouping) adopt(other *grouping) {
	g.objects = other.objects
	g.members = other.members
	for name, id := range other.newRoots {
		g.newRoots[name] = id
	}
	g.applyCount += other.applyCount
	other.retire(g)
}

// absorb copies the tables of other into g
func (g *grouping) absorb(other *grouping) {
	for id, obj := range other.objects {
		g.objects[id] = obj
	}
	g.members = append(g.members, other.members...)
	for name, id := range other.newRoots {
		g.newRoots[name] = id
	}
	g.applyCount += other.applyCount
	other.retire(g)
}

// retire marks the grouping inactive and drops its references
func (g *grouping) retire(into *grouping) {
	g.active = false
	g.absorbedBy = into
	g.objects = nil
	g.members = nil
	g.newRoots = nil
	g.applyCount = 0
}

func (g *grouping) addTransaction(txn *object.Transaction) {
	g.members = append(g.members, txn.ID)
	for name, id := range txn.NewRoots {
		g.newRoots[name] = id
	}
	g.applyCount++
}

// applyComplete returns true once every member has been applied
func (g *grouping) applyComplete() bool {
	g.applyCount--
	return g.applyCount == 0
}

func (g *grouping) String() string {
	return fmt.Sprintf("grouping{prime=%s objects=%d txns=%d pendingApply=%d active=%t}",
		g.prime, len(g.objects), len(g.members), g.applyCount, g.active)
}
