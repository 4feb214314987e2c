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

package object

import (
	"fmt"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
)

// ObjectID identifies a shared object.
type ObjectID uint64

// NullObjectID is never assigned to a live object.
const NullObjectID ObjectID = 0

// String returns the string representation of the object id
func (x ObjectID) String() string {
	return "oid:" + strconv.FormatUint(uint64(x), 10)
}

// NodeID identifies a client node connected to the coordinating server.
type NodeID string

// TransactionID is the per-node sequence number assigned by the originating node.
type TransactionID uint64

// ServerTransactionID identifies a transaction cluster-wide: the originating node
// plus its per-node sequence number.
type ServerTransactionID struct {
	Node NodeID
	ID   TransactionID
}

// NullServerTransactionID is the prime id of groupings that hold objects
// without any owning transaction.
var NullServerTransactionID = ServerTransactionID{}

// NewServerTransactionID creates an instance of ServerTransactionID
func NewServerTransactionID(node NodeID, id TransactionID) ServerTransactionID {
	return ServerTransactionID{Node: node, ID: id}
}

// IsNull returns true when the id is the null transaction id
func (x ServerTransactionID) IsNull() bool {
	return x == NullServerTransactionID
}

// String returns the string representation of the transaction id
func (x ServerTransactionID) String() string {
	if x.IsNull() {
		return "txn:null"
	}
	return fmt.Sprintf("txn:%s:%d", x.Node, x.ID)
}

// IDSet is a set of object ids. It is not safe for concurrent use.
type IDSet = mapset.Set[ObjectID]

// NewIDSet creates an IDSet holding the given ids
func NewIDSet(ids ...ObjectID) IDSet {
	return mapset.NewThreadUnsafeSet[ObjectID](ids...)
}

// ManagedObject is the in-memory representation of a shared object as handed
// out by the object store.
type ManagedObject struct {
	ID      ObjectID
	Version uint64
	Data    []byte
	// IsNew is set for objects created by the transaction that checked them out
	IsNew bool
}

// Factory builds the initial state of newly created objects. A single instance
// is created at startup and handed to every store that creates objects.
type Factory interface {
	NewObject(id ObjectID) *ManagedObject
}

// DefaultFactory creates empty objects at version zero
type DefaultFactory struct{}

// enforce compilation error
var _ Factory = DefaultFactory{}

// NewObject implements Factory
func (DefaultFactory) NewObject(id ObjectID) *ManagedObject {
	return &ManagedObject{ID: id, IsNew: true}
}

// Clone returns a deep copy of the object
func (o *ManagedObject) Clone() *ManagedObject {
	clone := *o
	if o.Data != nil {
		clone.Data = append([]byte(nil), o.Data...)
	}
	return &clone
}
