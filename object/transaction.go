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

// Transaction is an immutable unit of mutation submitted by a client node.
// It must not be modified once handed to the coordinator.
type Transaction struct {
	// ID is the cluster-wide transaction id
	ID ServerTransactionID
	// Source is the originating node
	Source NodeID
	// ObjectIDs lists the objects the transaction touches, in order
	ObjectIDs []ObjectID
	// NewObjectIDs lists the objects the transaction creates
	NewObjectIDs []ObjectID
	// NewRoots binds root names to objects
	NewRoots map[string]ObjectID
	// GlobalID is the sequence number assigned by the global transaction authority
	GlobalID uint64
	// Payload carries the encoded mutation. Its format is opaque to the coordinator.
	Payload map[ObjectID][]byte
}

// IsNewObject returns true when the transaction creates the given object
func (t *Transaction) IsNewObject(id ObjectID) bool {
	for _, nid := range t.NewObjectIDs {
		if nid == id {
			return true
		}
	}
	return false
}

// TouchedIDs returns the ids of the objects the transaction touches
func (t *Transaction) TouchedIDs() IDSet {
	return NewIDSet(t.ObjectIDs...)
}
