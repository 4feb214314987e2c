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

	"github.com/objcoord/objcoord/future"
	"github.com/objcoord/objcoord/object"
	"github.com/objcoord/objcoord/store"
)

// lookupRequest is a batched store lookup issued on behalf of a transaction.
// Its promise is completed by the store, possibly from another goroutine.
type lookupRequest struct {
	txn     *object.Transaction
	ids     []object.ObjectID
	promise future.Promise[*store.LookupResult]
}

func newLookupRequest(txn *object.Transaction, ids []object.ObjectID) *lookupRequest {
	return &lookupRequest{
		txn:     txn,
		ids:     ids,
		promise: future.NewPromise[*store.LookupResult](),
	}
}

func (r *lookupRequest) String() string {
	return fmt.Sprintf("lookup{txn=%s oids=%v done=%t}", r.txn.ID, r.ids, r.promise.Future().IsDone())
}

func missingIDs(result *store.LookupResult) []object.ObjectID {
	if result == nil {
		return nil
	}
	return result.Missing
}
