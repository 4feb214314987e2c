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
	"time"

	"github.com/objcoord/objcoord/object"
)

const slowMergeThreshold = 500 * time.Millisecond

// mergeTransactionGroupings folds every grouping owning an object of txn into
// a new grouping whose prime is txn. The largest owner's tables are taken over
// as is and only the smaller owners are copied, so an object is copied at most
// a logarithmic number of times over its checkout. Absorbed groupings are
// retired and dropped from commit pending.
func (c *Coordinator) mergeTransactionGroupings(txn *object.Transaction) (*grouping, error) {
	start := time.Now()

	var owners []*grouping
	seen := make(map[*grouping]struct{})
	largest := -1
	for _, id := range txn.ObjectIDs {
		owner := c.owner(id)
		if owner == nil {
			return nil, c.fatal("null grouping for looked up object", fmt.Errorf("%s of %s", id, txn.ID))
		}
		if !owner.active {
			return nil, c.fatal("inactive grouping in checkout table", fmt.Errorf("%s of %s", id, owner))
		}
		if _, ok := seen[owner]; ok {
			continue
		}
		seen[owner] = struct{}{}
		owners = append(owners, owner)
		if largest < 0 || owner.size() > owners[largest].size() {
			largest = len(owners) - 1
		}
	}

	merged := newTxnGrouping(txn.ID)
	if largest >= 0 {
		c.dropCommitPending(owners[largest])
		merged.adopt(owners[largest])
	}
	for i, owner := range owners {
		if i == largest {
			continue
		}
		c.dropCommitPending(owner)
		merged.absorb(owner)
	}
	merged.addTransaction(txn)

	for _, id := range txn.ObjectIDs {
		c.checkedOut[id] = merged
	}

	if elapsed := time.Since(start); elapsed > slowMergeThreshold {
		c.logger.Infof("merged %d objects into %s in %s", len(txn.ObjectIDs), merged, elapsed)
	}
	return merged, nil
}

func (c *Coordinator) dropCommitPending(g *grouping) {
	if g.prime.IsNull() {
		return
	}
	if pending, ok := c.commitPending.Get(g.prime); ok && pending == g {
		c.commitPending.Delete(g.prime)
	}
}
