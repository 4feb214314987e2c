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
	"sort"
	"strings"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/object"
)

// Diagnostics is a point-in-time view of the coordinator tables
type Diagnostics struct {
	CheckedOut            int
	ApplyPending          int
	CommitPending         int
	PendingTransactions   int
	PendingObjectRequests int
}

// String returns the short description of the tables
func (d Diagnostics) String() string {
	return fmt.Sprintf("checkedOut=%d applyPending=%d commitPending=%d pendingTxns=%d pendingObjectRequests=%d",
		d.CheckedOut, d.ApplyPending, d.CommitPending, d.PendingTransactions, d.PendingObjectRequests)
}

// Diagnostics returns the table sizes
func (c *Coordinator) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diagnostics()
}

func (c *Coordinator) diagnostics() Diagnostics {
	return Diagnostics{
		CheckedOut:            len(c.checkedOut),
		ApplyPending:          len(c.applyPending),
		CommitPending:         c.commitPending.Len(),
		PendingTransactions:   c.pending.Len(),
		PendingObjectRequests: c.pendingObjectRequests.Cardinality(),
	}
}

// Dump returns a multi-line description of every table
func (c *Coordinator) Dump() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dump()
}

func (c *Coordinator) dump() string {
	var sb strings.Builder
	sb.WriteString("coordinator: ")
	sb.WriteString(c.diagnostics().String())
	sb.WriteString("\n  checkedOut:")

	ids := make([]object.ObjectID, 0, len(c.checkedOut))
	for id := range c.checkedOut {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(&sb, "\n    %s -> %s", id, c.checkedOut[id].root())
	}

	sb.WriteString("\n  applyPending:")
	txnIDs := make([]object.ServerTransactionID, 0, len(c.applyPending))
	for id := range c.applyPending {
		txnIDs = append(txnIDs, id)
	}
	sort.Slice(txnIDs, func(i, j int) bool { return txnIDs[i].String() < txnIDs[j].String() })
	for _, id := range txnIDs {
		fmt.Fprintf(&sb, "\n    %s -> %s", id, c.applyPending[id].root())
	}

	sb.WriteString("\n  commitPending:")
	for _, g := range c.commitPending.Values() {
		fmt.Fprintf(&sb, "\n    %s", g)
	}

	sb.WriteString("\n  pendingTxns:")
	for _, txn := range c.pending.Copy() {
		fmt.Fprintf(&sb, "\n    %s", txn.ID)
	}

	fmt.Fprintf(&sb, "\n  pendingObjectRequests: %v", sortedIDs(c.pendingObjectRequests))
	return sb.String()
}

// fatal builds a FatalError carrying the table dump. Callers hold the mutex.
func (c *Coordinator) fatal(reason string, cause error) error {
	dump := c.dump()
	c.logger.Errorf("%s: %v\n%s", reason, cause, dump)
	return gerrors.NewFatalError(reason, cause).WithDump(dump)
}

// dumpOnError logs what the authority knows about a batch that could not be submitted
func (c *Coordinator) dumpOnError(txns []*object.Transaction) string {
	var sb strings.Builder
	for _, txn := range txns {
		if txn == nil {
			continue
		}
		gid, assigned := c.authority.GlobalID(txn.ID)
		fmt.Fprintf(&sb, "txn=%s gid=%d assigned=%t initiateApply=%t\n",
			txn.ID, gid, assigned, c.authority.InitiateApply(txn.ID))
	}
	fmt.Fprintf(&sb, "low watermark=%d current sequence=%d", c.authority.LowWatermark(), c.authority.CurrentSequence())
	dump := sb.String()
	c.logger.Errorf("dump on error:\n%s", dump)
	return dump
}
