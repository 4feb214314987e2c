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

package locks

import (
	"context"

	"github.com/hashicorp/memberlist"

	"github.com/objcoord/objcoord/log"
)

// membershipDelegate clears the lock state of nodes leaving the cluster
type membershipDelegate struct {
	table  *Table
	self   ClientID
	logger log.Logger
}

// enforce compilation error
var _ memberlist.EventDelegate = (*membershipDelegate)(nil)

// NewMembershipDelegate returns a memberlist event delegate that runs
// ClearStateForNode for every node leaving the cluster. Node names are the client ids.
func NewMembershipDelegate(table *Table, self ClientID) memberlist.EventDelegate {
	return &membershipDelegate{
		table:  table,
		self:   self,
		logger: table.logger,
	}
}

// NotifyJoin is executed when a node joined the cluster
func (d *membershipDelegate) NotifyJoin(node *memberlist.Node) {
	if node == nil {
		return
	}
	d.logger.Debugf("node %s joined", node.Name)
}

// NotifyLeave is executed when a node leaves the cluster
func (d *membershipDelegate) NotifyLeave(node *memberlist.Node) {
	if node == nil || ClientID(node.Name) == d.self {
		return
	}
	d.table.ClearStateForNode(context.Background(), ClientID(node.Name))
}

// NotifyUpdate is executed when a node is updated in the cluster
func (d *membershipDelegate) NotifyUpdate(*memberlist.Node) {
	// no-op
}
