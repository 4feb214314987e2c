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

package stage

import (
	"context"

	"github.com/objcoord/objcoord/txn"
)

// Applier applies a transaction's mutation to its checked out objects.
type Applier interface {
	Apply(ctx context.Context, apply *txn.ApplyContext) error
}

// Committer receives every commit batch before its objects are released.
type Committer interface {
	Commit(ctx context.Context, batch *txn.CommitBatch) error
}

// Observer is notified of the work done by the stages.
type Observer interface {
	OnApplied(ctx context.Context, apply *txn.ApplyContext)
	OnCommitted(ctx context.Context, batch *txn.CommitBatch)
}

// PayloadApplier replaces the data of every object carried in the transaction
// payload and bumps its version.
type PayloadApplier struct{}

// enforce compilation error
var _ Applier = PayloadApplier{}

// Apply implements Applier
func (PayloadApplier) Apply(_ context.Context, apply *txn.ApplyContext) error {
	for id, data := range apply.Txn.Payload {
		obj, ok := apply.Objects[id]
		if !ok {
			continue
		}
		obj.Data = append(obj.Data[:0:0], data...)
		obj.Version++
	}
	return nil
}

type nopObserver struct{}

func (nopObserver) OnApplied(context.Context, *txn.ApplyContext)  {}
func (nopObserver) OnCommitted(context.Context, *txn.CommitBatch) {}
