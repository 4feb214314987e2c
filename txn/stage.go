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

import "github.com/objcoord/objcoord/object"

// StageCoordinator schedules the pipeline stages. Every method is a
// fire-and-forget signal and must not block.
type StageCoordinator interface {
	RequestLookupStage()
	RequestApplyCompleteStage()
	RequestCommitStage()
	RequestRecallAllStage()
	// AddToApplyStage hands a transaction with its resolved objects to the apply stage
	AddToApplyStage(ctx *ApplyContext)
}

// ApplyContext is the unit of work of the apply stage.
type ApplyContext struct {
	Txn *object.Transaction
	// Objects holds exactly the objects the transaction touches
	Objects map[object.ObjectID]*object.ManagedObject
	// NeedsApply is false for replayed transactions that were already applied.
	// Such transactions never enter the apply-pending table.
	NeedsApply bool
}

// CommitBatch is the unit of work of the commit stage.
type CommitBatch struct {
	TxnIDs   []object.ServerTransactionID
	Objects  []*object.ManagedObject
	NewRoots map[string]object.ObjectID
}
