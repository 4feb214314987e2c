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

// Package gtx hosts the global transaction authority: it decides whether a
// transaction still needs applying and assigns global sequence numbers.
package gtx

import (
	"sync"

	"github.com/objcoord/objcoord/object"
)

// Authority is the global apply-decision authority consulted by the coordinator.
type Authority interface {
	// InitiateApply returns true when the transaction still requires applying.
	// A global id is assigned on the first call.
	InitiateApply(id object.ServerTransactionID) bool
	// GlobalID returns the global id assigned to the transaction
	GlobalID(id object.ServerTransactionID) (uint64, bool)
	// LowWatermark returns the lowest global id not yet committed
	LowWatermark() uint64
	// CurrentSequence returns the last assigned global id
	CurrentSequence() uint64
	// Commit records the transactions as durably applied
	Commit(ids ...object.ServerTransactionID)
}

// Memory is an in-memory Authority
type Memory struct {
	mu       sync.Mutex
	sequence uint64
	assigned map[object.ServerTransactionID]uint64
	inflight map[uint64]object.ServerTransactionID
	applied  map[object.ServerTransactionID]struct{}
}

// enforce compilation error
var _ Authority = (*Memory)(nil)

// NewMemory creates an instance of Memory
func NewMemory() *Memory {
	return &Memory{
		assigned: make(map[object.ServerTransactionID]uint64),
		inflight: make(map[uint64]object.ServerTransactionID),
		applied:  make(map[object.ServerTransactionID]struct{}),
	}
}

// MarkApplied records transactions applied before a restart so that their
// replay skips the apply step.
func (m *Memory) MarkApplied(ids ...object.ServerTransactionID) {
	m.mu.Lock()
	for _, id := range ids {
		m.applied[id] = struct{}{}
	}
	m.mu.Unlock()
}

// InitiateApply implements Authority
func (m *Memory) InitiateApply(id object.ServerTransactionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.applied[id]; ok {
		return false
	}
	if _, ok := m.assigned[id]; !ok {
		m.sequence++
		m.assigned[id] = m.sequence
		m.inflight[m.sequence] = id
	}
	return true
}

// GlobalID implements Authority
func (m *Memory) GlobalID(id object.ServerTransactionID) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gid, ok := m.assigned[id]
	return gid, ok
}

// LowWatermark implements Authority
func (m *Memory) LowWatermark() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	low := m.sequence + 1
	for gid := range m.inflight {
		if gid < low {
			low = gid
		}
	}
	return low
}

// CurrentSequence implements Authority
func (m *Memory) CurrentSequence() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sequence
}

// Commit implements Authority
func (m *Memory) Commit(ids ...object.ServerTransactionID) {
	m.mu.Lock()
	for _, id := range ids {
		if gid, ok := m.assigned[id]; ok {
			delete(m.inflight, gid)
			delete(m.assigned, id)
		}
		m.applied[id] = struct{}{}
	}
	m.mu.Unlock()
}
