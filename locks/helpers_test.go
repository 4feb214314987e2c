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
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/objcoord/objcoord/log"
)

// manualTimer fires timeouts only when the test asks it to
type manualTimer struct {
	mu   sync.Mutex
	jobs map[string]func()
}

var _ Timer = (*manualTimer)(nil)

func newManualTimer() *manualTimer {
	return &manualTimer{jobs: make(map[string]func())}
}

func (m *manualTimer) Start(context.Context) {}
func (m *manualTimer) Stop(context.Context)  {}

func (m *manualTimer) Schedule(key string, _ time.Duration, fn func()) error {
	m.mu.Lock()
	m.jobs[key] = fn
	m.mu.Unlock()
	return nil
}

func (m *manualTimer) Cancel(key string) {
	m.mu.Lock()
	delete(m.jobs, key)
	m.mu.Unlock()
}

func (m *manualTimer) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// fireAll runs every scheduled timeout outside of the timer mutex
func (m *manualTimer) fireAll() {
	m.mu.Lock()
	keys := make([]string, 0, len(m.jobs))
	for key := range m.jobs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	jobs := make([]func(), 0, len(keys))
	for _, key := range keys {
		jobs = append(jobs, m.jobs[key])
		delete(m.jobs, key)
	}
	m.mu.Unlock()

	for _, job := range jobs {
		job()
	}
}

func newTestTable(t *testing.T, opts ...Option) (*Table, *MemorySink, *manualTimer) {
	t.Helper()
	sink := NewMemorySink()
	timer := newManualTimer()
	opts = append([]Option{WithLogger(log.DiscardLogger), WithTimer(timer)}, opts...)
	table, err := NewTable(sink, opts...)
	require.NoError(t, err)
	return table, sink, timer
}

func award(lock ID, client ClientID, thread ThreadID, level Level) *Response {
	return &Response{Type: Award, Lock: lock, Client: client, Thread: thread, Level: level}
}

func recall(lock ID, client ClientID, level Level) *Response {
	return &Response{Type: Recall, Lock: lock, Client: client, Thread: GreedyThreadID, Level: level}
}

func cannotAward(lock ID, client ClientID, thread ThreadID, level Level) *Response {
	return &Response{Type: CannotAward, Lock: lock, Client: client, Thread: thread, Level: level}
}

func snapshot(t *testing.T, table *Table, id ID) *Snapshot {
	t.Helper()
	snap, ok := table.Snapshot(id)
	require.True(t, ok)
	return snap
}
