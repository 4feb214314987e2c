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
	"fmt"
	"sync"
)

// ResponseType is the kind of a lock response
type ResponseType int

const (
	// Award tells a client its request is granted
	Award ResponseType = iota + 1
	// Recall asks a greedy holder to give up its greedy hold
	Recall
	// CannotAward tells a client its try lock is refused or expired
	CannotAward
	// WaitTimeout tells a client its wait timed out and it is queued again
	WaitTimeout
)

// String returns the response type as a string
func (t ResponseType) String() string {
	switch t {
	case Award:
		return "award"
	case Recall:
		return "recall"
	case CannotAward:
		return "cannot-award"
	case WaitTimeout:
		return "wait-timeout"
	default:
		return "invalid"
	}
}

// Response is an outbound lock message to a client
type Response struct {
	Type   ResponseType
	Lock   ID
	Client ClientID
	Thread ThreadID
	Level  Level
}

// String returns the response as a string
func (r *Response) String() string {
	return fmt.Sprintf("%s %s to %s/%s (%s)", r.Type, r.Lock, r.Client, r.Thread, r.Level)
}

// Sink delivers lock responses to clients. Deliver is never called while a
// lock is held.
type Sink interface {
	Deliver(ctx context.Context, responses ...*Response) error
}

// SinkFunc implements Sink
type SinkFunc func(ctx context.Context, responses ...*Response) error

// Deliver implements Sink
func (f SinkFunc) Deliver(ctx context.Context, responses ...*Response) error {
	return f(ctx, responses...)
}

// MemorySink keeps responses in memory
type MemorySink struct {
	mu        sync.Mutex
	responses []*Response
}

// enforce compilation error
var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an instance of MemorySink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Deliver implements Sink
func (s *MemorySink) Deliver(_ context.Context, responses ...*Response) error {
	s.mu.Lock()
	s.responses = append(s.responses, responses...)
	s.mu.Unlock()
	return nil
}

// Responses returns a copy of every delivered response
func (s *MemorySink) Responses() []*Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Response, len(s.responses))
	copy(out, s.responses)
	return out
}

// Take returns the delivered responses and clears the sink
func (s *MemorySink) Take() []*Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.responses
	s.responses = nil
	return out
}
