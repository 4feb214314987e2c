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
	"fmt"
	"time"
)

// ID identifies a lockable resource
type ID string

// ClientID identifies a client node
type ClientID string

// ThreadID identifies a thread within a client
type ThreadID int64

// GreedyThreadID is the thread id of greedy holds: a greedy hold belongs to
// the whole client rather than one of its threads.
const GreedyThreadID ThreadID = -1

// String returns the thread id as a string
func (x ThreadID) String() string {
	if x == GreedyThreadID {
		return "greedy"
	}
	return fmt.Sprintf("%d", int64(x))
}

// Level is a lock level
type Level int

const (
	// Read is a shared level
	Read Level = iota + 1
	// Write is an exclusive level
	Write
)

// String returns the level as a string
func (l Level) String() string {
	switch l {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "invalid"
	}
}

// IsValid returns true when the level is Read or Write
func (l Level) IsValid() bool {
	return l == Read || l == Write
}

// ContextType is the state of a lock context
type ContextType int

const (
	Pending ContextType = iota + 1
	TryPending
	Holder
	GreedyHolder
	Waiter
)

// String returns the context type as a string
func (t ContextType) String() string {
	switch t {
	case Pending:
		return "pending"
	case TryPending:
		return "try-pending"
	case Holder:
		return "holder"
	case GreedyHolder:
		return "greedy-holder"
	case Waiter:
		return "waiter"
	default:
		return "invalid"
	}
}

// Context is the state a client thread has on a lock. Clients report their
// local contexts with it when they answer a recall.
type Context struct {
	Client ClientID
	Thread ThreadID
	Level  Level
	Type   ContextType
	// Timeout is the remaining time of a TryPending or Waiter context.
	// A non-positive timeout means no deadline.
	Timeout time.Duration
}

// String returns the context as a string
func (c Context) String() string {
	return fmt.Sprintf("%s/%s %s %s", c.Client, c.Thread, c.Type, c.Level)
}

// Snapshot is a point-in-time copy of a lock's state
type Snapshot struct {
	ID       ID
	Recalled bool
	Contexts []Context
}

// Holders returns the holder and greedy holder contexts
func (s *Snapshot) Holders() []Context {
	var holders []Context
	for _, c := range s.Contexts {
		if c.Type == Holder || c.Type == GreedyHolder {
			holders = append(holders, c)
		}
	}
	return holders
}

// Find returns the context of the given client thread
func (s *Snapshot) Find(client ClientID, thread ThreadID) (Context, bool) {
	for _, c := range s.Contexts {
		if c.Client == client && c.Thread == thread {
			return c, true
		}
	}
	return Context{}, false
}
