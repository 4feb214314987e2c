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
	"github.com/objcoord/objcoord/log"
)

// DefaultShardCount is the default number of lock registry shards
const DefaultShardCount = 32

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(*Table)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Table)

// Apply applies the option
func (f OptionFunc) Apply(t *Table) {
	f(t)
}

// WithLogger sets the lock table logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(t *Table) {
		t.logger = logger
	})
}

// WithShardCount sets the number of registry shards
func WithShardCount(count int) Option {
	return OptionFunc(func(t *Table) {
		t.shardCount = count
	})
}

// WithTimer sets the timer running try lock and wait timeouts
func WithTimer(timer Timer) Option {
	return OptionFunc(func(t *Table) {
		t.timer = timer
	})
}
