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

package store

import (
	"github.com/objcoord/objcoord/log"
	"github.com/objcoord/objcoord/object"
)

// Option is the interface that applies a configuration option to the memory store.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(*Memory)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Memory)

// Apply applies the option
func (f OptionFunc) Apply(m *Memory) {
	f(m)
}

// WithLogger sets the store logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(m *Memory) {
		m.logger = logger
	})
}

// WithFactory sets the factory used to build created objects
func WithFactory(factory object.Factory) Option {
	return OptionFunc(func(m *Memory) {
		m.factory = factory
	})
}
