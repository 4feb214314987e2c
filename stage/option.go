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
	"github.com/objcoord/objcoord/log"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(*Runner)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Runner)

// Apply applies the option
func (f OptionFunc) Apply(r *Runner) {
	f(r)
}

// WithLogger sets the runner logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(r *Runner) {
		r.logger = logger
	})
}

// WithApplier sets the applier used by the apply stage
func WithApplier(applier Applier) Option {
	return OptionFunc(func(r *Runner) {
		r.applier = applier
	})
}

// WithCommitters adds committers invoked for every commit batch, in order,
// before the batch objects are released to the store
func WithCommitters(committers ...Committer) Option {
	return OptionFunc(func(r *Runner) {
		r.committers = append(r.committers, committers...)
	})
}

// WithObserver sets the observer notified of applied and committed work
func WithObserver(observer Observer) Option {
	return OptionFunc(func(r *Runner) {
		r.observer = observer
	})
}

// WithFatalHandler sets the handler receiving the first fatal error raised by a stage
func WithFatalHandler(handler func(error)) Option {
	return OptionFunc(func(r *Runner) {
		r.fatalHandler = handler
	})
}
