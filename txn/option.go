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

import (
	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/internal/validation"
	"github.com/objcoord/objcoord/log"
)

const (
	// DefaultMaxCommitSize caps the number of objects committed in one batch
	DefaultMaxCommitSize = 5000
	// DefaultMaxTxnsPerGrouping caps the number of transactions a grouping accepts
	DefaultMaxTxnsPerGrouping = 5000
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(*Coordinator)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Coordinator)

// Apply applies the option
func (f OptionFunc) Apply(c *Coordinator) {
	f(c)
}

// WithLogger sets the coordinator logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(c *Coordinator) {
		c.logger = logger
	})
}

// WithMaxCommitSize sets the maximum number of objects per commit batch.
// A batch never exceeds the cap unless it holds a single grouping larger than the cap.
func WithMaxCommitSize(size int) Option {
	return OptionFunc(func(c *Coordinator) {
		c.maxCommitSize = size
	})
}

// WithMaxTxnsPerGrouping sets the number of transactions after which a grouping
// stops accepting new members.
func WithMaxTxnsPerGrouping(count int) Option {
	return OptionFunc(func(c *Coordinator) {
		c.maxTxnsPerGrouping = count
	})
}

// WithSequencer sets the transaction sequencer
func WithSequencer(sequencer Sequencer) Option {
	return OptionFunc(func(c *Coordinator) {
		c.sequencer = sequencer
	})
}

func (c *Coordinator) validate() error {
	return validation.New(validation.AllErrors()).
		AddValidator(validation.NewPositiveValidator(c.maxCommitSize, gerrors.ErrInvalidMaxCommitSize)).
		AddValidator(validation.NewPositiveValidator(c.maxTxnsPerGrouping, gerrors.ErrInvalidMaxTxnsPerGrouping)).
		Validate()
}
