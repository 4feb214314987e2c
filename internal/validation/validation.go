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

// Package validation runs configuration checks and reports their violations.
package validation

import (
	"github.com/objcoord/objcoord/internal/errorschain"
)

// Validator checks a single configuration value
type Validator interface {
	Validate() error
}

// ValidatorFunc implements Validator
type ValidatorFunc func() error

// Validate implements Validator
func (f ValidatorFunc) Validate() error {
	return f()
}

// Chain runs validators in insertion order
type Chain struct {
	failFast   bool
	validators []Validator
}

// ChainOption configures a validation chain at creation time.
type ChainOption func(*Chain)

// New creates a new validation chain. It reports every violation unless
// FailFast is set.
func New(opts ...ChainOption) *Chain {
	chain := new(Chain)
	for _, opt := range opts {
		opt(chain)
	}
	return chain
}

// FailFast stops the chain at the first violation
func FailFast() ChainOption {
	return func(c *Chain) { c.failFast = true }
}

// AllErrors reports every violation
func AllErrors() ChainOption {
	return func(c *Chain) { c.failFast = false }
}

// AddValidator adds validator to the validation chain.
func (c *Chain) AddValidator(v Validator) *Chain {
	c.validators = append(c.validators, v)
	return c
}

// AddAssertion fails with err when isTrue is false
func (c *Chain) AddAssertion(isTrue bool, err error) *Chain {
	return c.AddValidator(NewConditionValidator(isTrue, err))
}

// Validate runs the chain
func (c *Chain) Validate() error {
	mode := errorschain.ReturnAll()
	if c.failFast {
		mode = errorschain.ReturnFirst()
	}
	errs := errorschain.New(mode)
	for _, v := range c.validators {
		errs = errs.AddErrorFn(v.Validate)
	}
	return errs.Error()
}
