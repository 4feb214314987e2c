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

package natssink

import (
	"time"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/internal/validation"
)

const (
	// DefaultSubject is the subject prefix responses are published under
	DefaultSubject = "objcoord.locks.responses"
	// DefaultBufferSize is the number of responses buffered before Deliver blocks
	DefaultBufferSize = 1024
	// DefaultMaxRetries is the number of publish attempts per response
	DefaultMaxRetries = 5
)

// Config defines the NATS sink settings
type Config struct {
	// URL of the NATS server
	URL string
	// Subject is the prefix of the publish subject. A response to client C is
	// published under Subject.C
	Subject string
	// Name is the NATS connection name
	Name string
	// BufferSize bounds the responses waiting to be published
	BufferSize uint64
	// MaxRetries bounds the publish attempts of a response
	MaxRetries int
	// ConnectTimeout bounds a connection attempt
	ConnectTimeout time.Duration
}

// Sanitize sets the defaults of unset fields
func (c *Config) Sanitize() {
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 2 * time.Second
	}
}

// Validate checks the config
func (c *Config) Validate() error {
	return validation.New(validation.FailFast()).
		AddAssertion(c.URL != "", gerrors.ErrInvalidNatsURL).
		AddAssertion(c.Subject != "", gerrors.ErrInvalidPublishSubject).
		Validate()
}
