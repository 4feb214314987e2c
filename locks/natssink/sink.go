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

// Package natssink publishes lock responses to clients over NATS.
package natssink

import (
	"context"
	"errors"
	"fmt"
	"time"

	gods "github.com/Workiva/go-datastructures/queue"
	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"

	gerrors "github.com/objcoord/objcoord/errors"
	"github.com/objcoord/objcoord/locks"
	"github.com/objcoord/objcoord/log"
)

// Sink is a locks.Sink publishing every response on the subject of its
// client. Deliver only buffers; a single publisher goroutine drains the
// buffer in order.
type Sink struct {
	config    *Config
	conn      *nats.Conn
	buffer    *gods.RingBuffer
	retrier   *retry.Retrier
	logger    log.Logger
	closed    *atomic.Bool
	published *atomic.Int64
	failed    *atomic.Int64
	done      chan struct{}
}

// enforce compilation error
var _ locks.Sink = (*Sink)(nil)

// New connects to the NATS server and starts the publisher
func New(config *Config, logger log.Logger) (*Sink, error) {
	if config == nil {
		return nil, errors.New("natssink: config is nil")
	}
	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.DefaultLogger
	}

	opts := nats.GetDefaultOptions()
	opts.Url = config.URL
	opts.Name = config.Name
	opts.Timeout = config.ConnectTimeout
	opts.ReconnectWait = 2 * time.Second
	opts.MaxReconnect = -1

	// attempt to connect with an exponential backoff
	var conn *nats.Conn
	retrier := retry.NewRetrier(config.MaxRetries, 100*time.Millisecond, opts.ReconnectWait)
	if err := retrier.Run(func() error {
		var err error
		conn, err = opts.Connect()
		return err
	}); err != nil {
		return nil, fmt.Errorf("natssink: failed to connect to %s: %w", config.URL, err)
	}

	s := &Sink{
		config:    config,
		conn:      conn,
		buffer:    gods.NewRingBuffer(config.BufferSize),
		retrier:   retry.NewRetrier(config.MaxRetries, 10*time.Millisecond, 500*time.Millisecond),
		logger:    logger.With("component", "natssink"),
		closed:    atomic.NewBool(false),
		published: atomic.NewInt64(0),
		failed:    atomic.NewInt64(0),
		done:      make(chan struct{}),
	}
	go s.publish()
	return s, nil
}

// Deliver implements locks.Sink. It blocks while the buffer is full.
func (s *Sink) Deliver(_ context.Context, responses ...*locks.Response) error {
	if s.closed.Load() {
		return gerrors.ErrSinkClosed
	}
	for _, response := range responses {
		if err := s.buffer.Put(response); err != nil {
			return gerrors.ErrSinkClosed
		}
	}
	return nil
}

// Subject returns the subject responses to the given client are published under
func (s *Sink) Subject(client locks.ClientID) string {
	return s.config.Subject + "." + string(client)
}

// Published returns the number of responses published
func (s *Sink) Published() int64 {
	return s.published.Load()
}

// Failed returns the number of responses dropped after exhausting retries
func (s *Sink) Failed() int64 {
	return s.failed.Load()
}

// Close waits for the buffered responses to be published, or for ctx to be
// done, then stops the publisher and closes the connection
func (s *Sink) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for s.buffer.Len() > 0 {
		select {
		case <-ctx.Done():
			s.logger.Warnf("dropping %d unpublished lock responses", s.buffer.Len())
			s.buffer.Dispose()
			<-s.done
			s.conn.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	s.buffer.Dispose()
	<-s.done
	err := s.conn.FlushWithContext(ctx)
	s.conn.Close()
	return err
}

func (s *Sink) publish() {
	defer close(s.done)
	ctx := context.Background()
	for {
		item, err := s.buffer.Get()
		if err != nil {
			// the buffer is disposed
			return
		}

		response := item.(*locks.Response)
		payload := Marshal(response)
		subject := s.Subject(response.Client)
		if err := s.retrier.RunContext(ctx, func(context.Context) error {
			return s.conn.Publish(subject, payload)
		}); err != nil {
			s.failed.Inc()
			s.logger.Errorf("failed to publish %s: %v", response, err)
			continue
		}
		s.published.Inc()
	}
}
