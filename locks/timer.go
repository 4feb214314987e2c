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
	"sync"
	"time"

	"github.com/reugn/go-quartz/job"
	quartzlogger "github.com/reugn/go-quartz/logger"
	"github.com/reugn/go-quartz/quartz"

	"github.com/objcoord/objcoord/log"
)

// Timer runs lock timeouts
type Timer interface {
	Start(ctx context.Context)
	Stop(ctx context.Context)
	// Schedule runs fn once after the given duration unless the key is cancelled first
	Schedule(key string, after time.Duration, fn func()) error
	Cancel(key string)
}

type quartzTimer struct {
	mu          sync.Mutex
	scheduler   quartz.Scheduler
	stopTimeout time.Duration
	logger      log.Logger
}

// enforce compilation error
var _ Timer = (*quartzTimer)(nil)

// NewQuartzTimer creates a Timer backed by a quartz scheduler
func NewQuartzTimer(logger log.Logger) Timer {
	// create an instance of quartz scheduler with logger off
	scheduler, _ := quartz.NewStdScheduler(quartz.WithLogger(quartzlogger.NewSimpleLogger(nil, quartzlogger.LevelOff)))
	return &quartzTimer{
		scheduler:   scheduler,
		stopTimeout: 3 * time.Second,
		logger:      logger,
	}
}

func (x *quartzTimer) Start(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.scheduler.IsStarted() {
		return
	}
	x.scheduler.Start(ctx)
}

func (x *quartzTimer) Stop(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.scheduler.IsStarted() {
		return
	}

	_ = x.scheduler.Clear()
	x.scheduler.Stop()

	ctx, cancel := context.WithTimeout(ctx, x.stopTimeout)
	defer cancel()
	x.scheduler.Wait(ctx)
}

func (x *quartzTimer) Schedule(key string, after time.Duration, fn func()) error {
	job := job.NewFunctionJob[bool](
		func(context.Context) (bool, error) {
			fn()
			return true, nil
		},
	)

	detail := quartz.NewJobDetail(job, quartz.NewJobKey(key))
	return x.scheduler.ScheduleJob(detail, quartz.NewRunOnceTrigger(after))
}

func (x *quartzTimer) Cancel(key string) {
	if err := x.scheduler.DeleteJob(quartz.NewJobKey(key)); err != nil {
		x.logger.Debugf("lock timeout %s already fired: %v", key, err)
	}
}
