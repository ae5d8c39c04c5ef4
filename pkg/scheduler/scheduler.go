// Copyright 2024 The MeetKit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/frostbyte73/core"
	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils/guid"
	"go.uber.org/atomic"
)

var ErrInvalidInterval = errors.New("interval must be positive")

type Option func(*Scheduler)

// WithClock sets the clock used for deadlines. Tests pass clock.NewMock()
// and drive the scheduler with Tick.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// Scheduler runs fixed-rate tasks from a single min-heap of next-fire times.
// It is driven either by its own goroutine (Start) or manually via Tick.
type Scheduler struct {
	clock  clock.Clock
	logger logger.Logger

	lock    sync.Mutex
	tasks   taskHeap
	seq     uint64
	started bool
	wake    chan struct{}
	stopped core.Fuse
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock.New(),
		logger: logger.GetLogger(),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("scheduler")
	return s
}

func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// Schedule runs fn every interval, the first time one interval from now.
// Missed periods are caught up on the next Tick.
func (s *Scheduler) Schedule(interval time.Duration, fn func(now time.Time)) (*Task, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	t := &Task{
		id:        guid.New("TK_"),
		interval:  interval,
		fn:        fn,
		scheduler: s,
	}

	s.lock.Lock()
	s.seq++
	t.seq = s.seq
	t.next = s.clock.Now().Add(interval)
	heap.Push(&s.tasks, t)
	s.lock.Unlock()

	s.logger.Debugw("task scheduled", "taskID", t.id, "interval", interval)
	s.notify()
	return t, nil
}

// Len returns the number of live tasks.
func (s *Scheduler) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tasks.Len()
}

// Tick fires every task due at the current clock time, earliest deadline
// first, and returns the number of callbacks run. Callbacks run without the
// scheduler lock held, so they may schedule or cancel tasks.
func (s *Scheduler) Tick() int {
	fired := 0
	for {
		s.lock.Lock()
		now := s.clock.Now()
		if s.tasks.Len() == 0 || s.tasks[0].next.After(now) {
			s.lock.Unlock()
			return fired
		}
		t := s.tasks[0]
		at := t.next
		t.next = t.next.Add(t.interval)
		heap.Fix(&s.tasks, 0)
		s.lock.Unlock()

		if t.canceled.Load() {
			continue
		}
		t.fn(at)
		fired++
	}
}

// Start launches the timer goroutine. It is a no-op when already started.
func (s *Scheduler) Start() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.started || s.stopped.IsBroken() {
		return
	}
	s.started = true
	go s.run()
}

// Stop halts the timer goroutine. Tasks stay registered and can still be
// driven with Tick.
func (s *Scheduler) Stop() {
	s.stopped.Break()
}

func (s *Scheduler) run() {
	for {
		var timer *clock.Timer
		var fire <-chan time.Time

		s.lock.Lock()
		if s.tasks.Len() > 0 {
			timer = s.clock.Timer(s.clock.Until(s.tasks[0].next))
			fire = timer.C
		}
		s.lock.Unlock()

		select {
		case <-s.stopped.Watch():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-fire:
			s.Tick()
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) remove(t *Task) {
	s.lock.Lock()
	if t.index >= 0 && t.index < s.tasks.Len() && s.tasks[t.index] == t {
		heap.Remove(&s.tasks, t.index)
	}
	s.lock.Unlock()
	s.notify()
}

// Task is a handle to a scheduled callback.
type Task struct {
	id        string
	interval  time.Duration
	fn        func(now time.Time)
	scheduler *Scheduler

	// guarded by scheduler.lock
	seq   uint64
	next  time.Time
	index int

	canceled atomic.Bool
}

func (t *Task) ID() string {
	return t.id
}

func (t *Task) Interval() time.Duration {
	return t.interval
}

// Cancel stops the task. A canceled task never fires again, including a
// firing that a concurrent Tick has already picked up but not yet started.
func (t *Task) Cancel() {
	if t == nil || t.canceled.Swap(true) {
		return
	}
	t.scheduler.remove(t)
	t.scheduler.logger.Debugw("task canceled", "taskID", t.id)
}

func (t *Task) Canceled() bool {
	return t.canceled.Load()
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].next.Equal(h[j].next) {
		// equal deadlines fire in scheduling order
		return h[i].seq < h[j].seq
	}
	return h[i].next.Before(h[j].next)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
