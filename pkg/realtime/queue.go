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

package realtime

import (
	"sync"

	"github.com/frostbyte73/core"
	"github.com/gammazero/deque"
	"github.com/livekit/protocol/logger"
)

type eventQueueParams struct {
	Logger logger.Logger
	Size   int
}

// eventQueue runs queued events one at a time, in order, on a single worker
// goroutine. Events queued before Start run once it is called.
type eventQueue struct {
	params eventQueueParams

	lock    sync.Mutex
	drained *sync.Cond
	events  *deque.Deque[func()]
	running bool
	started bool
	wake    chan struct{}
	closed  core.Fuse
}

func newEventQueue(params eventQueueParams) *eventQueue {
	q := &eventQueue{
		params: params,
		events: new(deque.Deque[func()]),
		wake:   make(chan struct{}, 1),
	}
	q.drained = sync.NewCond(&q.lock)
	return q
}

func (q *eventQueue) Start() {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.started || q.closed.IsBroken() {
		return
	}
	q.started = true
	go q.worker()
	q.notify()
}

// Close stops the worker. Events still queued are dropped.
func (q *eventQueue) Close() {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed.IsBroken() {
		return
	}
	q.closed.Break()
	if dropped := q.events.Len(); dropped > 0 {
		q.params.Logger.Debugw("dropping queued events", "count", dropped)
	}
	q.events.Clear()
	q.drained.Broadcast()
}

func (q *eventQueue) Enqueue(event func()) error {
	if event == nil {
		return nil
	}

	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed.IsBroken() {
		return ErrControllerClosed
	}
	if q.events.Len() >= q.params.Size {
		return ErrQueueFull
	}
	q.events.PushBack(event)
	q.notify()
	return nil
}

// Flush blocks until every queued event has run. It returns immediately if
// the queue was never started. Calling it from an event deadlocks.
func (q *eventQueue) Flush() {
	q.lock.Lock()
	defer q.lock.Unlock()

	for q.started && !q.closed.IsBroken() && (q.events.Len() > 0 || q.running) {
		q.drained.Wait()
	}
}

func (q *eventQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) worker() {
	for {
		select {
		case <-q.closed.Watch():
			return
		case <-q.wake:
		}

		for {
			q.lock.Lock()
			if q.events.Len() == 0 || q.closed.IsBroken() {
				q.running = false
				q.drained.Broadcast()
				q.lock.Unlock()
				break
			}
			event := q.events.PopFront()
			q.running = true
			q.lock.Unlock()

			event()
		}
	}
}
