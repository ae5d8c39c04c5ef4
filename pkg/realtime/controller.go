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
	"errors"
	"sync"

	"github.com/livekit/protocol/logger"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
	"github.com/meetkit/meeting-sdk-go/pkg/config"
)

var (
	ErrControllerClosed = errors.New("realtime controller is closed")
	ErrQueueFull        = errors.New("realtime event queue is full")
)

type Option func(*Controller)

func WithAudioClient(client AudioClient) Option {
	return func(c *Controller) {
		c.audioClient = client
	}
}

// WithLocalAttendee sets the attendee of this session. Updates for it that
// carry no external user ID get the one given here.
func WithLocalAttendee(attendee audiovideo.AttendeeInfo) Option {
	return func(c *Controller) {
		c.local = attendee
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

func WithQueueSize(size int) Option {
	return func(c *Controller) {
		c.queueSize = size
	}
}

func WithConfig(conf config.RealtimeConfig) Option {
	return func(c *Controller) {
		c.queueSize = conf.QueueSize
	}
}

// Controller turns raw audio client updates into realtime events. Volume and
// signal updates are full snapshots; only the attendees whose value changed
// are reported. All observers are called from one goroutine in event order.
type Controller struct {
	audioClient AudioClient
	local       audiovideo.AttendeeInfo
	logger      logger.Logger
	queueSize   int
	queue       *eventQueue

	lock      sync.RWMutex
	observers []Observer
	volumes   map[string]audiovideo.VolumeLevel
	signals   map[string]audiovideo.SignalStrength
	present   map[audiovideo.AttendeeInfo]struct{}
}

func NewController(opts ...Option) *Controller {
	c := &Controller{
		logger:    logger.GetLogger(),
		queueSize: config.DefaultConfig.Realtime.QueueSize,
		volumes:   make(map[string]audiovideo.VolumeLevel),
		signals:   make(map[string]audiovideo.SignalStrength),
		present:   make(map[audiovideo.AttendeeInfo]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("realtime")
	c.queue = newEventQueue(eventQueueParams{
		Logger: c.logger,
		Size:   c.queueSize,
	})
	return c
}

// Start begins delivering events to observers.
func (c *Controller) Start() {
	c.queue.Start()
}

func (c *Controller) Close() {
	c.queue.Close()
}

// Flush waits until every event handled so far has reached the observers.
func (c *Controller) Flush() {
	c.queue.Flush()
}

func (c *Controller) AddRealtimeObserver(observer Observer) {
	if observer == nil {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	for _, o := range c.observers {
		if o == observer {
			return
		}
	}
	observers := make([]Observer, 0, len(c.observers)+1)
	observers = append(observers, c.observers...)
	c.observers = append(observers, observer)
}

func (c *Controller) RemoveRealtimeObserver(observer Observer) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i, o := range c.observers {
		if o == observer {
			observers := make([]Observer, 0, len(c.observers)-1)
			observers = append(observers, c.observers[:i]...)
			c.observers = append(observers, c.observers[i+1:]...)
			return
		}
	}
}

func (c *Controller) RealtimeLocalMute() bool {
	return c.setMute(true)
}

func (c *Controller) RealtimeLocalUnmute() bool {
	return c.setMute(false)
}

func (c *Controller) setMute(mute bool) bool {
	if c.audioClient == nil {
		c.logger.Warnw("cannot change mute state without an audio client", nil, "mute", mute)
		return false
	}
	ok := c.audioClient.SetMute(mute)
	c.logger.Debugw("local mute state changed", "mute", mute, "success", ok)
	return ok
}

// HandleVolumeStateChange takes the full volume snapshot from the audio
// client. Mute and unmute transitions are dispatched before the volume
// changes. A nil snapshot is ignored.
func (c *Controller) HandleVolumeStateChange(updates []audiovideo.AttendeeUpdate) error {
	if updates == nil {
		return nil
	}

	var changed []audiovideo.VolumeUpdate
	var muted, unmuted []audiovideo.AttendeeInfo

	c.lock.Lock()
	next := make(map[string]audiovideo.VolumeLevel, len(updates))
	for _, u := range updates {
		level, ok := audiovideo.VolumeLevelFrom(u.Data)
		if !ok {
			c.logger.Debugw("ignoring unknown volume level", "attendeeID", u.AttendeeID, "level", u.Data)
			continue
		}
		next[u.AttendeeID] = level

		prev, seen := c.volumes[u.AttendeeID]
		if seen && prev == level {
			continue
		}
		info := c.attendeeInfo(u)
		changed = append(changed, audiovideo.VolumeUpdate{AttendeeInfo: info, VolumeLevel: level})
		if level == audiovideo.VolumeLevelMuted {
			muted = append(muted, info)
		}
		if seen && prev == audiovideo.VolumeLevelMuted {
			unmuted = append(unmuted, info)
		}
	}
	c.volumes = next
	c.lock.Unlock()

	if len(changed) == 0 {
		return nil
	}
	return c.dispatch(func(o Observer) {
		if len(muted) > 0 {
			o.OnAttendeesMuted(muted)
		}
		if len(unmuted) > 0 {
			o.OnAttendeesUnmuted(unmuted)
		}
		o.OnVolumeChanged(changed)
	})
}

// HandleSignalStrengthChange takes the full signal strength snapshot from
// the audio client.
func (c *Controller) HandleSignalStrengthChange(updates []audiovideo.AttendeeUpdate) error {
	if updates == nil {
		return nil
	}

	var changed []audiovideo.SignalUpdate

	c.lock.Lock()
	next := make(map[string]audiovideo.SignalStrength, len(updates))
	for _, u := range updates {
		strength, ok := audiovideo.SignalStrengthFrom(u.Data)
		if !ok {
			c.logger.Debugw("ignoring unknown signal strength", "attendeeID", u.AttendeeID, "strength", u.Data)
			continue
		}
		next[u.AttendeeID] = strength

		if prev, seen := c.signals[u.AttendeeID]; seen && prev == strength {
			continue
		}
		changed = append(changed, audiovideo.SignalUpdate{AttendeeInfo: c.attendeeInfo(u), SignalStrength: strength})
	}
	c.signals = next
	c.lock.Unlock()

	if len(changed) == 0 {
		return nil
	}
	return c.dispatch(func(o Observer) {
		o.OnSignalStrengthChanged(changed)
	})
}

// HandlePresenceChange takes presence deltas from the audio client. The
// client may repeat joins, which are reported once.
func (c *Controller) HandlePresenceChange(updates []audiovideo.AttendeeUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	var joined, left, dropped []audiovideo.AttendeeInfo

	c.lock.Lock()
	for _, u := range updates {
		status, ok := audiovideo.AttendeeStatusFrom(u.Data)
		if !ok {
			c.logger.Debugw("ignoring unknown attendee status", "attendeeID", u.AttendeeID, "status", u.Data)
			continue
		}
		info := c.attendeeInfo(u)
		switch status {
		case audiovideo.AttendeeStatusJoined:
			if _, ok := c.present[info]; !ok {
				c.present[info] = struct{}{}
				joined = append(joined, info)
			}
		case audiovideo.AttendeeStatusLeft:
			left = append(left, info)
		case audiovideo.AttendeeStatusDropped:
			dropped = append(dropped, info)
		}
	}
	for _, info := range left {
		delete(c.present, info)
	}
	for _, info := range dropped {
		delete(c.present, info)
	}
	c.lock.Unlock()

	if len(joined) > 0 {
		c.logger.Debugw("attendees joined", "attendees", audiovideo.AttendeeInfoList(joined))
	}
	if len(left) > 0 {
		c.logger.Debugw("attendees left", "attendees", audiovideo.AttendeeInfoList(left))
	}
	if len(dropped) > 0 {
		c.logger.Debugw("attendees dropped", "attendees", audiovideo.AttendeeInfoList(dropped))
	}

	if len(joined)+len(left)+len(dropped) == 0 {
		return nil
	}
	return c.dispatch(func(o Observer) {
		if len(joined) > 0 {
			o.OnAttendeesJoined(joined)
		}
		if len(left) > 0 {
			o.OnAttendeesLeft(left)
		}
		if len(dropped) > 0 {
			o.OnAttendeesDropped(dropped)
		}
	})
}

func (c *Controller) attendeeInfo(u audiovideo.AttendeeUpdate) audiovideo.AttendeeInfo {
	externalUserID := u.ExternalUserID
	if externalUserID == "" && u.AttendeeID == c.local.AttendeeID {
		externalUserID = c.local.ExternalUserID
	}
	return audiovideo.AttendeeInfo{
		AttendeeID:     u.AttendeeID,
		ExternalUserID: externalUserID,
	}
}

// dispatch queues fn to run for every observer registered when the event is
// delivered.
func (c *Controller) dispatch(fn func(o Observer)) error {
	err := c.queue.Enqueue(func() {
		c.lock.RLock()
		observers := c.observers
		c.lock.RUnlock()

		for _, o := range observers {
			fn(o)
		}
	})
	if err != nil {
		c.logger.Warnw("could not dispatch realtime event", err)
	}
	return err
}
