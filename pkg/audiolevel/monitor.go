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

package audiolevel

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
	"github.com/meetkit/meeting-sdk-go/pkg/config"
)

const (
	silentAudioLevel = 127
	negInv20         = -1.0 / 20
)

// VolumeLevelFromAudioLevel maps an RFC 6464 level in -dBov (0 is loudest,
// 127 is silence) to a volume level using the thresholds of conf.
func VolumeLevelFromAudioLevel(conf config.AudioLevelConfig, level uint8, voice bool) audiovideo.VolumeLevel {
	if !voice {
		return audiovideo.VolumeLevelNotSpeaking
	}
	switch {
	case level <= conf.HighLevel:
		return audiovideo.VolumeLevelHigh
	case level <= conf.MediumLevel:
		return audiovideo.VolumeLevelMedium
	case level <= conf.LowLevel:
		return audiovideo.VolumeLevelLow
	default:
		return audiovideo.VolumeLevelNotSpeaking
	}
}

// ConvertAudioLevel converts -dBov to a linear level in [0, 1].
func ConvertAudioLevel(level float64) float64 {
	return math.Pow(10, level*negInv20)
}

type MonitorOption func(*Monitor)

func WithClock(c clock.Clock) MonitorOption {
	return func(m *Monitor) {
		m.clock = c
	}
}

func WithConfig(conf config.AudioLevelConfig) MonitorOption {
	return func(m *Monitor) {
		m.conf = conf
	}
}

// WithStaleAfter sets how long an attendee may go without packets before
// it is treated as silent.
func WithStaleAfter(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.staleAfter = d
	}
}

type attendeeLevel struct {
	smoothed     atomic.Float64
	muted        atomic.Bool
	lastObserved atomic.Int64

	// guarded by Monitor.lock
	reported    audiovideo.VolumeLevel
	hasReported bool
}

// Monitor turns per-packet audio levels into coarse volume levels, smoothing
// each attendee with an exponential moving average.
type Monitor struct {
	conf       config.AudioLevelConfig
	clock      clock.Clock
	staleAfter time.Duration

	smoothFactor float64
	highLinear   float64
	mediumLinear float64
	lowLinear    float64

	lock      sync.Mutex
	levels    map[audiovideo.AttendeeInfo]*attendeeLevel
	attendees []audiovideo.AttendeeInfo
}

func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		conf:       config.DefaultConfig.AudioLevel,
		clock:      clock.New(),
		staleAfter: time.Second,
		levels:     make(map[audiovideo.AttendeeInfo]*attendeeLevel),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.smoothFactor = 1
	if m.conf.SmoothIntervals > 0 {
		// same center of mass as a simple moving average over SmoothIntervals
		m.smoothFactor = 2 / float64(m.conf.SmoothIntervals+1)
	}
	m.highLinear = ConvertAudioLevel(float64(m.conf.HighLevel))
	m.mediumLinear = ConvertAudioLevel(float64(m.conf.MediumLevel))
	m.lowLinear = ConvertAudioLevel(float64(m.conf.LowLevel))
	return m
}

func (m *Monitor) get(attendee audiovideo.AttendeeInfo) *attendeeLevel {
	m.lock.Lock()
	defer m.lock.Unlock()

	l, ok := m.levels[attendee]
	if !ok {
		l = &attendeeLevel{}
		m.levels[attendee] = l
		m.attendees = append(m.attendees, attendee)
	}
	return l
}

// VolumeLevel maps a single unsmoothed packet level with the thresholds of
// the monitor.
func (m *Monitor) VolumeLevel(level uint8, voice bool) audiovideo.VolumeLevel {
	return VolumeLevelFromAudioLevel(m.conf, level, voice)
}

// Observe records the level carried by one packet. Calls for the same
// attendee must come from a single goroutine.
func (m *Monitor) Observe(attendee audiovideo.AttendeeInfo, level uint8, voice bool) {
	l := m.get(attendee)

	linear := 0.0
	if voice && level < silentAudioLevel {
		linear = ConvertAudioLevel(float64(level))
	}
	// lastObserved goes first so a stale reset in volumeLevel can only hit
	// the value this packet replaces
	l.lastObserved.Store(m.clock.Now().UnixNano())
	smoothed := l.smoothed.Load()
	smoothed += (linear - smoothed) * m.smoothFactor
	l.smoothed.Store(smoothed)
}

func (m *Monitor) SetMuted(attendee audiovideo.AttendeeInfo, muted bool) {
	m.get(attendee).muted.Store(muted)
}

func (m *Monitor) Remove(attendee audiovideo.AttendeeInfo) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.levels[attendee]; !ok {
		return
	}
	delete(m.levels, attendee)
	for i, a := range m.attendees {
		if a == attendee {
			m.attendees = append(m.attendees[:i], m.attendees[i+1:]...)
			break
		}
	}
}

// Level returns the smoothed linear level of an attendee.
func (m *Monitor) Level(attendee audiovideo.AttendeeInfo) float64 {
	m.lock.Lock()
	l, ok := m.levels[attendee]
	m.lock.Unlock()
	if !ok {
		return 0
	}
	return l.smoothed.Load()
}

func (m *Monitor) volumeLevel(l *attendeeLevel, now time.Time) audiovideo.VolumeLevel {
	if l.muted.Load() {
		return audiovideo.VolumeLevelMuted
	}
	smoothed := l.smoothed.Load()
	if now.Sub(time.Unix(0, l.lastObserved.Load())) > m.staleAfter {
		l.smoothed.CompareAndSwap(smoothed, 0)
		return audiovideo.VolumeLevelNotSpeaking
	}

	switch {
	case smoothed >= m.highLinear:
		return audiovideo.VolumeLevelHigh
	case smoothed >= m.mediumLinear:
		return audiovideo.VolumeLevelMedium
	case smoothed >= m.lowLinear:
		return audiovideo.VolumeLevelLow
	default:
		return audiovideo.VolumeLevelNotSpeaking
	}
}

// Flush returns the attendees whose volume level changed since the previous
// Flush, in the order they were first seen.
func (m *Monitor) Flush() []audiovideo.VolumeUpdate {
	now := m.clock.Now()

	m.lock.Lock()
	defer m.lock.Unlock()

	var updates []audiovideo.VolumeUpdate
	for _, a := range m.attendees {
		l := m.levels[a]
		level := m.volumeLevel(l, now)
		if l.hasReported && l.reported == level {
			continue
		}
		l.reported = level
		l.hasReported = true
		updates = append(updates, audiovideo.VolumeUpdate{AttendeeInfo: a, VolumeLevel: level})
	}
	return updates
}

// Snapshot returns the current level of every attendee in the form the
// realtime controller expects from an audio client.
func (m *Monitor) Snapshot() []audiovideo.AttendeeUpdate {
	now := m.clock.Now()

	m.lock.Lock()
	defer m.lock.Unlock()

	updates := make([]audiovideo.AttendeeUpdate, 0, len(m.attendees))
	for _, a := range m.attendees {
		updates = append(updates, audiovideo.AttendeeUpdate{
			AttendeeID:     a.AttendeeID,
			ExternalUserID: a.ExternalUserID,
			Data:           int(m.volumeLevel(m.levels[a], now)),
		})
	}
	return updates
}
