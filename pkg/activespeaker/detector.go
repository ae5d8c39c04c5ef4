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

package activespeaker

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/livekit/protocol/logger"
	"golang.org/x/exp/slices"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
	"github.com/meetkit/meeting-sdk-go/pkg/config"
	"github.com/meetkit/meeting-sdk-go/pkg/scheduler"
)

type Option func(*Detector)

// WithScheduler shares an existing scheduler. The detector never starts or
// stops a scheduler it does not own.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(d *Detector) {
		d.scheduler = s
	}
}

// WithClock sets the clock of the scheduler the detector creates. It is
// ignored when WithScheduler is given.
func WithClock(c clock.Clock) Option {
	return func(d *Detector) {
		d.clock = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		d.logger = l
	}
}

// WithActivityUpdateInterval sets how often idle attendees are re-scored.
func WithActivityUpdateInterval(interval time.Duration) Option {
	return func(d *Detector) {
		d.activityUpdateInterval = interval
	}
}

// WithActivityWaitInterval sets how long an attendee may go without a
// volume update before it is re-scored with its last known volume.
func WithActivityWaitInterval(interval time.Duration) Option {
	return func(d *Detector) {
		d.activityWaitInterval = interval
	}
}

func WithConfig(conf config.ActiveSpeakerConfig) Option {
	return func(d *Detector) {
		d.activityUpdateInterval = conf.ActivityUpdateInterval
		d.activityWaitInterval = conf.ActivityWaitInterval
	}
}

type policyState struct {
	policy Policy
	scores *scoreMap
	refs   int
}

type registration struct {
	observer Observer
	policy   *policyState
	task     *scheduler.Task

	// last list computed for OnActiveSpeakerDetected
	active []audiovideo.AttendeeInfo
	// bumped on every change of active
	seq uint64

	// held while OnActiveSpeakerDetected runs
	deliver sync.Mutex
}

type emission struct {
	reg    *registration
	seq    uint64
	active []audiovideo.AttendeeInfo
}

// Detector aggregates policy scores over the meeting roster and notifies
// active speaker observers. It accepts realtime events from a single
// producer; score and activity callbacks run on the scheduler. Detection
// callbacks to one observer never overlap, so an observer must not feed
// volume or presence events back into the detector from its callback.
type Detector struct {
	scheduler              *scheduler.Scheduler
	ownsScheduler          bool
	clock                  clock.Clock
	logger                 logger.Logger
	activityUpdateInterval time.Duration
	activityWaitInterval   time.Duration

	lock          sync.Mutex
	roster        []audiovideo.AttendeeInfo
	present       map[audiovideo.AttendeeInfo]struct{}
	registrations map[Observer]*registration
	order         []*registration
	policies      map[Policy]*policyState
	policyOrder   []*policyState
	lastVolume    map[audiovideo.AttendeeInfo]audiovideo.VolumeLevel
	lastUpdate    map[audiovideo.AttendeeInfo]time.Time
	activityTask  *scheduler.Task
	closed        bool
}

func NewDetector(opts ...Option) *Detector {
	defaults := config.DefaultConfig.ActiveSpeaker
	d := &Detector{
		clock:                  clock.New(),
		logger:                 logger.GetLogger(),
		activityUpdateInterval: defaults.ActivityUpdateInterval,
		activityWaitInterval:   defaults.ActivityWaitInterval,
		present:                make(map[audiovideo.AttendeeInfo]struct{}),
		registrations:          make(map[Observer]*registration),
		policies:               make(map[Policy]*policyState),
		lastVolume:             make(map[audiovideo.AttendeeInfo]audiovideo.VolumeLevel),
		lastUpdate:             make(map[audiovideo.AttendeeInfo]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("activespeaker")

	if d.scheduler == nil {
		d.scheduler = scheduler.New(scheduler.WithClock(d.clock), scheduler.WithLogger(d.logger))
		d.ownsScheduler = true
		d.scheduler.Start()
	}
	d.clock = d.scheduler.Clock()
	return d
}

// AddActiveSpeakerObserver registers observer against policy, replacing any
// earlier registration of the same observer. It does not emit.
func (d *Detector) AddActiveSpeakerObserver(policy Policy, observer Observer) {
	if policy == nil || observer == nil {
		d.logger.Warnw("ignoring active speaker observer", nil, "hasPolicy", policy != nil, "hasObserver", observer != nil)
		return
	}
	interval := observer.ScoreCallbackInterval()

	d.lock.Lock()
	defer d.lock.Unlock()

	if d.closed {
		return
	}

	ps := d.policies[policy]
	if ps == nil {
		ps = &policyState{policy: policy, scores: newScoreMap()}
		for _, a := range d.roster {
			ps.scores.getOrInit(a)
		}
		d.policies[policy] = ps
		d.policyOrder = append(d.policyOrder, ps)
	}
	// take the new reference first so re-registering with the same policy
	// keeps its scores
	ps.refs++

	if old, ok := d.registrations[observer]; ok {
		d.releaseLocked(old)
	}

	reg := &registration{
		observer: observer,
		policy:   ps,
	}
	if interval > 0 {
		task, err := d.scheduler.Schedule(interval, func(time.Time) {
			d.emitScores(reg)
		})
		if err != nil {
			d.logger.Warnw("could not schedule score callbacks", err, "interval", interval)
		}
		reg.task = task
	}
	d.registrations[observer] = reg
	d.order = append(d.order, reg)

	if d.activityTask == nil {
		task, err := d.scheduler.Schedule(d.activityUpdateInterval, d.updateActivity)
		if err != nil {
			d.logger.Warnw("could not schedule activity updates", err, "interval", d.activityUpdateInterval)
		}
		d.activityTask = task
	}

	d.logger.Debugw("active speaker observer added", "observers", len(d.order), "scoreInterval", interval)
}

// RemoveActiveSpeakerObserver unregisters observer. It is a no-op for an
// unknown observer. No callback to observer starts after it returns.
func (d *Detector) RemoveActiveSpeakerObserver(observer Observer) {
	d.lock.Lock()
	defer d.lock.Unlock()

	reg, ok := d.registrations[observer]
	if !ok {
		return
	}
	d.releaseLocked(reg)

	if len(d.order) == 0 && d.activityTask != nil {
		d.activityTask.Cancel()
		d.activityTask = nil
	}

	d.logger.Debugw("active speaker observer removed", "observers", len(d.order))
}

func (d *Detector) releaseLocked(reg *registration) {
	reg.task.Cancel()
	delete(d.registrations, reg.observer)
	d.order = slices.DeleteFunc(d.order, func(r *registration) bool {
		return r == reg
	})

	ps := reg.policy
	ps.refs--
	if ps.refs == 0 {
		delete(d.policies, ps.policy)
		d.policyOrder = slices.DeleteFunc(d.policyOrder, func(p *policyState) bool {
			return p == ps
		})
	}
}

func (d *Detector) OnAttendeesJoined(attendees []audiovideo.AttendeeInfo) {
	if len(attendees) == 0 {
		return
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	for _, a := range attendees {
		if _, ok := d.present[a]; ok {
			continue
		}
		d.present[a] = struct{}{}
		d.roster = append(d.roster, a)
		for _, ps := range d.policyOrder {
			ps.scores.getOrInit(a)
		}
	}
}

func (d *Detector) OnAttendeesLeft(attendees []audiovideo.AttendeeInfo) {
	d.removeAttendees(attendees)
}

func (d *Detector) OnAttendeesDropped(attendees []audiovideo.AttendeeInfo) {
	d.removeAttendees(attendees)
}

func (d *Detector) removeAttendees(attendees []audiovideo.AttendeeInfo) {
	if len(attendees) == 0 {
		return
	}

	d.lock.Lock()
	for _, a := range attendees {
		if _, ok := d.present[a]; ok {
			delete(d.present, a)
			d.roster = slices.DeleteFunc(d.roster, func(r audiovideo.AttendeeInfo) bool {
				return r == a
			})
		}
		delete(d.lastVolume, a)
		delete(d.lastUpdate, a)
		for _, ps := range d.policyOrder {
			ps.scores.delete(a)
			if f, ok := ps.policy.(Forgetter); ok {
				f.Forget(a)
			}
		}
	}
	emissions := d.evaluateLocked()
	d.lock.Unlock()

	d.emit(emissions)
}

// OnVolumeChanged scores each update, in order, once per distinct policy and
// notifies observers whose active set changed.
func (d *Detector) OnVolumeChanged(updates []audiovideo.VolumeUpdate) {
	if len(updates) == 0 {
		return
	}

	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		return
	}
	now := d.clock.Now()
	for _, u := range updates {
		d.lastVolume[u.AttendeeInfo] = u.VolumeLevel
		d.lastUpdate[u.AttendeeInfo] = now
	}
	for _, ps := range d.policyOrder {
		for _, u := range updates {
			ps.scores.set(u.AttendeeInfo, ps.policy.CalculateScore(u.AttendeeInfo, u.VolumeLevel))
		}
	}
	emissions := d.evaluateLocked()
	d.lock.Unlock()

	d.emit(emissions)
}

// signal strength and mute state are not used; mute arrives as a volume level

func (d *Detector) OnSignalStrengthChanged(_ []audiovideo.SignalUpdate) {}

func (d *Detector) OnAttendeesMuted(_ []audiovideo.AttendeeInfo) {}

func (d *Detector) OnAttendeesUnmuted(_ []audiovideo.AttendeeInfo) {}

// ActiveSpeakers returns the list last reported to observer, or nil.
func (d *Detector) ActiveSpeakers(observer Observer) []audiovideo.AttendeeInfo {
	d.lock.Lock()
	defer d.lock.Unlock()

	if reg, ok := d.registrations[observer]; ok {
		return slices.Clone(reg.active)
	}
	return nil
}

// Scores returns a copy of the cached scores of policy, or nil when no
// observer uses it.
func (d *Detector) Scores(policy Policy) map[audiovideo.AttendeeInfo]float64 {
	d.lock.Lock()
	defer d.lock.Unlock()

	if ps, ok := d.policies[policy]; ok {
		return ps.scores.snapshot()
	}
	return nil
}

// Roster returns the attendees in join order.
func (d *Detector) Roster() []audiovideo.AttendeeInfo {
	d.lock.Lock()
	defer d.lock.Unlock()

	return slices.Clone(d.roster)
}

func (d *Detector) Close() {
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		return
	}
	d.closed = true
	for _, reg := range d.order {
		reg.task.Cancel()
	}
	d.order = nil
	d.policyOrder = nil
	d.registrations = make(map[Observer]*registration)
	d.policies = make(map[Policy]*policyState)
	if d.activityTask != nil {
		d.activityTask.Cancel()
		d.activityTask = nil
	}
	d.lock.Unlock()

	if d.ownsScheduler {
		d.scheduler.Stop()
	}
	d.logger.Debugw("active speaker detector closed")
}

// updateActivity re-scores attendees that have been quiet on the wire for
// longer than the wait interval, using the last volume they reported.
func (d *Detector) updateActivity(now time.Time) {
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		return
	}

	var changed []audiovideo.AttendeeInfo
	for _, a := range d.roster {
		if last, ok := d.lastUpdate[a]; ok && now.Sub(last) <= d.activityWaitInterval {
			continue
		}
		volume, ok := d.lastVolume[a]
		if !ok {
			volume = audiovideo.VolumeLevelNotSpeaking
		}

		updated := false
		for _, ps := range d.policyOrder {
			score := ps.policy.CalculateScore(a, volume)
			if prev, _ := ps.scores.get(a); prev != score {
				updated = true
			}
			ps.scores.set(a, score)
		}
		if updated {
			changed = append(changed, a)
		}
	}
	for _, a := range changed {
		d.lastUpdate[a] = now
	}
	emissions := d.evaluateLocked()
	d.lock.Unlock()

	d.emit(emissions)
}

func (d *Detector) emitScores(reg *registration) {
	d.lock.Lock()
	if d.registrations[reg.observer] != reg {
		d.lock.Unlock()
		return
	}
	scores := reg.policy.scores.snapshot()
	d.lock.Unlock()

	reg.observer.OnActiveSpeakerScoreChanged(scores)
}

func (d *Detector) evaluateLocked() []emission {
	var emissions []emission
	for _, reg := range d.order {
		active := d.activeLocked(reg.policy)
		if slices.Equal(active, reg.active) {
			continue
		}
		reg.active = active
		reg.seq++
		emissions = append(emissions, emission{reg: reg, seq: reg.seq, active: slices.Clone(active)})
	}
	return emissions
}

// activeLocked returns the roster attendees with a positive score, highest
// first. Equal scores keep roster order.
func (d *Detector) activeLocked(ps *policyState) []audiovideo.AttendeeInfo {
	var active []audiovideo.AttendeeInfo
	scores := make(map[audiovideo.AttendeeInfo]float64)
	for _, a := range d.roster {
		if s, ok := ps.scores.get(a); ok && s > 0 {
			active = append(active, a)
			scores[a] = s
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return scores[active[i]] > scores[active[j]]
	})
	return active
}

// emit delivers emissions one registration at a time. An emission that was
// superseded while waiting for an earlier delivery is dropped, so the last
// list an observer sees is always the latest one computed for it.
func (d *Detector) emit(emissions []emission) {
	for _, e := range emissions {
		e.reg.deliver.Lock()
		d.lock.Lock()
		current := d.registrations[e.reg.observer] == e.reg && e.reg.seq == e.seq
		d.lock.Unlock()
		if current {
			d.logger.Debugw("active speakers changed", "speakers", audiovideo.AttendeeInfoList(e.active))
			e.reg.observer.OnActiveSpeakerDetected(e.active)
		}
		e.reg.deliver.Unlock()
	}
}
