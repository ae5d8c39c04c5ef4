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

package meetsdk

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"
	protoLogger "github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils/guid"
	"go.uber.org/atomic"
	"golang.org/x/exp/slices"

	"github.com/meetkit/meeting-sdk-go/pkg/activespeaker"
	"github.com/meetkit/meeting-sdk-go/pkg/audiolevel"
	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
	"github.com/meetkit/meeting-sdk-go/pkg/config"
	"github.com/meetkit/meeting-sdk-go/pkg/realtime"
	"github.com/meetkit/meeting-sdk-go/pkg/scheduler"
)

var _ realtime.Observer = (*activespeaker.Detector)(nil)

type MeetingSessionCredentials struct {
	MeetingID      string
	AttendeeID     string
	ExternalUserID string
	JoinToken      string
}

func (c MeetingSessionCredentials) AttendeeInfo() audiovideo.AttendeeInfo {
	return audiovideo.AttendeeInfo{
		AttendeeID:     c.AttendeeID,
		ExternalUserID: c.ExternalUserID,
	}
}

type sessionParams struct {
	AudioClient realtime.AudioClient
	Clock       clock.Clock
	Scheduler   *scheduler.Scheduler
	Logger      protoLogger.Logger
	Config      *config.Config
	Debounce    time.Duration
	Callback    *MeetingCallback
}

type SessionOption func(*sessionParams)

func WithAudioClient(client realtime.AudioClient) SessionOption {
	return func(p *sessionParams) {
		p.AudioClient = client
	}
}

func WithClock(c clock.Clock) SessionOption {
	return func(p *sessionParams) {
		p.Clock = c
	}
}

// WithScheduler runs the session's timers on s. The session does not start
// or stop it, which lets tests drive time by hand.
func WithScheduler(s *scheduler.Scheduler) SessionOption {
	return func(p *sessionParams) {
		p.Scheduler = s
	}
}

func WithLogger(l protoLogger.Logger) SessionOption {
	return func(p *sessionParams) {
		p.Logger = l
	}
}

func WithConfig(conf *config.Config) SessionOption {
	return func(p *sessionParams) {
		p.Config = conf
	}
}

// WithActiveSpeakerDebounce delays OnActiveSpeakersChanged until the list
// has been stable for d, delivering only the latest list.
func WithActiveSpeakerDebounce(d time.Duration) SessionOption {
	return func(p *sessionParams) {
		p.Debounce = d
	}
}

func WithCallback(cb *MeetingCallback) SessionOption {
	return func(p *sessionParams) {
		p.Callback = cb
	}
}

// MeetingSession ties a realtime controller to an active speaker detector
// and keeps the roster of the meeting. The native audio client pushes its
// updates into Controller().
type MeetingSession struct {
	id            string
	credentials   MeetingSessionCredentials
	conf          *config.Config
	logger        protoLogger.Logger
	callback      *MeetingCallback
	scheduler     *scheduler.Scheduler
	ownsScheduler bool
	controller    *realtime.Controller
	detector      *activespeaker.Detector
	policy        *activespeaker.DefaultPolicy
	speakers      *ActiveSpeakerCallback
	debounced     func(func())
	monitorTask   *scheduler.Task
	closed        atomic.Bool

	lock           sync.RWMutex
	attendees      []audiovideo.AttendeeInfo
	activeSpeakers []audiovideo.AttendeeInfo
}

func NewMeetingSession(credentials MeetingSessionCredentials, opts ...SessionOption) (*MeetingSession, error) {
	if credentials.AttendeeID == "" {
		return nil, ErrMissingAttendeeID
	}

	params := &sessionParams{
		Logger: getLogger(),
	}
	for _, opt := range opts {
		opt(params)
	}
	if params.Config == nil {
		conf := config.DefaultConfig
		params.Config = &conf
	}

	s := &MeetingSession{
		id:          guid.New("MS_"),
		credentials: credentials,
		conf:        params.Config,
		callback:    NewMeetingCallback(),
	}
	s.callback.Merge(params.Callback)
	s.logger = params.Logger.WithValues("sessionID", s.id, "meetingID", credentials.MeetingID, "attendeeID", credentials.AttendeeID)

	s.scheduler = params.Scheduler
	if s.scheduler == nil {
		schedulerOpts := []scheduler.Option{scheduler.WithLogger(s.logger)}
		if params.Clock != nil {
			schedulerOpts = append(schedulerOpts, scheduler.WithClock(params.Clock))
		}
		s.scheduler = scheduler.New(schedulerOpts...)
		s.ownsScheduler = true
	}

	if params.Debounce > 0 {
		s.debounced = debounce.New(params.Debounce)
	}

	s.controller = realtime.NewController(
		realtime.WithAudioClient(params.AudioClient),
		realtime.WithLocalAttendee(credentials.AttendeeInfo()),
		realtime.WithLogger(s.logger),
		realtime.WithConfig(s.conf.Realtime),
	)
	s.detector = activespeaker.NewDetector(
		activespeaker.WithScheduler(s.scheduler),
		activespeaker.WithLogger(s.logger),
		activespeaker.WithConfig(s.conf.ActiveSpeaker),
	)
	s.policy = activespeaker.NewDefaultPolicy(activespeaker.WithPolicyConfig(s.conf.ActiveSpeaker))
	s.speakers = &ActiveSpeakerCallback{OnDetected: s.handleActiveSpeakers}

	// the roster is updated before the detector sees an event
	s.controller.AddRealtimeObserver(&rosterObserver{session: s})
	s.controller.AddRealtimeObserver(s.detector)
	s.detector.AddActiveSpeakerObserver(s.policy, s.speakers)

	s.controller.Start()
	if s.ownsScheduler {
		s.scheduler.Start()
	}

	s.logger.Infow("meeting session started")
	return s, nil
}

func (s *MeetingSession) ID() string {
	return s.id
}

func (s *MeetingSession) Credentials() MeetingSessionCredentials {
	return s.credentials
}

// Controller receives updates from the native audio client.
func (s *MeetingSession) Controller() *realtime.Controller {
	return s.controller
}

func (s *MeetingSession) AddActiveSpeakerObserver(policy activespeaker.Policy, observer activespeaker.Observer) {
	s.detector.AddActiveSpeakerObserver(policy, observer)
}

func (s *MeetingSession) RemoveActiveSpeakerObserver(observer activespeaker.Observer) {
	s.detector.RemoveActiveSpeakerObserver(observer)
}

func (s *MeetingSession) AddRealtimeObserver(observer realtime.Observer) {
	s.controller.AddRealtimeObserver(observer)
}

func (s *MeetingSession) RemoveRealtimeObserver(observer realtime.Observer) {
	s.controller.RemoveRealtimeObserver(observer)
}

func (s *MeetingSession) RealtimeLocalMute() bool {
	return s.controller.RealtimeLocalMute()
}

func (s *MeetingSession) RealtimeLocalUnmute() bool {
	return s.controller.RealtimeLocalUnmute()
}

// Attendees returns the attendees present, in join order.
func (s *MeetingSession) Attendees() []audiovideo.AttendeeInfo {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return slices.Clone(s.attendees)
}

// ActiveSpeakers returns the current active speakers, loudest first, under
// the session's default policy.
func (s *MeetingSession) ActiveSpeakers() []audiovideo.AttendeeInfo {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return slices.Clone(s.activeSpeakers)
}

// SpeakerScores returns the scores behind ActiveSpeakers.
func (s *MeetingSession) SpeakerScores() map[audiovideo.AttendeeInfo]float64 {
	return s.detector.Scores(s.policy)
}

// StartAudioLevelMonitor returns a monitor whose levels are pushed to the
// controller every interval, as if the native client had reported them.
// Feed it with audiolevel.ReadTrack.
func (s *MeetingSession) StartAudioLevelMonitor(interval time.Duration) (*audiolevel.Monitor, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.monitorTask != nil {
		return nil, ErrMonitorRunning
	}
	monitor := audiolevel.NewMonitor(
		audiolevel.WithClock(s.scheduler.Clock()),
		audiolevel.WithConfig(s.conf.AudioLevel),
	)
	task, err := s.scheduler.Schedule(interval, func(time.Time) {
		if err := s.controller.HandleVolumeStateChange(monitor.Snapshot()); err != nil {
			s.logger.Debugw("dropped audio level snapshot", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	s.monitorTask = task
	return monitor, nil
}

func (s *MeetingSession) Close() {
	if s.closed.Swap(true) {
		return
	}

	s.lock.Lock()
	s.monitorTask.Cancel()
	s.monitorTask = nil
	s.lock.Unlock()

	s.detector.Close()
	s.controller.Close()
	if s.ownsScheduler {
		s.scheduler.Stop()
	}
	s.logger.Infow("meeting session closed")
}

func (s *MeetingSession) handleActiveSpeakers(attendees []audiovideo.AttendeeInfo) {
	s.lock.Lock()
	s.activeSpeakers = attendees
	s.lock.Unlock()

	if s.debounced != nil {
		s.debounced(func() {
			if !s.closed.Load() {
				s.callback.OnActiveSpeakersChanged(s.ActiveSpeakers())
			}
		})
		return
	}
	s.callback.OnActiveSpeakersChanged(slices.Clone(attendees))
}

func (s *MeetingSession) addAttendees(attendees []audiovideo.AttendeeInfo) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, a := range attendees {
		if !slices.Contains(s.attendees, a) {
			s.attendees = append(s.attendees, a)
		}
	}
}

func (s *MeetingSession) removeAttendees(attendees []audiovideo.AttendeeInfo) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.attendees = slices.DeleteFunc(s.attendees, func(a audiovideo.AttendeeInfo) bool {
		return slices.Contains(attendees, a)
	})
}

// rosterObserver keeps the session roster and forwards events to the
// session callback.
type rosterObserver struct {
	session *MeetingSession
}

func (o *rosterObserver) OnAttendeesJoined(attendees []audiovideo.AttendeeInfo) {
	o.session.addAttendees(attendees)
	o.session.callback.OnAttendeesJoined(attendees)
}

func (o *rosterObserver) OnAttendeesLeft(attendees []audiovideo.AttendeeInfo) {
	o.session.removeAttendees(attendees)
	o.session.callback.OnAttendeesLeft(attendees)
}

func (o *rosterObserver) OnAttendeesDropped(attendees []audiovideo.AttendeeInfo) {
	o.session.removeAttendees(attendees)
	o.session.callback.OnAttendeesDropped(attendees)
}

func (o *rosterObserver) OnAttendeesMuted(attendees []audiovideo.AttendeeInfo) {
	o.session.callback.OnAttendeesMuted(attendees)
}

func (o *rosterObserver) OnAttendeesUnmuted(attendees []audiovideo.AttendeeInfo) {
	o.session.callback.OnAttendeesUnmuted(attendees)
}

func (o *rosterObserver) OnVolumeChanged(updates []audiovideo.VolumeUpdate) {
	o.session.callback.OnVolumeChanged(updates)
}

func (o *rosterObserver) OnSignalStrengthChanged(updates []audiovideo.SignalUpdate) {
	o.session.callback.OnSignalStrengthChanged(updates)
}
