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
	"math"
	"sync"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
	"github.com/meetkit/meeting-sdk-go/pkg/config"
)

// Policy scores an attendee given a new volume sample. Implementations keep
// their own per-attendee state between calls.
//
// The detector uses policies as map keys, so implementations must be
// comparable; pointer receivers are the usual choice.
type Policy interface {
	CalculateScore(attendee audiovideo.AttendeeInfo, volume audiovideo.VolumeLevel) float64
}

// Forgetter is implemented by policies that can drop the state of an
// attendee who left the meeting.
type Forgetter interface {
	Forget(attendee audiovideo.AttendeeInfo)
}

const normalizeFactor = 3.0

type PolicyOption func(*DefaultPolicy)

func WithSpeakerWeight(w float64) PolicyOption {
	return func(p *DefaultPolicy) {
		p.speakerWeight = w
	}
}

func WithCutoffThreshold(t float64) PolicyOption {
	return func(p *DefaultPolicy) {
		p.cutoffThreshold = t
	}
}

func WithTakeoverRate(r float64) PolicyOption {
	return func(p *DefaultPolicy) {
		p.takeoverRate = r
	}
}

func WithSilenceThreshold(t float64) PolicyOption {
	return func(p *DefaultPolicy) {
		p.silenceThreshold = t
	}
}

// WithPolicyConfig applies the active speaker section of a config.
func WithPolicyConfig(conf config.ActiveSpeakerConfig) PolicyOption {
	return func(p *DefaultPolicy) {
		p.speakerWeight = conf.SpeakerWeight
		p.cutoffThreshold = conf.CutoffThreshold
		p.takeoverRate = conf.TakeoverRate
		p.silenceThreshold = conf.SilenceThreshold
	}
}

// DefaultPolicy smooths a binary speaking signal per attendee. A speaking
// attendee also pulls down the scores of everyone else, so the most recent
// speaker takes over.
type DefaultPolicy struct {
	speakerWeight    float64
	cutoffThreshold  float64
	takeoverRate     float64
	silenceThreshold float64

	lock   sync.Mutex
	scores *scoreMap
}

func NewDefaultPolicy(opts ...PolicyOption) *DefaultPolicy {
	defaults := config.DefaultConfig.ActiveSpeaker
	p := &DefaultPolicy{
		speakerWeight:    defaults.SpeakerWeight,
		cutoffThreshold:  defaults.CutoffThreshold,
		takeoverRate:     defaults.TakeoverRate,
		silenceThreshold: defaults.SilenceThreshold,
		scores:           newScoreMap(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *DefaultPolicy) CalculateScore(attendee audiovideo.AttendeeInfo, volume audiovideo.VolumeLevel) float64 {
	normalized := float64(volume) / normalizeFactor
	if normalized > p.silenceThreshold {
		normalized = 1
	} else {
		normalized = 0
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	score := p.scores.getOrInit(attendee)*p.speakerWeight + normalized*(1-p.speakerWeight)
	// the stored score is never clamped to the cutoff
	p.scores.set(attendee, score)

	if normalized > 0 {
		takeover := p.takeoverRate * normalized
		p.scores.update(attendee, func(s float64) float64 {
			return math.Max(s-takeover, 0)
		})
	}

	if score < p.cutoffThreshold {
		return 0
	}
	return score
}

func (p *DefaultPolicy) Forget(attendee audiovideo.AttendeeInfo) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.scores.delete(attendee)
}

// Score returns the stored score of an attendee, without the cutoff applied.
func (p *DefaultPolicy) Score(attendee audiovideo.AttendeeInfo) (float64, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.scores.get(attendee)
}
