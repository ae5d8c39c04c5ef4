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

package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidSpeakerWeight = errors.New("speaker_weight must be in (0, 1)")
	ErrInvalidThreshold     = errors.New("thresholds must not be negative")
	ErrInvalidInterval      = errors.New("intervals must be positive")
	ErrInvalidLevelOrder    = errors.New("audio level thresholds must satisfy high <= medium <= low <= 127")
	ErrInvalidQueueSize     = errors.New("realtime queue_size must be positive")
)

type Config struct {
	LogLevel      string              `yaml:"log_level,omitempty"`
	ActiveSpeaker ActiveSpeakerConfig `yaml:"active_speaker,omitempty"`
	AudioLevel    AudioLevelConfig    `yaml:"audio_level,omitempty"`
	Realtime      RealtimeConfig      `yaml:"realtime,omitempty"`
}

type ActiveSpeakerConfig struct {
	// weight given to the existing score of an attendee
	SpeakerWeight float64 `yaml:"speaker_weight,omitempty"`
	// scores below this are reported as 0
	CutoffThreshold float64 `yaml:"cutoff_threshold,omitempty"`
	// how much a speaking attendee pulls down the scores of others
	TakeoverRate float64 `yaml:"takeover_rate,omitempty"`
	// normalized volumes at or below this count as silence
	SilenceThreshold float64 `yaml:"silence_threshold,omitempty"`

	// period of the idle re-scoring pass
	ActivityUpdateInterval time.Duration `yaml:"activity_update_interval,omitempty"`
	// attendees without a volume update for this long are re-scored
	ActivityWaitInterval time.Duration `yaml:"activity_wait_interval,omitempty"`
}

// AudioLevelConfig holds thresholds in dBov (0 is loudest, 127 is silence).
type AudioLevelConfig struct {
	HighLevel       uint8  `yaml:"high_level,omitempty"`
	MediumLevel     uint8  `yaml:"medium_level,omitempty"`
	LowLevel        uint8  `yaml:"low_level,omitempty"`
	SmoothIntervals uint32 `yaml:"smooth_intervals,omitempty"`
}

type RealtimeConfig struct {
	QueueSize int `yaml:"queue_size,omitempty"`
}

var DefaultConfig = Config{
	LogLevel: "info",
	ActiveSpeaker: ActiveSpeakerConfig{
		SpeakerWeight:          0.9,
		CutoffThreshold:        0.01,
		TakeoverRate:           0.2,
		SilenceThreshold:       0.2,
		ActivityUpdateInterval: 200 * time.Millisecond,
		ActivityWaitInterval:   time.Second,
	},
	AudioLevel: AudioLevelConfig{
		HighLevel:       20,
		MediumLevel:     30,
		LowLevel:        40,
		SmoothIntervals: 2,
	},
	Realtime: RealtimeConfig{
		QueueSize: 100,
	},
}

// NewConfig returns the defaults overridden by the YAML in body, which may be empty.
func NewConfig(body string) (*Config, error) {
	conf := DefaultConfig
	if body != "" {
		if err := yaml.Unmarshal([]byte(body), &conf); err != nil {
			return nil, errors.Wrap(err, "could not parse config")
		}
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func LoadFile(path string) (*Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %s", path)
	}
	return NewConfig(string(body))
}

func (c *Config) Validate() error {
	as := c.ActiveSpeaker
	if as.SpeakerWeight <= 0 || as.SpeakerWeight >= 1 {
		return ErrInvalidSpeakerWeight
	}
	if as.CutoffThreshold < 0 || as.TakeoverRate < 0 || as.SilenceThreshold < 0 {
		return ErrInvalidThreshold
	}
	if as.ActivityUpdateInterval <= 0 || as.ActivityWaitInterval <= 0 {
		return ErrInvalidInterval
	}

	al := c.AudioLevel
	if al.HighLevel > al.MediumLevel || al.MediumLevel > al.LowLevel || al.LowLevel > 127 {
		return ErrInvalidLevelOrder
	}

	if c.Realtime.QueueSize <= 0 {
		return ErrInvalidQueueSize
	}
	return nil
}

func (c *Config) Marshal() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
