package main

import (
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
)

type Scenario struct {
	Local     LocalAttendee    `yaml:"local"`
	Duration  time.Duration    `yaml:"duration"`
	Observers []ObserverConfig `yaml:"observers"`
	Events    []Event          `yaml:"events"`
}

type LocalAttendee struct {
	AttendeeID     string `yaml:"attendee_id"`
	ExternalUserID string `yaml:"external_user_id"`
}

// ObserverConfig registers an extra active speaker observer with its own
// policy. Zero weights fall back to the configured defaults.
type ObserverConfig struct {
	Name          string        `yaml:"name"`
	Interval      time.Duration `yaml:"interval"`
	SpeakerWeight float64       `yaml:"speaker_weight"`
	TakeoverRate  float64       `yaml:"takeover_rate"`
}

type Event struct {
	At     time.Duration `yaml:"at"`
	Join   []string      `yaml:"join"`
	Leave  []string      `yaml:"leave"`
	Drop   []string      `yaml:"drop"`
	Volume []Level       `yaml:"volume"`
	Signal []Level       `yaml:"signal"`
}

type Level struct {
	Attendee string `yaml:"attendee"`
	Level    int    `yaml:"level"`
}

func LoadScenario(path string) (*Scenario, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read scenario %s", path)
	}
	return ParseScenario(body)
}

func ParseScenario(body []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.Unmarshal(body, sc); err != nil {
		return nil, errors.Wrap(err, "could not parse scenario")
	}
	if sc.Local.AttendeeID == "" {
		return nil, errors.New("scenario needs local.attendee_id")
	}
	for _, e := range sc.Events {
		if e.At < 0 {
			return nil, errors.Errorf("event time %s is negative", e.At)
		}
	}
	sort.SliceStable(sc.Events, func(i, j int) bool {
		return sc.Events[i].At < sc.Events[j].At
	})
	if n := len(sc.Events); n > 0 && sc.Duration < sc.Events[n-1].At {
		sc.Duration = sc.Events[n-1].At
	}
	return sc, nil
}

// attendee IDs double as external user IDs in scenarios
func presenceUpdates(ids []string, status audiovideo.AttendeeStatus) []audiovideo.AttendeeUpdate {
	updates := make([]audiovideo.AttendeeUpdate, 0, len(ids))
	for _, id := range ids {
		updates = append(updates, audiovideo.AttendeeUpdate{AttendeeID: id, ExternalUserID: id, Data: int(status)})
	}
	return updates
}

func levelUpdates(levels []Level) []audiovideo.AttendeeUpdate {
	updates := make([]audiovideo.AttendeeUpdate, 0, len(levels))
	for _, l := range levels {
		updates = append(updates, audiovideo.AttendeeUpdate{AttendeeID: l.Attendee, ExternalUserID: l.Attendee, Data: l.Level})
	}
	return updates
}
