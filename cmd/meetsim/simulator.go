package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	protoLogger "github.com/livekit/protocol/logger"
	"google.golang.org/protobuf/encoding/protojson"

	meetsdk "github.com/meetkit/meeting-sdk-go"
	"github.com/meetkit/meeting-sdk-go/pkg/activespeaker"
	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
	"github.com/meetkit/meeting-sdk-go/pkg/config"
	"github.com/meetkit/meeting-sdk-go/pkg/scheduler"
)

// Simulator replays a scenario on a mock clock and writes every active
// speaker change to out, one line per event.
type Simulator struct {
	out    io.Writer
	conf   *config.Config
	logger protoLogger.Logger
	scores bool

	clock     *clock.Mock
	start     time.Time
	scheduler *scheduler.Scheduler
	session   *meetsdk.MeetingSession
}

func NewSimulator(out io.Writer, conf *config.Config, logger protoLogger.Logger, scores bool) *Simulator {
	return &Simulator{
		out:    out,
		conf:   conf,
		logger: logger,
		scores: scores,
	}
}

func (sim *Simulator) Run(sc *Scenario) error {
	sim.clock = clock.NewMock()
	sim.start = sim.clock.Now()
	sim.scheduler = scheduler.New(scheduler.WithClock(sim.clock), scheduler.WithLogger(sim.logger))

	session, err := meetsdk.NewMeetingSession(meetsdk.MeetingSessionCredentials{
		MeetingID:      "simulation",
		AttendeeID:     sc.Local.AttendeeID,
		ExternalUserID: sc.Local.ExternalUserID,
	},
		meetsdk.WithScheduler(sim.scheduler),
		meetsdk.WithConfig(sim.conf),
		meetsdk.WithLogger(sim.logger),
		meetsdk.WithCallback(&meetsdk.MeetingCallback{
			OnActiveSpeakersChanged: func(attendees []audiovideo.AttendeeInfo) {
				sim.printSpeakers("default", attendees, sim.session.SpeakerScores())
			},
		}),
	)
	if err != nil {
		return err
	}
	sim.session = session
	defer session.Close()

	for _, oc := range sc.Observers {
		sim.addObserver(oc)
	}

	c := session.Controller()
	for _, e := range sc.Events {
		sim.advanceTo(e.At)

		if len(e.Join) > 0 || len(e.Leave) > 0 || len(e.Drop) > 0 {
			updates := presenceUpdates(e.Join, audiovideo.AttendeeStatusJoined)
			updates = append(updates, presenceUpdates(e.Leave, audiovideo.AttendeeStatusLeft)...)
			updates = append(updates, presenceUpdates(e.Drop, audiovideo.AttendeeStatusDropped)...)
			if err := c.HandlePresenceChange(updates); err != nil {
				return err
			}
		}
		if len(e.Volume) > 0 {
			if err := c.HandleVolumeStateChange(levelUpdates(e.Volume)); err != nil {
				return err
			}
		}
		if len(e.Signal) > 0 {
			if err := c.HandleSignalStrengthChange(levelUpdates(e.Signal)); err != nil {
				return err
			}
		}
		c.Flush()
	}
	sim.advanceTo(sc.Duration)
	return nil
}

func (sim *Simulator) addObserver(oc ObserverConfig) {
	conf := sim.conf.ActiveSpeaker
	if oc.SpeakerWeight > 0 {
		conf.SpeakerWeight = oc.SpeakerWeight
	}
	if oc.TakeoverRate > 0 {
		conf.TakeoverRate = oc.TakeoverRate
	}
	policy := activespeaker.NewDefaultPolicy(activespeaker.WithPolicyConfig(conf))

	cb := &meetsdk.ActiveSpeakerCallback{
		Interval: oc.Interval,
		OnDetected: func(attendees []audiovideo.AttendeeInfo) {
			scores := make(map[audiovideo.AttendeeInfo]float64, len(attendees))
			for _, a := range attendees {
				scores[a], _ = policy.Score(a)
			}
			sim.printSpeakers(oc.Name, attendees, scores)
		},
	}
	if sim.scores {
		cb.OnScoreChanged = func(scores map[audiovideo.AttendeeInfo]float64) {
			sim.printScores(oc.Name, scores)
		}
	}
	sim.session.AddActiveSpeakerObserver(policy, cb)
}

// advanceTo moves the clock in steps of the activity interval so that every
// periodic task runs at its own deadline.
func (sim *Simulator) advanceTo(at time.Duration) {
	step := sim.conf.ActiveSpeaker.ActivityUpdateInterval
	if step <= 0 {
		step = 100 * time.Millisecond
	}
	target := sim.start.Add(at)
	for sim.clock.Now().Before(target) {
		next := sim.clock.Now().Add(step)
		if next.After(target) {
			next = target
		}
		sim.clock.Set(next)
		sim.scheduler.Tick()
	}
	sim.session.Controller().Flush()
}

func (sim *Simulator) elapsed() time.Duration {
	return sim.clock.Now().Sub(sim.start)
}

func (sim *Simulator) printSpeakers(name string, attendees []audiovideo.AttendeeInfo, scores map[audiovideo.AttendeeInfo]float64) {
	b, err := protojson.Marshal(meetsdk.ToProtoSpeakerUpdate(attendees, scores))
	if err != nil {
		sim.logger.Warnw("could not encode speaker update", err)
		return
	}
	fmt.Fprintf(sim.out, "%8s %s speakers %s\n", sim.elapsed(), name, b)
}

func (sim *Simulator) printScores(name string, scores map[audiovideo.AttendeeInfo]float64) {
	entries := make([]string, 0, len(scores))
	for a, s := range scores {
		entries = append(entries, fmt.Sprintf("%s=%.3f", a.ExternalUserID, s))
	}
	sort.Strings(entries)
	fmt.Fprintf(sim.out, "%8s %s scores %s\n", sim.elapsed(), name, strings.Join(entries, " "))
}
