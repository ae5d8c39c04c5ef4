package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"
	protoLogger "github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/meetkit/meeting-sdk-go/pkg/config"
)

const testScenario = `
local:
  attendee_id: me
duration: 2s
observers:
  - name: eager
    speaker_weight: 0.5
events:
  - at: 1500ms
    leave: [alice]
  - at: 0s
    join: [alice, bob]
  - at: 100ms
    volume:
      - attendee: alice
        level: 3
`

type speakerLine struct {
	elapsed string
	name    string
	update  *livekit.ActiveSpeakerUpdate
}

func parseSpeakerLines(t *testing.T, out string) []speakerLine {
	var lines []speakerLine
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		head, body, ok := strings.Cut(line, " speakers ")
		require.True(t, ok, line)
		fields := strings.Fields(head)
		require.Len(t, fields, 2)

		update := &livekit.ActiveSpeakerUpdate{}
		require.NoError(t, protojson.Unmarshal([]byte(body), update))
		lines = append(lines, speakerLine{elapsed: fields[0], name: fields[1], update: update})
	}
	return lines
}

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(testScenario))
	require.NoError(t, err)
	require.Equal(t, "me", sc.Local.AttendeeID)
	require.Equal(t, 2*time.Second, sc.Duration)
	require.Len(t, sc.Events, 3)
	require.Equal(t, []string{"alice", "bob"}, sc.Events[0].Join)
	require.Equal(t, 100*time.Millisecond, sc.Events[1].At)
	require.Equal(t, []Level{{Attendee: "alice", Level: 3}}, sc.Events[1].Volume)
	require.Equal(t, 1500*time.Millisecond, sc.Events[2].At)
	require.Equal(t, []ObserverConfig{{Name: "eager", SpeakerWeight: 0.5}}, sc.Observers)

	t.Run("duration covers every event", func(t *testing.T) {
		sc, err := ParseScenario([]byte("local: {attendee_id: me}\nevents: [{at: 3s, drop: [bob]}]"))
		require.NoError(t, err)
		require.Equal(t, 3*time.Second, sc.Duration)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseScenario([]byte("events: []"))
		require.Error(t, err)
		_, err = ParseScenario([]byte("local: {attendee_id: me}\nevents: [{at: -1s}]"))
		require.Error(t, err)
		_, err = ParseScenario([]byte("local: ["))
		require.Error(t, err)
	})
}

func TestSimulator(t *testing.T) {
	sc, err := ParseScenario([]byte(testScenario))
	require.NoError(t, err)
	conf, err := config.NewConfig("")
	require.NoError(t, err)

	out := &bytes.Buffer{}
	require.NoError(t, NewSimulator(out, conf, protoLogger.GetLogger(), false).Run(sc))

	var defaults, eager []speakerLine
	for _, l := range parseSpeakerLines(t, out.String()) {
		switch l.name {
		case "default":
			defaults = append(defaults, l)
		case "eager":
			eager = append(eager, l)
		default:
			t.Fatalf("unexpected observer %s", l.name)
		}
	}

	require.Len(t, defaults, 2)
	require.Equal(t, "100ms", defaults[0].elapsed)
	require.Len(t, defaults[0].update.Speakers, 1)
	require.Equal(t, "alice", defaults[0].update.Speakers[0].Sid)
	require.True(t, defaults[0].update.Speakers[0].Active)
	require.InDelta(t, 0.1, defaults[0].update.Speakers[0].Level, 1e-6)
	require.Equal(t, "1.5s", defaults[1].elapsed)
	require.Empty(t, defaults[1].update.Speakers)

	require.Len(t, eager, 2)
	require.Equal(t, "100ms", eager[0].elapsed)
	require.InDelta(t, 0.5, eager[0].update.Speakers[0].Level, 1e-6)
	require.Empty(t, eager[1].update.Speakers)
}

func TestSimulator_Scores(t *testing.T) {
	sc, err := ParseScenario([]byte(`
local: {attendee_id: me}
observers:
  - {name: scored, interval: 500ms}
events:
  - {at: 0s, join: [alice]}
  - {at: 100ms, volume: [{attendee: alice, level: 2}]}
  - {at: 1s, signal: [{attendee: alice, level: 1}]}
`))
	require.NoError(t, err)
	conf, err := config.NewConfig("")
	require.NoError(t, err)

	out := &bytes.Buffer{}
	require.NoError(t, NewSimulator(out, conf, protoLogger.GetLogger(), true).Run(sc))

	var scoreLines []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if strings.Contains(line, " scores ") {
			scoreLines = append(scoreLines, strings.TrimSpace(line))
		}
	}
	require.Equal(t, []string{
		"500ms scored scores alice=0.100",
		"1s scored scores alice=0.100",
	}, scoreLines)
}
