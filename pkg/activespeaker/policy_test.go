package activespeaker

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meetkit/meeting-sdk-go/pkg/audiovideo"
)

var (
	alice = audiovideo.AttendeeInfo{AttendeeID: "alice-id", ExternalUserID: "alice"}
	bob   = audiovideo.AttendeeInfo{AttendeeID: "bob-id", ExternalUserID: "bob"}
	carol = audiovideo.AttendeeInfo{AttendeeID: "carol-id", ExternalUserID: "carol"}
)

func TestDefaultPolicy_FirstSight(t *testing.T) {
	t.Run("silence", func(t *testing.T) {
		p := NewDefaultPolicy()
		require.Equal(t, 0.0, p.CalculateScore(alice, audiovideo.VolumeLevelNotSpeaking))
	})

	t.Run("speech", func(t *testing.T) {
		p := NewDefaultPolicy()
		require.InDelta(t, 0.1, p.CalculateScore(alice, audiovideo.VolumeLevelHigh), 1e-9)
	})

	t.Run("every level above not speaking counts as speech", func(t *testing.T) {
		for _, v := range []audiovideo.VolumeLevel{
			audiovideo.VolumeLevelLow,
			audiovideo.VolumeLevelMedium,
			audiovideo.VolumeLevelHigh,
		} {
			p := NewDefaultPolicy()
			require.InDelta(t, 0.1, p.CalculateScore(alice, v), 1e-9, v.String())
		}
	})

	t.Run("muted counts as silence", func(t *testing.T) {
		p := NewDefaultPolicy()
		require.Equal(t, 0.0, p.CalculateScore(alice, audiovideo.VolumeLevelMuted))
	})
}

func TestDefaultPolicy_Bounds(t *testing.T) {
	p := NewDefaultPolicy()
	attendees := []audiovideo.AttendeeInfo{alice, bob, carol}
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		a := attendees[r.Intn(len(attendees))]
		v := audiovideo.VolumeLevel(r.Intn(5) - 1)
		score := p.CalculateScore(a, v)
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 1.0)

		for _, other := range attendees {
			if s, ok := p.Score(other); ok {
				require.GreaterOrEqual(t, s, 0.0)
				require.LessOrEqual(t, s, 1.0)
			}
		}
	}
}

func TestDefaultPolicy_Cutoff(t *testing.T) {
	p := NewDefaultPolicy()
	require.Greater(t, p.CalculateScore(alice, audiovideo.VolumeLevelHigh), 0.0)

	var score float64
	for i := 0; i < 30; i++ {
		score = p.CalculateScore(alice, audiovideo.VolumeLevelNotSpeaking)
		stored, ok := p.Score(alice)
		require.True(t, ok)
		if stored < 0.01 {
			require.Equal(t, 0.0, score)
		} else {
			require.Equal(t, stored, score)
		}
	}
	require.Equal(t, 0.0, score)

	// the stored score keeps decaying below the cutoff
	stored, _ := p.Score(alice)
	require.Greater(t, stored, 0.0)
	require.Less(t, stored, 0.01)
}

func TestDefaultPolicy_Takeover(t *testing.T) {
	p := NewDefaultPolicy()
	for i := 0; i < 10; i++ {
		p.CalculateScore(bob, audiovideo.VolumeLevelHigh)
	}
	prior, _ := p.Score(bob)
	require.Greater(t, prior, 0.6)

	for prior > 0 {
		p.CalculateScore(alice, audiovideo.VolumeLevelHigh)
		next, _ := p.Score(bob)
		expected := prior - 0.2
		if expected < 0 {
			expected = 0
		}
		require.InDelta(t, expected, next, 1e-9)
		require.GreaterOrEqual(t, next, 0.0)
		prior = next
	}

	t.Run("silence does not take over", func(t *testing.T) {
		p := NewDefaultPolicy()
		p.CalculateScore(bob, audiovideo.VolumeLevelHigh)
		before, _ := p.Score(bob)
		p.CalculateScore(alice, audiovideo.VolumeLevelNotSpeaking)
		after, _ := p.Score(bob)
		require.Equal(t, before, after)
	})
}

func TestDefaultPolicy_Convergence(t *testing.T) {
	p := NewDefaultPolicy()
	prev := 0.0
	for i := 0; i < 200; i++ {
		score := p.CalculateScore(alice, audiovideo.VolumeLevelHigh)
		require.GreaterOrEqual(t, score, prev)
		require.LessOrEqual(t, score, 1.0)
		prev = score
	}
	require.InDelta(t, 1.0, prev, 1e-6)
}

func TestDefaultPolicy_Silence(t *testing.T) {
	p := NewDefaultPolicy()
	for i := 0; i < 100; i++ {
		v := audiovideo.VolumeLevelNotSpeaking
		if i%2 == 0 {
			v = audiovideo.VolumeLevelMuted
		}
		require.Equal(t, 0.0, p.CalculateScore(alice, v))
		// others speaking only push alice further down
		p.CalculateScore(bob, audiovideo.VolumeLevelHigh)
	}
	stored, _ := p.Score(alice)
	require.Equal(t, 0.0, stored)
}

func TestDefaultPolicy_Options(t *testing.T) {
	p := NewDefaultPolicy(
		WithSpeakerWeight(0.5),
		WithTakeoverRate(0.5),
		WithCutoffThreshold(0.3),
	)
	require.InDelta(t, 0.5, p.CalculateScore(alice, audiovideo.VolumeLevelHigh), 1e-9)
	require.InDelta(t, 0.5, p.CalculateScore(bob, audiovideo.VolumeLevelHigh), 1e-9)
	a, _ := p.Score(alice)
	require.Equal(t, 0.0, a)

	// 0.5 * 0.5 = 0.25 is under the cutoff
	require.Equal(t, 0.0, p.CalculateScore(bob, audiovideo.VolumeLevelNotSpeaking))

	t.Run("silence threshold", func(t *testing.T) {
		p := NewDefaultPolicy(WithSilenceThreshold(0.5))
		require.Equal(t, 0.0, p.CalculateScore(alice, audiovideo.VolumeLevelLow))
		require.Greater(t, p.CalculateScore(alice, audiovideo.VolumeLevelMedium), 0.0)
	})
}

func TestDefaultPolicy_Forget(t *testing.T) {
	p := NewDefaultPolicy()
	p.CalculateScore(alice, audiovideo.VolumeLevelHigh)
	_, ok := p.Score(alice)
	require.True(t, ok)

	p.Forget(alice)
	_, ok = p.Score(alice)
	require.False(t, ok)
	require.InDelta(t, 0.1, p.CalculateScore(alice, audiovideo.VolumeLevelHigh), 1e-9)
}
