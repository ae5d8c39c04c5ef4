package audiovideo

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestVolumeLevelFrom(t *testing.T) {
	t.Run("known levels", func(t *testing.T) {
		for i := -1; i <= 3; i++ {
			v, ok := VolumeLevelFrom(i)
			require.True(t, ok)
			require.Equal(t, i, int(v))
		}
	})

	t.Run("unknown level", func(t *testing.T) {
		_, ok := VolumeLevelFrom(7)
		require.False(t, ok)
		require.Equal(t, "VolumeLevel(7)", VolumeLevel(7).String())
	})
}

func TestSignalStrengthFrom(t *testing.T) {
	s, ok := SignalStrengthFrom(2)
	require.True(t, ok)
	require.Equal(t, SignalStrengthHigh, s)

	_, ok = SignalStrengthFrom(-1)
	require.False(t, ok)
}

func TestAttendeeStatusFrom(t *testing.T) {
	s, ok := AttendeeStatusFrom(3)
	require.True(t, ok)
	require.Equal(t, AttendeeStatusDropped, s)
	require.Equal(t, "Dropped", s.String())

	_, ok = AttendeeStatusFrom(0)
	require.False(t, ok)
}

func TestAttendeeInfo(t *testing.T) {
	a := AttendeeInfo{AttendeeID: "alice-id", ExternalUserID: "alice"}
	b := AttendeeInfo{AttendeeID: "alice-id", ExternalUserID: "alice"}
	require.Equal(t, a, b)

	m := map[AttendeeInfo]int{a: 1}
	require.Equal(t, 1, m[b])
	require.Equal(t, "alice-id(alice)", a.String())

	enc := zapcore.NewMapObjectEncoder()
	require.NoError(t, a.MarshalLogObject(enc))
	require.Equal(t, "alice-id", enc.Fields["attendeeID"])
	require.Equal(t, "alice", enc.Fields["externalUserID"])
}
