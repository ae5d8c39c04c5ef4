package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		conf, err := NewConfig("")
		require.NoError(t, err)
		require.Equal(t, 0.9, conf.ActiveSpeaker.SpeakerWeight)
		require.Equal(t, 0.01, conf.ActiveSpeaker.CutoffThreshold)
		require.Equal(t, 0.2, conf.ActiveSpeaker.TakeoverRate)
		require.Equal(t, 200*time.Millisecond, conf.ActiveSpeaker.ActivityUpdateInterval)
		require.Equal(t, time.Second, conf.ActiveSpeaker.ActivityWaitInterval)
		require.Equal(t, 100, conf.Realtime.QueueSize)
	})

	t.Run("overrides keep other defaults", func(t *testing.T) {
		conf, err := NewConfig(`
active_speaker:
  takeover_rate: 0.3
  activity_update_interval: 500ms
audio_level:
  low_level: 50
`)
		require.NoError(t, err)
		require.Equal(t, 0.3, conf.ActiveSpeaker.TakeoverRate)
		require.Equal(t, 0.9, conf.ActiveSpeaker.SpeakerWeight)
		require.Equal(t, 500*time.Millisecond, conf.ActiveSpeaker.ActivityUpdateInterval)
		require.Equal(t, uint8(50), conf.AudioLevel.LowLevel)
		require.Equal(t, uint8(30), conf.AudioLevel.MediumLevel)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := NewConfig("active_speaker: [")
		require.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := NewConfig("active_speaker:\n  speaker_weight: 1.5\n")
		require.ErrorIs(t, err, ErrInvalidSpeakerWeight)

		_, err = NewConfig("audio_level:\n  high_level: 60\n")
		require.ErrorIs(t, err, ErrInvalidLevelOrder)

		_, err = NewConfig("realtime:\n  queue_size: -1\n")
		require.ErrorIs(t, err, ErrInvalidQueueSize)
	})

	t.Run("defaults are not shared", func(t *testing.T) {
		conf, err := NewConfig("")
		require.NoError(t, err)
		conf.ActiveSpeaker.TakeoverRate = 0.5
		require.Equal(t, 0.2, DefaultConfig.ActiveSpeaker.TakeoverRate)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meeting.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))

	conf, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "debug", conf.LogLevel)

	out, err := conf.Marshal()
	require.NoError(t, err)
	require.Contains(t, out, "log_level: debug")

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
