package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lock  sync.Mutex
	fired []string
}

func (r *recorder) fn(name string) func(time.Time) {
	return func(time.Time) {
		r.lock.Lock()
		r.fired = append(r.fired, name)
		r.lock.Unlock()
	}
}

func (r *recorder) count(name string) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for _, f := range r.fired {
		if f == name {
			n++
		}
	}
	return n
}

func TestSchedule(t *testing.T) {
	t.Run("invalid interval", func(t *testing.T) {
		s := New(WithClock(clock.NewMock()))
		_, err := s.Schedule(0, func(time.Time) {})
		require.ErrorIs(t, err, ErrInvalidInterval)
		_, err = s.Schedule(-time.Second, func(time.Time) {})
		require.ErrorIs(t, err, ErrInvalidInterval)
		require.Equal(t, 0, s.Len())
	})

	t.Run("fixed rate with catch up", func(t *testing.T) {
		mock := clock.NewMock()
		s := New(WithClock(mock))
		r := &recorder{}
		_, err := s.Schedule(200*time.Millisecond, r.fn("a"))
		require.NoError(t, err)

		mock.Add(199 * time.Millisecond)
		require.Equal(t, 0, s.Tick())

		mock.Add(301 * time.Millisecond)
		require.Equal(t, 2, s.Tick())
		require.Equal(t, 2, r.count("a"))

		// nothing due until 600ms
		require.Equal(t, 0, s.Tick())
	})

	t.Run("independent intervals", func(t *testing.T) {
		mock := clock.NewMock()
		s := New(WithClock(mock))
		r := &recorder{}
		_, err := s.Schedule(200*time.Millisecond, r.fn("fast"))
		require.NoError(t, err)
		_, err = s.Schedule(400*time.Millisecond, r.fn("slow"))
		require.NoError(t, err)

		mock.Add(500 * time.Millisecond)
		s.Tick()
		require.Equal(t, 2, r.count("fast"))
		require.Equal(t, 1, r.count("slow"))
		require.Equal(t, []string{"fast", "fast", "slow"}, r.fired)
	})

	t.Run("equal deadlines fire in scheduling order", func(t *testing.T) {
		mock := clock.NewMock()
		s := New(WithClock(mock))
		r := &recorder{}
		for _, name := range []string{"a", "b", "c"} {
			_, err := s.Schedule(100*time.Millisecond, r.fn(name))
			require.NoError(t, err)
		}
		mock.Add(100 * time.Millisecond)
		require.Equal(t, 3, s.Tick())
		require.Equal(t, []string{"a", "b", "c"}, r.fired)
	})

	t.Run("callback receives its deadline", func(t *testing.T) {
		mock := clock.NewMock()
		start := mock.Now()
		s := New(WithClock(mock))
		var got []time.Time
		_, err := s.Schedule(100*time.Millisecond, func(now time.Time) {
			got = append(got, now)
		})
		require.NoError(t, err)
		mock.Add(250 * time.Millisecond)
		s.Tick()
		require.Equal(t, []time.Time{
			start.Add(100 * time.Millisecond),
			start.Add(200 * time.Millisecond),
		}, got)
	})
}

func TestCancel(t *testing.T) {
	t.Run("canceled task never fires", func(t *testing.T) {
		mock := clock.NewMock()
		s := New(WithClock(mock))
		r := &recorder{}
		task, err := s.Schedule(100*time.Millisecond, r.fn("a"))
		require.NoError(t, err)
		require.Equal(t, 1, s.Len())

		task.Cancel()
		require.True(t, task.Canceled())
		require.Equal(t, 0, s.Len())

		mock.Add(time.Second)
		require.Equal(t, 0, s.Tick())

		// idempotent
		task.Cancel()
		var nilTask *Task
		nilTask.Cancel()
	})

	t.Run("task canceled by an earlier callback in the same tick", func(t *testing.T) {
		mock := clock.NewMock()
		s := New(WithClock(mock))
		r := &recorder{}
		var victim *Task
		_, err := s.Schedule(100*time.Millisecond, func(time.Time) {
			victim.Cancel()
		})
		require.NoError(t, err)
		victim, err = s.Schedule(100*time.Millisecond, r.fn("victim"))
		require.NoError(t, err)

		mock.Add(100 * time.Millisecond)
		require.Equal(t, 1, s.Tick())
		require.Equal(t, 0, r.count("victim"))
	})

	t.Run("callback may schedule", func(t *testing.T) {
		mock := clock.NewMock()
		s := New(WithClock(mock))
		r := &recorder{}
		var once sync.Once
		_, err := s.Schedule(100*time.Millisecond, func(time.Time) {
			once.Do(func() {
				_, _ = s.Schedule(50*time.Millisecond, r.fn("child"))
			})
		})
		require.NoError(t, err)

		mock.Add(100 * time.Millisecond)
		s.Tick()
		mock.Add(50 * time.Millisecond)
		s.Tick()
		require.Equal(t, 1, r.count("child"))
	})
}

func TestStartStop(t *testing.T) {
	s := New()
	s.Start()
	defer s.Stop()

	r := &recorder{}
	task, err := s.Schedule(10*time.Millisecond, r.fn("a"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.count("a") >= 2
	}, time.Second, 5*time.Millisecond)

	task.Cancel()
	stopped := r.count("a")
	time.Sleep(50 * time.Millisecond)
	// at most one in-flight firing may land after Cancel
	require.LessOrEqual(t, r.count("a"), stopped+1)
}
