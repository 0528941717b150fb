package game

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineDefaultsInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     time.Duration
	}{
		{"explicit 16ms", 16 * time.Millisecond, 16 * time.Millisecond},
		{"explicit 33ms", 33 * time.Millisecond, 33 * time.Millisecond},
		{"zero falls back", 0, DefaultTickInterval},
		{"negative falls back", -time.Second, DefaultTickInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(NewMatch(DefaultRules()), tt.interval)
			require.NotNil(t, e)
			assert.Equal(t, tt.want, e.interval)
		})
	}
}

func TestEngineStartStop(t *testing.T) {
	e := NewEngine(NewMatch(DefaultRules()), time.Millisecond)

	e.Start()
	e.Start() // second start is a no-op
	assert.True(t, e.Running())

	time.Sleep(30 * time.Millisecond)

	e.Stop()
	assert.False(t, e.Running())
	e.Stop() // no panic on double stop

	// Restart after a stop
	e.Start()
	e.Stop()
}

// The loop keeps ticking without any player; nothing moves outside Playing.
func TestEngineTicksWithoutPlayers(t *testing.T) {
	m := NewMatch(DefaultRules(), WithSeed(2))
	e := NewEngine(m, time.Millisecond)

	var published atomic.Int64
	e.Subscribe(func(res TickResult) {
		published.Add(1)
		assert.Equal(t, "waiting", res.Snapshot.Status)
		assert.False(t, res.Outcome.Advanced)
	})

	e.Start()
	require.Eventually(t, func() bool { return published.Load() >= 5 }, time.Second, time.Millisecond)
	e.Stop()

	assert.GreaterOrEqual(t, m.TickCount(), uint64(5))
}

func TestEngineStepPublishesToEveryListener(t *testing.T) {
	m := NewMatch(DefaultRules(), WithSeed(2))
	_, _ = m.Join("A")
	_, _ = m.Join("B")
	e := NewEngine(m, time.Hour)

	var mu sync.Mutex
	var got []uint64
	for i := 0; i < 3; i++ {
		e.Subscribe(func(res TickResult) {
			mu.Lock()
			got = append(got, res.Snapshot.Tick)
			mu.Unlock()
		})
	}

	res := e.Step()

	assert.True(t, res.Outcome.Advanced)
	assert.Equal(t, []uint64{1, 1, 1}, got)
	assert.Equal(t, "playing", res.Snapshot.Status)
}

func TestEngineStats(t *testing.T) {
	el := NewEventLog()
	require.NoError(t, el.Start(""))
	defer el.Stop()

	e := NewEngine(NewMatch(DefaultRules(), WithEventLog(el)), 16*time.Millisecond)
	e.Step()
	e.Step()

	stats := e.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, uint64(2), stats.TickCount)
	assert.Equal(t, "16ms", stats.TickInterval)
	assert.Equal(t, "waiting", stats.Status)
	assert.NotNil(t, e.EventLogStats())

	assert.Nil(t, NewEngine(NewMatch(DefaultRules()), 0).EventLogStats())
}
