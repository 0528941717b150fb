package game

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stripTime drops the wall-clock stamp so snapshots can be compared
func stripTime(s Snapshot) Snapshot {
	s.Timestamp = time.Time{}
	return s
}

func fullMatch(t *testing.T, opts ...MatchOption) *Match {
	t.Helper()
	m := NewMatch(DefaultRules(), append([]MatchOption{WithSeed(7)}, opts...)...)
	_, err := m.Join("A")
	require.NoError(t, err)
	_, err = m.Join("B")
	require.NoError(t, err)
	return m
}

func TestNewMatchStartsEmpty(t *testing.T) {
	m := NewMatch(DefaultRules(), WithSeed(1))
	snap := m.Snapshot()

	assert.Equal(t, "waiting", snap.Status)
	assert.Empty(t, snap.Player1.ID)
	assert.Empty(t, snap.Player2.ID)
	assert.Equal(t, 0.5, snap.Ball.X)
	assert.Equal(t, 0.5, snap.Ball.Y)
	assert.Equal(t, DefaultRules().BaseSpeed, snap.Ball.Speed)
}

func TestJoinAssignsSlots(t *testing.T) {
	m := NewMatch(DefaultRules(), WithSeed(1))

	slot, err := m.Join("A")
	require.NoError(t, err)
	assert.Equal(t, Slot1, slot)
	assert.Equal(t, PhaseWaiting, m.Snapshot().Phase())

	slot, err = m.Join("B")
	require.NoError(t, err)
	assert.Equal(t, Slot2, slot)
	assert.Equal(t, PhasePlaying, m.Snapshot().Phase())

	// Same identity again keeps its seat
	slot, err = m.Join("A")
	require.NoError(t, err)
	assert.Equal(t, Slot1, slot)
}

func TestJoinRejectsThirdController(t *testing.T) {
	m := fullMatch(t)
	before := stripTime(m.Snapshot())

	for _, id := range []string{"C", "D", "E"} {
		slot, err := m.Join(id)
		assert.True(t, errors.Is(err, ErrMatchFull))
		assert.Equal(t, SlotNone, slot)
	}

	assert.Equal(t, before, stripTime(m.Snapshot()))
}

func TestJoinRejectsEmptyID(t *testing.T) {
	m := NewMatch(DefaultRules())
	_, err := m.Join("")
	assert.ErrorIs(t, err, ErrInvalidConnection)
}

func TestLeaveForcesWaiting(t *testing.T) {
	tests := []struct {
		name    string
		leaving string
		slot    Slot
	}{
		{"slot 1 leaves", "A", Slot1},
		{"slot 2 leaves", "B", Slot2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fullMatch(t)
			require.Equal(t, PhasePlaying, m.Snapshot().Phase())

			assert.Equal(t, tt.slot, m.Leave(tt.leaving))

			snap := m.Snapshot()
			assert.Equal(t, "waiting", snap.Status)
			assert.Empty(t, snap.Player(tt.slot).ID)
			assert.NotEmpty(t, snap.Player(tt.slot.opponent()).ID)
		})
	}
}

func TestLeaveKeepsScoreUntilReset(t *testing.T) {
	m := fullMatch(t)
	m.update(func(st *State) { st.Players[0].Score = 3 })

	m.Leave("A")
	assert.Equal(t, 3, m.Snapshot().Player1.Score)

	m.Reset()
	assert.Equal(t, 0, m.Snapshot().Player1.Score)
}

func TestLeaveByUnknownIdentity(t *testing.T) {
	m := fullMatch(t)

	assert.Equal(t, SlotNone, m.Leave("spectator"))
	assert.Equal(t, PhasePlaying, m.Snapshot().Phase())
}

func TestRejoinFillsFreedSlot(t *testing.T) {
	m := fullMatch(t)
	m.Leave("A")

	slot, err := m.Join("C")
	require.NoError(t, err)
	assert.Equal(t, Slot1, slot)
	assert.Equal(t, PhasePlaying, m.Snapshot().Phase())
}

func TestRejoinAfterWinStaysOver(t *testing.T) {
	m := fullMatch(t)
	m.update(func(st *State) { st.Players[1].Score = DefaultRules().WinningScore })
	m.Leave("A")

	_, err := m.Join("C")
	require.NoError(t, err)
	assert.Equal(t, PhaseGameOver, m.Snapshot().Phase())
}

func TestSetIntentClamps(t *testing.T) {
	m := fullMatch(t)
	rules := m.Rules()

	for _, p := range []float64{-5, -0.1, 0, 0.25, 0.5, 0.8, 0.81, 3, math.Inf(1)} {
		require.True(t, m.SetIntent("A", p))
		got := m.Snapshot().Player1.Position
		assert.Equal(t, rules.ClampPosition(p), got, "p=%v", p)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, rules.MaxPosition())
	}
}

func TestSetIntentIgnoresUnseatedAndNaN(t *testing.T) {
	m := fullMatch(t)
	require.True(t, m.SetIntent("A", 0.3))
	before := stripTime(m.Snapshot())

	assert.False(t, m.SetIntent("stranger", 0.1))
	assert.False(t, m.SetIntent("", 0.1))
	assert.False(t, m.SetIntent("A", math.NaN()))

	assert.Equal(t, before, stripTime(m.Snapshot()))
}

func TestResetPreservesOccupancy(t *testing.T) {
	m := fullMatch(t)
	m.update(func(st *State) {
		st.Players[0].Score = 5
		st.Players[1].Score = 2
		st.Phase = PhaseGameOver
	})

	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, "playing", snap.Status)
	assert.Equal(t, "A", snap.Player1.ID)
	assert.Equal(t, "B", snap.Player2.ID)
	assert.Zero(t, snap.Player1.Score)
	assert.Zero(t, snap.Player2.Score)
	assert.Equal(t, 0.5, snap.Ball.X)
	assert.Equal(t, 0.5, snap.Ball.Y)
}

func TestResetWithOneSeatWaits(t *testing.T) {
	m := NewMatch(DefaultRules(), WithSeed(1))
	_, err := m.Join("A")
	require.NoError(t, err)

	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, "waiting", snap.Status)
	assert.Equal(t, "A", snap.Player1.ID)
}

func TestRequestResetPolicy(t *testing.T) {
	tests := []struct {
		name      string
		policy    ResetPolicy
		requester string
		accepted  bool
	}{
		{"seated player under players policy", ResetBySeated, "A", true},
		{"spectator under players policy", ResetBySeated, "spectator", false},
		{"spectator under anyone policy", ResetByAnyone, "spectator", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fullMatch(t, WithResetPolicy(tt.policy))
			m.update(func(st *State) { st.Players[0].Score = 4 })

			assert.Equal(t, tt.accepted, m.RequestReset(tt.requester))

			want := 4
			if tt.accepted {
				want = 0
			}
			assert.Equal(t, want, m.Snapshot().Player1.Score)
		})
	}
}

func TestParseResetPolicy(t *testing.T) {
	p, ok := ParseResetPolicy("anyone")
	assert.True(t, ok)
	assert.Equal(t, ResetByAnyone, p)

	p, ok = ParseResetPolicy("players")
	assert.True(t, ok)
	assert.Equal(t, ResetBySeated, p)

	_, ok = ParseResetPolicy("admins")
	assert.False(t, ok)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	m := fullMatch(t)
	first := m.Snapshot()
	kept := first

	for i := 0; i < 50; i++ {
		m.Tick()
	}
	m.SetIntent("A", 0.7)

	assert.Equal(t, kept, first)
	assert.NotEqual(t, first.Tick, m.Snapshot().Tick)
}

func TestTickOnlyAdvancesWhilePlaying(t *testing.T) {
	m := NewMatch(DefaultRules(), WithSeed(3))
	_, err := m.Join("A")
	require.NoError(t, err)

	before := m.Snapshot().Ball
	for i := 0; i < 10; i++ {
		_, out := m.Tick()
		assert.False(t, out.Advanced)
	}
	assert.Equal(t, before, m.Snapshot().Ball)
	assert.Equal(t, uint64(10), m.TickCount())
}

// Two players join, slot 1 parks its paddle at the top and returns a ball
// placed just in front of it. The ball crosses the table untouched.
func TestMatchEndToEnd(t *testing.T) {
	m := NewMatch(DefaultRules(), WithSeed(11))

	slot, err := m.Join("A")
	require.NoError(t, err)
	require.Equal(t, Slot1, slot)
	snap := m.Snapshot()
	assert.Equal(t, "waiting", snap.Status)
	assert.Equal(t, "A", snap.Player1.ID)

	slot, err = m.Join("B")
	require.NoError(t, err)
	require.Equal(t, Slot2, slot)
	snap = m.Snapshot()
	assert.Equal(t, "playing", snap.Status)
	assert.Equal(t, "B", snap.Player2.ID)

	m.SetIntent("A", -5)
	assert.Equal(t, 0.0, m.Snapshot().Player1.Position)
	m.SetIntent("B", 0.8)

	m.update(func(st *State) {
		st.Ball = Ball{X: 0.03, Y: 0.1, VX: -1, VY: 0, Speed: 0.01}
	})

	bounces := 0
	var first Snapshot
	scored := SlotNone
	for i := 0; i < 1000; i++ {
		res, out := m.Tick()
		if out.Bounce != SlotNone {
			bounces++
			if bounces == 1 {
				first = res
			}
		}
		if out.Scored != SlotNone {
			scored = out.Scored
			break
		}
	}

	assert.Equal(t, 1, bounces)
	assert.Greater(t, first.Ball.VelocityX, 0.0)
	assert.InDelta(t, 0.0105, first.Ball.Speed, tolerance)
	assert.Equal(t, Slot1, scored)
}

func TestEventLogRecordsMatchEvents(t *testing.T) {
	el := NewEventLog()
	require.NoError(t, el.Start(""))
	defer el.Stop()

	m := fullMatch(t, WithEventLog(el))
	m.Join("C")
	m.Leave("A")
	m.Reset()

	// join A, join B, rejected C, leave A, reset
	assert.Equal(t, uint64(5), el.GetTotalCount())
}

func TestConcurrentOperationsKeepInvariants(t *testing.T) {
	m := NewMatch(DefaultRules(), WithSeed(5))
	rules := m.Rules()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", w)
			for i := 0; i < 200; i++ {
				m.Join(id)
				m.SetIntent(id, float64(i%30)/10-1)
				m.Tick()
				if i%50 == 49 {
					m.Leave(id)
				}
				if i%70 == 0 {
					m.RequestReset(id)
				}
			}
		}(w)
	}

	for i := 0; i < 200; i++ {
		snap := m.Snapshot()
		for _, p := range []PlayerSnapshot{snap.Player1, snap.Player2} {
			assert.GreaterOrEqual(t, p.Position, 0.0)
			assert.LessOrEqual(t, p.Position, rules.MaxPosition())
			assert.GreaterOrEqual(t, p.Score, 0)
		}
		if snap.Player1.ID != "" && snap.Player2.ID != "" {
			assert.NotEqual(t, snap.Player1.ID, snap.Player2.ID)
		}
	}
	wg.Wait()
}
