package game

import (
	"errors"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"
)

var (
	// ErrMatchFull is returned by Join when both slots are taken
	ErrMatchFull = errors.New("match is full")
	// ErrInvalidConnection is returned by Join for an empty identifier
	ErrInvalidConnection = errors.New("empty connection id")
)

// ResetPolicy decides who may reset the match through RequestReset
type ResetPolicy uint8

const (
	ResetBySeated ResetPolicy = iota // only identities holding a slot
	ResetByAnyone                    // any connected identity, spectators included
)

// ParseResetPolicy accepts "players" or "anyone"
func ParseResetPolicy(s string) (ResetPolicy, bool) {
	switch s {
	case "players", "":
		return ResetBySeated, true
	case "anyone":
		return ResetByAnyone, true
	}
	return ResetBySeated, false
}

// Match owns the single authoritative game state. Every exported method
// takes the match lock for its full duration, so ticks and connection
// events never interleave.
type Match struct {
	mu    sync.Mutex
	state State
	rules Rules
	rng   *rand.Rand
	tick  uint64

	resetPolicy ResetPolicy
	events      *EventLog
}

// MatchOption configures a Match
type MatchOption func(*Match)

// WithSeed makes ball launches reproducible
func WithSeed(seed int64) MatchOption {
	return func(m *Match) {
		m.rng = rand.New(rand.NewSource(seed))
	}
}

// WithResetPolicy sets who may call RequestReset successfully
func WithResetPolicy(p ResetPolicy) MatchOption {
	return func(m *Match) {
		m.resetPolicy = p
	}
}

// WithEventLog records joins, scores and resets into el
func WithEventLog(el *EventLog) MatchOption {
	return func(m *Match) {
		m.events = el
	}
}

// NewMatch creates a match with both slots empty
func NewMatch(rules Rules, opts ...MatchOption) *Match {
	m := &Match{
		rules: rules,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state = m.freshState()
	return m
}

// freshState returns zeroed scores, centered paddles and a new ball,
// keeping current slot occupancy
func (m *Match) freshState() State {
	center := m.rules.ClampPosition(0.5)
	st := State{Ball: NewBall(m.rules, m.rng)}
	for i := range st.Players {
		st.Players[i] = Player{ConnID: m.state.Players[i].ConnID, Position: center}
	}
	st.Phase = PhaseWaiting
	if st.seatedCount() == len(st.Players) {
		st.Phase = PhasePlaying
	}
	return st
}

// Rules returns the tuning the match was created with
func (m *Match) Rules() Rules {
	return m.rules
}

// Join seats connID in the first empty slot. It returns ErrMatchFull when
// both slots are taken; the state is left untouched in that case. Joining
// twice with the same identifier returns the slot it already holds.
func (m *Match) Join(connID string) (Slot, error) {
	if connID == "" {
		return SlotNone, ErrInvalidConnection
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if slot := m.state.slotOf(connID); slot != SlotNone {
		return slot, nil
	}

	slot := SlotNone
	for i := range m.state.Players {
		if !m.state.Players[i].Seated() {
			slot = Slot(i + 1)
			break
		}
	}
	if slot == SlotNone {
		m.events.EmitSimple(EventTypeRejected, m.tick, connID, SeatPayload{ConnID: connID, Slot: slot.String()})
		return SlotNone, ErrMatchFull
	}

	m.state.Players[slot.index()].ConnID = connID
	if m.state.seatedCount() == len(m.state.Players) {
		m.state.Phase = PhasePlaying
		if m.reachedWinningScore() {
			m.state.Phase = PhaseGameOver
		}
	}

	m.events.EmitSimple(EventTypeJoin, m.tick, connID, SeatPayload{ConnID: connID, Slot: slot.String()})
	log.Printf("🏓 Player %s seated in slot %s (%s)", connID, slot, m.state.Phase)
	return slot, nil
}

// Leave frees the slot held by connID, if any. A departing player always
// drops the match back to Waiting, whichever side left. Spectators leaving
// change nothing.
func (m *Match) Leave(connID string) Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot := m.state.slotOf(connID)
	if slot == SlotNone {
		return SlotNone
	}

	m.state.Players[slot.index()].ConnID = ""
	m.state.Phase = PhaseWaiting

	m.events.EmitSimple(EventTypeLeave, m.tick, "", SeatPayload{ConnID: connID, Slot: slot.String()})
	log.Printf("👋 Player %s left slot %s", connID, slot)
	return slot
}

// SetIntent moves the paddle controlled by connID to position, clamped
// into [0, 1-PaddleHeight]. Identities without a slot and NaN positions
// are ignored. It reports whether a paddle was moved.
func (m *Match) SetIntent(connID string, position float64) bool {
	if math.IsNaN(position) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	slot := m.state.slotOf(connID)
	if slot == SlotNone {
		return false
	}
	m.state.Players[slot.index()].Position = m.rules.ClampPosition(position)
	return true
}

// Reset zeroes both scores and relaunches the ball while keeping slot
// occupancy. The match resumes Playing if both slots are filled.
func (m *Match) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked("")
}

// RequestReset resets the match on behalf of connID if the reset policy
// allows that identity. Unauthorized requests are silently ignored.
func (m *Match) RequestReset(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resetPolicy == ResetBySeated && m.state.slotOf(connID) == SlotNone {
		return false
	}
	m.resetLocked(connID)
	return true
}

func (m *Match) resetLocked(requestedBy string) {
	m.state = m.freshState()
	m.events.EmitSimple(EventTypeReset, m.tick, requestedBy, ResetPayload{
		RequestedBy: requestedBy,
		Status:      m.state.Phase.String(),
	})
	log.Printf("🔄 Match reset (%s)", m.state.Phase)
}

// Tick advances the simulation by one step and returns the resulting
// snapshot together with what happened during the step.
func (m *Match) Tick() (Snapshot, Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tick++
	out := Advance(&m.state, m.rules, m.rng)

	if out.Bounce != SlotNone {
		m.events.EmitSimple(EventTypeBounce, m.tick, "", BouncePayload{
			Slot:  out.Bounce.String(),
			Speed: m.state.Ball.Speed,
		})
	}
	if out.Scored != SlotNone {
		m.events.EmitSimple(EventTypeScore, m.tick, "", ScorePayload{
			Slot:    out.Scored.String(),
			Player1: m.state.Players[0].Score,
			Player2: m.state.Players[1].Score,
		})
	}
	if out.GameOver {
		m.events.EmitSimple(EventTypeGameOver, m.tick, "", ScorePayload{
			Slot:    m.leaderLocked().String(),
			Player1: m.state.Players[0].Score,
			Player2: m.state.Players[1].Score,
		})
		log.Printf("🏆 Game over: %d - %d", m.state.Players[0].Score, m.state.Players[1].Score)
	}

	return newSnapshot(&m.state, m.tick), out
}

// Snapshot returns an independent copy of the current state
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newSnapshot(&m.state, m.tick)
}

// SlotOf returns the slot controlled by connID
func (m *Match) SlotOf(connID string) Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.slotOf(connID)
}

// TickCount returns the number of ticks processed so far
func (m *Match) TickCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick
}

// update runs fn against the raw state under the match lock. Tests use it
// to stage ball positions that the public API cannot produce.
func (m *Match) update(fn func(st *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
}

func (m *Match) reachedWinningScore() bool {
	for _, p := range m.state.Players {
		if p.Score >= m.rules.WinningScore {
			return true
		}
	}
	return false
}

func (m *Match) leaderLocked() Slot {
	if m.state.Players[1].Score > m.state.Players[0].Score {
		return Slot2
	}
	return Slot1
}
