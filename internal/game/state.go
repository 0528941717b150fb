package game

import "fmt"

// Phase is the coarse lifecycle state of the match
type Phase uint8

const (
	PhaseWaiting  Phase = iota // fewer than two slots filled
	PhasePlaying               // both slots filled, simulation advances
	PhaseGameOver              // a score reached the winning threshold
)

// String returns the wire name of the phase
func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhasePlaying:
		return "playing"
	case PhaseGameOver:
		return "game-over"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// ParsePhase converts a wire name back into a Phase
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "waiting":
		return PhaseWaiting, nil
	case "playing":
		return PhasePlaying, nil
	case "game-over":
		return PhaseGameOver, nil
	}
	return PhaseWaiting, fmt.Errorf("unknown phase %q", s)
}

// Slot identifies one of the two controllable paddles.
// SlotNone is returned for identities that control neither.
type Slot uint8

const (
	SlotNone Slot = iota
	Slot1
	Slot2
)

// String returns "1", "2" or "none"
func (s Slot) String() string {
	switch s {
	case Slot1:
		return "1"
	case Slot2:
		return "2"
	default:
		return "none"
	}
}

// index maps a slot to its position in State.Players
func (s Slot) index() int {
	return int(s) - 1
}

// opponent returns the other seat
func (s Slot) opponent() Slot {
	if s == Slot1 {
		return Slot2
	}
	return Slot1
}

// Player is one seat of the match
type Player struct {
	ConnID   string  // empty when the slot is unfilled
	Position float64 // top of the paddle, always in [0, 1-PaddleHeight]
	Score    int
}

// Seated reports whether a connection currently controls this slot
func (p Player) Seated() bool {
	return p.ConnID != ""
}

// Ball lives in the normalized [0,1]x[0,1] playfield.
// (VX, VY) is kept at unit length; Speed alone carries the magnitude.
type Ball struct {
	X, Y   float64
	VX, VY float64
	Speed  float64
}

// State is the complete authoritative match state. It is a plain value:
// copying it never shares memory with the original.
type State struct {
	Players [2]Player
	Ball    Ball
	Phase   Phase
}

// Player returns a copy of the player in the given slot
func (s *State) Player(slot Slot) Player {
	return s.Players[slot.index()]
}

// seatedCount returns how many slots hold a connection
func (s *State) seatedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Seated() {
			n++
		}
	}
	return n
}

// slotOf returns the slot held by connID, or SlotNone
func (s *State) slotOf(connID string) Slot {
	if connID == "" {
		return SlotNone
	}
	for i, p := range s.Players {
		if p.ConnID == connID {
			return Slot(i + 1)
		}
	}
	return SlotNone
}
