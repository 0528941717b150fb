package game

import "time"

// PlayerSnapshot is an immutable copy of one seat
type PlayerSnapshot struct {
	ID       string  `json:"id"`
	Position float64 `json:"position"`
	Score    int     `json:"score"`
}

// BallSnapshot is an immutable copy of the ball
type BallSnapshot struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VelocityX float64 `json:"velocityX"`
	VelocityY float64 `json:"velocityY"`
	Speed     float64 `json:"speed"`
}

// Snapshot is the published view of the match at one tick.
// It holds only value types, so a retained copy never changes.
type Snapshot struct {
	Player1 PlayerSnapshot `json:"player1"`
	Player2 PlayerSnapshot `json:"player2"`
	Ball    BallSnapshot   `json:"ball"`
	Status  string         `json:"status"`

	Tick      uint64    `json:"tick"`
	Timestamp time.Time `json:"-"`
}

// Phase parses Status back into a Phase
func (s Snapshot) Phase() Phase {
	p, _ := ParsePhase(s.Status)
	return p
}

// Player returns the seat snapshot for slot
func (s Snapshot) Player(slot Slot) PlayerSnapshot {
	if slot == Slot2 {
		return s.Player2
	}
	return s.Player1
}

func newSnapshot(st *State, tick uint64) Snapshot {
	player := func(p Player) PlayerSnapshot {
		return PlayerSnapshot{ID: p.ConnID, Position: p.Position, Score: p.Score}
	}
	return Snapshot{
		Player1: player(st.Players[0]),
		Player2: player(st.Players[1]),
		Ball: BallSnapshot{
			X:         st.Ball.X,
			Y:         st.Ball.Y,
			VelocityX: st.Ball.VX,
			VelocityY: st.Ball.VY,
			Speed:     st.Ball.Speed,
		},
		Status:    st.Phase.String(),
		Tick:      tick,
		Timestamp: time.Now(),
	}
}
