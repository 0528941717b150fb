package game

import (
	"math"
	"math/rand"
)

// minMagnitude is the smallest direction length renormalization divides by
const minMagnitude = 1e-9

// Rules holds the tuning of the physics. All lengths are fractions of the
// normalized playfield.
type Rules struct {
	PaddleHeight float64 // vertical span of a paddle
	PaddleMargin float64 // extra vertical/horizontal tolerance of a paddle hit
	BallRadius   float64
	LeftPaddleX  float64 // plane of the slot 1 paddle
	RightPaddleX float64 // plane of the slot 2 paddle
	BaseSpeed    float64 // speed of a freshly launched ball, per tick
	SpeedFactor  float64 // multiplier applied on every paddle bounce
	WinningScore int
}

// DefaultRules returns the standard match tuning
func DefaultRules() Rules {
	return Rules{
		PaddleHeight: 0.2,
		PaddleMargin: 0.01,
		BallRadius:   0.015,
		LeftPaddleX:  0.02,
		RightPaddleX: 0.98,
		BaseSpeed:    0.01,
		SpeedFactor:  1.05,
		WinningScore: 5,
	}
}

// MaxPosition is the largest legal paddle top
func (r Rules) MaxPosition() float64 {
	return 1 - r.PaddleHeight
}

// ClampPosition clamps a requested paddle top into [0, MaxPosition]
func (r Rules) ClampPosition(p float64) float64 {
	return math.Max(0, math.Min(r.MaxPosition(), p))
}

// Outcome describes what happened during one Advance call
type Outcome struct {
	Advanced bool // false when the phase was not Playing
	Bounce   Slot // paddle that returned the ball, if any
	Scored   Slot // slot awarded a point, if any
	GameOver bool // the match reached the winning score on this tick
}

// NewBall launches a ball from the center at a random angle within 45
// degrees of horizontal, toward a random side, at the base speed.
func NewBall(rules Rules, rng *rand.Rand) Ball {
	angle := rng.Float64()*math.Pi/2 - math.Pi/4
	dir := 1.0
	if rng.Intn(2) == 0 {
		dir = -1
	}
	return Ball{
		X:     0.5,
		Y:     0.5,
		VX:    math.Cos(angle) * dir,
		VY:    math.Sin(angle),
		Speed: rules.BaseSpeed,
	}
}

// Advance moves the match forward by one tick. It is a no-op outside the
// Playing phase. rng is only consumed when a point is scored.
func Advance(s *State, rules Rules, rng *rand.Rand) Outcome {
	if s.Phase != PhasePlaying {
		return Outcome{}
	}
	out := Outcome{Advanced: true}
	b := &s.Ball

	prevX, prevY := b.X, b.Y
	b.X += b.VX * b.Speed
	b.Y += b.VY * b.Speed

	if b.Y < 0 || b.Y > 1 {
		b.VY = -b.VY
		b.Y = math.Max(0, math.Min(1, b.Y))
	}

	for _, slot := range [...]Slot{Slot1, Slot2} {
		if !paddleHit(s, rules, slot, prevX, prevY) {
			continue
		}
		bounce(b, rules, s.Player(slot).Position)
		// A ball that swept past the paddle plane is put back in front of it.
		if slot == Slot1 {
			b.X = math.Max(b.X, rules.LeftPaddleX+rules.BallRadius)
		} else {
			b.X = math.Min(b.X, rules.RightPaddleX-rules.BallRadius)
		}
		out.Bounce = slot
		break
	}

	switch {
	case b.X < 0:
		out.Scored = Slot2
	case b.X > 1:
		out.Scored = Slot1
	}
	if out.Scored != SlotNone {
		s.Players[out.Scored.index()].Score++
		s.Ball = NewBall(rules, rng)
	}

	for _, p := range s.Players {
		if p.Score >= rules.WinningScore {
			s.Phase = PhaseGameOver
			out.GameOver = true
			break
		}
	}
	return out
}

// paddleHit tests the ball's swept box for this tick against a paddle.
// Testing the whole sweep keeps fast balls from tunneling through.
func paddleHit(s *State, rules Rules, slot Slot, prevX, prevY float64) bool {
	b := s.Ball
	left := math.Min(prevX, b.X) - rules.BallRadius
	right := math.Max(prevX, b.X) + rules.BallRadius
	top := math.Min(prevY, b.Y) - rules.BallRadius
	bottom := math.Max(prevY, b.Y) + rules.BallRadius

	paddleTop := s.Player(slot).Position
	paddleBottom := paddleTop + rules.PaddleHeight
	vertical := bottom >= paddleTop-rules.PaddleMargin && top <= paddleBottom+rules.PaddleMargin
	if !vertical {
		return false
	}

	// A receding ball never counts, even if its box still overlaps. Neither
	// does one that started the tick entirely behind the paddle plane.
	if slot == Slot1 {
		return left <= rules.LeftPaddleX+rules.PaddleMargin &&
			prevX+rules.BallRadius >= rules.LeftPaddleX && b.VX < 0
	}
	return right >= rules.RightPaddleX-rules.PaddleMargin &&
		prevX-rules.BallRadius <= rules.RightPaddleX && b.VX > 0
}

// bounce reflects the ball off a paddle whose top is at paddleTop
func bounce(b *Ball, rules Rules, paddleTop float64) {
	rel := (b.Y - paddleTop) / rules.PaddleHeight
	rel = math.Max(0, math.Min(1, rel))
	angle := rel*(math.Pi/3) - math.Pi/6

	b.VX = -b.VX
	b.VY = math.Sin(angle)
	b.VX, b.VY = normalize(b.VX, b.VY)
	b.Speed *= rules.SpeedFactor
}

// normalize returns (x, y) scaled to unit length. A degenerate vector
// collapses to a horizontal unit vector instead of dividing by ~0.
func normalize(x, y float64) (float64, float64) {
	m := math.Hypot(x, y)
	if m < minMagnitude {
		return math.Copysign(1, x), 0
	}
	return x / m, y / m
}
