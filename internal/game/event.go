package game

import (
	"encoding/json"
	"time"
)

// EventType classifies match events
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeJoin
	EventTypeLeave
	EventTypeRejected
	EventTypeBounce
	EventTypeScore
	EventTypeGameOver
	EventTypeReset
)

// EventVersion is bumped whenever a payload shape changes
const EventVersion uint8 = 1

// Event is one entry of the match event log
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // unix nano
	Sequence  uint64          `json:"sequence"`
	TickNum   uint64          `json:"tickNum"`
	ConnID    string          `json:"connId,omitempty"` // source connection, used for rate limiting
	Payload   json.RawMessage `json:"payload"`
}

// String returns the human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeJoin:
		return "join"
	case EventTypeLeave:
		return "leave"
	case EventTypeRejected:
		return "rejected"
	case EventTypeBounce:
		return "bounce"
	case EventTypeScore:
		return "score"
	case EventTypeGameOver:
		return "game_over"
	case EventTypeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// SeatPayload is recorded for join and leave events
type SeatPayload struct {
	ConnID string `json:"connId"`
	Slot   string `json:"slot"`
}

// BouncePayload is recorded when a paddle returns the ball
type BouncePayload struct {
	Slot  string  `json:"slot"`
	Speed float64 `json:"speed"`
}

// ScorePayload is recorded when a point is awarded
type ScorePayload struct {
	Slot    string `json:"slot"`
	Player1 int    `json:"player1"`
	Player2 int    `json:"player2"`
}

// ResetPayload is recorded when a reset is accepted
type ResetPayload struct {
	RequestedBy string `json:"requestedBy,omitempty"`
	Status      string `json:"status"`
}

// EncodePayload marshals a payload so it is embedded as-is in the log line
func EncodePayload(payload interface{}) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates an event stamped with the current time
func NewEvent(eventType EventType, tickNum uint64, connID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		ConnID:    connID,
		Payload:   EncodePayload(payload),
	}
}
