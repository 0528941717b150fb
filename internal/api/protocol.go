package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Socket events. Names match what browser clients already send and expect.
const (
	EventGameState          = "game-state"
	EventGameFull           = "game-full"
	EventPlayerDisconnected = "player-disconnected"
	EventWelcome            = "welcome"

	EventMovePaddle = "move-paddle"
	EventResetGame  = "reset-game"
)

// ErrBadPosition is returned when a move-paddle payload is not a finite number
var ErrBadPosition = errors.New("move-paddle data must be a finite number")

// Envelope is the frame shape in both directions
type Envelope struct {
	Event string      `json:"event" msgpack:"event"`
	Data  interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
}

// Welcome tells a fresh connection who it is. Slot is 0 for spectators.
type Welcome struct {
	ID   string `json:"id"`
	Slot int    `json:"slot"`
}

// Inbound is a decoded client message
type Inbound struct {
	Event    string
	Position float64 // set for move-paddle
}

// Codec converts envelopes to websocket frames and back
type Codec interface {
	Name() string
	FrameType() int
	Encode(event string, data interface{}) ([]byte, error)
	Decode(frame []byte) (Inbound, error)
}

// Codec names accepted in the ?codec= query parameter
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

var (
	jsonCodecInstance    Codec = jsonCodec{}
	msgpackCodecInstance Codec = msgpackCodec{}
)

// codecFor picks the codec requested by the client, JSON when unspecified
func codecFor(r *http.Request) (Codec, error) {
	switch name := r.URL.Query().Get("codec"); name {
	case "", CodecJSON:
		return jsonCodecInstance, nil
	case CodecMsgpack:
		return msgpackCodecInstance, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return CodecJSON }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}

func (jsonCodec) Decode(frame []byte) (Inbound, error) {
	var raw struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Inbound{}, fmt.Errorf("decode json frame: %w", err)
	}

	in := Inbound{Event: raw.Event}
	if raw.Event == EventMovePaddle {
		if err := json.Unmarshal(raw.Data, &in.Position); err != nil {
			return Inbound{}, ErrBadPosition
		}
	}
	return in, nil
}

// msgpackCodec reuses the json struct tags so both codecs share field names
type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return CodecMsgpack }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(event string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(Envelope{Event: event, Data: data}); err != nil {
		return nil, fmt.Errorf("encode msgpack frame: %w", err)
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Decode(frame []byte) (Inbound, error) {
	var raw struct {
		Event string             `msgpack:"event"`
		Data  msgpack.RawMessage `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(frame, &raw); err != nil {
		return Inbound{}, fmt.Errorf("decode msgpack frame: %w", err)
	}

	in := Inbound{Event: raw.Event}
	if raw.Event == EventMovePaddle {
		if err := msgpack.Unmarshal(raw.Data, &in.Position); err != nil {
			return Inbound{}, ErrBadPosition
		}
		if math.IsNaN(in.Position) {
			return Inbound{}, ErrBadPosition
		}
	}
	return in, nil
}
