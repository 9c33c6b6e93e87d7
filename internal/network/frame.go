// Package network talks to the protocol bridge: the process that owns the
// Bedrock connection and relays its events as JSON frames over a WebSocket.
package network

import (
	"encoding/json"
	"errors"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
)

// Frame event names. Inbound ones mirror events.EventType.
const (
	FrameJoin       = "join"
	FrameText       = "text"
	FrameKick       = "kick"
	FrameClose      = "close"
	FrameError      = "error"
	FrameCommand    = "command"
	FrameDisconnect = "disconnect"
)

// Frame is one JSON message on the bridge socket.
type Frame struct {
	Event   string          `json:"event"`
	Packet  json.RawMessage `json:"packet,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	Command string          `json:"command,omitempty"`
}

var errUnknownFrame = errors.New("unknown frame event")

// TextFrame wraps a record for sending to a bot.
func TextFrame(rec events.Record) (Frame, error) {
	packet, err := json.Marshal(rec)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: FrameText, Packet: packet}, nil
}

// toEvent converts an inbound frame into a session event.
func (f Frame) toEvent() (events.Event, error) {
	switch f.Event {
	case FrameJoin:
		return events.Event{Type: events.EventTypeJoined}, nil
	case FrameText:
		var rec events.Record
		if err := json.Unmarshal(f.Packet, &rec); err != nil {
			return events.Event{}, err
		}
		return events.Event{Type: events.EventTypeText, Record: &rec, Raw: []byte(f.Packet)}, nil
	case FrameKick:
		return events.Event{Type: events.EventTypeKick, Reason: f.Reason}, nil
	case FrameClose:
		return events.Event{Type: events.EventTypeClosed, Reason: f.Reason}, nil
	case FrameError:
		detail := f.Detail
		if detail == "" {
			detail = "bridge reported an error"
		}
		return events.Event{Type: events.EventTypeError, Err: errors.New(detail)}, nil
	default:
		return events.Event{}, errUnknownFrame
	}
}
