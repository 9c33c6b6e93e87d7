// Package events defines what the protocol bridge delivers to the session:
// lifecycle events and the text records carried by them.
package events

import (
	"context"
	"time"
)

// Kind discriminates text records. Values match the Bedrock text packet types.
type Kind string

const (
	KindRaw          Kind = "raw"
	KindChat         Kind = "chat"
	KindTranslation  Kind = "translation"
	KindPopup        Kind = "popup"
	KindJukeboxPopup Kind = "jukebox_popup"
	KindTip          Kind = "tip"
	KindSystem       Kind = "system"
	KindWhisper      Kind = "whisper"
	KindAnnouncement Kind = "announcement"
	KindJSON         Kind = "json"
)

// Record is a text packet as relayed by the bridge. Read-only once received.
type Record struct {
	Kind             Kind     `json:"type"`
	NeedsTranslation bool     `json:"needs_translation"`
	Speaker          string   `json:"source_name,omitempty"`
	Message          string   `json:"message"`
	Parameters       []string `json:"parameters,omitempty"`
	XUID             string   `json:"xuid"`
	PlatformChatID   string   `json:"platform_chat_id"`
	FilteredMessage  string   `json:"filtered_message"`
}

// Param returns the parameter at position i, or "" when absent.
// Position 0 is the affected player, position 1 the cause.
func (r Record) Param(i int) string {
	if i < 0 || i >= len(r.Parameters) {
		return ""
	}
	return r.Parameters[i]
}

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventTypeJoined EventType = "join"
	EventTypeText   EventType = "text"
	EventTypeKick   EventType = "kick"
	EventTypeClosed EventType = "close"
	EventTypeError  EventType = "error"
)

// Terminal reports whether the event ends the session that produced it.
func (t EventType) Terminal() bool {
	return t == EventTypeKick || t == EventTypeClosed || t == EventTypeError
}

// Event is one notification from a protocol session.
type Event struct {
	Type   EventType
	Record *Record // set for EventTypeText
	Reason string  // kick reason code
	Err    error   // set for EventTypeError
	Raw    []byte  // original frame, used for raw logging
}

// Options describe how to open a session.
type Options struct {
	Host     string
	Port     int
	Username string
	Offline  bool
}

// Session is a single connection attempt to the server.
type Session interface {
	// Events is closed after the first terminal event.
	Events() <-chan Event
	// Send issues a command line as the bot, e.g. `tell "Steve" hi`.
	Send(command string) error
	// Disconnect asks the server to end the session.
	Disconnect(reason string) error
	// Close tears the transport down without negotiation.
	Close() error
}

// Dialer opens sessions. Open must not block on the network: the outcome of
// the attempt is reported through the session's events.
type Dialer interface {
	Open(ctx context.Context, opts Options) Session
}

// ArchivedRecord is a record plus what the session made of it.
type ArchivedRecord struct {
	ID         string
	SessionID  string
	ObservedAt time.Time
	Record     Record
	Rendered   string
}

// Persister defines how observed records are durably archived.
type Persister interface {
	Append(ctx context.Context, rec ArchivedRecord) error
	Close() error
}
