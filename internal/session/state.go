package session

import (
	"time"

	"github.com/MRamiBalles/bedrock-chatlog/internal/translate"
)

// Phase is the connection lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseDisconnected
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Scheduler runs fn once after d. Implementations may call fn from any
// goroutine; the controller re-posts it onto its dispatcher.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// TimerScheduler schedules with time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// kickNarratives maps normalised kick codes to what the activity log says.
var kickNarratives = map[string]string{
	"disconnect.kicked":                    "was kicked from the server.",
	"disconnect.timeout":                   "was disconnected from the server.",
	"disconnectionScreen.serverIdConflict": "was already present on the server.",
}

// KickNarrative returns the activity log text for a kick reason, if the
// reason is one of the known codes.
func KickNarrative(reason string) (string, bool) {
	text, ok := kickNarratives[translate.NormalizeKey(reason)]
	return text, ok
}
