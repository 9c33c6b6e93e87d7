// Package translate turns text records into activity log lines.
//
// Translation is a pure lookup: the same record always yields the same line,
// nothing here touches the clock, the network or the file system.
//
// Dispatch order for translation records:
//
//  1. exact keys (joins, leaves, night skipping)
//  2. the death.* family
//  3. any other key inside a known family is echoed as "* <key>"
//  4. everything else is protocol noise and produces no line
package translate

import (
	"sort"
	"strings"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
)

// Well-known locale keys, normalised (no colour codes, no leading %).
const (
	KeyPlayerJoined  = "multiplayer.player.joined"
	KeyPlayerLeft    = "multiplayer.player.left"
	KeySkippingNight = "multiplayer.playersSkippingNight"
)

const (
	deathPrefix   = "death."
	unknownPlayer = "unknown"
)

// families lists key prefixes whose unmapped members are still surfaced.
var families = []string{"multiplayer."}

type handler func(rec events.Record) string

var exact = map[string]handler{
	KeyPlayerJoined: func(rec events.Record) string {
		return "* [" + player(rec) + "] joined the game."
	},
	KeyPlayerLeft: func(rec events.Record) string {
		return "* [" + player(rec) + "] left the game."
	},
	KeySkippingNight: func(events.Record) string {
		return "* Players are skipping the night."
	},
}

// Translate renders rec. The boolean is false when the record is not worth
// a line; that is filtering, not an error.
func Translate(rec events.Record) (string, bool) {
	switch rec.Kind {
	case events.KindChat:
		return "[" + rec.Speaker + "] " + rec.Message, true
	case events.KindAnnouncement:
		return rec.Message, true
	case events.KindTranslation:
		return translateKey(rec)
	default:
		return "", false
	}
}

func translateKey(rec events.Record) (string, bool) {
	key := NormalizeKey(rec.Message)
	if h, ok := exact[key]; ok {
		return h(rec), true
	}
	if strings.HasPrefix(key, deathPrefix) {
		return Death(key, rec.Parameters), true
	}
	for _, prefix := range families {
		if strings.HasPrefix(key, prefix) {
			return "* " + key, true
		}
	}
	return "", false
}

// NormalizeKey strips Minecraft formatting codes (§ followed by one
// character) and a leading % from a locale key.
func NormalizeKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '§' {
			i++
			continue
		}
		b.WriteRune(runes[i])
	}
	return strings.TrimPrefix(strings.TrimSpace(b.String()), "%")
}

// JoinedPlayer reports the player named by a join record.
func JoinedPlayer(rec events.Record) (string, bool) {
	return keyPlayer(rec, KeyPlayerJoined)
}

// LeftPlayer reports the player named by a leave record.
func LeftPlayer(rec events.Record) (string, bool) {
	return keyPlayer(rec, KeyPlayerLeft)
}

func keyPlayer(rec events.Record, key string) (string, bool) {
	if rec.Kind != events.KindTranslation || NormalizeKey(rec.Message) != key {
		return "", false
	}
	name := rec.Param(0)
	return name, name != ""
}

// Keys lists every key with a dedicated template, sorted.
func Keys() []string {
	keys := make([]string, 0, len(exact)+len(deathReasons))
	for k := range exact {
		keys = append(keys, k)
	}
	for k := range deathReasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func player(rec events.Record) string {
	if name := rec.Param(0); name != "" {
		return name
	}
	return unknownPlayer
}
