package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/bedrock-chatlog/internal/events"
	"github.com/MRamiBalles/bedrock-chatlog/internal/network"
)

func TestParseFrames(t *testing.T) {
	script := `
# connection drops after some chat
{"event":"join"}
{"type":"chat","source_name":"Alice","message":"Hello"}
{"event":"text","packet":{"type":"translation","message":"death.attack.lava","parameters":["Bob"]}}

{"event":"kick","reason":"%disconnect.kicked"}
`
	frames, err := parseFrames(strings.NewReader(script))
	require.NoError(t, err)
	require.Len(t, frames, 4)

	assert.Equal(t, network.FrameJoin, frames[0].Event)

	assert.Equal(t, network.FrameText, frames[1].Event)
	var rec events.Record
	require.NoError(t, json.Unmarshal(frames[1].Packet, &rec))
	assert.Equal(t, events.KindChat, rec.Kind)
	assert.Equal(t, "Alice", rec.Speaker)

	assert.Equal(t, network.FrameText, frames[2].Event)
	assert.Equal(t, network.FrameKick, frames[3].Event)
	assert.Equal(t, "%disconnect.kicked", frames[3].Reason)
}

func TestParseFramesReportsLine(t *testing.T) {
	_, err := parseFrames(strings.NewReader("{\"event\":\"join\"}\n{not json"))
	assert.ErrorContains(t, err, "line 2")
}

func TestDemoScriptLoads(t *testing.T) {
	frames, err := loadFrames("")
	require.NoError(t, err)
	assert.Len(t, frames, len(demoScript))
	for _, f := range frames {
		assert.Equal(t, network.FrameText, f.Event)
	}
}
