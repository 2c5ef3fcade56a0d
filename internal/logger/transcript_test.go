package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranscriptWriter(t *testing.T) {
	var buf bytes.Buffer
	SetTranscriptWriter(&buf)
	t.Cleanup(func() { SetTranscriptWriter(nil) })

	LogAgentRequest("openai/gpt-5", "sys", "user block")
	LogAgentResponse("openai/gpt-5", "commands:\nbuy(1, 0.1)")

	out := buf.String()
	assert.Contains(t, out, "[AGENT][request][openai/gpt-5]")
	assert.Contains(t, out, "--- SYSTEM ---\nsys\n")
	assert.Contains(t, out, "--- RAW ---\ncommands:\nbuy(1, 0.1)\n")
}

func TestTranscriptDisabled(t *testing.T) {
	SetTranscriptWriter(nil)
	assert.NotPanics(t, func() { LogAgentResponse("x", "y") })
}
