package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	transcriptMu  sync.Mutex
	transcriptLog *log.Logger
)

// SetTranscriptWriter routes agent prompts and responses to w. A nil writer
// disables the transcript.
func SetTranscriptWriter(w io.Writer) {
	transcriptMu.Lock()
	defer transcriptMu.Unlock()
	if w == nil {
		transcriptLog = nil
		return
	}
	transcriptLog = log.New(w, "", log.LstdFlags)
}

type transcriptSection struct {
	Title string
	Body  string
}

func writeTranscript(kind, agentID string, sections []transcriptSection) {
	transcriptMu.Lock()
	out := transcriptLog
	transcriptMu.Unlock()
	if out == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[AGENT][")
	b.WriteString(kind)
	b.WriteString("]")
	if agentID != "" {
		b.WriteString("[")
		b.WriteString(agentID)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		title := strings.TrimSpace(sec.Title)
		if title == "" {
			title = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(title)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	out.Print(b.String())
}

// LogAgentRequest records the prompt sent to one decision agent.
func LogAgentRequest(agentID, systemPrompt, userPrompt string) {
	writeTranscript("request", agentID, []transcriptSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	})
}

// LogAgentResponse records the raw text returned by one decision agent.
func LogAgentResponse(agentID, raw string) {
	writeTranscript("response", agentID, []transcriptSection{{Title: "RAW", Body: raw}})
}
