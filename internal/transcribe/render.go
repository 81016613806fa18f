package transcribe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/monitome/pkg/provider/stt"
)

// Renderer writes transcription events to a terminal. Partial transcripts
// overwrite the current line in place; committed transcripts are printed
// as finished lines, followed by a line of word timings when the server
// sent them. Labels are coloured only when w is a terminal.
//
// All methods are safe for concurrent use.
type Renderer struct {
	mu            sync.Mutex
	w             io.Writer
	partialActive bool
	sessionID     string

	partialStyle lipgloss.Style
	finalStyle   lipgloss.Style
	errorStyle   lipgloss.Style
	otherStyle   lipgloss.Style
}

// NewRenderer returns a Renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	lr := lipgloss.NewRenderer(w)
	return &Renderer{
		w:            w,
		partialStyle: lr.NewStyle().Foreground(lipgloss.Color("8")),
		finalStyle:   lr.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		errorStyle:   lr.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		otherStyle:   lr.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

// Render displays one event.
func (r *Renderer) Render(ev stt.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case ev.Type == stt.EventSessionStarted:
		r.sessionID = ev.SessionID
		fmt.Fprintf(r.w, "Session started: %s\n", ev.SessionID)

	case ev.Type == stt.EventPartialTranscript:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return
		}
		fmt.Fprintf(r.w, "\r%s %s   ", r.partialStyle.Render("[partial]"), text)
		r.partialActive = true

	case ev.IsCommitted():
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return
		}
		r.endPartial()
		fmt.Fprintf(r.w, "%s   %s\n", r.finalStyle.Render("[final]"), text)
		if timings := wordTimings(ev.Words); timings != "" {
			fmt.Fprintf(r.w, "%s%s\n", strings.Repeat(" ", len("[final]   ")), r.partialStyle.Render(timings))
		}

	case ev.IsError():
		r.endPartial()
		fmt.Fprintf(r.w, "%s %s\n", r.errorStyle.Render("["+ev.Type+"]"), rawText(ev))

	default:
		fmt.Fprintf(r.w, "%s %s\n", r.otherStyle.Render("["+ev.Type+"]"), rawText(ev))
	}
}

// Flush terminates an in-progress partial line.
func (r *Renderer) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endPartial()
}

// SessionID returns the identifier announced by the server, or "" before
// the session_started event.
func (r *Renderer) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *Renderer) endPartial() {
	if r.partialActive {
		io.WriteString(r.w, "\n")
		r.partialActive = false
	}
}

// wordTimings formats the spoken words of a committed transcript as
// "word@start-end" in seconds. Spacing entries are skipped.
func wordTimings(words []stt.WordDetail) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" || w.Type == "spacing" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s@%.2f-%.2f", text, w.Start.Seconds(), w.End.Seconds()))
	}
	return strings.Join(parts, " ")
}

// rawText returns the event as received, compacted onto one line.
func rawText(ev stt.Event) string {
	if len(ev.Raw) == 0 {
		b, _ := json.Marshal(map[string]string{"message_type": ev.Type})
		return string(b)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, ev.Raw); err != nil {
		return string(ev.Raw)
	}
	return buf.String()
}
