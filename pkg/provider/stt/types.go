package stt

import (
	"encoding/json"
	"strings"
	"time"
)

// Server event discriminators understood by the terminal renderer. Any other
// value is still delivered as an Event and rendered verbatim.
const (
	EventSessionStarted                = "session_started"
	EventPartialTranscript             = "partial_transcript"
	EventCommittedTranscript           = "committed_transcript"
	EventCommittedTranscriptTimestamps = "committed_transcript_with_timestamps"
)

// AudioChunk is one outbound frame of audio plus per-chunk control flags.
type AudioChunk struct {
	// Audio is raw little-endian 16-bit mono PCM, sent unmodified.
	Audio []byte

	// SampleRate echoes the session sample rate on every chunk.
	SampleRate int

	// Commit is nil under VAD commits. Under manual commits it is always set,
	// true when this chunk closes the current utterance.
	Commit *bool

	// PreviousText is optional context, sent with the first chunk only.
	PreviousText string
}

// Event is one inbound server message.
type Event struct {
	// Type is the message_type discriminator.
	Type string

	// SessionID is set on session_started.
	SessionID string

	// Text is the transcript text for partial and committed events.
	Text string

	// Words holds word timings when timestamps were requested.
	Words []WordDetail

	// Raw is the complete message as received, for error and unknown events.
	Raw json.RawMessage
}

// IsError reports whether the event signals a server-side error. Any
// discriminator containing "error" qualifies.
func (e Event) IsError() bool {
	return strings.Contains(e.Type, "error")
}

// IsCommitted reports whether the event carries a finalized transcript.
func (e Event) IsCommitted() bool {
	return e.Type == EventCommittedTranscript || e.Type == EventCommittedTranscriptTimestamps
}

// WordDetail holds per-word timing for committed transcripts.
type WordDetail struct {
	Word    string
	Start   time.Duration
	End     time.Duration
	Type    string
	Logprob float64
}
