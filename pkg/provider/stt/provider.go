// Package stt defines the Provider interface for realtime Speech-to-Text
// backends.
//
// An STT provider wraps a streaming transcription service reached over a
// single long-lived connection. The central abstraction is Conn: once
// connected, it accepts JSON-framed PCM chunks through Send and yields server
// events through Recv, in arrival order. Send and Recv may be called from
// different goroutines; Close may be called from any goroutine and is
// idempotent.
package stt

import (
	"context"
	"fmt"
)

// CommitStrategy selects who decides where an utterance ends.
type CommitStrategy string

const (
	// CommitManual means the client flags commits on outgoing chunks.
	CommitManual CommitStrategy = "manual"

	// CommitVAD lets the server's voice activity detection decide.
	CommitVAD CommitStrategy = "vad"
)

// IsValid reports whether s is a known commit strategy.
func (s CommitStrategy) IsValid() bool {
	switch s {
	case CommitManual, CommitVAD:
		return true
	}
	return false
}

// ParseCommitStrategy converts a flag or config value to a CommitStrategy.
func ParseCommitStrategy(s string) (CommitStrategy, error) {
	cs := CommitStrategy(s)
	if !cs.IsValid() {
		return "", fmt.Errorf("stt: invalid commit strategy %q (want manual or vad)", s)
	}
	return cs, nil
}

// StreamConfig describes the audio format and recognition options for a new
// streaming session. These are fixed for the lifetime of the connection.
type StreamConfig struct {
	// Model is the provider's realtime model identifier. Empty selects the
	// provider default.
	Model string

	// SampleRate is the PCM sample rate in Hz. Audio is always 16-bit mono.
	SampleRate int

	// CommitStrategy selects manual or server-side (VAD) commits.
	CommitStrategy CommitStrategy

	// IncludeTimestamps requests word timings on committed transcripts.
	IncludeTimestamps bool

	// Language is an optional language code (e.g., "en"). Empty lets the
	// provider auto-detect.
	Language string
}

// Conn is an open realtime transcription connection.
type Conn interface {
	// Send transmits one audio chunk. A non-nil error means the connection is
	// unusable; callers should not retry on the same Conn.
	Send(ctx context.Context, chunk AudioChunk) error

	// Recv blocks until the next server event arrives. A normal closure by
	// the server yields io.EOF; transport failures and ctx cancellation yield
	// other errors.
	Recv(ctx context.Context) (Event, error)

	// URL returns the endpoint URL the connection was opened against,
	// including query parameters but never credentials.
	URL() string

	// Close releases the connection. Safe to call more than once and from
	// multiple goroutines; the underlying transport is closed exactly once.
	Close() error
}

// Provider is the abstraction over a realtime STT backend.
type Provider interface {
	// Connect opens one streaming session. It performs a single connection
	// attempt; a failure is returned as-is with no retry.
	Connect(ctx context.Context, cfg StreamConfig) (Conn, error)
}
