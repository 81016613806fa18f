// Package audio holds the PCM frame type shared by capture sources and the
// streaming transcription client, plus the bounded queue that hands frames
// from a real-time capture callback to the network sender.
package audio

import "time"

// AudioFrame represents a single block of captured audio. Frames are the
// atomic unit of transport between the capture source and the sender loop;
// their payload is passed through to the network unmodified.
type AudioFrame struct {
	// PCM audio data: little-endian signed 16-bit samples.
	Data []byte

	// SampleRate in Hz (e.g., 16000).
	SampleRate int

	// Channels: 1 for mono. The realtime STT endpoint only accepts mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame assuming 16-bit samples.
// Returns 0 if the frame's format is incomplete.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
