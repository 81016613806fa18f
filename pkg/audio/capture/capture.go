// Package capture defines audio input sources that produce fixed-size PCM
// frames for the streaming transcription pipeline.
//
// A Source delivers frames through a callback that runs on a goroutine (or
// native thread) owned by the source. The callback must return quickly and
// must never block; the usual callback is [audio.FrameQueue.Enqueue].
package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/monitome/pkg/audio"
)

// ErrDeviceNotFound is returned when a device selector matches no input
// device.
var ErrDeviceNotFound = errors.New("capture: input device not found")

// FrameFunc receives one captured frame. It is invoked sequentially, never
// concurrently with itself.
type FrameFunc func(audio.AudioFrame)

// Source is a producer of mono 16-bit PCM frames.
type Source interface {
	// Start begins capture and returns once frames are flowing. Frames are
	// delivered to fn until ctx is done, the input ends, or Close is called.
	Start(ctx context.Context, fn FrameFunc) error

	// Done is closed when capture has stopped for any reason.
	Done() <-chan struct{}

	// Err returns the reason capture stopped, or nil for a clean end of
	// input or cancellation. Valid after Done is closed.
	Err() error

	// Close stops capture and releases the device. Safe to call more than
	// once.
	Close() error
}

// Config describes the stream a Source should open.
type Config struct {
	// SampleRate in Hz.
	SampleRate int

	// ChunkMs is the frame duration in milliseconds. Each frame holds
	// SampleRate*ChunkMs/1000 samples.
	ChunkMs int

	// Device selects the input device by index or case-insensitive name
	// substring. Empty selects the system default.
	Device string
}

// FrameSamples returns the number of samples per frame.
func (c Config) FrameSamples() int {
	return audio.FrameSamples(c.SampleRate, c.ChunkMs)
}

// Validate reports an error when the config cannot produce frames.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("capture: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.ChunkMs <= 0 {
		return fmt.Errorf("capture: chunk duration must be positive, got %d ms", c.ChunkMs)
	}
	if c.FrameSamples() < 1 {
		return fmt.Errorf("capture: %d ms at %d Hz yields an empty frame", c.ChunkMs, c.SampleRate)
	}
	return nil
}

// Device describes an audio device as reported by the host audio system.
type Device struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// SelectDevice resolves selector against devs. A selector that parses as an
// integer matches the device with that index; anything else matches the first
// input-capable device whose name contains selector, ignoring case. An empty
// selector returns the default input device.
func SelectDevice(devs []Device, selector string) (Device, error) {
	selector = strings.TrimSpace(selector)

	if selector == "" {
		for _, d := range devs {
			if d.IsDefaultInput {
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("%w: no default input device", ErrDeviceNotFound)
	}

	if idx, err := strconv.Atoi(selector); err == nil {
		for _, d := range devs {
			if d.Index == idx {
				if d.MaxInputChannels < 1 {
					return Device{}, fmt.Errorf("capture: device %d (%s) has no input channels", idx, d.Name)
				}
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("%w: index %d", ErrDeviceNotFound, idx)
	}

	needle := strings.ToLower(selector)
	for _, d := range devs {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, selector)
}
