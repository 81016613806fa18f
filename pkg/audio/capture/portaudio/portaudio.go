// Package portaudio implements a microphone capture.Source on top of the
// PortAudio C library. The PortAudio shared library and headers must be
// available at build and run time (libportaudio2 / portaudio19-dev on
// Debian, portaudio on Homebrew).
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/monitome/pkg/audio"
	"github.com/MrWong99/monitome/pkg/audio/capture"
	pa "github.com/gordonklaus/portaudio"
)

// ErrUnavailable wraps a failure to initialise the PortAudio runtime.
var ErrUnavailable = errors.New("portaudio: audio runtime unavailable")

// Option is a functional option for configuring the Source.
type Option func(*Source)

// WithLogger sets the logger used for capture status warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// Source captures mono 16-bit PCM from an input device. Each PortAudio
// callback produces exactly one frame.
type Source struct {
	cfg    capture.Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *pa.Stream
	started bool
	done    chan struct{}
	once    sync.Once
}

var _ capture.Source = (*Source)(nil)

// New validates cfg and returns an unopened Source.
func New(cfg capture.Config, opts ...Option) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Source{
		cfg:    cfg,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start initialises PortAudio, opens the selected device and starts the
// stream. fn runs on PortAudio's callback thread.
func (s *Source) Start(ctx context.Context, fn capture.FrameFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("portaudio: source already started")
	}

	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	dev, err := s.resolveDevice()
	if err != nil {
		_ = pa.Terminate()
		return err
	}

	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.cfg.SampleRate),
		FramesPerBuffer: s.cfg.FrameSamples(),
	}

	var ts time.Duration
	callback := func(in []int16, _ pa.StreamCallbackTimeInfo, flags pa.StreamCallbackFlags) {
		if flags&(pa.InputOverflow|pa.InputUnderflow) != 0 {
			s.logger.Warn("audio input status", "overflow", flags&pa.InputOverflow != 0, "underflow", flags&pa.InputUnderflow != 0)
		}
		f := audio.AudioFrame{
			Data:       audio.Int16ToBytes(nil, in),
			SampleRate: s.cfg.SampleRate,
			Channels:   1,
			Timestamp:  ts,
		}
		fn(f)
		ts += f.Duration()
	}

	stream, err := pa.OpenStream(params, callback)
	if err != nil {
		_ = pa.Terminate()
		return fmt.Errorf("portaudio: open stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return fmt.Errorf("portaudio: start stream: %w", err)
	}

	s.stream = stream
	s.started = true
	s.logger.Debug("audio capture started", "device", dev.Name, "sample_rate", s.cfg.SampleRate, "frames_per_buffer", params.FramesPerBuffer)

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return nil
}

func (s *Source) resolveDevice() (*pa.DeviceInfo, error) {
	if s.cfg.Device == "" {
		dev, err := pa.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", capture.ErrDeviceNotFound, err)
		}
		return dev, nil
	}

	infos, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: enumerate devices: %w", err)
	}
	devs, err := describe(infos)
	if err != nil {
		return nil, err
	}
	d, err := capture.SelectDevice(devs, s.cfg.Device)
	if err != nil {
		return nil, err
	}
	return infos[d.Index], nil
}

// Done is closed after Close stops the stream.
func (s *Source) Done() <-chan struct{} { return s.done }

// Err always returns nil; PortAudio stream errors surface from Start.
func (s *Source) Err() error { return nil }

// Close stops and closes the stream and terminates PortAudio.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		stream := s.stream
		s.mu.Unlock()
		if stream != nil {
			err = errors.Join(stream.Stop(), stream.Close(), pa.Terminate())
		}
		close(s.done)
	})
	if err != nil {
		return fmt.Errorf("portaudio: close: %w", err)
	}
	return nil
}

// ListDevices enumerates every audio device known to PortAudio.
func ListDevices() ([]capture.Device, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer pa.Terminate()

	infos, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: enumerate devices: %w", err)
	}
	return describe(infos)
}

func describe(infos []*pa.DeviceInfo) ([]capture.Device, error) {
	// Missing defaults are not an error: headless hosts often have none.
	defIn, _ := pa.DefaultInputDevice()
	defOut, _ := pa.DefaultOutputDevice()

	devs := make([]capture.Device, 0, len(infos))
	for i, info := range infos {
		d := capture.Device{
			Index:             i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefaultInput:    defIn != nil && info == defIn,
			IsDefaultOutput:   defOut != nil && info == defOut,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devs = append(devs, d)
	}
	return devs, nil
}
