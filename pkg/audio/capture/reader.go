package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/monitome/pkg/audio"
)

// ReaderOption configures a Reader source.
type ReaderOption func(*Reader)

// WithPacing controls whether frames are released at real-time speed (one
// frame per ChunkMs). Pacing is on by default; tests turn it off.
func WithPacing(enabled bool) ReaderOption {
	return func(r *Reader) { r.pace = enabled }
}

// Reader is a Source that reads raw little-endian 16-bit mono PCM from an
// io.Reader, such as a recorded file or standard input. End of input ends
// capture cleanly. A trailing partial frame is delivered as a short frame.
type Reader struct {
	src  io.Reader
	cfg  Config
	pace bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

var _ Source = (*Reader)(nil)

// NewReader returns a Source reading PCM from src.
func NewReader(src io.Reader, cfg Config, opts ...ReaderOption) (*Reader, error) {
	if src == nil {
		return nil, errors.New("capture: reader source must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Reader{
		src:  src,
		cfg:  cfg,
		pace: true,
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Start launches the read loop.
func (r *Reader) Start(ctx context.Context, fn FrameFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("capture: reader already started")
	}
	r.started = true

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.loop(ctx, fn)
	return nil
}

func (r *Reader) loop(ctx context.Context, fn FrameFunc) {
	defer close(r.done)

	frameDur := time.Duration(r.cfg.ChunkMs) * time.Millisecond
	buf := make([]byte, audio.FrameBytes(r.cfg.SampleRate, r.cfg.ChunkMs))

	var tick <-chan time.Time
	if r.pace {
		t := time.NewTicker(frameDur)
		defer t.Stop()
		tick = t.C
	}

	var ts time.Duration
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}

		n, err := io.ReadFull(r.src, buf)
		// An odd trailing byte cannot form a sample.
		if n -= n % 2; n > 0 && ctx.Err() == nil {
			data := make([]byte, n)
			copy(data, buf)
			f := audio.AudioFrame{
				Data:       data,
				SampleRate: r.cfg.SampleRate,
				Channels:   1,
				Timestamp:  ts,
			}
			fn(f)
			ts += f.Duration()
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return
		default:
			r.setErr(fmt.Errorf("capture: read input: %w", err))
			return
		}
	}
}

func (r *Reader) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Done is closed once the read loop exits.
func (r *Reader) Done() <-chan struct{} { return r.done }

// Err returns the read error that ended capture, if any.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops delivering frames. It does not close the underlying reader and
// does not wait for a read already blocked in it to return.
func (r *Reader) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
