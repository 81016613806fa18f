// Package transcribe runs a realtime transcription session: captured audio
// frames flow through a bounded queue to a sender loop, while a receiver
// loop renders server events to the terminal. Both loops share one
// [stt.Conn], each using only its own direction of traffic.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/monitome/internal/observe"
	"github.com/MrWong99/monitome/pkg/audio"
	"github.com/MrWong99/monitome/pkg/audio/capture"
	"github.com/MrWong99/monitome/pkg/provider/stt"
)

// DefaultQueueSize is the frame queue capacity used when Config.QueueSize is
// zero.
const DefaultQueueSize = 32

// errStreamEnded stops the task group when the session reached a natural
// end: the server closed the stream or the linger period after end of input
// expired.
var errStreamEnded = errors.New("transcribe: stream ended")

// Config configures a [Session].
type Config struct {
	// Stream is passed to the provider's Connect.
	Stream stt.StreamConfig

	// ManualCommitInterval is the minimum time between commits when
	// Stream.CommitStrategy is manual. Zero commits every chunk.
	ManualCommitInterval time.Duration

	// PreviousText is optional context sent with the first chunk only.
	PreviousText string

	// QueueSize is the capacity of the frame queue. When full, the oldest
	// frame is dropped.
	QueueSize int

	// Linger is how long to keep receiving transcripts after the capture
	// source runs out of input. Zero waits until the server closes the
	// stream or the session is cancelled.
	Linger time.Duration
}

// Option configures a [Session].
type Option func(*Session)

// WithOutput sets where the banner and transcripts are written. Default:
// os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Session) { s.out = w }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides the clock used for manual commit timing.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session wires a capture source to a realtime STT provider.
type Session struct {
	provider stt.Provider
	source   capture.Source
	cfg      Config

	out     io.Writer
	metrics *observe.Metrics
	now     func() time.Time
}

// NewSession validates cfg and returns a Session ready to [Session.Run].
func NewSession(provider stt.Provider, source capture.Source, cfg Config, opts ...Option) (*Session, error) {
	if provider == nil {
		return nil, errors.New("transcribe: provider must not be nil")
	}
	if source == nil {
		return nil, errors.New("transcribe: capture source must not be nil")
	}
	if cfg.Stream.CommitStrategy != "" && !cfg.Stream.CommitStrategy.IsValid() {
		return nil, fmt.Errorf("transcribe: invalid commit strategy %q", cfg.Stream.CommitStrategy)
	}
	if cfg.ManualCommitInterval < 0 {
		return nil, fmt.Errorf("transcribe: manual commit interval must not be negative, got %s", cfg.ManualCommitInterval)
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	s := &Session{
		provider: provider,
		source:   source,
		cfg:      cfg,
		out:      os.Stdout,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Run connects, starts capture, and streams until the session ends.
//
// Cancelling ctx is a clean stop and Run returns nil. A connection, send,
// receive, or capture failure is returned as an error and is never
// retried. The connection is closed exactly once before Run returns,
// whichever task ended the session.
func (s *Session) Run(ctx context.Context) (err error) {
	ctx, span := observe.StartSpan(ctx, "stt.session",
		attribute.String("stt.model", s.cfg.Stream.Model),
		attribute.String("stt.commit_strategy", string(s.cfg.Stream.CommitStrategy)),
		attribute.Int("stt.sample_rate", s.cfg.Stream.SampleRate),
	)
	defer func() { observe.EndSpan(span, err) }()
	return s.run(ctx)
}

func (s *Session) run(ctx context.Context) error {
	conn, err := s.provider.Connect(ctx, s.cfg.Stream)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("transcribe: connect: %w", err)
	}
	var closeOnce sync.Once
	defer closeOnce.Do(func() { _ = conn.Close() })

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)

	fmt.Fprintln(s.out, "Connected. Speak into your mic. Press Ctrl+C to stop.")
	fmt.Fprintf(s.out, "URL: %s\n", conn.URL())

	queue := audio.NewFrameQueue(s.cfg.QueueSize)
	renderer := NewRenderer(s.out)
	g, gctx := errgroup.WithContext(ctx)

	err = s.source.Start(gctx, func(f audio.AudioFrame) {
		s.metrics.FramesCaptured.Add(context.Background(), 1)
		if queue.Enqueue(f) {
			s.metrics.FramesDropped.Add(context.Background(), 1)
		}
	})
	if err != nil {
		return fmt.Errorf("transcribe: start capture: %w", err)
	}
	defer s.source.Close()

	sender := &Sender{
		conn:         conn,
		queue:        queue,
		policy:       NewCommitPolicy(s.cfg.Stream.CommitStrategy, s.cfg.ManualCommitInterval, s.now()),
		previousText: s.cfg.PreviousText,
		sampleRate:   s.cfg.Stream.SampleRate,
		now:          s.now,
		metrics:      s.metrics,
	}
	receiver := &Receiver{conn: conn, renderer: renderer, metrics: s.metrics}
	senderDone := make(chan struct{})

	g.Go(func() error {
		defer close(senderDone)
		return sender.Run(gctx)
	})
	g.Go(func() error {
		if err := receiver.Run(gctx); err != nil {
			return err
		}
		return errStreamEnded
	})
	g.Go(func() error {
		return s.watchCapture(gctx, queue, senderDone)
	})

	err = g.Wait()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("stt.session_id", renderer.SessionID()),
		attribute.Int64("stt.chunks_sent", int64(sender.Sent())),
		attribute.Int64("stt.frames_dropped", int64(queue.Dropped())),
		attribute.Int64("stt.audio_sent_ms", sender.AudioSent().Milliseconds()),
	)
	observe.Logger(ctx).Debug("transcribe: session ended",
		"session_id", renderer.SessionID(),
		"chunks_sent", sender.Sent(),
		"frames_dropped", queue.Dropped(),
		"audio_sent", sender.AudioSent(),
	)
	switch {
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, errStreamEnded):
		return nil
	}
	return err
}

// watchCapture closes the queue once the source stops so the sender drains
// what is left, then ends the session after the linger period.
func (s *Session) watchCapture(ctx context.Context, queue *audio.FrameQueue, senderDone <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.source.Done():
	}
	if err := s.source.Err(); err != nil {
		return fmt.Errorf("transcribe: capture: %w", err)
	}
	queue.Close()

	select {
	case <-ctx.Done():
		return nil
	case <-senderDone:
	}
	if s.cfg.Linger <= 0 {
		return nil
	}
	slog.Debug("transcribe: input ended, waiting for final transcripts", "linger", s.cfg.Linger)

	t := time.NewTimer(s.cfg.Linger)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-t.C:
		return errStreamEnded
	}
}
