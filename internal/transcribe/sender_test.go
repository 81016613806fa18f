package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/monitome/pkg/audio"
	"github.com/MrWong99/monitome/pkg/provider/stt"
	"github.com/MrWong99/monitome/pkg/provider/stt/mock"
)

func newTestSender(t *testing.T, conn stt.Conn, q *audio.FrameQueue, strategy stt.CommitStrategy, previous string, clock *fakeClock) *Sender {
	t.Helper()
	return &Sender{
		conn:         conn,
		queue:        q,
		policy:       NewCommitPolicy(strategy, time.Second, clock.Now()),
		previousText: previous,
		sampleRate:   16000,
		now:          clock.Now,
		metrics:      newTestMetrics(t),
	}
}

func frame(b byte) audio.AudioFrame {
	return audio.AudioFrame{Data: []byte{b, 0}, SampleRate: 16000, Channels: 1}
}

func TestSender_PreviousTextOnFirstChunkOnly(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	q := audio.NewFrameQueue(8)
	for i := range 3 {
		q.Enqueue(frame(byte(i)))
	}
	q.Close()

	s := newTestSender(t, conn, q, stt.CommitVAD, "meeting notes", newFakeClock())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sent := conn.SentChunks()
	if len(sent) != 3 {
		t.Fatalf("sent %d chunks, want 3", len(sent))
	}
	if sent[0].PreviousText != "meeting notes" {
		t.Errorf("chunk 0 previous_text = %q, want %q", sent[0].PreviousText, "meeting notes")
	}
	for i, c := range sent[1:] {
		if c.PreviousText != "" {
			t.Errorf("chunk %d previous_text = %q, want empty", i+1, c.PreviousText)
		}
	}
}

func TestSender_NoPreviousTextWhenUnset(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	q := audio.NewFrameQueue(2)
	q.Enqueue(frame(1))
	q.Close()

	s := newTestSender(t, conn, q, stt.CommitVAD, "", newFakeClock())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := conn.SentChunks()[0].PreviousText; got != "" {
		t.Errorf("previous_text = %q, want empty", got)
	}
}

func TestSender_FIFOAndPayloadPassthrough(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	q := audio.NewFrameQueue(8)
	for i := range 5 {
		q.Enqueue(frame(byte(10 + i)))
	}
	q.Close()

	s := newTestSender(t, conn, q, stt.CommitVAD, "", newFakeClock())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sent := conn.SentChunks()
	for i, c := range sent {
		if c.Audio[0] != byte(10+i) {
			t.Errorf("chunk %d audio[0] = %d, want %d", i, c.Audio[0], 10+i)
		}
		if c.SampleRate != 16000 {
			t.Errorf("chunk %d sample_rate = %d, want 16000", i, c.SampleRate)
		}
		if c.Commit != nil {
			t.Errorf("chunk %d commit = %v under vad, want omitted", i, *c.Commit)
		}
	}
}

func TestSender_ManualCommitTiming(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	q := audio.NewFrameQueue(8)
	clock := newFakeClock()
	s := newTestSender(t, conn, q, stt.CommitManual, "", clock)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Advance the clock before each frame is queued, then wait for it to be
	// sent so Decide observes the advanced time.
	advances := []time.Duration{
		400 * time.Millisecond,
		700 * time.Millisecond, // 1.1s since start: commit
		500 * time.Millisecond,
		499 * time.Millisecond,
		1 * time.Millisecond, // exactly 1s since last commit: commit
	}
	for i, d := range advances {
		clock.Advance(d)
		q.Enqueue(frame(byte(i)))
		if err := conn.WaitSent(ctx, i+1); err != nil {
			t.Fatalf("waiting for chunk %d: %v", i, err)
		}
	}
	q.Close()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []bool{false, true, false, false, true}
	sent := conn.SentChunks()
	for i, c := range sent {
		if c.Commit == nil {
			t.Fatalf("chunk %d: commit omitted under manual strategy", i)
		}
		if *c.Commit != want[i] {
			t.Errorf("chunk %d: commit = %v, want %v", i, *c.Commit, want[i])
		}
	}
}

func TestSender_SendFailureStopsWithoutRetry(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	conn := mock.NewConn()
	conn.SendErr = boom
	conn.SendErrAfter = 2

	q := audio.NewFrameQueue(8)
	for i := range 5 {
		q.Enqueue(frame(byte(i)))
	}
	q.Close()

	s := newTestSender(t, conn, q, stt.CommitVAD, "", newFakeClock())
	err := s.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want %v", err, boom)
	}
	if got := len(conn.SentChunks()); got != 2 {
		t.Errorf("sent %d chunks, want 2", got)
	}
	// The failed frame is not retried and the rest stay queued.
	if got := q.Len(); got != 2 {
		t.Errorf("queue len = %d, want 2", got)
	}
}

func TestSender_ContextCancel(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	q := audio.NewFrameQueue(1)
	s := newTestSender(t, conn, q, stt.CommitVAD, "", newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
}

func TestSender_ZeroIntervalCommitsEveryChunk(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	q := audio.NewFrameQueue(8)
	for i := range 4 {
		q.Enqueue(frame(byte(i)))
	}
	q.Close()

	clock := newFakeClock()
	s := newTestSender(t, conn, q, stt.CommitManual, "", clock)
	s.policy = NewCommitPolicy(stt.CommitManual, 0, clock.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sent := conn.SentChunks()
	if len(sent) != 4 {
		t.Fatalf("sent %d chunks, want 4", len(sent))
	}
	for i, c := range sent {
		if c.Commit == nil || !*c.Commit {
			t.Errorf("chunk %d: commit = %v, want true with a zero interval", i, c.Commit)
		}
	}
}

func TestSender_AudioSentTracksCapturePosition(t *testing.T) {
	t.Parallel()

	// 100 ms frames; the one at 100 ms was evicted upstream.
	pcm := make([]byte, 3200)
	conn := mock.NewConn()
	q := audio.NewFrameQueue(4)
	for _, ts := range []time.Duration{0, 200 * time.Millisecond} {
		q.Enqueue(audio.AudioFrame{Data: pcm, SampleRate: 16000, Channels: 1, Timestamp: ts})
	}
	q.Close()

	s := newTestSender(t, conn, q, stt.CommitVAD, "", newFakeClock())
	if s.AudioSent() != 0 {
		t.Errorf("AudioSent before Run = %s, want 0", s.AudioSent())
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.AudioSent(); got != 300*time.Millisecond {
		t.Errorf("AudioSent = %s, want 300ms", got)
	}
}
