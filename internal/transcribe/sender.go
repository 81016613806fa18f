package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/monitome/internal/observe"
	"github.com/MrWong99/monitome/pkg/audio"
	"github.com/MrWong99/monitome/pkg/provider/stt"
)

// Sender drains a [audio.FrameQueue] and transmits one chunk per frame.
type Sender struct {
	conn         stt.Conn
	queue        *audio.FrameQueue
	policy       *CommitPolicy
	previousText string
	sampleRate   int
	now          func() time.Time
	metrics      *observe.Metrics

	sent      int
	audioSent time.Duration
}

// Run sends frames until the queue is closed and drained (nil), ctx is
// done (ctx.Err()), or a send fails. A failed send is not retried.
func (s *Sender) Run(ctx context.Context) error {
	for {
		frame, err := s.queue.Dequeue(ctx)
		if errors.Is(err, audio.ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		chunk := s.chunkFor(frame)
		if err := s.conn.Send(ctx, chunk); err != nil {
			return fmt.Errorf("transcribe: send chunk %d: %w", s.sent+1, err)
		}
		s.sent++
		if end := frame.Timestamp + frame.Duration(); end > s.audioSent {
			s.audioSent = end
		}

		s.metrics.ChunksSent.Add(ctx, 1)
		if chunk.Commit != nil && *chunk.Commit {
			s.metrics.Commits.Add(ctx, 1)
		}
	}
}

// chunkFor builds the outbound chunk for frame. previous_text rides only on
// the first chunk of the session.
func (s *Sender) chunkFor(frame audio.AudioFrame) stt.AudioChunk {
	rate := frame.SampleRate
	if rate == 0 {
		rate = s.sampleRate
	}
	chunk := stt.AudioChunk{
		Audio:      frame.Data,
		SampleRate: rate,
		Commit:     s.policy.Decide(s.now()),
	}
	if s.sent == 0 {
		chunk.PreviousText = s.previousText
	}
	return chunk
}

// Sent returns the number of chunks transmitted so far.
func (s *Sender) Sent() int { return s.sent }

// AudioSent returns the capture position reached by the transmitted audio:
// the end of the latest frame sent. Frames evicted from the queue leave a
// gap but do not lower it.
func (s *Sender) AudioSent() time.Duration { return s.audioSent }
