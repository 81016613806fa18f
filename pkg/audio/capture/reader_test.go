package capture_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/monitome/pkg/audio"
	"github.com/MrWong99/monitome/pkg/audio/capture"
)

type collector struct {
	mu     sync.Mutex
	frames []audio.AudioFrame
}

func (c *collector) add(f audio.AudioFrame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
}

func (c *collector) snapshot() []audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audio.AudioFrame(nil), c.frames...)
}

func waitDone(t *testing.T, src capture.Source) {
	t.Helper()
	select {
	case <-src.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("capture did not finish")
	}
}

func TestReader_SplitsIntoFrames(t *testing.T) {
	t.Parallel()

	// 10 ms at 8 kHz is 80 samples, 160 bytes per frame. 2.5 frames of input.
	input := make([]byte, 400)
	for i := range input {
		input[i] = byte(i)
	}
	cfg := capture.Config{SampleRate: 8000, ChunkMs: 10}

	src, err := capture.NewReader(bytes.NewReader(input), cfg, capture.WithPacing(false))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var c collector
	if err := src.Start(context.Background(), c.add); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, src)

	if err := src.Err(); err != nil {
		t.Errorf("Err() = %v, want nil at end of input", err)
	}
	frames := c.snapshot()
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, want := range []int{160, 160, 80} {
		if len(frames[i].Data) != want {
			t.Errorf("frame %d: %d bytes, want %d", i, len(frames[i].Data), want)
		}
		if frames[i].SampleRate != 8000 || frames[i].Channels != 1 {
			t.Errorf("frame %d format = %d Hz x %d", i, frames[i].SampleRate, frames[i].Channels)
		}
		if frames[i].Timestamp != time.Duration(i)*10*time.Millisecond {
			t.Errorf("frame %d timestamp = %v", i, frames[i].Timestamp)
		}
	}
	if frames[1].Data[0] != byte(160) {
		t.Errorf("frame 1 starts with %d, want 160", frames[1].Data[0])
	}
}

func TestReader_DropsOddTrailingByte(t *testing.T) {
	t.Parallel()

	cfg := capture.Config{SampleRate: 8000, ChunkMs: 10}
	src, _ := capture.NewReader(bytes.NewReader(make([]byte, 165)), cfg, capture.WithPacing(false))
	var c collector
	_ = src.Start(context.Background(), c.add)
	waitDone(t, src)

	frames := c.snapshot()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if len(frames[1].Data) != 4 {
		t.Errorf("trailing frame = %d bytes, want 4", len(frames[1].Data))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }

func TestReader_ReadErrorReported(t *testing.T) {
	t.Parallel()

	src, _ := capture.NewReader(failingReader{}, capture.Config{SampleRate: 16000, ChunkMs: 20}, capture.WithPacing(false))
	_ = src.Start(context.Background(), func(audio.AudioFrame) {})
	waitDone(t, src)

	if src.Err() == nil {
		t.Fatal("expected read error")
	}
}

func TestReader_PacedStopsOnCancel(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	go func() {
		chunk := make([]byte, 320)
		for {
			if _, err := pw.Write(chunk); err != nil {
				return
			}
		}
	}()

	src, _ := capture.NewReader(pr, capture.Config{SampleRate: 16000, ChunkMs: 10})
	ctx, cancel := context.WithCancel(context.Background())
	var c collector
	if err := src.Start(ctx, c.add); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(55 * time.Millisecond)
	cancel()
	waitDone(t, src)

	n := len(c.snapshot())
	if n == 0 || n > 10 {
		t.Errorf("paced reader delivered %d frames in ~55ms at 10ms pacing", n)
	}
}

func TestReader_StartTwice(t *testing.T) {
	t.Parallel()

	src, _ := capture.NewReader(bytes.NewReader(nil), capture.Config{SampleRate: 16000, ChunkMs: 100}, capture.WithPacing(false))
	if err := src.Start(context.Background(), func(audio.AudioFrame) {}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := src.Start(context.Background(), func(audio.AudioFrame) {}); err == nil {
		t.Error("second Start should fail")
	}
	_ = src.Close()
	_ = src.Close()
}

func TestNewReader_InvalidConfig(t *testing.T) {
	t.Parallel()

	if _, err := capture.NewReader(bytes.NewReader(nil), capture.Config{}); err == nil {
		t.Error("expected config error")
	}
	if _, err := capture.NewReader(nil, capture.Config{SampleRate: 16000, ChunkMs: 100}); err == nil {
		t.Error("expected nil reader error")
	}
}
