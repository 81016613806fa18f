package transcribe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/monitome/pkg/provider/stt"
	"github.com/MrWong99/monitome/pkg/provider/stt/elevenlabs"
	"github.com/MrWong99/monitome/pkg/provider/stt/mock"
)

func TestReceiver_ContinuesAfterRemoteError(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn(
		stt.Event{Type: stt.EventSessionStarted, SessionID: "s1"},
		stt.Event{Type: "transcriber_error", Raw: []byte(`{"message_type":"transcriber_error"}`)},
		stt.Event{Type: "brand_new_event", Raw: []byte(`{"message_type":"brand_new_event"}`)},
		stt.Event{Type: stt.EventCommittedTranscript, Text: "still here"},
	)
	conn.EndStream(nil)

	var buf bytes.Buffer
	r := &Receiver{conn: conn, renderer: NewRenderer(&buf), metrics: newTestMetrics(t)}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "Session started: s1\n" +
		"[transcriber_error] {\"message_type\":\"transcriber_error\"}\n" +
		"[brand_new_event] {\"message_type\":\"brand_new_event\"}\n" +
		"[final]   still here\n"
	if got := buf.String(); got != want {
		t.Errorf("output mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestReceiver_TransportErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("abnormal closure")
	conn := mock.NewConn(stt.Event{Type: stt.EventPartialTranscript, Text: "x"})
	conn.EndStream(boom)

	var buf bytes.Buffer
	r := &Receiver{conn: conn, renderer: NewRenderer(&buf), metrics: newTestMetrics(t)}
	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want %v", err, boom)
	}
}

func TestReceiver_ContextCancel(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	r := &Receiver{conn: conn, renderer: NewRenderer(&bytes.Buffer{}), metrics: newTestMetrics(t)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run err = %v, want DeadlineExceeded", err)
	}
}

func TestReceiver_OddlyTypedEventsKeepTheLoopRunning(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for _, frame := range []string{
			`{"message_type":"session_started","session_id":12345}`,
			`{"message_type":"quota_exceeded_error","text":{"detail":"x"}}`,
			`{"message_type":"speaker_update","words":["a","b"]}`,
			`{"message_type":"committed_transcript","text":"still here"}`,
		} {
			if err := ws.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		ws.Close(websocket.StatusNormalClosure, "done")
	}))
	t.Cleanup(srv.Close)

	p, err := elevenlabs.New("k", elevenlabs.WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := p.Connect(ctx, stt.StreamConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var buf bytes.Buffer
	r := &Receiver{conn: conn, renderer: NewRenderer(&buf), metrics: newTestMetrics(t)}
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "Session started: 12345\n" +
		"[quota_exceeded_error] {\"message_type\":\"quota_exceeded_error\",\"text\":{\"detail\":\"x\"}}\n" +
		"[speaker_update] {\"message_type\":\"speaker_update\",\"words\":[\"a\",\"b\"]}\n" +
		"[final]   still here\n"
	if got := buf.String(); got != want {
		t.Errorf("output mismatch\n got: %q\nwant: %q", got, want)
	}
}
