package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/monitome/internal/config"
	"github.com/MrWong99/monitome/internal/credential"
	"github.com/MrWong99/monitome/pkg/audio/capture"
	"github.com/MrWong99/monitome/pkg/audio/capture/portaudio"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// syncBuffer is a bytes.Buffer safe for the concurrent writes of the
// session's receiver and the logger.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestCLI returns a cli with an empty environment, no dotfile and no
// audio devices. The default logger is restored after the test.
func newTestCLI(t *testing.T, env map[string]string) (*cli, *syncBuffer, *syncBuffer) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	c := newCLI(strings.NewReader(""), stdout, stderr)
	c.getenv = func(k string) string { return env[k] }
	c.dotfile = filepath.Join(t.TempDir(), "missing.env")
	c.listDevices = func() ([]capture.Device, error) {
		return nil, errors.New("no audio devices in tests")
	}
	return c, stdout, stderr
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// handshake is what the fake realtime server observed from the client.
type handshake struct {
	key   string
	query url.Values
	first map[string]any
	count int
}

// startFakeRealtime serves the realtime STT protocol: it announces a
// session, reads frames chunk messages, answers with one committed
// transcript and closes normally. With frames < 0 it reads until the
// client goes away.
func startFakeRealtime(t *testing.T, frames int) (string, <-chan handshake) {
	t.Helper()
	seen := make(chan handshake, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs := handshake{key: r.Header.Get("xi-api-key"), query: r.URL.Query()}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		defer func() { seen <- hs }()

		ctx := r.Context()
		if err := conn.Write(ctx, websocket.MessageText, []byte(`{"message_type":"session_started","session_id":"sess-1"}`)); err != nil {
			return
		}
		for frames < 0 || hs.count < frames {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if hs.count == 0 {
				_ = json.Unmarshal(data, &hs.first)
			}
			hs.count++
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"message_type":"committed_transcript","text":"hello world"}`))
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), seen
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestRun_STTMissingCredential(t *testing.T) {
	c, stdout, stderr := newTestCLI(t, nil)
	input := writeFile(t, "in.pcm", make([]byte, 3200))

	code := run(t.Context(), []string{"stt", "--input", input}, c)

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	const want = "Error: ELEVENLABS_API_KEY not found. Set it in env or in ~/.env.\n"
	if got := stderr.String(); !strings.HasSuffix(got, want) {
		t.Errorf("stderr = %q, want suffix %q", got, want)
	}
	if stdout.String() != "" {
		t.Errorf("stdout = %q, want nothing before a connection", stdout.String())
	}
}

func TestRun_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "bad commit strategy",
			args: []string{"stt", "--commit-strategy", "sometimes"},
			want: "transcribe.commit_strategy",
		},
		{
			name: "empty queue",
			args: []string{"stt", "--queue-size", "0"},
			want: "transcribe.queue_size",
		},
		{
			name: "unknown flag",
			args: []string{"stt", "--loud"},
			want: "unknown flag",
		},
		{
			name: "bad log level",
			args: []string{"devices", "--log-level", "chatty"},
			want: "server.log_level",
		},
		{
			name: "explicit config missing",
			args: []string{"devices", "--config", "/nonexistent/monitome.yaml"},
			want: "config: open",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, stderr := newTestCLI(t, map[string]string{"ELEVENLABS_API_KEY": "k"})
			if code := run(t.Context(), tt.args, c); code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if got := stderr.String(); !strings.Contains(got, "Error: ") || !strings.Contains(got, tt.want) {
				t.Errorf("stderr = %q, want an Error line containing %q", got, tt.want)
			}
		})
	}
}

func TestRun_STTStreamsInputFile(t *testing.T) {
	wsURL, seen := startFakeRealtime(t, 3)
	cfgPath := writeFile(t, "monitome.yaml", []byte(`
providers:
  stt:
    name: elevenlabs
    base_url: `+wsURL+`/v1/speech-to-text/realtime
transcribe:
  language: de
  commit_strategy: manual
`))
	// Three 100 ms frames at 16 kHz.
	input := writeFile(t, "in.pcm", make([]byte, 3*3200))

	c, stdout, stderr := newTestCLI(t, map[string]string{"ELEVENLABS_API_KEY": "secret-key"})
	code := run(t.Context(), []string{
		"stt",
		"--config", cfgPath,
		"--input", input,
		"--realtime=false",
		"--model", "scribe_test",
		"--previous-text", "earlier words",
		"--manual-commit-secs", "0",
	}, c)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr:\n%s", code, stderr.String())
	}

	var hs handshake
	select {
	case hs = <-seen:
	case <-time.After(3 * time.Second):
		t.Fatal("server never finished the session")
	}
	if hs.key != "secret-key" {
		t.Errorf("api key header = %q, want secret-key", hs.key)
	}
	for k, want := range map[string]string{
		"model_id":        "scribe_test",
		"language_code":   "de",
		"commit_strategy": "manual",
		"audio_format":    "pcm_16000",
	} {
		if got := hs.query.Get(k); got != want {
			t.Errorf("query %s = %q, want %q", k, got, want)
		}
	}
	if hs.count != 3 {
		t.Errorf("chunks received = %d, want 3", hs.count)
	}
	if hs.first["commit"] != true {
		t.Errorf("first chunk commit = %v, want true with a zero commit interval", hs.first["commit"])
	}
	if hs.first["previous_text"] != "earlier words" {
		t.Errorf("first chunk previous_text = %v, want %q", hs.first["previous_text"], "earlier words")
	}

	out := stdout.String()
	for _, want := range []string{
		"Connected. Speak into your mic. Press Ctrl+C to stop.\n",
		"URL: " + wsURL,
		"Session started: sess-1\n",
		"[final]   hello world\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q; got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret-key") {
		t.Error("stdout leaks the API key")
	}
	if strings.Contains(out, "Stopped.") {
		t.Error("server-initiated end must not print the interrupt message")
	}
}

func TestRun_STTInterruptIsCleanStop(t *testing.T) {
	wsURL, seen := startFakeRealtime(t, -1)
	cfgPath := writeFile(t, "monitome.yaml", []byte("providers:\n  stt:\n    base_url: "+wsURL+"\n"))

	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	c, stdout, stderr := newTestCLI(t, map[string]string{"ELEVENLABS_API_KEY": "k"})
	c.stdin = pr

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() {
		// Feed one frame, then interrupt once it is on the wire.
		_, _ = pw.Write(make([]byte, 3200))
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) && !strings.Contains(stdout.String(), "Session started") {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	code := run(ctx, []string{"stt", "--config", cfgPath, "--input", "-"}, c)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr:\n%s", code, stderr.String())
	}
	if !strings.HasSuffix(stdout.String(), "\nStopped.\n") {
		t.Errorf("stdout = %q, want it to end with the stop message", stdout.String())
	}
	select {
	case <-seen:
	case <-time.After(3 * time.Second):
		t.Fatal("connection was not closed after the interrupt")
	}
}

func TestRun_Devices(t *testing.T) {
	devs := []capture.Device{
		{Index: 0, Name: "Built-in Microphone", HostAPI: "Core Audio", MaxInputChannels: 2, DefaultSampleRate: 48000, IsDefaultInput: true},
		{Index: 1, Name: "Built-in Output", HostAPI: "Core Audio", MaxOutputChannels: 2, DefaultSampleRate: 44100, IsDefaultOutput: true},
	}
	for _, args := range [][]string{{"devices"}, {"stt", "--list-devices"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			c, stdout, _ := newTestCLI(t, nil)
			c.listDevices = func() ([]capture.Device, error) { return devs, nil }

			if code := run(t.Context(), args, c); code != 0 {
				t.Fatalf("exit code = %d, want 0", code)
			}
			out := stdout.String()
			for _, want := range []string{"Built-in Microphone", "Built-in Output", "48000", "input", "output"} {
				if !strings.Contains(out, want) {
					t.Errorf("table missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestRun_DevicesUnavailable(t *testing.T) {
	c, _, stderr := newTestCLI(t, nil)
	c.listDevices = func() ([]capture.Device, error) { return nil, portaudio.ErrUnavailable }

	if code := run(t.Context(), []string{"devices"}, c); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Error: portaudio: audio runtime unavailable") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestResolveKey(t *testing.T) {
	dotfile := writeFile(t, ".env", []byte("GEMINI_API_KEY=\"from-dotfile\"\n"))

	tests := []struct {
		name    string
		entry   config.ProviderEntry
		env     map[string]string
		want    string
		wantErr error
	}{
		{name: "config wins", entry: config.ProviderEntry{Name: "openai", APIKey: "cfg"}, env: map[string]string{"OPENAI_API_KEY": "env"}, want: "cfg"},
		{name: "environment", entry: config.ProviderEntry{Name: "openai"}, env: map[string]string{"OPENAI_API_KEY": "env"}, want: "env"},
		{name: "dotfile", entry: config.ProviderEntry{Name: "gemini"}, want: "from-dotfile"},
		{name: "local provider needs none", entry: config.ProviderEntry{Name: "ollama"}, want: ""},
		{name: "missing", entry: config.ProviderEntry{Name: "anthropic"}, wantErr: credential.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestCLI(t, tt.env)
			c.dotfile = dotfile

			got, err := c.resolveKey(tt.entry)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveKey: %v", err)
			}
			if got.APIKey != tt.want {
				t.Errorf("APIKey = %q, want %q", got.APIKey, tt.want)
			}
		})
	}
}
