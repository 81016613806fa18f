// Package elevenlabs provides an ElevenLabs-backed realtime STT provider using
// the ElevenLabs speech-to-text WebSocket API. It implements the stt.Provider
// interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/monitome/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	realtimeEndpoint    = "wss://api.elevenlabs.io/v1/speech-to-text/realtime"
	apiKeyHeader        = "xi-api-key"
	defaultModel        = "scribe_v2_realtime"
	defaultSampleRate   = 16000
	defaultPingInterval = 20 * time.Second
	defaultPingTimeout  = 20 * time.Second
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the provider-level default model, used when
// StreamConfig.Model is empty.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the realtime endpoint. Used by tests to point the
// provider at a local server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithKeepAlive sets the keep-alive ping interval and the time allowed for
// each pong. An interval of zero disables pings.
func WithKeepAlive(interval, timeout time.Duration) Option {
	return func(p *Provider) {
		p.pingInterval = interval
		p.pingTimeout = timeout
	}
}

// WithHTTPClient sets the HTTP client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by the ElevenLabs realtime API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	pingInterval time.Duration
	pingTimeout  time.Duration
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      realtimeEndpoint,
		model:        defaultModel,
		pingInterval: defaultPingInterval,
		pingTimeout:  defaultPingTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Connect dials the realtime endpoint once, authenticating with the xi-api-key
// header. The inbound message size is unbounded and a keep-alive ping runs
// until the connection is closed.
func (p *Provider) Connect(ctx context.Context, cfg stt.StreamConfig) (stt.Conn, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set(apiKeyHeader, p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: p.httpClient,
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	conn.SetReadLimit(-1)

	c := &connection{
		ws:   conn,
		url:  wsURL,
		done: make(chan struct{}),
	}
	if p.pingInterval > 0 {
		c.wg.Add(1)
		go c.keepAlive(p.pingInterval, p.pingTimeout)
	}
	return c, nil
}

// buildURL constructs the realtime endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}
	strategy := cfg.CommitStrategy
	if strategy == "" {
		strategy = stt.CommitVAD
	}
	if !strategy.IsValid() {
		return "", fmt.Errorf("invalid commit strategy %q", strategy)
	}

	q := u.Query()
	q.Set("model_id", model)
	q.Set("audio_format", "pcm_"+strconv.Itoa(sr))
	q.Set("commit_strategy", string(strategy))
	q.Set("include_timestamps", strconv.FormatBool(cfg.IncludeTimestamps))
	if cfg.Language != "" {
		q.Set("language_code", cfg.Language)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- wire messages ----

// chunkMessage is the JSON payload sent for every audio frame.
type chunkMessage struct {
	MessageType  string `json:"message_type"`
	AudioBase64  string `json:"audio_base_64"`
	SampleRate   int    `json:"sample_rate"`
	Commit       *bool  `json:"commit,omitempty"`
	PreviousText string `json:"previous_text,omitempty"`
}

// wordMessage is one entry of a committed_transcript_with_timestamps
// "words" array.
type wordMessage struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Type    string  `json:"type"`
	Logprob float64 `json:"logprob"`
}

// ---- connection ----

// connection is a live realtime session. It implements stt.Conn.
type connection struct {
	ws  *websocket.Conn
	url string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// URL returns the endpoint the connection was dialled with.
func (c *connection) URL() string { return c.url }

// Send encodes chunk as an input_audio_chunk message and writes it.
func (c *connection) Send(ctx context.Context, chunk stt.AudioChunk) error {
	msg := chunkMessage{
		MessageType:  "input_audio_chunk",
		AudioBase64:  base64.StdEncoding.EncodeToString(chunk.Audio),
		SampleRate:   chunk.SampleRate,
		Commit:       chunk.Commit,
		PreviousText: chunk.PreviousText,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("elevenlabs: encode chunk: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("elevenlabs: send: %w", err)
	}
	return nil
}

// Recv reads and decodes the next server event. A normal closure by the
// server is reported as io.EOF.
func (c *connection) Recv(ctx context.Context) (stt.Event, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return stt.Event{}, io.EOF
		}
		return stt.Event{}, fmt.Errorf("elevenlabs: receive: %w", err)
	}
	ev, err := parseEvent(data)
	if err != nil {
		return stt.Event{}, fmt.Errorf("elevenlabs: decode event: %w", err)
	}
	return ev, nil
}

// Close sends a normal closure and releases the connection. Only the first
// call has any effect. Errors from the closing handshake are ignored: the
// peer may already have gone away.
func (c *connection) Close() error {
	c.shutdown(websocket.StatusNormalClosure, "client closing")
	c.wg.Wait()
	return nil
}

func (c *connection) shutdown(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close(code, reason)
	})
}

// keepAlive pings the server every interval. A ping that does not complete
// within timeout closes the connection, which in turn fails any pending Recv.
func (c *connection) keepAlive(interval, timeout time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				c.shutdown(websocket.StatusInternalError, "keepalive ping timeout")
				return
			}
		}
	}
}

// parseEvent decodes one raw server message. Only data that is not JSON is
// an error. Fields are read for the event types that use them, and a field
// of an unexpected type is left empty: the event is still delivered with
// Raw intact so the renderer can show it.
func parseEvent(data []byte) (stt.Event, error) {
	if !json.Valid(data) {
		return stt.Event{}, errors.New("message is not valid JSON")
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	// A non-object payload leaves fields nil and becomes an untyped event.
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(data, &fields)

	ev := stt.Event{Type: stringField(fields["message_type"]), Raw: raw}
	switch ev.Type {
	case stt.EventSessionStarted:
		ev.SessionID = scalarField(fields["session_id"])
	case stt.EventPartialTranscript, stt.EventCommittedTranscript:
		ev.Text = stringField(fields["text"])
	case stt.EventCommittedTranscriptTimestamps:
		ev.Text = stringField(fields["text"])
		ev.Words = parseWords(fields["words"])
	}
	return ev, nil
}

// stringField returns v when it is a JSON string and "" otherwise.
func stringField(v json.RawMessage) string {
	var s string
	if json.Unmarshal(v, &s) != nil {
		return ""
	}
	return s
}

// scalarField is stringField, except that a non-string value is returned as
// its JSON text.
func scalarField(v json.RawMessage) string {
	if s := stringField(v); s != "" || len(v) == 0 || string(v) == "null" {
		return s
	}
	return string(v)
}

// parseWords decodes the entries of a words array that are well-formed word
// objects and skips the rest.
func parseWords(v json.RawMessage) []stt.WordDetail {
	var items []json.RawMessage
	if json.Unmarshal(v, &items) != nil || len(items) == 0 {
		return nil
	}
	words := make([]stt.WordDetail, 0, len(items))
	for _, item := range items {
		var w wordMessage
		if json.Unmarshal(item, &w) != nil {
			continue
		}
		words = append(words, stt.WordDetail{
			Word:    w.Text,
			Start:   time.Duration(w.Start * float64(time.Second)),
			End:     time.Duration(w.End * float64(time.Second)),
			Type:    w.Type,
			Logprob: w.Logprob,
		})
	}
	if len(words) == 0 {
		return nil
	}
	return words
}
