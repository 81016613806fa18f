// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller connects with the expected
// StreamConfig. Use Conn to script server events and inspect which audio
// chunks were sent.
//
// Example:
//
//	conn := mock.NewConn(
//	    stt.Event{Type: stt.EventSessionStarted, SessionID: "s1"},
//	)
//	p := &mock.Provider{Conn: conn}
//	c, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/MrWong99/monitome/pkg/provider/stt"
)

// ErrClosed is returned by Conn methods after Close.
var ErrClosed = errors.New("mock: connection closed")

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the StreamConfig passed to Connect.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Conn is returned by Connect. If nil, Connect returns a fresh Conn with
	// no scripted events.
	Conn stt.Conn

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Conn, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg stt.StreamConfig) (stt.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Conn != nil {
		return p.Conn, nil
	}
	return NewConn(), nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Conn is a mock implementation of stt.Conn. Events pushed with Push (or
// passed to NewConn) are returned by Recv in order. Once the scripted events
// are exhausted Recv blocks until more are pushed, EndStream is called, the
// connection is closed, or ctx is done.
type Conn struct {
	mu      sync.Mutex
	events  []stt.Event
	recvErr error
	notify  chan struct{}
	closed  chan struct{}

	// SendErr, if non-nil, is returned by every Send after SendErrAfter
	// successful sends.
	SendErr      error
	SendErrAfter int

	// URLValue is returned by URL.
	URLValue string

	// Sent holds a copy of every chunk passed to Send, in order.
	Sent []stt.AudioChunk

	// CloseCount records how many times Close was called.
	CloseCount int

	// sentNotify is signalled after each recorded Send.
	sentNotify chan struct{}
}

// NewConn returns a Conn that will deliver events from Recv.
func NewConn(events ...stt.Event) *Conn {
	return &Conn{
		events:     append([]stt.Event(nil), events...),
		notify:     make(chan struct{}, 1),
		closed:     make(chan struct{}),
		sentNotify: make(chan struct{}, 1),
		URLValue:   "wss://mock.invalid/realtime",
	}
}

// Push appends events for Recv.
func (c *Conn) Push(events ...stt.Event) {
	c.mu.Lock()
	c.events = append(c.events, events...)
	c.mu.Unlock()
	c.signal()
}

// EndStream makes Recv return err once the scripted events are drained. A
// nil err ends the stream with io.EOF.
func (c *Conn) EndStream(err error) {
	if err == nil {
		err = io.EOF
	}
	c.mu.Lock()
	c.recvErr = err
	c.mu.Unlock()
	c.signal()
}

func (c *Conn) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Send records chunk.
func (c *Conn) Send(ctx context.Context, chunk stt.AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	if c.SendErr != nil && len(c.Sent) >= c.SendErrAfter {
		err := c.SendErr
		c.mu.Unlock()
		return err
	}
	cp := chunk
	cp.Audio = append([]byte(nil), chunk.Audio...)
	if chunk.Commit != nil {
		v := *chunk.Commit
		cp.Commit = &v
	}
	c.Sent = append(c.Sent, cp)
	c.mu.Unlock()

	select {
	case c.sentNotify <- struct{}{}:
	default:
	}
	return nil
}

// Recv returns the next scripted event.
func (c *Conn) Recv(ctx context.Context) (stt.Event, error) {
	for {
		c.mu.Lock()
		if len(c.events) > 0 {
			ev := c.events[0]
			c.events = c.events[1:]
			c.mu.Unlock()
			return ev, nil
		}
		err := c.recvErr
		c.mu.Unlock()
		if err != nil {
			return stt.Event{}, err
		}

		select {
		case <-c.notify:
		case <-c.closed:
			return stt.Event{}, ErrClosed
		case <-ctx.Done():
			return stt.Event{}, ctx.Err()
		}
	}
}

// URL returns URLValue.
func (c *Conn) URL() string { return c.URLValue }

// Close marks the connection closed and unblocks Recv. Every call is
// counted; only the first has an effect.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.CloseCount++
	first := c.CloseCount == 1
	c.mu.Unlock()
	if first {
		close(c.closed)
	}
	return nil
}

// SentChunks returns a snapshot of the chunks sent so far.
func (c *Conn) SentChunks() []stt.AudioChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]stt.AudioChunk(nil), c.Sent...)
}

// Closes returns the number of Close calls.
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CloseCount
}

// WaitSent blocks until at least n chunks have been sent or ctx is done.
func (c *Conn) WaitSent(ctx context.Context, n int) error {
	for {
		c.mu.Lock()
		got := len(c.Sent)
		c.mu.Unlock()
		if got >= n {
			return nil
		}
		select {
		case <-c.sentNotify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Ensure Conn implements stt.Conn at compile time.
var _ stt.Conn = (*Conn)(nil)
