package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/monitome/internal/observe"
	"github.com/MrWong99/monitome/pkg/provider/stt"
)

// Receiver reads server events and hands them to a [Renderer] in arrival
// order.
type Receiver struct {
	conn     stt.Conn
	renderer *Renderer
	metrics  *observe.Metrics
}

// Run dispatches events until the stream ends. A normal end of stream
// returns nil. Remote-reported error events are rendered and do not stop
// the loop.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		ev, err := r.conn.Recv(ctx)
		if errors.Is(err, io.EOF) {
			r.renderer.Flush()
			return nil
		}
		if err != nil {
			return fmt.Errorf("transcribe: receive: %w", err)
		}
		r.metrics.RecordSTTEvent(ctx, ev.Type)
		r.renderer.Render(ev)
	}
}
