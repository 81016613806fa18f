package observe

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the request's trace ID back to the caller.
const CorrelationHeader = "X-Correlation-ID"

// quietRoutes are polled by probes and scrapers; their completions log at
// debug level.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware traces and measures every request passing through it.
//
// An incoming W3C traceparent is continued, otherwise a new trace starts.
// The server span is renamed to "METHOD route" once chi has matched a
// route, the trace ID is echoed in [CorrelationHeader], and the request
// duration is recorded in [Metrics.HTTPRequestDuration] labelled by method,
// route and status. Mount it after chi's RequestID middleware so the
// request ID reaches the span and the completion log.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := Tracer().Start(
				prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header)),
				r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if traceID, _ := TraceIDs(ctx); traceID != "" {
				w.Header().Set(CorrelationHeader, traceID)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(ctx)
			next.ServeHTTP(ww, r)

			finishRequest(ctx, m, span, r, ww, time.Since(start))
		})
	}
}

// finishRequest records the outcome of one request on its span, the
// duration histogram and the log.
func finishRequest(ctx context.Context, m *Metrics, span trace.Span, r *http.Request, ww middleware.WrapResponseWriter, d time.Duration) {
	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}
	route := routePattern(r)
	reqID := middleware.GetReqID(ctx)

	m.HTTPRequestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.Int("status", status),
		),
	)

	span.SetName(r.Method + " " + route)
	span.SetAttributes(
		semconv.HTTPRoute(route),
		semconv.HTTPResponseStatusCode(status),
	)
	if reqID != "" {
		span.SetAttributes(attribute.String("request_id", reqID))
	}
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}

	level := slog.LevelInfo
	if quietRoutes[route] {
		level = slog.LevelDebug
	}
	Logger(ctx).LogAttrs(ctx, level, "request completed",
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("route", route),
		slog.Int("status", status),
		slog.Int("bytes", ww.BytesWritten()),
		slog.Duration("duration", d),
	)
}

// routePattern returns the matched chi route, falling back to the raw path
// for requests that never reached a chi router.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
