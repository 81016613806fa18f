package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/monitome/internal/activity"
	"github.com/MrWong99/monitome/internal/analysis"
	"github.com/MrWong99/monitome/internal/config"
	"github.com/MrWong99/monitome/internal/health"
	"github.com/MrWong99/monitome/internal/observe"
	"github.com/MrWong99/monitome/internal/resilience"
	"github.com/MrWong99/monitome/pkg/provider/llm"
)

const shutdownTimeout = 15 * time.Second

func (c *cli) serveCommand() *cobra.Command {
	var addr, dbPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the screen activity analysis HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				c.cfg.Server.ListenAddr = addr
			}
			if cmd.Flags().Changed("db") {
				c.cfg.Storage.SQLitePath = dbPath
			}
			return c.runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultListenAddr, "listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite activity database; empty keeps activities in memory")
	return cmd
}

func (c *cli) runServe(ctx context.Context) error {
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    analysis.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(tel.MeterProvider)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	svc, err := c.buildService(ctx, metrics)
	if err != nil {
		return err
	}
	defer svc.store.Close()

	ln, err := net.Listen("tcp", c.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler: analysis.NewRouter(analysis.RouterConfig{
			Handler:        svc.handler,
			Health:         svc.health,
			Metrics:        metrics,
			MetricsHandler: tel.MetricsHandler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("analysis service ready",
		"addr", ln.Addr().String(),
		"llm", svc.llm.Names(),
		"vision", svc.llm.Capabilities().SupportsVision,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	return nil
}

// service bundles the analysis components built from the configuration.
type service struct {
	llm     *resilience.LLMFallback
	store   activity.Store
	handler *analysis.Handler
	health  *health.Handler
}

// buildService creates the LLM fallback chain, opens the activity store and
// assembles the analysis handler with its readiness checks.
func (c *cli) buildService(ctx context.Context, metrics *observe.Metrics) (*service, error) {
	fb, err := c.buildLLM(metrics)
	if err != nil {
		return nil, err
	}
	if !fb.Capabilities().SupportsVision {
		slog.Warn("no configured LLM supports images; screenshot analysis will fail", "llm", fb.Names())
	}

	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}

	a := c.cfg.Analysis
	analyzer, err := analysis.NewAnalyzer(fb,
		analysis.WithStore(store),
		analysis.WithMetrics(metrics),
		analysis.WithTemperature(a.Temperature),
		analysis.WithMaxTokens(a.MaxTokens),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &service{
		llm:     fb,
		store:   store,
		handler: analysis.NewHandler(analyzer, analysis.WithSummaryWindow(a.SummaryWindow)),
		health: health.New(
			health.PingCheck("storage", store),
			health.ConfiguredCheck("llm", fb.Available),
		),
	}, nil
}

// buildLLM creates the primary LLM and its fallbacks, each behind its own
// circuit breaker. Every attempt is counted in the provider metrics.
func (c *cli) buildLLM(metrics *observe.Metrics) (*resilience.LLMFallback, error) {
	cb := c.cfg.Analysis.CircuitBreaker
	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout,
			HalfOpenMax:  cb.HalfOpenMax,
		},
		OnResult: func(provider string, err error) {
			status := "ok"
			if err != nil {
				status = "error"
				metrics.RecordProviderError(context.Background(), provider, "llm")
			}
			metrics.RecordProviderRequest(context.Background(), provider, "llm", status)
		},
	}

	primary := c.cfg.Providers.LLM
	p, err := c.createLLM(primary)
	if err != nil {
		return nil, err
	}
	fb := resilience.NewLLMFallback(p, primary.Name, fcfg)
	slog.Info("provider created", "kind", "llm", "name", primary.Name, "model", primary.Model)

	for _, entry := range c.cfg.Providers.LLMFallbacks {
		p, err := c.createLLM(entry)
		if err != nil {
			return nil, err
		}
		fb.AddFallback(entry.Name, p)
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model, "fallback", true)
	}
	return fb, nil
}

func (c *cli) createLLM(entry config.ProviderEntry) (llm.Provider, error) {
	entry, err := c.resolveKey(entry)
	if err != nil {
		return nil, err
	}
	p, err := c.registry.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	return p, nil
}

// openStore opens the SQLite database when a path is configured and falls
// back to a bounded in-memory store otherwise.
func (c *cli) openStore(ctx context.Context) (activity.Store, error) {
	s := c.cfg.Storage
	if s.SQLitePath == "" {
		slog.Info("storing activities in memory", "capacity", s.MemoryCapacity)
		return activity.NewMemStore(s.MemoryCapacity), nil
	}
	store, err := activity.OpenSQLite(ctx, s.SQLitePath)
	if err != nil {
		return nil, err
	}
	slog.Info("storing activities in sqlite", "path", s.SQLitePath)
	return store, nil
}
