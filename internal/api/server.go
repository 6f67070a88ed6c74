package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"evrptw/internal/config"
	"evrptw/internal/logger"
	"evrptw/internal/metrics"
	"evrptw/internal/store"
	"evrptw/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Cfg    *config.Config

	log     zerolog.Logger
	search  *logger.SearchLogger
	limiter *rate.Limiter

	// runs in flight, cancelled on shutdown
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	baseCtx context.Context
	stop    context.CancelFunc
}

// NewServer opens the configured store and broker. A Redis broker that cannot
// be reached falls back to the in-process one.
func NewServer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Server, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}
	var broker EventBroker = NewBroker()
	if cfg.Redis.URL != "" {
		rb, err := NewRedisBroker(ctx, cfg.Redis.URL, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, streaming from this process only")
		} else {
			broker = rb
		}
	}
	return New(cfg, st, broker, log), nil
}

// New wires a Server from already opened dependencies.
func New(cfg *config.Config, st store.Store, broker EventBroker, log zerolog.Logger) *Server {
	metrics.RegisterDefault()
	base, stop := context.WithCancel(context.Background())
	return &Server{
		Store:   st,
		Pub:     webhooks.NewPublisher(st, cfg.Webhook.Subscriptions, log),
		Broker:  broker,
		Cfg:     cfg,
		log:     log,
		search:  logger.NewSearchLogger(log),
		limiter: rate.NewLimiter(rate.Limit(cfg.API.RatePerSecond), cfg.API.Burst),
		cancels: map[string]context.CancelFunc{},
		baseCtx: base,
		stop:    stop,
	}
}

// Routes returns the HTTP handler with every endpoint and the middleware chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/solve", s.SolveHandler)
	mux.HandleFunc("GET /v1/runs", s.RunsHandler)
	mux.HandleFunc("GET /v1/runs/{id}", s.RunHandler)
	mux.HandleFunc("DELETE /v1/runs/{id}", s.CancelRunHandler)
	mux.HandleFunc("GET /v1/runs/{id}/metrics", s.RunMetricsHandler)
	mux.HandleFunc("GET /v1/runs/{id}/ws", s.RunStreamHandler)
	mux.HandleFunc("GET /v1/optimizer/config", s.OptimizerConfigHandler)

	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.HandleFunc("GET /version", s.VersionHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return recoverMiddleware(s.log, requestIDMiddleware(logMiddleware(s.log, mux)))
}

// NewWebhookWorker creates the background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.Webhook.PollInterval, s.Cfg.Webhook.BatchSize, s.log)
}

// Shutdown cancels every run in flight, waits for them to record their final
// state, then closes the broker and the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	_ = s.Broker.Close()
	return s.Store.Close()
}
