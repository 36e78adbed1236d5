// Package api wires AutoSherpa's components together and serves its HTTP endpoints.
//
// It exposes the WhatsApp Cloud and Twilio webhooks, a synchronous chat
// endpoint for smoke tests, a health check and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/AutoSherpa/internal/messaging"
	"github.com/BTreeMap/AutoSherpa/internal/metrics"
	"github.com/BTreeMap/AutoSherpa/internal/scheduler"
	"github.com/BTreeMap/AutoSherpa/internal/session"
	"github.com/BTreeMap/AutoSherpa/internal/store"
)

const (
	// DefaultServerAddress is the default address for the API server
	DefaultServerAddress = ":8080"
	// DefaultSweepSchedule is how often idle sessions are expired
	DefaultSweepSchedule = "@every 1m"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown
	DefaultShutdownTimeout = 15 * time.Second
	// DefaultReadHeaderTimeout bounds slow clients
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultHealthTimeout bounds the dependency checks in /health
	DefaultHealthTimeout = 3 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	SweepSchedule   string
	ShutdownTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSweepSchedule sets the cron expression for the session sweep job.
func WithSweepSchedule(expr string) Option {
	return func(o *Opts) { o.SweepSchedule = expr }
}

// WithShutdownTimeout sets how long in-flight requests get on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// Deps are the components the server composes.
type Deps struct {
	Channel  messaging.Service
	Sessions *session.Manager
	Router   messaging.Router
	Store    store.Store
	// Metrics is optional.
	Metrics *metrics.Recorder
	// HandlerOptions are appended after the server's own message log, dedup and metrics options.
	HandlerOptions []messaging.HandlerOption
}

func (d Deps) validate() error {
	switch {
	case d.Channel == nil:
		return errors.New("messaging channel is required")
	case d.Sessions == nil:
		return errors.New("session manager is required")
	case d.Router == nil:
		return errors.New("router is required")
	case d.Store == nil:
		return errors.New("store is required")
	}
	return nil
}

// pinger is implemented by session stores backed by a remote service.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the composed components and the HTTP mux.
type Server struct {
	opts     Opts
	channel  messaging.Service
	sessions *session.Manager
	st       store.Store
	handler  *messaging.ResponseHandler
	metrics  *metrics.Recorder
	sched    *scheduler.Scheduler
	mux      *http.ServeMux
}

// NewServer validates deps, builds the response handler and registers routes and jobs.
func NewServer(deps Deps, opts ...Option) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := Opts{
		Addr:            DefaultServerAddress,
		SweepSchedule:   DefaultSweepSchedule,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	handlerOpts := []messaging.HandlerOption{messaging.WithMessageLog(deps.Store), messaging.WithDedup(deps.Store)}
	if deps.Metrics != nil {
		handlerOpts = append(handlerOpts, messaging.WithMetrics(deps.Metrics))
	}
	handlerOpts = append(handlerOpts, deps.HandlerOptions...)

	s := &Server{
		opts:     cfg,
		channel:  deps.Channel,
		sessions: deps.Sessions,
		st:       deps.Store,
		handler:  messaging.NewResponseHandler(deps.Channel, deps.Sessions, deps.Router, handlerOpts...),
		metrics:  deps.Metrics,
		sched:    scheduler.NewScheduler(),
		mux:      http.NewServeMux(),
	}
	if err := s.sched.AddJob("session-sweep", cfg.SweepSchedule, s.sweepSessions); err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	switch ch := s.channel.(type) {
	case *messaging.CloudAPIService:
		s.mux.HandleFunc("/webhook", ch.WebhookHandler)
	case *messaging.TwilioService:
		s.mux.HandleFunc("/twilio/webhook", ch.TwilioWebhookHandler)
	}
	s.mux.HandleFunc("/chat", s.chatHandler)
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.Handle("/metrics", promhttp.Handler())
	slog.Debug("Server.routes: registered routes", "channel", s.channel.Name())
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) sweepSessions() {
	n := s.sessions.Sweep(time.Now())
	if s.metrics != nil {
		s.metrics.ObserveSweep(n)
	}
	if n > 0 {
		slog.Debug("Server.sweepSessions: expired idle sessions", "count", n)
	}
}

// Run starts the channel, inbound workers, scheduler and HTTP server, and
// blocks until ctx is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.channel.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s channel: %w", s.channel.Name(), err)
	}

	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.handler.Run(gctx)
	})
	g.Go(func() error {
		return s.sched.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("AutoSherpa API server starting", "addr", s.opts.Addr, "channel", s.channel.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: HTTP shutdown failed", "error", err)
		}
		if err := s.channel.Stop(); err != nil {
			slog.Error("Server.Run: channel stop failed", "error", err)
		}
		return nil
	})

	err := g.Wait()
	slog.Info("AutoSherpa API server stopped", "error", err)
	return err
}

// Run builds a Server from deps and runs it until ctx is cancelled.
func Run(ctx context.Context, deps Deps, opts ...Option) error {
	s, err := NewServer(deps, opts...)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
