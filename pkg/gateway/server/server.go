package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/voxhall/livebridge/pkg/gateway/config"
	"github.com/voxhall/livebridge/pkg/gateway/handlers"
	"github.com/voxhall/livebridge/pkg/gateway/lifecycle"
	"github.com/voxhall/livebridge/pkg/gateway/live/session"
	"github.com/voxhall/livebridge/pkg/gateway/metrics"
	"github.com/voxhall/livebridge/pkg/gateway/mw"
	"github.com/voxhall/livebridge/pkg/gateway/upstream"
)

// Server assembles the gateway: routes, middleware, the live session
// coordinator, and the shared lifecycle and metrics plumbing.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycle   *lifecycle.Lifecycle
	metrics     *metrics.Metrics
	coordinator *session.Coordinator
}

func New(cfg config.Config, logger *slog.Logger, connector upstream.Connector) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := metrics.New("livebridge")
	coordinator, err := session.New(session.Dependencies{
		Connector: connector,
		Logger:    logger,
		Metrics:   m,
		ModelName: cfg.GenAIModel,
		Config:    session.Config{PollInterval: cfg.LiveAudioPollInterval},
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		mux:         http.NewServeMux(),
		lifecycle:   &lifecycle.Lifecycle{},
		metrics:     m,
		coordinator: coordinator,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/ws", &handlers.LiveHandler{
		Config:      s.cfg,
		Coordinator: s.coordinator,
		Logger:      s.logger,
		Lifecycle:   s.lifecycle,
		Metrics:     s.metrics,
	})

	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	s.mux.Handle("/{$}", handlers.IndexHandler{StaticDir: s.cfg.StaticDir, Logger: s.logger})
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness and the live endpoint's admission gate; the
// running session, if any, keeps going until StopSession or client
// disconnect.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// StopSession ends the running live session, telling the client, and waits
// for teardown within ctx. With no session running it returns immediately.
func (s *Server) StopSession(ctx context.Context) error {
	return s.coordinator.Stop(ctx, true)
}
