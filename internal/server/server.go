// Package server exposes the dispatcher over HTTP, one endpoint per route
// category.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/glados/internal/request"
	"github.com/ziadkadry99/glados/internal/response"
	"github.com/ziadkadry99/glados/internal/router"
)

// Config holds server configuration.
type Config struct {
	Host     string
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
	// RequestTimeout bounds a single dispatch.
	RequestTimeout time.Duration
}

// Dispatcher runs requests and exposes its route table.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *request.Request) (response.Response, error)
	Router() *router.Router
}

// Server is the inbound HTTP boundary.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	router     chi.Router
	httpServer *http.Server
}

// New creates a server dispatching to d.
func New(cfg Config, d Dispatcher) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{cfg: cfg, dispatcher: d}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(telemetry)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Slack-Request-Timestamp", "X-Slack-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/api/routes", s.handleRoutes)

	r.Post("/SendMessage/{bot}/{route}", s.handleSend)
	r.Post("/Events/{bot}", s.handleEvents)
	r.Post("/Slash/{bot}/{route}", s.handleSlash)
	r.Post("/Interaction/{bot}", s.handleInteraction)
	r.Post("/Menu", s.handleMenu)
	r.Post("/Callback/{route}", s.handleCallback)

	return r
}

// Router returns the HTTP router.
func (s *Server) Router() chi.Router { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", s.Addr()).Msg("glados server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
