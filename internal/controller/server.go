// Package controller contains the HTTP API server: route wiring,
// authentication, and rate limiting around the handlers package.
package controller

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"retz/internal/controller/handlers"
	"retz/internal/controller/middleware"
	"retz/internal/status"
	"retz/internal/store"
)

// Config controls rate limiting and admin authentication for the server.
type Config struct {
	Addr            string
	AdminSecret     string
	RateLimit       rate.Limit
	RateLimitBurst  int
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server wired against s, dispatching kills
// through killer and status reports through reporter.
func New(cfg Config, s store.Store, killer handlers.JobKiller, reporter *status.Reporter) *Server {
	h := handlers.New(s, killer, reporter)

	authMW := middleware.Auth(s)
	rateMW := middleware.RateLimit(cfg.RateLimit, cfg.RateLimitBurst)
	adminMW := middleware.RequireInternalAuth(cfg.AdminSecret)

	authed := func(next http.HandlerFunc) http.Handler {
		return authMW(rateMW(next))
	}

	mux := http.NewServeMux()

	// Admin-only user provisioning.
	mux.Handle("POST /users", adminMW(http.HandlerFunc(h.CreateUser)))
	mux.Handle("GET /users/{keyId}", adminMW(http.HandlerFunc(h.GetUser)))
	mux.Handle("PUT /users/{keyId}/enable", adminMW(http.HandlerFunc(h.EnableUser)))

	// Authenticated client API.
	mux.Handle("POST /applications", authed(h.LoadApplication))
	mux.Handle("GET /applications", authed(h.ListApplications))
	mux.Handle("GET /applications/{appid}", authed(h.GetApplication))
	mux.Handle("DELETE /applications/{appid}", authed(h.DeleteApplication))

	mux.Handle("POST /jobs", authed(h.ScheduleJob))
	mux.Handle("GET /jobs", authed(h.ListJobs))
	mux.Handle("GET /jobs/{id}", authed(h.GetJob))
	mux.Handle("POST /jobs/{id}/kill", authed(h.KillJob))

	// Public.
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
