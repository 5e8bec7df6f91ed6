// Package server exposes the scheduling core over a JSON REST API.
// Requests arriving here act with root-process authority: the HTTP
// surface plays the role other kernel subsystems play in-process.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/gosched/internal/kernel"
)

// Server is the schedd REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	kernel    *kernel.Kernel
	startTime time.Time
}

// New creates a Server with all routes registered.
func New(k *kernel.Kernel, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		kernel:    k,
		startTime: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger, s.kernel.Now))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/processes", func(r chi.Router) {
			r.Get("/", s.handleListProcesses)
			r.Post("/", s.handleCreateProcess)
			r.Route("/{pid}", func(r chi.Router) {
				r.Get("/", s.handleGetProcess)
				r.Delete("/", s.handleTerminateProcess)
				r.Put("/priority", s.handleSetPriority)
			})
		})

		r.Route("/threads", func(r chi.Router) {
			r.Get("/", s.handleListThreads)
			r.Post("/", s.handleCreateThread)
			r.Route("/{tid}", func(r chi.Router) {
				r.Get("/", s.handleGetThread)
				r.Delete("/", s.handleTerminateThread)
				r.Post("/block", s.handleBlockThread)
				r.Post("/wake", s.handleWakeThread)
				r.Post("/sleep", s.handleSleepThread)
				r.Put("/affinity", s.handleSetAffinity)
			})
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/stats", s.handleSchedulerStats)
			r.Post("/tick", s.handleAdvanceClock)
			r.Route("/cpus/{cpu}", func(r chi.Router) {
				r.Put("/online", s.handleCPUOnline)
				r.Put("/offline", s.handleCPUOffline)
			})
		})

		r.Route("/accounting", func(r chi.Router) {
			r.Get("/exits", s.handleListExits)
			r.Get("/samples", s.handleListSamples)
		})
	})
}
