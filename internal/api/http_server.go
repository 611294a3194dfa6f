package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"venuebook/internal/config"
	"venuebook/internal/domain"
	"venuebook/internal/export"
	"venuebook/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Services are the dependencies the HTTP handlers call into.
type Services struct {
	Bookings   domain.BookingService
	Spaces     domain.SpaceService
	Reconciler domain.Reconciler
	Exporter   *export.Exporter
	Pinger     Pinger
	Location   *time.Location
	Now        func() time.Time
}

// HTTPServer exposes the booking API as JSON over HTTP.
type HTTPServer struct {
	svc    Services
	tokens *TokenService
	server *http.Server
	logger zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	if svc.Location == nil {
		svc.Location = time.UTC
	}
	if svc.Now == nil {
		svc.Now = time.Now
	}
	if svc.Exporter == nil {
		svc.Exporter = export.NewExporter(svc.Location)
	}

	srv := &HTTPServer{
		svc:    svc,
		tokens: NewTokenService(cfg.Auth),
		logger: zerolog.Nop(),
	}
	if logger != nil {
		srv.logger = logger.With().Str("component", "http").Logger()
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(newRateLimiter(cfg.RateLimit)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

func (s *HTTPServer) routes(limiter *rateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.tokens.Authenticate)
		r.Use(limiter.Middleware)

		r.Route("/spaces", func(r chi.Router) {
			r.Get("/", s.handleListSpaces)
			r.Get("/{id}", s.handleGetSpace)
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/", s.handleCreateSpace)
				r.Put("/{id}", s.handleUpdateSpace)
				r.Delete("/{id}", s.handleDeleteSpace)
				r.Post("/{id}/reconcile", s.handleReconcileSpace)
			})
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", s.handleCreateBooking)
			r.Get("/", s.handleListBookings)
			r.Get("/mine", s.handleMyBookings)
			r.Get("/upcoming", s.handleUpcomingBookings)
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/attention", s.handleAttention)
				r.Get("/export", s.handleExport)
				r.Post("/{id}/approve", s.handleApprove)
				r.Post("/{id}/reject", s.handleReject)
			})
			r.Get("/{id}", s.handleGetBooking)
			r.Post("/{id}/cancel", s.handleCancel)
		})

		r.With(RequireAdmin).Post("/sweep", s.handleSweep)
	})

	return r
}

// requestLogger tags each request with an id and logs it with its route pattern.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.IncHTTP(r.Method + " " + route)

		ev := s.logger.Info()
		if ww.Status() >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("request_id", requestID).
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Pinger.PingContext(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
