// Package api provides the REST API of the remipn daemon.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/logging"
	"github.com/rennerdo30/remipn/internal/version"
)

// Connection is the API view of one configured profile.
type Connection struct {
	Profile        string            `json:"profile"`
	Aliases        []string          `json:"aliases,omitempty"`
	Category       string            `json:"category"`
	Status         connection.Status `json:"status"`
	Display        string            `json:"display"`
	IPAddress      string            `json:"ip_address,omitempty"`
	ConnectedSince *time.Time        `json:"connected_since,omitempty"`
	UptimeSeconds  int64             `json:"uptime_seconds,omitempty"`
}

// Operation identifies an accepted asynchronous operation.
type Operation struct {
	ID      string `json:"id"`
	Op      string `json:"op"`
	Profile string `json:"profile"`
}

// Service is what the API serves. StartConnect and StartDisconnect return
// connection.ErrBusy while another operation is running and
// connection.ErrProfileNotFound for unknown names or aliases.
type Service interface {
	Connections() []Connection
	Connection(key string) (Connection, error)
	Active(ctx context.Context) ([]connection.ActiveConnection, error)
	Refresh(ctx context.Context) error
	StartConnect(key string) (Operation, error)
	StartDisconnect(key string) (Operation, error)
}

// API provides the REST API.
type API struct {
	service     Service
	token       string
	metrics     http.Handler
	metricsPath string
	logger      *slog.Logger
}

// Config holds API configuration.
type Config struct {
	Service Service
	Token   string
	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
	Logger         *slog.Logger
}

// New creates a new API.
func New(cfg Config) *API {
	path := cfg.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	return &API{
		service:     cfg.Service,
		token:       cfg.Token,
		metrics:     cfg.MetricsHandler,
		metricsPath: path,
		logger:      logging.OrDefault(cfg.Logger).With("component", "api"),
	}
}

// Handler returns the HTTP handler for the API.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(securityHeadersMiddleware)
	r.Use(corsMiddleware)

	if a.token != "" {
		r.Use(a.authMiddleware)
	}

	r.Get("/api/v1/health", a.handleHealth)
	r.Get("/api/v1/version", a.handleVersion)
	r.Get("/api/v1/active", a.handleActive)
	r.Post("/api/v1/refresh", a.handleRefresh)

	r.Route("/api/v1/connections", func(r chi.Router) {
		r.Get("/", a.handleConnections)
		r.Get("/{name}", a.handleConnection)
		r.Post("/{name}/connect", a.handleConnect)
		r.Post("/{name}/disconnect", a.handleDisconnect)
	})

	if a.metrics != nil {
		r.Method(http.MethodGet, a.metricsPath, a.metrics)
	}

	return r
}

// Serve serves the API on listener until ctx is done, then shuts down
// gracefully.
func (a *API) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("API server listening", "address", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			a.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		a.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && isLocalOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isLocalOrigin checks if the origin is from localhost or a loopback address.
func isLocalOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "http://[::1]"} {
		rest, ok := strings.CutPrefix(origin, prefix)
		if ok && (rest == "" || rest[0] == ':' || rest[0] == '/') {
			return true
		}
	}
	return false
}

// securityHeadersMiddleware adds common security headers to all responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, version.GetInfo())
}

func (a *API) handleConnections(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.service.Connections())
}

func (a *API) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := a.service.Connection(chi.URLParam(r, "name"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, conn)
}

func (a *API) handleActive(w http.ResponseWriter, r *http.Request) {
	active, err := a.service.Active(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if active == nil {
		active = []connection.ActiveConnection{}
	}
	a.writeJSON(w, http.StatusOK, active)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Refresh(r.Context()); err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, a.service.Connections())
}

func (a *API) handleConnect(w http.ResponseWriter, r *http.Request) {
	op, err := a.service.StartConnect(chi.URLParam(r, "name"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, op)
}

func (a *API) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	op, err := a.service.StartDisconnect(chi.URLParam(r, "name"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeJSON(w, http.StatusAccepted, op)
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, connection.ErrProfileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, connection.ErrBusy):
		status = http.StatusConflict
	default:
		a.logger.Warn("request failed", "error", err)
	}
	a.writeError(w, status, err.Error())
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Debug("failed to write response", "error", err)
	}
}
