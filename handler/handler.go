// Package handler exposes the command router over HTTP and Connect RPC.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stevemurr/state-table-server/command"
)

// Options configures the transport.
type Options struct {
	// MaxBodyBytes caps a request body; zero means 10 MiB.
	MaxBodyBytes int64
	// CORSAllowedOrigins defaults to ["*"] when empty.
	CORSAllowedOrigins []string
	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	router *command.Router
	mux    *chi.Mux
	opts   Options
	logger *slog.Logger
}

// New creates a Handler and wires up all routes.
func New(r *command.Router, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if len(opts.CORSAllowedOrigins) == 0 {
		opts.CORSAllowedOrigins = []string{"*"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{router: r, mux: chi.NewRouter(), opts: opts, logger: logger}
	h.middleware()
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) middleware() {
	h.mux.Use(middleware.RequestID)
	h.mux.Use(middleware.RealIP)
	h.mux.Use(requestLogger(h.logger))
	h.mux.Use(middleware.Recoverer)
	h.mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.opts.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Connect-Protocol-Version", "Connect-Timeout-Ms"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if h.opts.RequestsPerSecond > 0 {
		h.mux.Use(rateLimiter(h.opts.RequestsPerSecond, h.opts.Burst))
	}
}

func (h *Handler) routes() {
	h.mux.Get("/", h.root)
	h.mux.Get("/health", h.health)
	h.mux.Post("/", h.execute)

	path, rpc := newRPCHandler(h.router)
	h.mux.Handle(path, rpc)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, command.Response{"status": command.StatusError, "message": msg})
}

// ---------- endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  command.StatusOK,
		"service": "State Table Server",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": command.StatusOK})
}

// execute runs one request body through the router. Domain failures are
// reported in the body with HTTP 200.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, command.ErrMalformed.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.router.HandleRaw(r.Context(), body))
}
