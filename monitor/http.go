package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"toolhub/logger"
)

// HTTPOptions configures the status exposition endpoints.
type HTTPOptions struct {
	// RequestTimeout aborts any request whose response has not finished
	// within the window. Zero disables the watchdog.
	RequestTimeout time.Duration

	// EnableCORS adds permissive CORS headers to every response.
	EnableCORS bool

	Logger logger.Logger
}

// NewHTTPHandler exposes monitor state over three endpoints:
//
//	GET /health  -> 200 "ok" (liveness; dependency outcome never changes the code)
//	GET /status  -> full snapshot JSON; ?refresh=1 forces dependency re-evaluation
//	GET /uptime  -> start time, uptime seconds, generation timestamp
//
// OPTIONS always answers 204. Unknown paths answer 404 with the path echoed.
func NewHTTPHandler(m *Monitor, opts HTTPOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}

	h := &statusHandler{monitor: m, opts: opts}
	if opts.RequestTimeout > 0 {
		return http.TimeoutHandler(h, opts.RequestTimeout, "status request timed out")
	}
	return h
}

// NewHTTPServer wraps the handler in a server bound to addr.
func NewHTTPServer(addr string, m *Monitor, opts HTTPOptions) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHTTPHandler(m, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type statusHandler struct {
	monitor *Monitor
	opts    HTTPOptions
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.opts.EnableCORS {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch r.URL.Path {
	case "/health":
		h.handleHealth(w, r)
	case "/status":
		h.handleStatus(w, r)
	case "/uptime":
		h.handleUptime(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": "Not Found",
			"path":  r.URL.Path,
		})
	}
}

// handleHealth runs a non-forced dependency evaluation and always replies
// 200. This endpoint reports liveness, not readiness.
func (h *statusHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.monitor.EvaluateDependencies(r.Context(), false)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		h.opts.Logger.Warn("failed to write health response", logger.Error(err))
	}
}

func (h *statusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "1"
	h.monitor.EvaluateDependencies(r.Context(), force)
	writeJSON(w, http.StatusOK, h.monitor.Snapshot())
}

func (h *statusHandler) handleUptime(w http.ResponseWriter, r *http.Request) {
	now := h.monitor.now()
	writeJSON(w, http.StatusOK, map[string]any{
		"startTime":     h.monitor.StartTime(),
		"uptimeSeconds": now.Sub(h.monitor.StartTime()).Seconds(),
		"generatedAt":   now,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
