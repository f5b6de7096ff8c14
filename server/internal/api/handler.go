package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/phoenix-explorer/livefeed/pkg/types"
	"github.com/phoenix-explorer/livefeed/server/internal/metrics"
	"github.com/phoenix-explorer/livefeed/server/internal/store"
	"github.com/phoenix-explorer/livefeed/server/internal/ws"
)

// maxEventBytes caps the size of an ingest request body.
const maxEventBytes = 1 << 20

// FeedHTTP is the feed label for events received on the ingest endpoint.
const FeedHTTP = "http"

// Hub is the part of ws.Hub the API needs.
type Hub interface {
	Publish(ev types.Event) ws.Report
	Stats() store.Stats
}

// Options wires the handler to the rest of the server.
type Options struct {
	// WSPath and WS mount the WebSocket endpoint on the same router. WS may be
	// nil to leave it unmounted.
	WSPath string
	WS     http.Handler

	// Metrics is exposed on GET /metrics and receives ingest counters.
	Metrics *metrics.Metrics

	// IngestAuth wraps POST /api/v1/events. Nil leaves it open.
	IngestAuth func(http.Handler) http.Handler
}

// Handler is the HTTP handler for /api/v1/*, /metrics and the WebSocket path.
type Handler struct {
	hub     Hub
	metrics *metrics.Metrics
	router  *mux.Router
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Handler and registers all routes.
func New(hub Hub, opts Options) *Handler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	h := &Handler{
		hub:     hub,
		metrics: opts.Metrics,
		router:  mux.NewRouter(),
		now:     time.Now,
	}

	var ingest http.Handler = http.HandlerFunc(h.ingest)
	if opts.IngestAuth != nil {
		ingest = opts.IngestAuth(ingest)
	}

	h.router.HandleFunc("/api/v1/health", h.health).Methods(http.MethodGet)
	h.router.HandleFunc("/api/v1/subscriptions", h.subscriptions).Methods(http.MethodGet)
	h.router.Handle("/api/v1/events", ingest).Methods(http.MethodPost)
	h.router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	if opts.WS != nil && opts.WSPath != "" {
		h.router.Handle(opts.WSPath, opts.WS)
	}

	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: liveness plus connection counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	s := h.hub.Stats()
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Clients:       s.Clients,
		Subscriptions: s.Subscriptions,
		GeneratedAt:   h.now().UTC().Format(time.RFC3339),
	})
}

// subscriptions returns GET /api/v1/subscriptions: live counts per topic.
func (h *Handler) subscriptions(w http.ResponseWriter, r *http.Request) {
	s := h.hub.Stats()
	resp := SubscriptionsResponse{
		Total:   s.Subscriptions,
		ByTopic: make(map[string]int, len(types.Topics)),
	}
	for _, t := range types.Topics {
		resp.ByTopic[string(t)] = s.ByTopic[t]
	}
	jsonResp(w, http.StatusOK, resp)
}

// ingest handles POST /api/v1/events: decode one event envelope and publish it.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		jsonErr(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	ev, err := types.DecodeEvent(body)
	if err != nil {
		slog.Debug("api: rejected event", "err", err)
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	h.metrics.FeedEvents.WithLabelValues(FeedHTTP).Inc()
	rep := h.hub.Publish(ev)
	jsonResp(w, http.StatusAccepted, IngestResponse{
		Topic:     string(ev.Topic()),
		Targets:   rep.Targets,
		Delivered: rep.Delivered,
		Dropped:   rep.Dropped,
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
