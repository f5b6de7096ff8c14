package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/phoenix-explorer/livefeed/pkg/types"
	"github.com/phoenix-explorer/livefeed/server/internal/metrics"
	"github.com/phoenix-explorer/livefeed/server/internal/protocol"
	"github.com/phoenix-explorer/livefeed/server/internal/store"
)

// ErrClosed is returned by Accept once the hub has shut down.
var ErrClosed = errors.New("ws: hub closed")

// Transport is the message-oriented connection a client is served over.
// *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Options tunes per-connection behaviour. Zero sizes and durations take the
// values from DefaultOptions; a zero RatePerSecond disables rate limiting.
type Options struct {
	// SendBuffer is the outbound queue depth per connection.
	SendBuffer int

	// WriteTimeout is the deadline for a single write to a client.
	WriteTimeout time.Duration

	// PongWait is how long to wait for any inbound frame or pong before
	// treating the connection as dead. Pings go out at 9/10 of it.
	PongWait time.Duration

	// MaxMessageBytes caps the size of an inbound frame.
	MaxMessageBytes int64

	// AllowedOrigins restricts the Origin header on upgrade. Empty allows all.
	AllowedOrigins []string

	// RatePerSecond and RateBurst configure the inbound token bucket.
	// A RatePerSecond of 0 disables limiting.
	RatePerSecond float64
	RateBurst     int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		SendBuffer:      64,
		WriteTimeout:    10 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageBytes: 4096,
		RatePerSecond:   20,
		RateBurst:       40,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = d.MaxMessageBytes
	}
	if o.RatePerSecond > 0 && o.RateBurst <= 0 {
		o.RateBurst = 1
	}
	return o
}

// Report summarizes one Publish call. Targets counts distinct connections.
type Report struct {
	Targets   int `json:"targets"`
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
}

// Hub accepts WebSocket clients, dispatches their control messages against
// the subscription store and fans published events out to matching
// connections.
type Hub struct {
	store    *store.Store
	metrics  *metrics.Metrics
	opts     Options
	upgrader websocket.Upgrader
	newID    func() string

	quit     chan struct{}
	quitOnce sync.Once

	gaugeMu sync.Mutex
}

// New creates a Hub backed by st. A nil m gets a private metrics instance.
func New(st *store.Store, m *metrics.Metrics, opts Options) *Hub {
	if m == nil {
		m = metrics.New()
	}
	h := &Hub{
		store:   st,
		metrics: m,
		opts:    opts.withDefaults(),
		newID:   uuid.NewString,
		quit:    make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run blocks until ctx is cancelled, then closes every open connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}

// Close stops accepting clients and closes all open connections. Safe to
// call more than once.
func (h *Hub) Close() {
	h.quitOnce.Do(func() {
		close(h.quit)
		slog.Info("ws: hub shutting down", "clients", h.Count())
	})
}

// ServeHTTP upgrades the request to a WebSocket connection and hands it to
// Accept. It returns once the client's pumps are running.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	if _, err := h.Accept(conn); err != nil {
		slog.Warn("ws: accept failed", "remote", r.RemoteAddr, "err", err)
	}
}

// Accept registers a new client on t, queues the connected frame and starts
// the read and write pumps. It returns the generated client id.
func (h *Hub) Accept(t Transport) (string, error) {
	select {
	case <-h.quit:
		t.Close()
		return "", ErrClosed
	default:
	}

	c := newClient(h, h.newID(), t)
	if err := h.store.Register(c.id, c); err != nil {
		t.Close()
		return "", fmt.Errorf("ws: accept %s: %w", c.id, err)
	}
	h.metrics.ActiveConnections.Inc()

	// The queue is empty and the client has no subscriptions yet, so this is
	// always the first frame written.
	frame, err := protocol.Connected(c.id)
	if err != nil {
		c.log.Error("ws: encode connected frame", "err", err)
	} else {
		c.send <- frame
	}

	go c.writePump()
	go c.readPump()

	c.log.Debug("ws: client connected")
	return c.id, nil
}

// Publish fans ev out to every matching connection and returns the outcome.
// Sends never block: a connection whose queue is full, or that is closing,
// misses the event. A connection with several matching subscriptions
// receives it once.
func (h *Hub) Publish(ev types.Event) Report {
	if ev == nil {
		return Report{}
	}

	var targets []store.Target
	switch e := ev.(type) {
	case types.AddressUpdate:
		targets = h.store.MatchingAddress(e.Address)
	case types.BlockUpdate, types.TransactionUpdate:
		targets = h.store.Matching(ev.Topic())
	default:
		// Pointer events satisfy Event as well. Only value types are routed.
		slog.Warn("ws: unsupported event type, not published", "type", fmt.Sprintf("%T", ev))
		return Report{}
	}

	frame, err := protocol.Event(ev)
	if err != nil {
		slog.Error("ws: encode event", "topic", ev.Topic(), "err", err)
		return Report{}
	}
	h.metrics.EventsPublished.WithLabelValues(string(ev.Topic())).Inc()

	var rep Report
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.Subscription.ClientID]; dup {
			continue
		}
		seen[t.Subscription.ClientID] = struct{}{}
		rep.Targets++

		if t.Conn.TrySend(frame) {
			rep.Delivered++
			continue
		}
		rep.Dropped++
		slog.Debug("ws: event dropped",
			"client_id", t.Subscription.ClientID,
			"subscription_id", t.Subscription.ID,
			"topic", ev.Topic())
	}

	h.metrics.Deliveries.WithLabelValues(metrics.OutcomeDelivered).Add(float64(rep.Delivered))
	h.metrics.Deliveries.WithLabelValues(metrics.OutcomeDropped).Add(float64(rep.Dropped))
	return rep
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	return h.store.Stats().Clients
}

// Stats returns client and subscription counts.
func (h *Hub) Stats() store.Stats {
	return h.store.Stats()
}

// --- internal ---------------------------------------------------------------

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients do not send an Origin.
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// syncSubscriptionGauge copies per-topic counts from the store.
func (h *Hub) syncSubscriptionGauge() {
	h.gaugeMu.Lock()
	defer h.gaugeMu.Unlock()
	for topic, n := range h.store.Stats().ByTopic {
		h.metrics.Subscriptions.WithLabelValues(string(topic)).Set(float64(n))
	}
}

func (h *Hub) pingPeriod() time.Duration {
	return (h.opts.PongWait * 9) / 10
}
