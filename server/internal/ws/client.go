package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/phoenix-explorer/livefeed/server/internal/protocol"
)

// client is one accepted connection. The write pump is the only goroutine
// that writes to conn; everything else queues frames on send.
//
// send is never closed. done marks the connection as closed, so a late
// TrySend from a publisher fails instead of panicking.
type client struct {
	id      string
	hub     *Hub
	conn    Transport
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	log     *slog.Logger
}

func newClient(h *Hub, id string, t Transport) *client {
	c := &client{
		id:   id,
		hub:  h,
		conn: t,
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
		log:  slog.With("client_id", id),
	}
	if h.opts.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(h.opts.RatePerSecond), h.opts.RateBurst)
	}
	return c
}

// TrySend queues data without blocking and reports whether it was queued.
func (c *client) TrySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close moves the client to Closed. It runs its body exactly once no matter
// how many of read error, write error or hub shutdown trigger it.
func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		n := c.hub.store.Unregister(c.id)
		c.hub.metrics.ActiveConnections.Dec()
		c.hub.syncSubscriptionGauge()
		c.log.Debug("ws: client disconnected", "subscriptions_removed", n)
	})
}

// writePump drains the send queue to the transport and sends periodic pings.
// It owns the transport and closes it on exit.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("ws: write failed", "err", err)
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ws: ping failed", "err", err)
				c.close()
				return
			}

		case <-c.hub.quit:
			c.close()
			c.writeClose()
			return

		case <-c.done:
			c.writeClose()
			return
		}
	}
}

func (c *client) writeClose() {
	c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout)) //nolint:errcheck
	c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump reads and dispatches inbound frames until the transport fails.
func (c *client) readPump() {
	defer c.close()

	wait := c.hub.opts.PongWait
	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("ws: read failed", "err", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck

		if c.limiter != nil && !c.limiter.Allow() {
			c.replyError(&protocol.Error{Code: protocol.CodeRateLimited, Message: "Too many messages"})
			continue
		}
		c.handle(frame)
	}
}

// handle decodes one frame and dispatches it against the store.
func (c *client) handle(frame []byte) {
	req, err := protocol.Decode(frame)
	if err != nil {
		c.replyError(protocol.FromStoreError(err))
		return
	}

	switch r := req.(type) {
	case protocol.Subscribe:
		sub, err := c.hub.store.Subscribe(c.id, r.Topic, r.Filter)
		if err != nil {
			c.replyError(protocol.FromStoreError(err))
			return
		}
		c.hub.syncSubscriptionGauge()
		c.log.Debug("ws: subscribed", "subscription_id", sub.ID, "topic", sub.Topic)
		c.reply(protocol.Subscribed(sub))

	case protocol.Unsubscribe:
		ok := c.hub.store.Unsubscribe(c.id, r.SubscriptionID)
		if ok {
			c.hub.syncSubscriptionGauge()
		}
		c.log.Debug("ws: unsubscribed", "subscription_id", r.SubscriptionID, "success", ok)
		c.reply(protocol.Unsubscribed(r.SubscriptionID, ok))

	case protocol.Ping:
		c.reply(protocol.Pong())
	}
}

func (c *client) reply(frame []byte, err error) {
	if err != nil {
		c.log.Error("ws: encode reply", "err", err)
		return
	}
	if !c.TrySend(frame) {
		c.log.Debug("ws: reply dropped, send queue full")
	}
}

func (c *client) replyError(e *protocol.Error) {
	c.hub.metrics.ProtocolErrors.WithLabelValues(e.Code).Inc()
	c.reply(protocol.ErrorFrame(e))
}
