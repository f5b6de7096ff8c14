package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/streadway/amqp"

	"github.com/phoenix-explorer/livefeed/pkg/types"
	"github.com/phoenix-explorer/livefeed/server/internal/metrics"
)

// AMQPOptions configures an AMQPConsumer. An empty Queue declares a
// server-named, exclusive queue that is deleted when the consumer goes away.
type AMQPOptions struct {
	URL        string
	Exchange   string
	Queue      string
	BindingKey string
	Prefetch   int
	Clock      clockwork.Clock
}

// AMQPConsumer reads event envelopes from a topic exchange and publishes
// them. Undecodable messages are rejected without requeue.
type AMQPConsumer struct {
	pub     Publisher
	metrics *metrics.Metrics
	opts    AMQPOptions
	dial    func(url string) (*amqp.Connection, error)
}

// NewAMQPConsumer creates a consumer. Run starts it.
func NewAMQPConsumer(pub Publisher, m *metrics.Metrics, opts AMQPOptions) *AMQPConsumer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BindingKey == "" {
		opts.BindingKey = "#"
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 64
	}
	if m == nil {
		m = metrics.New()
	}
	return &AMQPConsumer{pub: pub, metrics: m, opts: opts, dial: amqp.Dial}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
// whenever the broker connection drops.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	bo := newBackoff()
	for {
		err := c.consume(ctx, bo)
		if ctx.Err() != nil {
			return nil
		}

		wait := bo.next()
		slog.Warn("feed: amqp connection lost, retrying",
			"feed", NameAMQP, "exchange", c.opts.Exchange, "err", err, "backoff", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-c.opts.Clock.After(wait):
		}
	}
}

// consume runs one connection's lifetime. bo is reset once the consumer is
// attached.
func (c *AMQPConsumer) consume(ctx context.Context, bo *backoff) error {
	conn, err := c.dial(c.opts.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.opts.Exchange, err)
	}

	named := c.opts.Queue != ""
	q, err := ch.QueueDeclare(c.opts.Queue, named, !named, !named, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, c.opts.BindingKey, c.opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	tag := "livefeed-" + uuid.NewString()
	deliveries, err := ch.Consume(q.Name, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	bo.reset()
	slog.Info("feed: amqp consumer attached",
		"feed", NameAMQP, "exchange", c.opts.Exchange, "queue", q.Name, "binding", c.opts.BindingKey)

	for {
		select {
		case <-ctx.Done():
			ch.Cancel(tag, false) //nolint:errcheck
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(d)
		}
	}
}

// handle publishes one delivery and settles it.
func (c *AMQPConsumer) handle(d amqp.Delivery) {
	ev, err := types.DecodeEvent(d.Body)
	if err != nil {
		c.metrics.FeedRejected.WithLabelValues(NameAMQP).Inc()
		slog.Warn("feed: rejecting amqp message",
			"feed", NameAMQP, "routing_key", d.RoutingKey, "err", err)
		if err := d.Reject(false); err != nil {
			slog.Warn("feed: amqp reject failed", "feed", NameAMQP, "err", err)
		}
		return
	}

	c.metrics.FeedEvents.WithLabelValues(NameAMQP).Inc()
	c.pub.Publish(ev)
	if err := d.Ack(false); err != nil {
		slog.Warn("feed: amqp ack failed", "feed", NameAMQP, "err", err)
	}
}
