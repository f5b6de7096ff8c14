package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/phoenix-explorer/livefeed/pkg/types"
	"github.com/phoenix-explorer/livefeed/server/internal/metrics"
)

// LedgerBlock is one indexed block with the transactions it contains and the
// balance changes they caused.
type LedgerBlock struct {
	Block        types.BlockUpdate
	Transactions []types.TransactionUpdate
	Addresses    []types.AddressUpdate
}

// Ledger is the read side of the indexer database.
type Ledger interface {
	// Head returns the highest indexed block number.
	Head(ctx context.Context) (uint64, error)

	// BlocksAfter returns every block whose number is among the first limit
	// distinct numbers greater than after, ordered by number. Blocks sharing
	// a number are returned together.
	BlocksAfter(ctx context.Context, after uint64, limit int) ([]LedgerBlock, error)
}

// PollerOptions configures a Poller. A nil Clock uses the wall clock.
type PollerOptions struct {
	Interval  time.Duration
	BatchSize int
	Clock     clockwork.Clock
}

// Poller tails a Ledger and publishes what it finds. It starts at the
// current head, so history is never replayed.
type Poller struct {
	ledger  Ledger
	pub     Publisher
	metrics *metrics.Metrics
	opts    PollerOptions

	cursor uint64
	primed bool
}

// NewPoller creates a Poller.
func NewPoller(l Ledger, pub Publisher, m *metrics.Metrics, opts PollerOptions) *Poller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if m == nil {
		m = metrics.New()
	}
	return &Poller{ledger: l, pub: pub, metrics: m, opts: opts}
}

// Cursor returns the number of the last block published, or the head
// observed at startup.
func (p *Poller) Cursor() uint64 { return p.cursor }

// Run polls once immediately and then on every tick until ctx is cancelled.
// Errors are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.opts.Clock.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	slog.Info("feed: postgres poller started", "feed", NamePostgres, "interval", p.opts.Interval)
	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("feed: poll failed, will retry", "feed", NamePostgres, "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// Poll runs one step. The first successful call only records the head.
// Later calls publish every block past the cursor, each followed by its
// transactions and then its address updates, and return how many blocks
// were published.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	if !p.primed {
		head, err := p.ledger.Head(ctx)
		if err != nil {
			return 0, fmt.Errorf("feed: head: %w", err)
		}
		p.cursor, p.primed = head, true
		slog.Info("feed: poller primed", "feed", NamePostgres, "head", head)
		return 0, nil
	}

	published := 0
	for {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		blocks, err := p.ledger.BlocksAfter(ctx, p.cursor, p.opts.BatchSize)
		if err != nil {
			return published, fmt.Errorf("feed: blocks after %d: %w", p.cursor, err)
		}

		numbers := 0
		for _, b := range blocks {
			n := b.Block.Number
			if n == nil || !n.IsUint64() || n.Uint64() < p.cursor {
				continue
			}
			if n.Uint64() > p.cursor {
				numbers++
			}
			p.publish(b.Block)
			for _, tx := range b.Transactions {
				p.publish(tx)
			}
			for _, a := range b.Addresses {
				p.publish(a)
			}
			p.cursor = n.Uint64()
			published++
		}

		// A short batch means we have caught up with the indexer.
		if numbers < p.opts.BatchSize {
			return published, nil
		}
	}
}

func (p *Poller) publish(ev types.Event) {
	p.metrics.FeedEvents.WithLabelValues(NamePostgres).Inc()
	rep := p.pub.Publish(ev)
	if rep.Dropped > 0 {
		slog.Debug("feed: event dropped for slow clients",
			"feed", NamePostgres, "topic", ev.Topic(), "dropped", rep.Dropped)
	}
}
