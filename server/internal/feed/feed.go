package feed

import (
	"github.com/phoenix-explorer/livefeed/pkg/types"
	"github.com/phoenix-explorer/livefeed/server/internal/ws"
)

// Feed labels used on the feed_events_total and feed_rejected_total metrics.
const (
	NamePostgres = "postgres"
	NameAMQP     = "amqp"
)

// Publisher receives decoded events. *ws.Hub satisfies it.
type Publisher interface {
	Publish(ev types.Event) ws.Report
}
