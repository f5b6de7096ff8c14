// Package metrics defines the Prometheus collectors for livefeed-server.
//
// All series use the "livefeed" namespace:
//
//	livefeed_websocket_active_connections     gauge
//	livefeed_subscriptions{topic}             gauge
//	livefeed_events_published_total{topic}    counter
//	livefeed_deliveries_total{outcome}        counter
//	livefeed_protocol_errors_total{code}      counter
//	livefeed_feed_events_total{feed}          counter
//	livefeed_feed_rejected_total{feed}        counter
//
// A nil *Metrics is not valid; the hub and feeds always receive one from main.
package metrics
