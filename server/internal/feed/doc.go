// Package feed connects event producers to the hub.
//
// Two feeds are available besides the HTTP ingest endpoint:
//
//   - Poller tails the indexer's PostgreSQL tables (PostgresLedger) and
//     publishes each new block, then its transactions, then the balance
//     changes they caused. It starts at the current head.
//   - AMQPConsumer reads typed event envelopes from a RabbitMQ topic
//     exchange, acking each message after it has been published.
//
// Both reconnect or retry on their own; a feed failure never stops the hub.
package feed
