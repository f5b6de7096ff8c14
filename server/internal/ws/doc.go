// Package ws implements the WebSocket hub for livefeed-server.
//
// Hub accepts client connections, dispatches their subscribe, unsubscribe
// and ping requests against the store, and fans published ledger events out
// to the connections holding matching subscriptions.
//
// New(store, metrics, opts) creates a Hub.
// Hub.ServeHTTP upgrades an HTTP request and calls Accept.
// Hub.Accept(transport) registers the client, queues the connected frame and
// starts the read and write pumps. The write pump is the only writer on a
// transport; replies and broadcasts are queued on a bounded buffer and a full
// buffer drops the frame for that connection only.
// Hub.Publish(event) sends one encoded frame to every matching connection and
// returns a Report of targets, deliveries and drops.
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all connections.
//
// Connection lifecycle:
//
//	Connecting -> Open -> Closed
//
// A read error, write error, peer close or hub shutdown moves the connection
// to Closed exactly once. Cleanup unregisters the client, which removes all
// of its subscriptions in the same critical section.
//
// The upgrader accepts all origins unless Options.AllowedOrigins is set.
package ws
