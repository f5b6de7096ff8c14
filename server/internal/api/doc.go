// Package api implements the HTTP surface of livefeed-server on a gorilla/mux
// router.
//
// New(hub, opts) returns a Handler that serves:
//
//	GET  /api/v1/health         status, client and subscription counts, generated_at
//	GET  /api/v1/subscriptions  subscription counts per topic
//	POST /api/v1/events         ingest one event envelope and publish it (202)
//	GET  /metrics               Prometheus exposition
//	     <ws_path>              WebSocket endpoint (ws.Hub)
//
// The ingest body is the envelope understood by types.DecodeEvent:
//
//	{"type": "block", "data": {"hash": "0xaa", "number": "5", "timestamp": "1000", "transactionCount": 2}}
//
// It answers 400 for an invalid envelope and 401 when API key auth is on and
// the key is missing or wrong. JSON endpoints respond with Content-Type
// application/json, and 405 for a method the route does not serve.
package api
