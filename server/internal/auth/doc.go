// Package auth provides authentication middleware for livefeed-server.
//
// APIKeyMiddleware(mode, header, key) wraps an http.Handler and validates the
// API key carried in the named request header. It guards the event ingest
// endpoint; the WebSocket endpoint and read-only API stay public.
//
// When mode != "apikey" all requests pass through (useful for local
// development with auth disabled). In apikey mode an absent or incorrect key
// returns 401 immediately.
package auth
