// Package config loads the livefeed-server configuration from the `server:`
// section of config.yaml.
//
// Config fields:
//   - HTTPPort            port for the REST API, /metrics and the WebSocket endpoint (default 6662)
//   - WSPath              WebSocket endpoint path (default "/ws")
//   - Log.Level/Format    slog level (hot-reloadable) and handler (json|text)
//   - Auth.Mode           "apikey" or "none"; guards POST /api/v1/events
//   - Auth.KeyEnv         environment variable holding the expected API key
//   - Hub.*               send buffer depth, write/pong deadlines, read limit,
//     origin allow-list and per-connection rate limit
//   - Feed.Postgres       indexer table poller (DSN from DSNEnv)
//   - Feed.AMQP           topic exchange consumer (URL from URLEnv)
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads on file change via fsnotify; only the
// log level is applied live, other fields need a restart.
package config
