// Package logging configures the process-wide log/slog logger from the
// server.log config section and exposes a LevelVar-backed SetLevel used by
// config hot reload.
package logging
