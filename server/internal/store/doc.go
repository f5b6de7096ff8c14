// Package store holds the live connection registry and subscription table
// for livefeed-server.
//
// A single Store guards four structures with one mutex: the client registry
// (client id → Conn), the forward table (subscription id → Subscription), the
// per-client reverse index, and the topic and address indexes used to resolve
// broadcast targets. Callers never see the maps; every read returns copies.
//
// Subscription ids are rendered from a counter as 0x-prefixed hex and are
// unique for the lifetime of the process. Address filters are normalized to
// lowercase on insert, and MatchingAddress lowercases its argument, so
// matching is case-insensitive.
//
// Matching and MatchingAddress return the owner's Conn alongside each
// subscription. No network I/O happens while the lock is held; callers send
// after the call returns.
package store
