// Package protocol encodes and decodes the JSON control protocol spoken on
// the livefeed WebSocket endpoint.
//
// Inbound frames:
//
//	{"method": "subscribe",   "params": ["newBlocks"]}
//	{"method": "subscribe",   "params": ["address", "0xabc…"]}
//	{"method": "unsubscribe", "params": ["0x1f"]}
//	{"method": "ping"}
//
// Decode turns a frame into one of Subscribe, Unsubscribe or Ping, or an
// *Error carrying INVALID_MESSAGE, UNKNOWN_METHOD or INVALID_PARAMS.
//
// Outbound frames:
//
//	{"method": "connected",    "data": {"clientId": "…"}}
//	{"method": "subscribed",   "data": {"subscriptionId": "0x1", "type": "address", "address": "0xabc…"}}
//	{"method": "unsubscribed", "data": {"subscriptionId": "0x1", "success": true}}
//	{"method": "pong"}
//	{"subscription": "newBlocks", "data": { /* event payload */ }}
//	{"error": {"code": "INVALID_TOPIC", "message": "…"}}
package protocol
