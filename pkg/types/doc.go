// Package types defines the ledger vocabulary shared by the hub, the HTTP
// ingest and the feeds: subscription topics, account normalization, and the
// three domain events (BlockUpdate, TransactionUpdate, AddressUpdate).
//
// Block numbers, timestamps, balances and values are *big.Int end to end and
// are rendered on the wire as decimal strings, never as JSON numbers, so
// clients never lose precision above 2^53.
//
// The envelope format used by producers is:
//
//	{
//	  "type": "block" | "transaction" | "address",
//	  "data": { /* event fields, big numbers as decimal or 0x-hex strings */ }
//	}
//
// DecodeEvent parses and validates an envelope; EncodeEvent produces one.
package types
