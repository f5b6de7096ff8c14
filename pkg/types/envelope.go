package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Envelope type discriminators.
const (
	KindBlock       = "block"
	KindTransaction = "transaction"
	KindAddress     = "address"
)

// ErrUnknownKind is returned by DecodeEvent for an unrecognized envelope type.
var ErrUnknownKind = errors.New("unknown event type")

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type blockInput struct {
	Hash             string          `json:"hash"`
	Number           json.RawMessage `json:"number"`
	Timestamp        json.RawMessage `json:"timestamp"`
	TransactionCount int             `json:"transactionCount"`
}

type transactionInput struct {
	Hash        string          `json:"hash"`
	BlockHash   string          `json:"blockHash"`
	BlockNumber json.RawMessage `json:"blockNumber"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Value       json.RawMessage `json:"value"`
}

type addressInput struct {
	Address         string          `json:"address"`
	Balance         json.RawMessage `json:"balance"`
	TransactionHash string          `json:"transactionHash"`
	BlockNumber     json.RawMessage `json:"blockNumber"`
}

// EncodeEvent wraps ev in a typed envelope.
func EncodeEvent(ev Event) ([]byte, error) {
	var kind string
	switch ev.(type) {
	case BlockUpdate:
		kind = KindBlock
	case TransactionUpdate:
		kind = KindTransaction
	case AddressUpdate:
		kind = KindAddress
	default:
		return nil, fmt.Errorf("types: encode: %w", ErrUnknownKind)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("types: encode %s: %w", kind, err)
	}
	return json.Marshal(envelope{Type: kind, Data: data})
}

// DecodeEvent parses a typed envelope into an Event.
// Big numbers may be decimal strings, 0x-prefixed hex strings or JSON
// integers. Address updates are normalized to lowercase.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("types: decode envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, errors.New("types: decode envelope: missing data")
	}

	switch env.Type {
	case KindBlock:
		var in blockInput
		if err := json.Unmarshal(env.Data, &in); err != nil {
			return nil, fmt.Errorf("types: decode block: %w", err)
		}
		if in.Hash == "" {
			return nil, errors.New("types: decode block: hash is required")
		}
		number, err := parseBig(in.Number)
		if err != nil {
			return nil, fmt.Errorf("types: decode block number: %w", err)
		}
		ts, err := parseBig(in.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("types: decode block timestamp: %w", err)
		}
		if in.TransactionCount < 0 {
			return nil, errors.New("types: decode block: transactionCount must not be negative")
		}
		return BlockUpdate{Hash: in.Hash, Number: number, Timestamp: ts, TransactionCount: in.TransactionCount}, nil

	case KindTransaction:
		var in transactionInput
		if err := json.Unmarshal(env.Data, &in); err != nil {
			return nil, fmt.Errorf("types: decode transaction: %w", err)
		}
		if in.Hash == "" || in.From == "" {
			return nil, errors.New("types: decode transaction: hash and from are required")
		}
		number, err := parseBig(in.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("types: decode transaction blockNumber: %w", err)
		}
		value, err := parseBig(in.Value)
		if err != nil {
			return nil, fmt.Errorf("types: decode transaction value: %w", err)
		}
		return TransactionUpdate{
			Hash:        in.Hash,
			BlockHash:   in.BlockHash,
			BlockNumber: number,
			From:        in.From,
			To:          in.To,
			Value:       value,
		}, nil

	case KindAddress:
		var in addressInput
		if err := json.Unmarshal(env.Data, &in); err != nil {
			return nil, fmt.Errorf("types: decode address: %w", err)
		}
		addr, err := NormalizeAddress(in.Address)
		if err != nil {
			return nil, fmt.Errorf("types: decode address: %w", err)
		}
		balance, err := parseBig(in.Balance)
		if err != nil {
			return nil, fmt.Errorf("types: decode address balance: %w", err)
		}
		number, err := parseBig(in.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("types: decode address blockNumber: %w", err)
		}
		return AddressUpdate{
			Address:         addr,
			Balance:         balance,
			TransactionHash: in.TransactionHash,
			BlockNumber:     number,
		}, nil
	}

	return nil, fmt.Errorf("types: decode %q: %w", env.Type, ErrUnknownKind)
}

// parseBig reads a non-negative integer from a JSON string (decimal or
// 0x-hex) or a JSON integer literal. An absent value is zero.
func parseBig(raw json.RawMessage) (*big.Int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return new(big.Int), nil
	}

	text := string(raw)
	base := 10
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
			text, base = text[2:], 16
		}
	}

	n, ok := new(big.Int).SetString(text, base)
	if !ok {
		return nil, fmt.Errorf("%s is not an integer", raw)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", raw)
	}
	return n, nil
}
