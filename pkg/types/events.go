package types

import (
	"encoding/json"
	"math/big"
)

// Event is a ledger state change that can be broadcast to subscribers.
// The set of implementations is closed: BlockUpdate, TransactionUpdate and
// AddressUpdate.
type Event interface {
	// Topic is the subscription topic the event is broadcast under.
	Topic() Topic
	isEvent()
}

// BlockUpdate announces a newly indexed block.
type BlockUpdate struct {
	Hash             string
	Number           *big.Int
	Timestamp        *big.Int
	TransactionCount int
}

// TransactionUpdate announces a newly indexed transaction.
// To is empty for contract creations.
type TransactionUpdate struct {
	Hash        string
	BlockHash   string
	BlockNumber *big.Int
	From        string
	To          string
	Value       *big.Int
}

// AddressUpdate announces a balance change of an account caused by
// TransactionHash.
type AddressUpdate struct {
	Address         string
	Balance         *big.Int
	TransactionHash string
	BlockNumber     *big.Int
}

func (BlockUpdate) Topic() Topic       { return TopicNewBlocks }
func (TransactionUpdate) Topic() Topic { return TopicNewTransactions }
func (AddressUpdate) Topic() Topic     { return TopicAddress }

func (BlockUpdate) isEvent()       {}
func (TransactionUpdate) isEvent() {}
func (AddressUpdate) isEvent()     {}

// --- wire payloads -----------------------------------------------------------

type blockPayload struct {
	Hash             string `json:"hash"`
	Number           string `json:"number"`
	Timestamp        string `json:"timestamp"`
	TransactionCount int    `json:"transactionCount"`
}

type transactionPayload struct {
	Hash        string `json:"hash"`
	BlockHash   string `json:"blockHash"`
	BlockNumber string `json:"blockNumber"`
	From        string `json:"from"`
	To          string `json:"to,omitempty"`
	Value       string `json:"value"`
}

type addressPayload struct {
	Address         string `json:"address"`
	Balance         string `json:"balance"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
}

// MarshalJSON renders the block as its wire payload.
func (b BlockUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockPayload{
		Hash:             b.Hash,
		Number:           decimal(b.Number),
		Timestamp:        decimal(b.Timestamp),
		TransactionCount: b.TransactionCount,
	})
}

// MarshalJSON renders the transaction as its wire payload.
func (t TransactionUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionPayload{
		Hash:        t.Hash,
		BlockHash:   t.BlockHash,
		BlockNumber: decimal(t.BlockNumber),
		From:        t.From,
		To:          t.To,
		Value:       decimal(t.Value),
	})
}

// MarshalJSON renders the address update as its wire payload.
func (a AddressUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(addressPayload{
		Address:         a.Address,
		Balance:         decimal(a.Balance),
		TransactionHash: a.TransactionHash,
		BlockNumber:     decimal(a.BlockNumber),
	})
}

// decimal formats n in base 10; nil is rendered as "0".
func decimal(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
