package types

import (
	"errors"
	"regexp"
	"strings"
)

// Topic names a category of events a client can subscribe to.
type Topic string

// Recognized topics. The string values are part of the wire protocol.
const (
	TopicNewBlocks       Topic = "newBlocks"
	TopicNewTransactions Topic = "newTransactions"
	TopicAddress         Topic = "address"
)

// Topics lists every recognized topic.
var Topics = []Topic{TopicNewBlocks, TopicNewTransactions, TopicAddress}

// ErrInvalidAddress is returned when an account identifier is not a
// 0x-prefixed 20-byte hex string.
var ErrInvalidAddress = errors.New("invalid address format")

var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseTopic returns the Topic named by s and whether it is recognized.
func ParseTopic(s string) (Topic, bool) {
	switch t := Topic(s); t {
	case TopicNewBlocks, TopicNewTransactions, TopicAddress:
		return t, true
	}
	return "", false
}

// NormalizeAddress validates addr and returns its canonical lowercase form.
func NormalizeAddress(addr string) (string, error) {
	if !addressRegex.MatchString(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(addr), nil
}
