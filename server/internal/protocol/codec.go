package protocol

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/phoenix-explorer/livefeed/pkg/types"
	"github.com/phoenix-explorer/livefeed/server/internal/store"
)

// Error codes sent in the error envelope.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeUnknownMethod  = "UNKNOWN_METHOD"
	CodeInvalidParams  = "INVALID_PARAMS"
	CodeUnknownClient  = "UNKNOWN_CLIENT"
	CodeInvalidTopic   = "INVALID_TOPIC"
	CodeInvalidFilter  = "INVALID_FILTER"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL_ERROR"
)

// Inbound method names.
const (
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
	MethodPing        = "ping"
)

// Error is a protocol failure reported to the offending client only.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func newError(code, msg string) *Error { return &Error{Code: code, Message: msg} }

// Request is a decoded inbound control message. The set of implementations
// is closed: Subscribe, Unsubscribe and Ping.
type Request interface {
	Method() string
	isRequest()
}

// Subscribe asks for events on Topic. Filter is the account for the address
// topic and empty otherwise.
type Subscribe struct {
	Topic  string
	Filter string
}

// Unsubscribe cancels a subscription owned by the sender.
type Unsubscribe struct {
	SubscriptionID string
}

// Ping asks for a pong.
type Ping struct{}

func (Subscribe) Method() string   { return MethodSubscribe }
func (Unsubscribe) Method() string { return MethodUnsubscribe }
func (Ping) Method() string        { return MethodPing }

func (Subscribe) isRequest()   {}
func (Unsubscribe) isRequest() {}
func (Ping) isRequest()        {}

type inbound struct {
	Method *string           `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// Decode parses one inbound frame. The returned error is always an *Error.
func Decode(frame []byte) (Request, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, newError(CodeInvalidMessage, "Invalid message format")
	}
	var in inbound
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return nil, newError(CodeInvalidMessage, "Invalid message format")
	}

	method := ""
	if in.Method != nil {
		method = *in.Method
	}

	switch method {
	case MethodSubscribe:
		if len(in.Params) == 0 {
			return nil, newError(CodeInvalidParams, "Subscription type required")
		}
		topic, ok := stringParam(in.Params[0])
		if !ok || topic == "" {
			return nil, newError(CodeInvalidParams, "Subscription type must be a string")
		}
		req := Subscribe{Topic: topic}
		if len(in.Params) > 1 {
			filter, ok := stringParam(in.Params[1])
			if !ok {
				return nil, newError(CodeInvalidParams, "Subscription filter must be a string")
			}
			req.Filter = filter
		}
		return req, nil

	case MethodUnsubscribe:
		if len(in.Params) == 0 {
			return nil, newError(CodeInvalidParams, "Subscription ID required")
		}
		id, ok := stringParam(in.Params[0])
		if !ok || id == "" {
			return nil, newError(CodeInvalidParams, "Subscription ID must be a string")
		}
		return Unsubscribe{SubscriptionID: id}, nil

	case MethodPing:
		return Ping{}, nil
	}

	return nil, newError(CodeUnknownMethod, "Unknown method: "+method)
}

// stringParam accepts a JSON string or null (treated as empty).
func stringParam(raw json.RawMessage) (string, bool) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// FromStoreError maps a store failure onto the error envelope.
func FromStoreError(err error) *Error {
	var pe *Error
	switch {
	case errors.As(err, &pe):
		return pe
	case errors.Is(err, store.ErrUnknownClient):
		return newError(CodeUnknownClient, "Client not registered")
	case errors.Is(err, store.ErrInvalidTopic):
		return newError(CodeInvalidTopic, "Invalid subscription type")
	case errors.Is(err, store.ErrMissingFilter):
		return newError(CodeInvalidParams, "Address required for address subscription")
	case errors.Is(err, store.ErrInvalidFilter):
		return newError(CodeInvalidFilter, "Invalid address")
	}
	return newError(CodeInternal, "Internal error")
}

// --- outbound ---------------------------------------------------------------

// Envelope is every frame the server writes. Exactly one of Method,
// Subscription or Error is set.
type Envelope struct {
	Method       string      `json:"method,omitempty"`
	Subscription types.Topic `json:"subscription,omitempty"`
	Data         any         `json:"data,omitempty"`
	Error        *Error      `json:"error,omitempty"`
}

type connectedData struct {
	ClientID string `json:"clientId"`
}

type subscribedData struct {
	SubscriptionID string      `json:"subscriptionId"`
	Type           types.Topic `json:"type"`
	Address        string      `json:"address,omitempty"`
}

type unsubscribedData struct {
	SubscriptionID string `json:"subscriptionId"`
	Success        bool   `json:"success"`
}

// Connected is the first frame on every connection.
func Connected(clientID string) ([]byte, error) {
	return json.Marshal(Envelope{Method: "connected", Data: connectedData{ClientID: clientID}})
}

// Subscribed acknowledges a new subscription.
func Subscribed(sub store.Subscription) ([]byte, error) {
	return json.Marshal(Envelope{Method: "subscribed", Data: subscribedData{
		SubscriptionID: sub.ID,
		Type:           sub.Topic,
		Address:        sub.Filter,
	}})
}

// Unsubscribed reports the outcome of an unsubscribe request.
func Unsubscribed(subID string, success bool) ([]byte, error) {
	return json.Marshal(Envelope{Method: "unsubscribed", Data: unsubscribedData{
		SubscriptionID: subID,
		Success:        success,
	}})
}

// Pong answers a ping.
func Pong() ([]byte, error) {
	return json.Marshal(Envelope{Method: "pong"})
}

// Event renders a broadcast frame for ev.
func Event(ev types.Event) ([]byte, error) {
	return json.Marshal(Envelope{Subscription: ev.Topic(), Data: ev})
}

// ErrorFrame renders e as an error envelope.
func ErrorFrame(e *Error) ([]byte, error) {
	return json.Marshal(Envelope{Error: e})
}
