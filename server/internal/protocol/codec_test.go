package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/phoenix-explorer/livefeed/pkg/types"
	"github.com/phoenix-explorer/livefeed/server/internal/store"
)

func decodeErr(t *testing.T, frame string) *Error {
	t.Helper()
	_, err := Decode([]byte(frame))
	if err == nil {
		t.Fatalf("Decode(%s): expected error", frame)
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("Decode(%s): error %T is not *Error", frame, err)
	}
	return pe
}

func TestDecode_Subscribe(t *testing.T) {
	req, err := Decode([]byte(`{"method":"subscribe","params":["address","0xAB"]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	sub, ok := req.(Subscribe)
	if !ok {
		t.Fatalf("type: got %T, want Subscribe", req)
	}
	if sub.Topic != "address" || sub.Filter != "0xAB" {
		t.Errorf("Subscribe: got %+v", sub)
	}
}

func TestDecode_SubscribeWithoutFilter(t *testing.T) {
	req, err := Decode([]byte(`{"method":"subscribe","params":["newBlocks"]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := req.(Subscribe); got.Topic != "newBlocks" || got.Filter != "" {
		t.Errorf("Subscribe: got %+v", got)
	}
}

func TestDecode_UnsubscribeAndPing(t *testing.T) {
	req, err := Decode([]byte(`{"method":"unsubscribe","params":["0x1f"]}`))
	if err != nil {
		t.Fatalf("Decode unsubscribe: %v", err)
	}
	if got := req.(Unsubscribe); got.SubscriptionID != "0x1f" {
		t.Errorf("SubscriptionID: got %q", got.SubscriptionID)
	}

	req, err = Decode([]byte(`{"method":"ping"}`))
	if err != nil {
		t.Fatalf("Decode ping: %v", err)
	}
	if _, ok := req.(Ping); !ok {
		t.Errorf("type: got %T, want Ping", req)
	}
}

func TestDecode_Errors(t *testing.T) {
	cases := []struct {
		frame, code, msg string
	}{
		{`not json`, CodeInvalidMessage, "Invalid message format"},
		{`[1,2]`, CodeInvalidMessage, "Invalid message format"},
		{`"ping"`, CodeInvalidMessage, "Invalid message format"},
		{`{"method":`, CodeInvalidMessage, "Invalid message format"},
		{`{"method":"explode"}`, CodeUnknownMethod, "Unknown method: explode"},
		{`{"params":[]}`, CodeUnknownMethod, "Unknown method: "},
		{`{"method":"subscribe"}`, CodeInvalidParams, "Subscription type required"},
		{`{"method":"subscribe","params":[]}`, CodeInvalidParams, "Subscription type required"},
		{`{"method":"unsubscribe"}`, CodeInvalidParams, "Subscription ID required"},
	}
	for _, c := range cases {
		pe := decodeErr(t, c.frame)
		if pe.Code != c.code || pe.Message != c.msg {
			t.Errorf("Decode(%s): got %s/%q, want %s/%q", c.frame, pe.Code, pe.Message, c.code, c.msg)
		}
	}
}

func TestDecode_NonStringParams(t *testing.T) {
	for _, frame := range []string{
		`{"method":"subscribe","params":[42]}`,
		`{"method":"subscribe","params":["address",{"a":1}]}`,
		`{"method":"unsubscribe","params":[7]}`,
	} {
		if pe := decodeErr(t, frame); pe.Code != CodeInvalidParams {
			t.Errorf("Decode(%s): code got %s, want INVALID_PARAMS", frame, pe.Code)
		}
	}
}

func TestFromStoreError(t *testing.T) {
	cases := map[error]string{
		store.ErrUnknownClient:                          CodeUnknownClient,
		store.ErrInvalidTopic:                           CodeInvalidTopic,
		store.ErrMissingFilter:                          CodeInvalidParams,
		store.ErrInvalidFilter:                          CodeInvalidFilter,
		fmt.Errorf("wrapped: %w", store.ErrInvalidTopic): CodeInvalidTopic,
		errors.New("boom"):                              CodeInternal,
	}
	for err, want := range cases {
		if got := FromStoreError(err).Code; got != want {
			t.Errorf("FromStoreError(%v): got %s, want %s", err, got, want)
		}
	}
}

func TestOutbound_Shapes(t *testing.T) {
	sub := store.Subscription{ID: "0x2", Topic: types.TopicAddress, Filter: "0xabc"}

	cases := []struct {
		name string
		fn   func() ([]byte, error)
		want string
	}{
		{"connected", func() ([]byte, error) { return Connected("c-1") }, `{"method":"connected","data":{"clientId":"c-1"}}`},
		{"subscribed", func() ([]byte, error) { return Subscribed(sub) }, `{"method":"subscribed","data":{"subscriptionId":"0x2","type":"address","address":"0xabc"}}`},
		{"unsubscribed", func() ([]byte, error) { return Unsubscribed("0x2", false) }, `{"method":"unsubscribed","data":{"subscriptionId":"0x2","success":false}}`},
		{"pong", Pong, `{"method":"pong"}`},
		{"error", func() ([]byte, error) { return ErrorFrame(&Error{Code: CodeRateLimited, Message: "slow down"}) }, `{"error":{"code":"RATE_LIMITED","message":"slow down"}}`},
	}
	for _, c := range cases {
		got, err := c.fn()
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if string(got) != c.want {
			t.Errorf("%s:\n got  %s\n want %s", c.name, got, c.want)
		}
	}
}

func TestOutbound_SubscribedOmitsEmptyAddress(t *testing.T) {
	got, _ := Subscribed(store.Subscription{ID: "0x1", Topic: types.TopicNewBlocks})
	want := `{"method":"subscribed","data":{"subscriptionId":"0x1","type":"newBlocks"}}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestOutbound_Event(t *testing.T) {
	got, err := Event(types.BlockUpdate{Hash: "0xaa", Number: big.NewInt(5), Timestamp: big.NewInt(1000), TransactionCount: 2})
	if err != nil {
		t.Fatalf("Event: %v", err)
	}
	want := `{"subscription":"newBlocks","data":{"hash":"0xaa","number":"5","timestamp":"1000","transactionCount":2}}`
	if string(got) != want {
		t.Errorf("Event:\n got  %s\n want %s", got, want)
	}

	var m map[string]json.RawMessage
	json.Unmarshal(got, &m) //nolint:errcheck
	if _, ok := m["method"]; ok {
		t.Error("event frame must not carry a method")
	}
}
