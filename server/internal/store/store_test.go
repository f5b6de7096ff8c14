package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/phoenix-explorer/livefeed/pkg/types"
)

const (
	addrA = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"
	addrB = "0x1111111111111111111111111111111111111111"
)

// nopConn accepts every send.
type nopConn struct{}

func (nopConn) TrySend([]byte) bool { return true }

func newStore(t *testing.T, clients ...string) *Store {
	t.Helper()
	st := New(nil)
	for _, id := range clients {
		if err := st.Register(id, nopConn{}); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}
	return st
}

func mustSubscribe(t *testing.T, st *Store, client, topic, filter string) Subscription {
	t.Helper()
	sub, err := st.Subscribe(client, topic, filter)
	if err != nil {
		t.Fatalf("Subscribe(%s, %s, %q): %v", client, topic, filter, err)
	}
	return sub
}

func TestRegister_Duplicate(t *testing.T) {
	st := newStore(t, "c1")
	first, _ := st.Conn("c1")

	if err := st.Register("c1", &nopConn{}); !errors.Is(err, ErrDuplicateClient) {
		t.Fatalf("Register duplicate: got %v, want ErrDuplicateClient", err)
	}
	got, _ := st.Conn("c1")
	if got != first {
		t.Error("duplicate Register replaced the existing connection")
	}
}

func TestSubscribe_ErrorOrder(t *testing.T) {
	st := newStore(t, "c1")

	cases := []struct {
		client, topic, filter string
		want                  error
	}{
		{"ghost", "bogus", "", ErrUnknownClient},
		{"c1", "bogus", "", ErrInvalidTopic},
		{"c1", "address", "", ErrMissingFilter},
		{"c1", "address", "0x12", ErrInvalidFilter},
	}
	for _, c := range cases {
		_, err := st.Subscribe(c.client, c.topic, c.filter)
		if !errors.Is(err, c.want) {
			t.Errorf("Subscribe(%s,%s,%q): got %v, want %v", c.client, c.topic, c.filter, err, c.want)
		}
	}
	if n := st.Stats().Subscriptions; n != 0 {
		t.Errorf("failed subscribes left %d entries", n)
	}
}

func TestSubscribe_FilterIgnoredForNonAddressTopics(t *testing.T) {
	st := newStore(t, "c1")
	sub := mustSubscribe(t, st, "c1", "newBlocks", "not-an-address")
	if sub.Filter != "" {
		t.Errorf("Filter: got %q, want empty", sub.Filter)
	}
	if len(st.Matching(types.TopicNewBlocks)) != 1 {
		t.Error("Matching(newBlocks): want 1 target")
	}
}

func TestSubscribe_IDsAreHexCounter(t *testing.T) {
	st := newStore(t, "c1")
	ids := []string{}
	for i := 0; i < 17; i++ {
		ids = append(ids, mustSubscribe(t, st, "c1", "newBlocks", "").ID)
	}
	if ids[0] != "0x1" || ids[15] != "0x10" || ids[16] != "0x11" {
		t.Errorf("ids: got %v", ids)
	}
}

func TestSubscribe_CreatedAtFromClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st := New(clockwork.NewFakeClockAt(at))
	st.Register("c1", nopConn{}) //nolint:errcheck

	sub := mustSubscribe(t, st, "c1", "newTransactions", "")
	if !sub.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt: got %v, want %v", sub.CreatedAt, at)
	}
}

func TestSubscribe_ConcurrentUniqueIDs(t *testing.T) {
	st := newStore(t, "c1", "c2", "c3", "c4")
	const perClient = 250

	var (
		mu  sync.Mutex
		ids = make(map[string]struct{})
		wg  sync.WaitGroup
	)
	for _, c := range []string{"c1", "c2", "c3", "c4"} {
		wg.Add(1)
		go func(client string) {
			defer wg.Done()
			for i := 0; i < perClient; i++ {
				sub, err := st.Subscribe(client, "newBlocks", "")
				if err != nil {
					t.Errorf("Subscribe: %v", err)
					return
				}
				mu.Lock()
				ids[sub.ID] = struct{}{}
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	if len(ids) != 4*perClient {
		t.Errorf("distinct ids: got %d, want %d", len(ids), 4*perClient)
	}
	if n := st.Stats().Subscriptions; n != 4*perClient {
		t.Errorf("Subscriptions: got %d, want %d", n, 4*perClient)
	}
}

func TestSubscribe_ConcurrentSameClient(t *testing.T) {
	st := newStore(t, "c1")
	const n = 1000

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := st.Subscribe("c1", "newBlocks", "")
			if err != nil {
				t.Errorf("Subscribe: %v", err)
				return
			}
			ids[i] = sub.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != n {
		t.Errorf("distinct ids: got %d, want %d", len(seen), n)
	}
	if got := len(st.Subscriptions("c1")); got != n {
		t.Errorf("Subscriptions(c1): got %d, want %d", got, n)
	}
}

func TestUnsubscribe_TrueOnce(t *testing.T) {
	st := newStore(t, "c1")
	sub := mustSubscribe(t, st, "c1", "newBlocks", "")

	if !st.Unsubscribe("c1", sub.ID) {
		t.Fatal("first Unsubscribe: got false, want true")
	}
	if st.Unsubscribe("c1", sub.ID) {
		t.Error("second Unsubscribe: got true, want false")
	}
	if len(st.Matching(types.TopicNewBlocks)) != 0 {
		t.Error("Matching after Unsubscribe: want no targets")
	}
}

func TestUnsubscribe_OtherClientsSubscription(t *testing.T) {
	st := newStore(t, "c1", "c2")
	sub := mustSubscribe(t, st, "c1", "newBlocks", "")

	if st.Unsubscribe("c2", sub.ID) {
		t.Fatal("Unsubscribe by non-owner: got true, want false")
	}
	if len(st.Matching(types.TopicNewBlocks)) != 1 {
		t.Error("subscription removed by non-owner")
	}
}

func TestMatchingAddress_CaseInsensitive(t *testing.T) {
	st := newStore(t, "c1", "c2")
	mustSubscribe(t, st, "c1", "address", addrA)
	mustSubscribe(t, st, "c2", "address", addrB)

	for _, probe := range []string{addrA, "0xabcdef0123456789abcdef0123456789abcdef01", "0XABCDEF0123456789ABCDEF0123456789ABCDEF01"} {
		got := st.MatchingAddress(probe)
		if len(got) != 1 || got[0].Subscription.ClientID != "c1" {
			t.Errorf("MatchingAddress(%s): got %+v, want c1 only", probe, got)
		}
	}
	if got := st.MatchingAddress("0x2222222222222222222222222222222222222222"); len(got) != 0 {
		t.Errorf("MatchingAddress(unknown): got %d targets", len(got))
	}
}

func TestUnregister_RemovesAllSubscriptions(t *testing.T) {
	st := newStore(t, "c1", "c2")
	mustSubscribe(t, st, "c1", "newBlocks", "")
	mustSubscribe(t, st, "c1", "newBlocks", "")
	mustSubscribe(t, st, "c1", "address", addrA)
	mustSubscribe(t, st, "c2", "newBlocks", "")

	if n := st.Unregister("c1"); n != 3 {
		t.Errorf("Unregister: removed %d, want 3", n)
	}
	if _, ok := st.Conn("c1"); ok {
		t.Error("Conn(c1): still registered")
	}
	if got := st.Matching(types.TopicNewBlocks); len(got) != 1 || got[0].Subscription.ClientID != "c2" {
		t.Errorf("Matching(newBlocks): got %+v", got)
	}
	if len(st.MatchingAddress(addrA)) != 0 {
		t.Error("address index still references removed client")
	}
	if n := st.Unregister("c1"); n != 0 {
		t.Errorf("second Unregister: removed %d, want 0", n)
	}
	if _, err := st.Subscribe("c1", "newBlocks", ""); !errors.Is(err, ErrUnknownClient) {
		t.Errorf("Subscribe after Unregister: got %v, want ErrUnknownClient", err)
	}
}

func TestRemoveAllForClient_KeepsRegistration(t *testing.T) {
	st := newStore(t, "c1")
	mustSubscribe(t, st, "c1", "newTransactions", "")
	mustSubscribe(t, st, "c1", "address", addrB)

	if n := st.RemoveAllForClient("c1"); n != 2 {
		t.Errorf("RemoveAllForClient: got %d, want 2", n)
	}
	if n := st.RemoveAllForClient("c1"); n != 0 {
		t.Errorf("RemoveAllForClient again: got %d, want 0", n)
	}
	if _, ok := st.Conn("c1"); !ok {
		t.Error("client should remain registered")
	}
	if len(st.Subscriptions("c1")) != 0 {
		t.Error("Subscriptions(c1): want none")
	}
}

func TestStats(t *testing.T) {
	st := newStore(t, "c1", "c2")
	mustSubscribe(t, st, "c1", "newBlocks", "")
	mustSubscribe(t, st, "c2", "newBlocks", "")
	mustSubscribe(t, st, "c2", "address", addrA)

	s := st.Stats()
	if s.Clients != 2 || s.Subscriptions != 3 {
		t.Errorf("Stats: got clients=%d subs=%d, want 2/3", s.Clients, s.Subscriptions)
	}
	if s.ByTopic[types.TopicNewBlocks] != 2 || s.ByTopic[types.TopicAddress] != 1 || s.ByTopic[types.TopicNewTransactions] != 0 {
		t.Errorf("ByTopic: got %v", s.ByTopic)
	}
}

func TestConcurrentSubscribeAndUnregister(t *testing.T) {
	st := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("c%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Register(id, nopConn{}) //nolint:errcheck
			for j := 0; j < 20; j++ {
				st.Subscribe(id, "address", addrA) //nolint:errcheck
				st.MatchingAddress(addrA)
			}
			st.Unregister(id)
		}()
	}
	wg.Wait()

	s := st.Stats()
	if s.Clients != 0 || s.Subscriptions != 0 {
		t.Errorf("after all unregistered: got %+v", s)
	}
	if len(st.MatchingAddress(addrA)) != 0 {
		t.Error("address index not empty")
	}
}
