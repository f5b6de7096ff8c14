package store

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/phoenix-explorer/livefeed/pkg/types"
)

// Sentinel errors returned by Register and Subscribe.
var (
	ErrDuplicateClient = errors.New("store: client already registered")
	ErrUnknownClient   = errors.New("store: unknown client")
	ErrInvalidTopic    = errors.New("store: invalid subscription topic")
	ErrMissingFilter   = errors.New("store: address subscription requires a filter")
	ErrInvalidFilter   = errors.New("store: invalid address filter")
)

// Conn is the outbound side of a registered connection. TrySend must never
// block; it reports whether data was queued for delivery.
type Conn interface {
	TrySend(data []byte) bool
}

// Subscription is one client's interest in a topic. Filter holds the
// lowercase account for address subscriptions and is empty otherwise.
type Subscription struct {
	ID        string
	Topic     types.Topic
	Filter    string
	ClientID  string
	CreatedAt time.Time
}

// Target is a matching subscription paired with the connection of its owner,
// resolved atomically under the store lock.
type Target struct {
	Subscription Subscription
	Conn         Conn
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Clients       int
	Subscriptions int
	ByTopic       map[types.Topic]int
}

// Store is the connection registry and subscription table. All state lives
// behind a single mutex, so a subscription can never outlive its client and
// every index always agrees with the forward table.
type Store struct {
	mu sync.Mutex

	clients   map[string]Conn
	subs      map[string]*Subscription
	byClient  map[string]map[string]struct{}
	byTopic   map[types.Topic]map[string]struct{}
	byAddress map[string]map[string]struct{}
	seq       uint64

	clock clockwork.Clock
}

// New creates an empty Store. A nil clock uses the wall clock.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Store{
		clients:   make(map[string]Conn),
		subs:      make(map[string]*Subscription),
		byClient:  make(map[string]map[string]struct{}),
		byTopic:   make(map[types.Topic]map[string]struct{}),
		byAddress: make(map[string]map[string]struct{}),
		clock:     clock,
	}
	for _, t := range types.Topics {
		s.byTopic[t] = make(map[string]struct{})
	}
	return s
}

// Register adds a client. A duplicate id leaves the existing entry untouched
// and returns ErrDuplicateClient.
func (s *Store) Register(clientID string, conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[clientID]; ok {
		return ErrDuplicateClient
	}
	s.clients[clientID] = conn
	s.byClient[clientID] = make(map[string]struct{})
	return nil
}

// Unregister removes the client together with every subscription it owns and
// returns the number of subscriptions removed. Unknown ids are a no-op.
func (s *Store) Unregister(clientID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.removeAllLocked(clientID)
	delete(s.clients, clientID)
	delete(s.byClient, clientID)
	return n
}

// Conn returns the connection registered under clientID.
func (s *Store) Conn(clientID string) (Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	return c, ok
}

// Subscribe records a new subscription for a registered client. filter is
// only consulted for the address topic, where it is required and normalized
// to lowercase.
func (s *Store) Subscribe(clientID, topic, filter string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return Subscription{}, ErrUnknownClient
	}
	t, ok := types.ParseTopic(topic)
	if !ok {
		return Subscription{}, ErrInvalidTopic
	}

	var addr string
	if t == types.TopicAddress {
		if filter == "" {
			return Subscription{}, ErrMissingFilter
		}
		norm, err := types.NormalizeAddress(filter)
		if err != nil {
			return Subscription{}, ErrInvalidFilter
		}
		addr = norm
	}

	s.seq++
	sub := &Subscription{
		ID:        "0x" + strconv.FormatUint(s.seq, 16),
		Topic:     t,
		Filter:    addr,
		ClientID:  clientID,
		CreatedAt: s.clock.Now(),
	}

	s.subs[sub.ID] = sub
	s.byClient[clientID][sub.ID] = struct{}{}
	s.byTopic[t][sub.ID] = struct{}{}
	if addr != "" {
		set, ok := s.byAddress[addr]
		if !ok {
			set = make(map[string]struct{})
			s.byAddress[addr] = set
		}
		set[sub.ID] = struct{}{}
	}
	return *sub, nil
}

// Unsubscribe removes subID if it exists and belongs to clientID.
func (s *Store) Unsubscribe(clientID, subID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[subID]
	if !ok || sub.ClientID != clientID {
		return false
	}
	s.removeLocked(sub)
	return true
}

// RemoveAllForClient drops every subscription owned by clientID and returns
// how many were removed. The client itself stays registered.
func (s *Store) RemoveAllForClient(clientID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeAllLocked(clientID)
}

// Subscriptions returns the subscriptions currently owned by clientID.
func (s *Store) Subscriptions(clientID string) []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byClient[clientID]
	out := make([]Subscription, 0, len(ids))
	for id := range ids {
		out = append(out, *s.subs[id])
	}
	return out
}

// Matching returns every subscription on topic together with its owner's
// connection.
func (s *Store) Matching(topic types.Topic) []Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetsLocked(s.byTopic[topic])
}

// MatchingAddress returns every address subscription whose filter equals
// addr, compared case-insensitively.
func (s *Store) MatchingAddress(addr string) []Target {
	key := strings.ToLower(addr)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetsLocked(s.byAddress[key])
}

// Stats returns client and subscription counts.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Clients:       len(s.clients),
		Subscriptions: len(s.subs),
		ByTopic:       make(map[types.Topic]int, len(s.byTopic)),
	}
	for t, set := range s.byTopic {
		st.ByTopic[t] = len(set)
	}
	return st
}

// --- internal ---------------------------------------------------------------

func (s *Store) targetsLocked(ids map[string]struct{}) []Target {
	out := make([]Target, 0, len(ids))
	for id := range ids {
		sub := s.subs[id]
		conn, ok := s.clients[sub.ClientID]
		if !ok {
			continue
		}
		out = append(out, Target{Subscription: *sub, Conn: conn})
	}
	return out
}

func (s *Store) removeAllLocked(clientID string) int {
	ids := s.byClient[clientID]
	n := 0
	for id := range ids {
		if sub, ok := s.subs[id]; ok {
			s.removeLocked(sub)
			n++
		}
	}
	return n
}

func (s *Store) removeLocked(sub *Subscription) {
	delete(s.subs, sub.ID)
	if set, ok := s.byClient[sub.ClientID]; ok {
		delete(set, sub.ID)
	}
	delete(s.byTopic[sub.Topic], sub.ID)
	if sub.Filter != "" {
		set := s.byAddress[sub.Filter]
		delete(set, sub.ID)
		if len(set) == 0 {
			delete(s.byAddress, sub.Filter)
		}
	}
}
