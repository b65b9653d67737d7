package kvstore

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/google/uuid"
)

// UpdateFunc receives the value saved under a subscribed key.
type UpdateFunc func(value string)

// RemoveFunc is called when a subscribed key is removed.
type RemoveFunc func()

// Unsubscribe revokes the subscription it was returned for.
//
// It reports true if the key still had a subscriber set when called, and
// false once the key's subscribers are gone (after [Store.Remove] or
// [Store.Empty]). Calling it more than once is safe.
type Unsubscribe func() bool

// Token identifies a subscription within a key's subscriber set.
//
// Subscribing again under the same key with the same token replaces the
// earlier subscription's callbacks instead of adding a second one. The
// zero Token means "mint a new one".
type Token struct {
	id uuid.UUID
}

// NewToken returns a fresh, unique [Token].
func NewToken() Token {
	return Token{id: uuid.New()}
}

// IsZero reports whether t is the zero Token.
func (t Token) IsZero() bool {
	return t.id == uuid.Nil
}

// String returns the token's UUID in canonical form.
func (t Token) String() string {
	return t.id.String()
}

// subscribeConfig holds the optional parts of a Subscribe call.
type subscribeConfig struct {
	onRemove RemoveFunc
	token    Token
}

// SubscribeOption configures a single [Store.Subscribe] call.
type SubscribeOption func(*subscribeConfig)

// OnRemove sets the callback run when the key is removed.
//
// Remove callbacks run synchronously inside [Store.Remove], in subscription
// order. A nil fn is ignored.
func OnRemove(fn RemoveFunc) SubscribeOption {
	return func(cfg *subscribeConfig) {
		cfg.onRemove = fn
	}
}

// WithToken subscribes under an explicit identity.
//
// Example:
//
//	tok := kvstore.NewToken()
//	store.Subscribe("user", render, kvstore.WithToken(tok))
//	// later: swap the remove hook without creating a second subscription
//	store.Subscribe("user", render, kvstore.WithToken(tok), kvstore.OnRemove(cleanup))
func WithToken(tok Token) SubscribeOption {
	return func(cfg *subscribeConfig) {
		cfg.token = tok
	}
}

type subscription struct {
	token    Token
	onUpdate UpdateFunc
	onRemove RemoveFunc
}

// subscriberSet is the insertion-ordered set of subscriptions for one key.
// It is guarded by the owning Store's mutex while attached to the store.
type subscriberSet struct {
	entries *linkedhashmap.Map
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{entries: linkedhashmap.New()}
}

// put registers sub, replacing any entry with the same token in place.
// It reports whether the token was new to the set.
func (s *subscriberSet) put(sub *subscription) bool {
	_, existed := s.entries.Get(sub.token)
	s.entries.Put(sub.token, sub)
	return !existed
}

// get returns the entry registered under tok.
func (s *subscriberSet) get(tok Token) (*subscription, bool) {
	v, ok := s.entries.Get(tok)
	if !ok {
		return nil, false
	}
	return v.(*subscription), true
}

// remove drops tok from the set and reports whether it was present.
func (s *subscriberSet) remove(tok Token) bool {
	if _, ok := s.entries.Get(tok); !ok {
		return false
	}
	s.entries.Remove(tok)
	return true
}

// snapshot returns the subscriptions in insertion order.
func (s *subscriberSet) snapshot() []*subscription {
	values := s.entries.Values()
	subs := make([]*subscription, len(values))
	for i, v := range values {
		subs[i] = v.(*subscription)
	}
	return subs
}

func (s *subscriberSet) len() int {
	return s.entries.Size()
}

func (s *subscriberSet) clear() {
	s.entries.Clear()
}
