package kvstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/google/uuid"
	"github.com/jpalmerr/kvstore/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrFlushUnsupported is returned by [Store.Flush] when the store's
// scheduler does not implement [Flusher].
var ErrFlushUnsupported = errors.New("kvstore: scheduler does not support flush")

// Store is an in-memory key-value store with change notification.
//
// Store owns two tables: the values saved under each key, and the
// subscriptions registered for each key. Reads and writes are synchronous.
// Update notifications triggered by [Store.Save] are handed to the store's
// [Scheduler] and delivered on a later turn; removal notifications run
// inside [Store.Remove] before it returns.
//
// The typical lifecycle is:
//
//	store, err := kvstore.New[string]()
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	unsubscribe := store.Subscribe("user", func(v string) {
//	    fmt.Println("user is now", v)
//	})
//	defer unsubscribe()
//
//	store.Save("user", "samuel jackson")
//
// Store is safe for concurrent use. Callbacks are never called with the
// store's lock held, so they may call back into the store.
type Store[K comparable] struct {
	mu          sync.Mutex
	values      *linkedhashmap.Map // K -> string, in first-save order
	subscribers map[K]*subscriberSet
	subCount    int

	scheduler Scheduler
	owned     *AsyncScheduler // non-nil when the store created its scheduler
	closeOnce sync.Once

	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates an empty [Store] with the given options.
//
// Defaults:
//   - Scheduler: a new [AsyncScheduler], owned and closed by the store
//   - Logger: [zap.L]
//   - Metrics: disabled
//
// Returns an error if any option is invalid or the metrics cannot be
// registered.
//
// Example:
//
//	store, err := kvstore.New[string](
//	    kvstore.WithName("sessions"),
//	    kvstore.WithLogger(logger),
//	)
func New[K comparable](opts ...Option) (*Store[K], error) {
	cfg := &storeConfig{}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.L()
	}
	if cfg.name != "" {
		logger = logger.With(zap.String("store", cfg.name))
	}

	var collector *metrics.Collector
	if cfg.registry != nil {
		var labels prometheus.Labels
		if cfg.name != "" {
			labels = prometheus.Labels{"store": cfg.name}
		}
		c, err := metrics.New(cfg.registry, labels)
		if err != nil {
			return nil, fmt.Errorf("failed to enable metrics: %w", err)
		}
		collector = c
	}

	s := &Store[K]{
		values:      linkedhashmap.New(),
		subscribers: make(map[K]*subscriberSet),
		scheduler:   cfg.scheduler,
		logger:      logger,
		metrics:     collector,
	}

	if s.scheduler == nil {
		s.owned = NewAsyncScheduler(logger)
		s.scheduler = s.owned
	}

	return s, nil
}

// Get returns the value saved under key.
//
// The second result is false if the key is absent. Get never touches the
// subscription table and never notifies.
func (s *Store[K]) Get(key K) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values.Get(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Keys returns the keys present at the time of the call, in the order they
// were first saved.
//
// The sequence is a snapshot: later writes do not affect it. Keys does not
// notify.
func (s *Store[K]) Keys() iter.Seq[K] {
	s.mu.Lock()
	raw := s.values.Keys()
	s.mu.Unlock()

	return func(yield func(K) bool) {
		for _, k := range raw {
			// a nil interface key comes back as nil, which is the zero K
			key, _ := k.(K)
			if !yield(key) {
				return
			}
		}
	}
}

// Len returns the number of keys holding a value.
func (s *Store[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Size()
}

// Save stores value under key and schedules an update notification.
//
// The write is visible to [Store.Get] as soon as Save returns. Subscribers
// are not called from inside Save: a delivery task carrying this value is
// handed to the scheduler. When the task runs, every subscriber registered
// for key at that moment receives this value, in subscription order.
// Two saves to the same key produce two deliveries, each with its own value.
//
// A subscriber that panics is recovered and logged; the remaining
// subscribers are still called.
func (s *Store[K]) Save(key K, value string) {
	s.mu.Lock()
	_, existed := s.values.Get(key)
	s.values.Put(key, value)
	n := s.values.Size()

	// scheduling under the lock keeps delivery order equal to write order
	// when several goroutines save the same key
	s.scheduler.Schedule(func() {
		s.deliver(key, value)
	})
	s.mu.Unlock()

	s.metrics.Saved(!existed)
	s.metrics.SetKeys(n)
}

// Remove deletes key and notifies its subscribers synchronously.
//
// Every subscription for key has its remove callback called, in
// subscription order, and is then dropped. onComplete, if non-nil, runs
// last. All of this happens before Remove returns. Removing an absent key
// is a no-op apart from onComplete.
//
// A panic in a remove callback propagates to the caller. By then the key's
// subscriptions have already been detached from the store.
func (s *Store[K]) Remove(key K, onComplete func()) {
	s.mu.Lock()
	_, existed := s.values.Get(key)
	s.values.Remove(key)
	set, ok := s.subscribers[key]
	if ok {
		delete(s.subscribers, key)
		s.subCount -= set.len()
	}
	keys, subs := s.values.Size(), s.subCount
	s.mu.Unlock()

	if existed {
		s.metrics.Removed()
	}
	s.metrics.SetKeys(keys)
	s.metrics.SetSubscriptions(subs)

	if ok {
		entries := set.snapshot()
		s.logger.Debug("key removed",
			zap.Any("key", key),
			zap.Int("subscribers", len(entries)),
		)
		for _, sub := range entries {
			if sub.onRemove != nil {
				s.metrics.RemovalNotified()
				sub.onRemove()
			}
		}
		set.clear()
	}

	if onComplete != nil {
		onComplete()
	}
}

// Subscribe registers onUpdate to be called with every value later saved
// under key.
//
// The key does not need to exist yet. Subscribing never delivers the
// current value; only future saves do. Use [OnRemove] to be told when the
// key is removed, and [WithToken] to replace an earlier subscription rather
// than add a new one. A nil onUpdate registers a removal-only subscriber.
//
// The returned [Unsubscribe] revokes exactly this subscription.
func (s *Store[K]) Subscribe(key K, onUpdate UpdateFunc, opts ...SubscribeOption) Unsubscribe {
	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	tok := cfg.token
	if tok.IsZero() {
		tok = NewToken()
	}

	s.mu.Lock()
	set, ok := s.subscribers[key]
	if !ok {
		set = newSubscriberSet()
		s.subscribers[key] = set
	}
	if set.put(&subscription{token: tok, onUpdate: onUpdate, onRemove: cfg.onRemove}) {
		s.subCount++
	}
	subs := s.subCount
	s.mu.Unlock()

	s.metrics.SetSubscriptions(subs)

	return func() bool {
		s.mu.Lock()
		set, ok := s.subscribers[key]
		if !ok {
			s.mu.Unlock()
			return false
		}
		if set.remove(tok) {
			s.subCount--
		}
		subs := s.subCount
		s.mu.Unlock()

		s.metrics.SetSubscriptions(subs)
		return true
	}
}

// Empty discards every value and every subscription without calling any
// remove callback. Pending deliveries find no subscribers and do nothing.
//
// Empty is a hard reset intended for tests; it is not a bulk Remove.
func (s *Store[K]) Empty() {
	s.mu.Lock()
	s.values.Clear()
	s.subscribers = make(map[K]*subscriberSet)
	s.subCount = 0
	s.mu.Unlock()

	s.metrics.SetKeys(0)
	s.metrics.SetSubscriptions(0)
}

// Flush waits until every delivery scheduled before the call has run.
//
// Returns [ErrFlushUnsupported] if the scheduler does not implement
// [Flusher]. Flush must not be called from a subscriber callback.
func (s *Store[K]) Flush(ctx context.Context) error {
	f, ok := s.scheduler.(Flusher)
	if !ok {
		return ErrFlushUnsupported
	}
	return f.Flush(ctx)
}

// Close stops the scheduler the store created for itself, after running its
// backlog. An injected scheduler is left untouched. Close is idempotent.
//
// Close may be called from a subscriber callback. It then returns without
// waiting: the rest of the backlog runs after the callback returns.
//
// The store stays readable and writable after Close, but saves are no
// longer delivered when the store owned its scheduler.
func (s *Store[K]) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.owned != nil {
			err = s.owned.Close()
		}
	})
	return err
}

// deliver runs one scheduled update notification.
//
// The subscriber set is looked up at delivery time. Each entry is checked
// again right before its call, so a subscription revoked by an earlier
// callback in the same pass is skipped.
func (s *Store[K]) deliver(key K, value string) {
	s.mu.Lock()
	set, ok := s.subscribers[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	tokens := make([]Token, 0, set.len())
	for _, sub := range set.snapshot() {
		tokens = append(tokens, sub.token)
	}
	s.mu.Unlock()

	for _, tok := range tokens {
		sub, ok := s.current(key, set, tok)
		if !ok || sub.onUpdate == nil {
			continue
		}
		s.invokeUpdateSafe(key, sub.onUpdate, value)
	}
}

// current returns the live subscription for tok, as long as set is still
// the key's subscriber set.
func (s *Store[K]) current(key K, set *subscriberSet, tok Token) (*subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[key] != set {
		return nil, false
	}
	return set.get(tok)
}

// invokeUpdateSafe calls an update callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func (s *Store[K]) invokeUpdateSafe(key K, fn UpdateFunc, value string) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.DeliveryPanicked()
			s.logger.Error("subscriber panicked",
				zap.String("correlation_id", uuid.NewString()),
				zap.Any("key", key),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	s.metrics.Delivered()
	fn(value)
}
