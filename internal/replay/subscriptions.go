package replay

import (
	"github.com/jpalmerr/kvstore"
	"github.com/jpalmerr/kvstore/config"
)

// subscriptions tracks the store subscription behind each named subscriber.
//
// Every name keeps one token for the whole run, so a subscribe step for a
// name that is already subscribed replaces it rather than doubling up.
type subscriptions struct {
	store  *kvstore.Store[string]
	runner *Runner
	tokens map[string]kvstore.Token
	unsubs map[string]kvstore.Unsubscribe
}

func newSubscriptions(store *kvstore.Store[string], r *Runner) *subscriptions {
	return &subscriptions{
		store:  store,
		runner: r,
		tokens: make(map[string]kvstore.Token),
		unsubs: make(map[string]kvstore.Unsubscribe),
	}
}

func (s *subscriptions) subscribe(sc config.SubscriberConfig) {
	tok, ok := s.tokens[sc.Name]
	if !ok {
		tok = kvstore.NewToken()
		s.tokens[sc.Name] = tok
	}

	r := s.runner
	name, key := sc.Name, sc.Key

	opts := []kvstore.SubscribeOption{kvstore.WithToken(tok)}
	if sc.OnRemove {
		opts = append(opts, kvstore.OnRemove(func() {
			r.count(func(rep *Report) { rep.Removals++ })
			r.printf("  %s\n", r.removeColor.Sprintf("%s <- %s removed", name, key))
		}))
	}

	r.printf("%s %s -> %s\n", r.opColor.Sprint("subscribe"), name, key)
	s.unsubs[name] = s.store.Subscribe(key, func(v string) {
		r.count(func(rep *Report) { rep.Updates++ })
		r.printf("  %s\n", r.updateColor.Sprintf("%s <- %s = %q", name, key, v))
	}, opts...)
}

// unsubscribe revokes the named subscriber. Unknown or never-subscribed
// names report false.
func (s *subscriptions) unsubscribe(name string) bool {
	unsub, ok := s.unsubs[name]
	if !ok {
		return false
	}
	return unsub()
}
