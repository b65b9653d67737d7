package kvstore

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// storeConfig holds mutable state during Store construction.
type storeConfig struct {
	name      string
	scheduler Scheduler
	logger    *zap.Logger
	registry  prometheus.Registerer
}

// Option is a function that configures a [Store] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithScheduler], [WithLogger], [WithMetrics], [WithName].
type Option func(*storeConfig) error

// WithScheduler sets the [Scheduler] used to defer update delivery.
//
// The store does not take ownership of an injected scheduler: [Store.Close]
// leaves it running. If not specified, the store creates and owns an
// [AsyncScheduler].
//
// Example:
//
//	sched := kvstore.NewManualScheduler()
//	store, err := kvstore.New[string](kvstore.WithScheduler(sched))
//
// Returns an error if the scheduler is nil.
func WithScheduler(s Scheduler) Option {
	return func(cfg *storeConfig) error {
		if s == nil {
			return errors.New("scheduler cannot be nil")
		}
		cfg.scheduler = s
		return nil
	}
}

// WithLogger sets a custom [zap.Logger] for the store.
//
// The store logs recovered subscriber panics and dropped deliveries.
// If not specified, the global logger from [zap.L] is used.
//
// Example:
//
//	logger, _ := zap.NewProduction()
//	store, err := kvstore.New[string](kvstore.WithLogger(logger))
//
// Returns an error if the logger is nil.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithMetrics registers the store's prometheus collectors with reg.
//
// Stores sharing one registry must be told apart with [WithName], which
// adds a "store" const label; otherwise [New] fails with a duplicate
// registration error.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	store, err := kvstore.New[string](
//	    kvstore.WithName("sessions"),
//	    kvstore.WithMetrics(reg),
//	)
//
// Returns an error if the registerer is nil.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *storeConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithName names the store. The name is attached to log entries and, when
// metrics are enabled, to every metric as the "store" label.
func WithName(name string) Option {
	return func(cfg *storeConfig) error {
		if name == "" {
			return errors.New("store name cannot be empty")
		}
		cfg.name = name
		return nil
	}
}
