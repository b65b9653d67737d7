// Package metrics holds the prometheus collectors recorded by kvstore.
//
// A nil *Collector is valid and records nothing, so callers never need to
// check whether metrics were enabled.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "kvstore"

// Collector groups the store's counters and gauges.
type Collector struct {
	saves                *prometheus.CounterVec
	removes              prometheus.Counter
	deliveries           prometheus.Counter
	deliveryPanics       prometheus.Counter
	removalNotifications prometheus.Counter
	keys                 prometheus.Gauge
	subscriptions        prometheus.Gauge
}

// New creates a Collector and registers it with reg.
//
// Returns an error if any metric is already registered, which usually means
// two stores share a registry without distinct const labels.
func New(reg prometheus.Registerer, constLabels prometheus.Labels) (*Collector, error) {
	c := &Collector{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "saves_total",
			Help:        "Total number of Save calls, by whether the key was new or overwritten.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		removes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "removes_total",
			Help:        "Total number of keys deleted by Remove. Removes of absent keys are not counted.",
			ConstLabels: constLabels,
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "deliveries_total",
			Help:        "Total number of update callbacks invoked.",
			ConstLabels: constLabels,
		}),
		deliveryPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "delivery_panics_total",
			Help:        "Total number of update callbacks that panicked.",
			ConstLabels: constLabels,
		}),
		removalNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "removal_notifications_total",
			Help:        "Total number of remove callbacks invoked.",
			ConstLabels: constLabels,
		}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "keys",
			Help:        "Number of keys currently holding a value.",
			ConstLabels: constLabels,
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "subscriptions",
			Help:        "Number of registered subscriptions across all keys.",
			ConstLabels: constLabels,
		}),
	}

	for _, col := range []prometheus.Collector{
		c.saves, c.removes, c.deliveries, c.deliveryPanics,
		c.removalNotifications, c.keys, c.subscriptions,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return c, nil
}

// Saved records a Save. created reports whether the key was new.
func (c *Collector) Saved(created bool) {
	if c == nil {
		return
	}
	kind := "overwrite"
	if created {
		kind = "create"
	}
	c.saves.WithLabelValues(kind).Inc()
}

// Removed records a Remove call.
func (c *Collector) Removed() {
	if c == nil {
		return
	}
	c.removes.Inc()
}

// Delivered records one update callback invocation.
func (c *Collector) Delivered() {
	if c == nil {
		return
	}
	c.deliveries.Inc()
}

// DeliveryPanicked records an update callback that panicked.
func (c *Collector) DeliveryPanicked() {
	if c == nil {
		return
	}
	c.deliveryPanics.Inc()
}

// RemovalNotified records one remove callback invocation.
func (c *Collector) RemovalNotified() {
	if c == nil {
		return
	}
	c.removalNotifications.Inc()
}

// SetKeys sets the current key count.
func (c *Collector) SetKeys(n int) {
	if c == nil {
		return
	}
	c.keys.Set(float64(n))
}

// SetSubscriptions sets the current subscription count.
func (c *Collector) SetSubscriptions(n int) {
	if c == nil {
		return
	}
	c.subscriptions.Set(float64(n))
}
