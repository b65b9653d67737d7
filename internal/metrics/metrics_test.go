package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()

	c, err := New(reg, nil)
	require.NoError(t, err)
	require.NotNil(t, c)

	c.Saved(true)
	c.Removed()
	c.SetKeys(1)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["kvstore_saves_total"])
	assert.True(t, names["kvstore_removes_total"])
	assert.True(t, names["kvstore_keys"])
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg, nil)
	require.NoError(t, err)

	_, err = New(reg, nil)
	assert.Error(t, err, "second collector on the same registry should fail")
}

func TestNew_ConstLabelsAllowSharing(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg, prometheus.Labels{"store": "users"})
	require.NoError(t, err)

	_, err = New(reg, prometheus.Labels{"store": "sessions"})
	assert.NoError(t, err)
}

func TestCollector_Counts(t *testing.T) {
	c, err := New(prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	c.Saved(true)
	c.Saved(false)
	c.Saved(false)
	c.Removed()
	c.Delivered()
	c.Delivered()
	c.DeliveryPanicked()
	c.RemovalNotified()
	c.SetKeys(3)
	c.SetSubscriptions(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.saves.WithLabelValues("create")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.saves.WithLabelValues("overwrite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.removes))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.deliveries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveryPanics))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.removalNotifications))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.keys))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.subscriptions))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.Saved(true)
		c.Removed()
		c.Delivered()
		c.DeliveryPanicked()
		c.RemovalNotified()
		c.SetKeys(1)
		c.SetSubscriptions(1)
	})
}
