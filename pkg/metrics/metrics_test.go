package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersStartAtZeroAndIncrement(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, float64(0), testutil.ToFloat64(r.SessionsOpened))

	r.SessionsOpened.Inc()
	r.SessionsOpened.Inc()
	require.Equal(t, float64(2), testutil.ToFloat64(r.SessionsOpened))
}

func TestCurrentEpochGaugeIsSettable(t *testing.T) {
	r := NewRegistry()
	r.CurrentEpoch.Set(7)
	require.Equal(t, float64(7), testutil.ToFloat64(r.CurrentEpoch))
}

func TestGathererReturnsRegisteredFamilies(t *testing.T) {
	r := NewRegistry()
	r.MessagesApproved.Inc()

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["gateway_messages_approved_total"])
}
