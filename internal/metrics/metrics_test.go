package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveGateway_RecordsSamples(t *testing.T) {
	m := New()

	m.ObserveGateway("transfer", 0.25)
	m.ObserveGateway("transfer", 0.75)
	m.ObserveGateway("get_balance", 0.01)

	families, err := m.registry.Gather()
	require.NoError(t, err)

	samples := map[string]uint64{}
	for _, mf := range families {
		if mf.GetName() != "vault_gateway_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "operation" {
					samples[label.GetValue()] = metric.GetHistogram().GetSampleCount()
				}
			}
		}
	}

	assert.Equal(t, uint64(2), samples["transfer"])
	assert.Equal(t, uint64(1), samples["get_balance"])
}

func TestRecordSyncItem(t *testing.T) {
	m := New()

	m.RecordSyncItem("accepted")
	m.RecordSyncItem("accepted")
	m.RecordSyncItem("conflict")

	families, err := m.registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "vault_sync_items_total" {
			found = true
			assert.Len(t, mf.GetMetric(), 2)
		}
	}
	assert.True(t, found)
}
