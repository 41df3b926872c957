package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"netflow_logs_received_total",
		"netflow_pending_blocks",
		"netflow_apply_block_duration_seconds",
	} {
		assert.True(t, names[want], "%s should be registered", want)
	}
}

func TestTransfersAppliedByTag(t *testing.T) {
	TransfersApplied.WithLabelValues("IN").Add(2)
	TransfersApplied.WithLabelValues("OUT").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(TransfersApplied.WithLabelValues("IN")))

	expected := `
# HELP netflow_transfers_applied_total Transfers committed to the ledger by tag
# TYPE netflow_transfers_applied_total counter
netflow_transfers_applied_total{tag="IN"} 2
netflow_transfers_applied_total{tag="OUT"} 1
`
	require.NoError(t, testutil.CollectAndCompare(TransfersApplied, strings.NewReader(expected)))
}
