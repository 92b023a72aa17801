package metrics_test

import (
	"testing"
	"time"

	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/cuemby/nodewatch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// histogramSamples reads the sample count and sum of one histogram series
func histogramSamples(t *testing.T, o prometheus.Observer) (uint64, float64) {
	t.Helper()
	m, ok := o.(prometheus.Metric)
	require.True(t, ok, "observer is not a metric")
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	return out.GetHistogram().GetSampleCount(), out.GetHistogram().GetSampleSum()
}

func TestTimer_Duration(t *testing.T) {
	timer := metrics.NewTimer()
	time.Sleep(5 * time.Millisecond)

	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 5*time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), first)
}

func TestTimer_ObserveDurationVecLabelsLedgerOp(t *testing.T) {
	listJobs := metrics.LedgerRequestDuration.WithLabelValues(ledger.OpListJobs)
	account := metrics.LedgerRequestDuration.WithLabelValues(ledger.OpAccountInfo)
	beforeList, beforeSum := histogramSamples(t, listJobs)
	beforeAccount, _ := histogramSamples(t, account)

	timer := metrics.NewTimer()
	time.Sleep(2 * time.Millisecond)
	timer.ObserveDurationVec(metrics.LedgerRequestDuration, ledger.OpListJobs)

	afterList, afterSum := histogramSamples(t, listJobs)
	afterAccount, _ := histogramSamples(t, account)
	assert.Equal(t, beforeList+1, afterList)
	assert.GreaterOrEqual(t, afterSum-beforeSum, 0.002)
	assert.Equal(t, beforeAccount, afterAccount, "other ops must not move")

	// The op label is the only one, so the series is addressable by it
	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.LedgerRequestDuration), 1)
}

func TestTimer_ObserveDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nodewatch_test_duration_seconds",
		Buckets: []float64{0.001, 0.01, 1},
	})

	timer := metrics.NewTimer()
	timer.ObserveDuration(h)
	timer.ObserveDuration(h)

	count, sum := histogramSamples(t, h)
	assert.Equal(t, uint64(2), count)
	assert.Greater(t, sum, 0.0)
}
