package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	assert.False(t, timer.start.IsZero())

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first, "duration keeps growing")
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_duration_seconds",
		Help: "Test duration histogram",
	})

	NewTimer().ObserveDuration(histogram)

	assert.Equal(t, 1, testutil.CollectAndCount(histogram))
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "test_duration_vec_seconds",
			Help: "Test duration histogram vec",
		},
		[]string{"operation"},
	)

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "commit")
	timer.ObserveDurationVec(vec, "update")

	assert.Equal(t, 2, testutil.CollectAndCount(vec))
}

func TestMetricsRegistered(t *testing.T) {
	CommitsTotal.Add(0)
	RevisionsTotal.WithLabelValues("modified").Set(3)

	assert.Equal(t, float64(3), testutil.ToFloat64(RevisionsTotal.WithLabelValues("modified")))
	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "strata_revisions_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
