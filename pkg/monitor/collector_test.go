package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector("test")

	c.ObserveFit(OutcomeOK, 20*time.Millisecond, 10)
	c.ObserveFit(OutcomeFailed, time.Millisecond, 0)
	c.TreeTask(PhaseFit, OutcomeOK)
	c.TreeTask(PhaseFit, OutcomeOK)
	c.TreeTask(PhasePredict, OutcomeExcluded)
	c.ObservePredict("predict_proba", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.FitsTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FitsTotal.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.TreeTasksTotal.WithLabelValues(PhaseFit, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TreesExcluded))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.EnsembleTrees), "failed fits do not overwrite the gauge")
	assert.Equal(t, 1, testutil.CollectAndCount(c.PredictDuration))
}

func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveFit(OutcomeOK, time.Second, 3)
		c.TreeTask(PhaseFit, OutcomePanic)
		c.ObservePredict("predict", time.Second)
	})
	assert.Nil(t, c.Registry())
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector("")
	c.TreeTask(PhaseFit, OutcomeTimeout)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `rforest_tree_tasks_total{outcome="timeout",phase="fit"} 1`))
}
