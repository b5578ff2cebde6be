package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Observe("GetPackages", time.Now(), nil)
	m.Observe("GetPackages", time.Now(), nil)
	m.Observe("DeletePackage", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperatorCalls.WithLabelValues("GetPackages", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperatorCalls.WithLabelValues("DeletePackage", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.OperatorDuration))
}

func TestAddExpired(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AddExpired(3)
	m.AddExpired(0)
	m.AddExpired(-1)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Expired))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("x", time.Now(), nil)
		m.AddExpired(1)
	})
}
