package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EngineStarts.WithLabelValues("forward").Inc()
	m.CacheLookups.WithLabelValues("hit").Add(2)
	m.LMDropped.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineStarts.WithLabelValues("forward")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LMDropped))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestNewNop_Independent(t *testing.T) {
	a := NewNop()
	b := NewNop()
	a.LMDropped.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.LMDropped))
}
