package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/autopeer-io/carprober/internal/core"
)

func TestRecordConnection(t *testing.T) {
	RecordConnection(core.ConnectionState{Connected: true, Brand: core.BrandMini, Host: core.LoopbackHost, Port: 4007})
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionStatus.WithLabelValues("mini")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionStatus.WithLabelValues("bmw")))

	RecordConnection(core.ConnectionState{})
	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionStatus.WithLabelValues("mini")))
}

func TestRegistryGathers(t *testing.T) {
	ProbeTotal.WithLabelValues("port_closed").Inc()
	n, err := testutil.GatherAndCount(Registry, "carprober_probe_total")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
