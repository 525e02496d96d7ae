package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGatewayConnectedGaugeSettable(t *testing.T) {
	GatewayConnected.Set(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(GatewayConnected))
	GatewayConnected.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(GatewayConnected))
}

func TestAnomaliesBySeverityIncrements(t *testing.T) {
	AnomaliesBySeverity.WithLabelValues("HIGH").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(AnomaliesBySeverity.WithLabelValues("HIGH")))
}
