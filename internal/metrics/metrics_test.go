package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/api/v1/spaces", "200")
		IncBillGenerated()
		IncBillPaid("payment")
		IncPaymentRejected("amount_mismatch")
		IncNotification("sent")
	})
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestIncTransition(t *testing.T) {
	before := counterValue(t, requestTransitions.WithLabelValues("ACCEPTED"))
	IncTransition("ACCEPTED")
	assert.Equal(t, before+1, counterValue(t, requestTransitions.WithLabelValues("ACCEPTED")))
}
