package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()
	c.Frame("PUBLISH", ResultAccepted)
	c.Frame("PUBLISH", ResultAccepted)
	c.Frame("OPEN", ResultRejected)
	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()
	c.Published()
	c.Delivery(DeliveryOK)
	c.Delivery(DeliveryFailed)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.frames.WithLabelValues("PUBLISH", ResultAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames.WithLabelValues("OPEN", ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.published))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveries.WithLabelValues(DeliveryFailed)))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Frame("OPEN", ResultAccepted)
		c.SessionOpened()
		c.SessionClosed()
		c.Published()
		c.Delivery(DeliveryOK)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.Frame("SUBSCRIBE", ResultAccepted)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "chatgate_frames_total"))
}
