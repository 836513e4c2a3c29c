package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/observability/metrics"
)

func TestPipelineMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	p := m.Pipeline
	p.RecordScan("STA1", "subspace", 100, 3, 2)
	p.RecordScan("STA1", "subspace", 50, 0, 1)
	p.RecordTask(nil)
	p.RecordTask(errors.NewStd("boom"))
	p.RecordFetch(nil)
	p.RecordAssociation(4, 2, 1, 3)
	p.ObserveStage(metrics.StageScan, time.Now(), nil)
	p.ObserveStage(metrics.StageBuild, time.Now(), errors.NewStd("failed"))

	assert.InDelta(t, 150, testutil.ToFloat64(p.WindowsScanned.WithLabelValues("STA1")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(p.WindowsSkipped.WithLabelValues("STA1")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(p.Triggers.WithLabelValues("STA1", "subspace")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.ScanTasks.WithLabelValues(metrics.StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.ScanTasks.WithLabelValues(metrics.StatusSuccess)), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(p.Detections), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(p.Verified), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.StageErrors.WithLabelValues(metrics.StageBuild)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(p.StageErrors.WithLabelValues(metrics.StageScan)), 0)
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.MQTT.UpdateConnectionStatus(true)
	m.MQTT.RecordPublish(512, time.Now(), nil)
	m.MQTT.RecordPublish(0, time.Now(), errors.NewStd("timeout"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.MQTT.ConnectionStatus), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MQTT.MessagesDelivered), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MQTT.Errors), 0)
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Pipeline.RecordAssociation(2, 0, 0, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "seisnet_detections_total 2")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSeparateRegistries(t *testing.T) {
	t.Parallel()

	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err)
	assert.NotSame(t, a.Registry(), b.Registry())
}
