package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/messaging"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.MatchCreated("queue")
	r.MatchCreated("queue")
	r.MatchResolved("DRAW", "TIMEOUT")
	r.QueueJoined(true)
	r.SweepCompleted(3, 1)
	r.ResolutionDuration(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.matchesCreated.WithLabelValues("queue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.matchesResolved.WithLabelValues("DRAW", "TIMEOUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queueJoins.WithLabelValues("true")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.sweepResolved))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sweepFailed))
}

func TestRecorder_ObservesEventBus(t *testing.T) {
	r := NewRecorder()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Observer: r})
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.Publish(shared.NewQueueJoinedEvent(3)))

	typ := string(shared.EventQueueJoined)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventsPublished.WithLabelValues(typ)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventHandlers.WithLabelValues(typ, "error")))
}

func TestRecorder_ObservesScheduler(t *testing.T) {
	r := NewRecorder()
	r.JobFinished("sweep_timeouts", 40*time.Millisecond, nil)
	r.JobFinished("sweep_timeouts", time.Millisecond, errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("sweep_timeouts", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("sweep_timeouts", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.jobDuration))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.RegisterGauge("queue_size", "Players waiting.", func() float64 { return 4 })
	r.ObserveHTTP("/api/v1/pvp/queue", http.MethodPost, http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "studyplan_pvp_queue_size 4")
	assert.Contains(t, body, `studyplan_pvp_http_requests_total{method="POST",route="/api/v1/pvp/queue",status="200"} 1`)
}
