package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentchain/replaycore/internal/projector"
)

func TestRegistry_HandlerServesExpectedMetricNames(t *testing.T) {
	r := New()
	r.ProjectorEventsTotal.WithLabelValues("projected").Inc()
	r.BackfillPagesTotal.Inc()
	r.SchedulerHitRate.Set(0.75)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"replay_projector_events_total",
		"replay_backfill_pages_total",
		"replay_scheduler_hit_rate",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestRegistry_ObserveProjectionLabelsByResult(t *testing.T) {
	r := New()
	r.ObserveProjection(projector.Telemetry{
		ProjectedEvents:     3,
		DuplicatesDropped:   1,
		UnknownEvents:       2,
		TransitionConflicts: 1,
		MalformedInputs:     []projector.MalformedInput{{Signature: "sig1"}},
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`replay_projector_events_total{result="projected"} 3`,
		`replay_projector_events_total{result="duplicate"} 1`,
		`replay_projector_events_total{result="unknown"} 2`,
		`replay_projector_events_total{result="malformed"} 1`,
		`replay_projector_events_total{result="violation"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}
