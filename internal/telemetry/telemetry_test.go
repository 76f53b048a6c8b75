package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/enroller/config"
)

func TestSetupExposesPrometheusMetrics(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, config.TelemetryConfig{Enabled: true}, Options{ServiceName: "enroller-test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer tel.Shutdown(ctx)

	tel.Metrics.TriggerCompleted(ctx, "pending", 120*time.Millisecond)
	tel.Metrics.Correlated(ctx, "webhook", "matched")
	tel.Metrics.RetentionPurged(ctx, "medical_records", 3)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"enroller_triggers_total", "enroller_correlations_total", "enroller_retention_deleted_total"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("expected %s in scrape output:\n%s", name, body)
		}
	}
}

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tel, err := Setup(context.Background(), config.TelemetryConfig{}, Options{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	tel.Metrics.SweepFailed(context.Background(), "audit")
	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 when disabled, got %d", rec.Code)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.TriggerCompleted(context.Background(), "error", time.Second)
	m.Correlated(context.Background(), "email", "orphaned")
	m.RetentionPurged(context.Background(), "audit", 1)
	m.SweepFailed(context.Background(), "audit")
	m.SweepCompleted(context.Background())
}
