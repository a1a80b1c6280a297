package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_RecordRun_IncrementsCounterAndLatency(t *testing.T) {
	r := NewRecorder("my-workflow", "")

	r.RecordRun("my-workflow", true, time.Now().Add(-time.Second))

	if got := testutil.ToFloat64(r.runCount.WithLabelValues("my-workflow", "true")); got != 1 {
		t.Errorf("runCount = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.lastSuccessTimestamp.WithLabelValues("my-workflow")); got == 0 {
		t.Errorf("expected lastSuccessTimestamp to be set on success")
	}
}

func TestRecorder_RecordRun_FailureDoesNotSetTimestamp(t *testing.T) {
	r := NewRecorder("my-workflow", "")

	r.RecordRun("my-workflow", false, time.Now())

	if got := testutil.ToFloat64(r.runCount.WithLabelValues("my-workflow", "false")); got != 1 {
		t.Errorf("runCount = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.lastSuccessTimestamp.WithLabelValues("my-workflow")); got != 0 {
		t.Errorf("expected lastSuccessTimestamp to stay unset on failure, got %v", got)
	}
}

func TestRecorder_RecordEffect_IncrementsByType(t *testing.T) {
	r := NewRecorder("my-workflow", "")

	r.RecordEffect("my-workflow", "CREATED")
	r.RecordEffect("my-workflow", "CREATED")
	r.RecordEffect("my-workflow", "NOOP")

	if got := testutil.ToFloat64(r.effectCount.WithLabelValues("my-workflow", "CREATED")); got != 2 {
		t.Errorf("effectCount[CREATED] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.effectCount.WithLabelValues("my-workflow", "NOOP")); got != 1 {
		t.Errorf("effectCount[NOOP] = %v, want 1", got)
	}
}

func TestRecorder_Push_NoOpWithoutPushgatewayURL(t *testing.T) {
	r := NewRecorder("my-workflow", "")
	if err := r.Push(); err != nil {
		t.Errorf("Push() with no pushgateway configured = %v, want nil", err)
	}
}
