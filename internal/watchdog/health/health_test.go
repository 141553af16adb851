package health

import (
	"testing"
	"time"

	"github.com/misty-step/imploid/internal/model"
)

func TestEvaluateTerminalAlwaysHealthy(t *testing.T) {
	for _, status := range []model.ProcessStatus{model.StatusCompleted, model.StatusFailed} {
		check := Evaluate(Input{Status: status, ElapsedSinceUpdate: 5 * time.Hour}, DefaultConfig())
		if check.Status != StatusHealthy {
			t.Errorf("status %q: got %q, want healthy", status, check.Status)
		}
		if check.NeedsAttention() {
			t.Errorf("status %q: NeedsAttention() = true, want false", status)
		}
	}
}

func TestEvaluateNeedsInputIsHealthy(t *testing.T) {
	check := Evaluate(Input{Status: model.StatusNeedsInput, ElapsedSinceUpdate: 5 * time.Hour}, DefaultConfig())
	if check.Status != StatusHealthy {
		t.Errorf("status = %q, want healthy", check.Status)
	}
}

func TestEvaluateRunningWithinThresholdIsHealthy(t *testing.T) {
	cfg := Config{StaleThreshold: 30 * time.Minute}
	check := Evaluate(Input{Status: model.StatusRunning, ElapsedSinceUpdate: 5 * time.Minute}, cfg)
	if check.Status != StatusHealthy {
		t.Errorf("status = %q, want healthy", check.Status)
	}
}

func TestEvaluateRunningPastThresholdIsStale(t *testing.T) {
	cfg := Config{StaleThreshold: 30 * time.Minute}
	check := Evaluate(Input{Status: model.StatusRunning, ElapsedSinceUpdate: 45 * time.Minute}, cfg)
	if check.Status != StatusStale {
		t.Errorf("status = %q, want stale", check.Status)
	}
	if !check.NeedsAttention() {
		t.Error("NeedsAttention() = false, want true")
	}
	if check.Reason == "" {
		t.Error("expected a non-empty reason for a stale check")
	}
}

func TestEvaluateZeroThresholdNeverStales(t *testing.T) {
	check := Evaluate(Input{Status: model.StatusRunning, ElapsedSinceUpdate: 100 * time.Hour}, Config{})
	if check.Status != StatusHealthy {
		t.Errorf("status = %q, want healthy with a disabled threshold", check.Status)
	}
}
