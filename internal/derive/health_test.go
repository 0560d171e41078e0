package derive

import (
	"testing"

	"github.com/devpulse/server/internal/model"
)

func TestHealthScorePassingFullActivityNoErrors(t *testing.T) {
	score, components := HealthScore(model.TestPassing, activityCapPerDay, 0)
	if score != 100 {
		t.Errorf("HealthScore = %d, want 100", score)
	}
	if components.Test != 100 || components.Activity != 100 || components.Error != 100 {
		t.Errorf("components = %+v", components)
	}
}

func TestHealthScoreFailingNoActivity(t *testing.T) {
	score, components := HealthScore(model.TestFailing, 0, 0)
	// test=0 (40%), activity=0 (30%), error=100 since no events (30%) -> 0.3*100 = 30
	if score != 30 {
		t.Errorf("HealthScore = %d, want 30", score)
	}
	if components.Error != 100 {
		t.Errorf("Error component with zero events = %v, want 100", components.Error)
	}
}

func TestHealthTrendSign(t *testing.T) {
	if HealthTrend(80, 60) != 1 {
		t.Error("expected positive trend")
	}
	if HealthTrend(60, 80) != -1 {
		t.Error("expected negative trend")
	}
	if HealthTrend(70, 70) != 0 {
		t.Error("expected flat trend")
	}
}
