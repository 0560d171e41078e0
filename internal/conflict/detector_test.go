package conflict

import (
	"testing"
	"time"

	"github.com/devpulse/server/internal/model"
)

func TestObserveEscalatesToHighOnTwoWriters(t *testing.T) {
	d := New(30 * time.Minute)
	base := time.Unix(1700000000, 0)

	if c := d.Observe("p1", "app:a", "Write", "src/a.ts", base); c != nil {
		t.Fatalf("expected no conflict for a single writer, got %+v", c)
	}

	c := d.Observe("p1", "app:b", "Write", "src/a.ts", base.Add(5*time.Second))
	if c == nil {
		t.Fatal("expected a conflict once a second writer touches the same file")
	}
	if c.Severity != model.SeverityHigh {
		t.Errorf("Severity = %s, want high", c.Severity)
	}
	if len(c.Projects) != 2 {
		t.Errorf("Projects = %d agents, want 2", len(c.Projects))
	}
}

func TestObserveMediumForOneWriterOneReader(t *testing.T) {
	d := New(30 * time.Minute)
	base := time.Unix(1700000000, 0)

	d.Observe("p1", "app:a", "Write", "src/a.ts", base)
	c := d.Observe("p1", "app:b", "Read", "src/a.ts", base.Add(time.Second))
	if c == nil || c.Severity != model.SeverityMedium {
		t.Fatalf("expected medium conflict, got %+v", c)
	}
}

func TestObserveLowForTwoReadersNoWriters(t *testing.T) {
	d := New(30 * time.Minute)
	base := time.Unix(1700000000, 0)

	d.Observe("p1", "app:a", "Read", "src/a.ts", base)
	c := d.Observe("p1", "app:b", "Read", "src/a.ts", base.Add(time.Second))
	if c == nil || c.Severity != model.SeverityLow {
		t.Fatalf("expected low conflict, got %+v", c)
	}
}

func TestObserveIgnoresIrrelevantTools(t *testing.T) {
	d := New(30 * time.Minute)
	base := time.Unix(1700000000, 0)
	if c := d.Observe("p1", "app:a", "Bash", "src/a.ts", base); c != nil {
		t.Fatalf("expected Bash to be ignored, got %+v", c)
	}
}

func TestObserveZeroWindowNeverEmits(t *testing.T) {
	d := New(0)
	base := time.Unix(1700000000, 0)
	d.Observe("p1", "app:a", "Write", "src/a.ts", base)
	c := d.Observe("p1", "app:b", "Write", "src/a.ts", base.Add(time.Second))
	if c != nil {
		t.Fatalf("expected a zero window to never emit conflicts, got %+v", c)
	}
}

func TestObservePrunesAccessesOutsideWindow(t *testing.T) {
	d := New(time.Minute)
	base := time.Unix(1700000000, 0)

	d.Observe("p1", "app:a", "Write", "src/a.ts", base)
	// Second agent's write arrives 2 minutes later: the first access should
	// already have been pruned, so this alone shouldn't yet be a conflict
	// (only one agent remains in the window).
	c := d.Observe("p1", "app:b", "Write", "src/a.ts", base.Add(2*time.Minute))
	if c != nil {
		t.Fatalf("expected pruned first writer to prevent a conflict, got %+v", c)
	}
}

func TestObserveTagsManifestFiles(t *testing.T) {
	d := New(30 * time.Minute)
	base := time.Unix(1700000000, 0)
	d.Observe("p1", "app:a", "Write", "go.mod", base)
	c := d.Observe("p1", "app:b", "Write", "go.mod", base.Add(time.Second))
	if c == nil || !c.IsManifest {
		t.Fatalf("expected go.mod conflict to be tagged manifest, got %+v", c)
	}
}

func TestObserveDoesNotReEmitSameSeverity(t *testing.T) {
	d := New(30 * time.Minute)
	base := time.Unix(1700000000, 0)
	d.Observe("p1", "app:a", "Write", "src/a.ts", base)
	first := d.Observe("p1", "app:b", "Write", "src/a.ts", base.Add(time.Second))
	if first == nil {
		t.Fatal("expected first escalation to emit")
	}
	second := d.Observe("p1", "app:b", "Write", "src/a.ts", base.Add(2*time.Second))
	if second != nil {
		t.Fatalf("expected repeat observation at the same severity not to re-emit, got %+v", second)
	}
}
