// Package conflict maintains the short-window file-access registry and
// severity rules that back FileConflict detection (spec.md §4.4).
package conflict

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devpulse/server/internal/model"
)

// access is one recorded file touch, kept in the per-path registry.
type access struct {
	projectName string
	agentID     string
	accessType  model.AccessType
	at          time.Time
}

// Detector is the mutex-protected in-memory registry spec.md §5 requires:
// "the conflict registry is a mutex-protected map; its mutations occur only
// on the writer."
type Detector struct {
	mu     sync.Mutex
	window time.Duration
	byPath map[string][]access
	// active tracks the last emitted severity per path so the detector can
	// tell an upward transition from a repeat observation at the same level.
	active map[string]model.ConflictSeverity
}

// New returns a Detector that prunes accesses older than window. A window
// of 0 disables conflict emission entirely (spec.md §8 boundary behavior).
func New(window time.Duration) *Detector {
	return &Detector{
		window: window,
		byPath: make(map[string][]access),
		active: make(map[string]model.ConflictSeverity),
	}
}

// toolAccessType maps a tool name to the access type it represents, and
// reports whether the tool is conflict-relevant at all (spec.md §4.4: only
// Read/Write/Edit participate).
func toolAccessType(tool string) (model.AccessType, bool) {
	switch tool {
	case "Write", "Edit":
		return model.AccessWrite, true
	case "Read":
		return model.AccessRead, true
	default:
		return "", false
	}
}

// Observe records a file access and returns a newly emitted FileConflict if
// this access created the path's first conflict or raised its severity
// above the last emitted level; it returns nil otherwise (spec.md §4.4). An
// agent joining an existing conflict without raising its severity does not
// emit a new FileConflict.
func (d *Detector) Observe(projectName, agentID, tool, filePath string, at time.Time) *model.FileConflict {
	if d.window <= 0 || filePath == "" {
		return nil
	}
	accessType, relevant := toolAccessType(tool)
	if !relevant {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := at.Add(-d.window)
	accesses := pruneAndAppend(d.byPath[filePath], cutoff, access{
		projectName: projectName, agentID: agentID, accessType: accessType, at: at,
	})
	d.byPath[filePath] = accesses

	severity, agents := evaluate(accesses)
	previous, hadConflict := d.active[filePath]

	switch {
	case severity == "":
		delete(d.active, filePath)
		return nil
	case !hadConflict, previous.Less(severity):
		d.active[filePath] = severity
		return &model.FileConflict{
			ID:         uuid.NewString(),
			FilePath:   filePath,
			Severity:   severity,
			DetectedAt: at.UnixMilli(),
			Projects:   agents,
			IsManifest: model.IsManifestFile(basename(filePath)),
		}
	default:
		// Same or lower severity than already emitted: update tracking but
		// do not emit a new row. Nothing updates the stored row on a
		// downgrade; it keeps the severity it was emitted with.
		d.active[filePath] = severity
		return nil
	}
}

// pruneAndAppend drops accesses older than cutoff and appends the new one.
func pruneAndAppend(existing []access, cutoff time.Time, next access) []access {
	kept := existing[:0:0]
	for _, a := range existing {
		if a.at.After(cutoff) {
			kept = append(kept, a)
		}
	}
	return append(kept, next)
}

// evaluate applies the severity rules in spec.md §4.4 to the accesses
// surviving pruning, returning the severity (or "" for no conflict) and the
// per-agent participation list.
func evaluate(accesses []access) (model.ConflictSeverity, []model.ConflictAgent) {
	type agentState struct {
		projectName string
		hasWrite    bool
		hasRead     bool
		lastAccess  int64
	}
	byAgent := make(map[string]*agentState)
	var order []string

	for _, a := range accesses {
		st, ok := byAgent[a.agentID]
		if !ok {
			st = &agentState{projectName: a.projectName}
			byAgent[a.agentID] = st
			order = append(order, a.agentID)
		}
		if a.accessType == model.AccessWrite {
			st.hasWrite = true
		} else {
			st.hasRead = true
		}
		ms := a.at.UnixMilli()
		if ms > st.lastAccess {
			st.lastAccess = ms
		}
	}

	if len(byAgent) < 2 {
		return "", nil
	}

	writers, readOnly := 0, 0
	for _, st := range byAgent {
		if st.hasWrite {
			writers++
		} else if st.hasRead {
			readOnly++
		}
	}

	var severity model.ConflictSeverity
	switch {
	case writers >= 2:
		severity = model.SeverityHigh
	case writers == 1 && readOnly >= 1:
		severity = model.SeverityMedium
	case writers == 0 && readOnly >= 2:
		severity = model.SeverityLow
	default:
		return "", nil
	}

	agents := make([]model.ConflictAgent, 0, len(order))
	for _, id := range order {
		st := byAgent[id]
		accessType := model.AccessRead
		if st.hasWrite {
			accessType = model.AccessWrite
		}
		agents = append(agents, model.ConflictAgent{
			ProjectName: st.projectName,
			AgentID:     id,
			AccessType:  accessType,
			LastAccess:  st.lastAccess,
		})
	}
	return severity, agents
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
