package model

// ConflictSeverity ranks a FileConflict (spec.md §4.4).
type ConflictSeverity string

const (
	SeverityHigh   ConflictSeverity = "high"
	SeverityMedium ConflictSeverity = "medium"
	SeverityLow    ConflictSeverity = "low"
)

// rank orders severities for upward-transition comparisons (low < medium < high).
func (s ConflictSeverity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Less reports whether s is a strictly lower severity than other.
func (s ConflictSeverity) Less(other ConflictSeverity) bool {
	return s.rank() < other.rank()
}

// AccessType classifies a single file access recorded by the Conflict
// Detector.
type AccessType string

const (
	AccessRead  AccessType = "read"
	AccessWrite AccessType = "write"
)

// ConflictAgent is one agent's participation in a FileConflict.
type ConflictAgent struct {
	ProjectName string     `json:"project_name"`
	AgentID     string     `json:"agent_id"`
	AccessType  AccessType `json:"access_type"`
	LastAccess  int64      `json:"last_access"`
}

// FileConflict records overlapping file access by two or more agents within
// the detection window (spec.md §3, §4.4).
type FileConflict struct {
	ID         string          `json:"id"`
	FilePath   string          `json:"file_path"`
	Severity   ConflictSeverity `json:"severity"`
	DetectedAt int64           `json:"detected_at"`
	Projects   []ConflictAgent `json:"projects"`
	Dismissed  bool            `json:"dismissed"`
	IsManifest bool            `json:"is_manifest,omitempty"`
}

// manifestFiles are package-manifest basenames tagged "package" for UI
// presentation per spec.md §4.4, evaluated under the same severity rules.
var manifestFiles = map[string]bool{
	"package.json":     true,
	"package-lock.json": true,
	"bun.lockb":        true,
	"bun.lock":         true,
	"yarn.lock":        true,
	"Cargo.toml":       true,
	"Cargo.lock":       true,
	"go.mod":           true,
	"go.sum":           true,
	"Gemfile":          true,
	"Gemfile.lock":     true,
	"requirements.txt": true,
	"pyproject.toml":   true,
}

// IsManifestFile reports whether basename names a package-manifest file.
func IsManifestFile(basename string) bool {
	return manifestFiles[basename]
}
