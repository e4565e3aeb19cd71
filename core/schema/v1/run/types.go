// Package run defines the manifest document: the authoritative per-run state
// record mutated only through revision-checked, atomically persisted writes.
package run

const (
	SchemaID      = "plumb.run.manifest"
	SchemaVersion = "1.0.0"
)

// Run statuses.
const (
	StatusCreated   = "created"
	StatusRunning   = "running"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

// Stage names in pipeline order.
const (
	StageInit      = "init"
	StagePlan      = "plan"
	StageWave1     = "wave1"
	StageWave2     = "wave2"
	StageCitations = "citations"
	StageSummary   = "summary"
	StageSynthesis = "synthesis"
	StageGates     = "gates"
)

type Manifest struct {
	SchemaID      string    `json:"schema_id"`
	SchemaVersion string    `json:"schema_version"`
	RunID         string    `json:"run_id"`
	Revision      int       `json:"revision"`
	Status        string    `json:"status"`
	Stage         Stage     `json:"stage"`
	Limits        Limits    `json:"limits"`
	Artifacts     Artifacts `json:"artifacts"`
	Failures      []Failure `json:"failures"`
}

type Stage struct {
	Current        string         `json:"current"`
	StartedAt      string         `json:"started_at"`
	LastProgressAt string         `json:"last_progress_at"`
	History        []StageHistory `json:"history"`
}

type StageHistory struct {
	Stage     string `json:"stage"`
	EnteredAt string `json:"entered_at"`
	ExitedAt  string `json:"exited_at"`
}

type Limits struct {
	MaxAgentsPerWave    int `json:"max_agents_per_wave"`
	MaxSummaryKB        int `json:"max_summary_kb"`
	MaxReviewIterations int `json:"max_review_iterations"`
}

// Artifacts anchors every relative artifact path at Root.
type Artifacts struct {
	Root  string            `json:"root"`
	Paths map[string]string `json:"paths"`
}

type Failure struct {
	Kind      string `json:"kind"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	TS        string `json:"ts"`
}

// Canonical artifact path keys.
const (
	PathManifest  = "manifest"
	PathGates     = "gates"
	PathAuditLog  = "audit_log"
	PathLogs      = "logs"
	PathSynthesis = "synthesis"
	PathCitations = "citations"
	PathReports   = "reports"
)

// DefaultArtifactPaths returns the standard relative layout under the run root.
func DefaultArtifactPaths() map[string]string {
	return map[string]string{
		PathManifest:  "state/manifest.json",
		PathGates:     "state/gates.json",
		PathAuditLog:  "logs/audit.jsonl",
		PathLogs:      "logs",
		PathSynthesis: "synthesis/final-synthesis.md",
		PathCitations: "citations/citations.jsonl",
		PathReports:   "reports",
	}
}
