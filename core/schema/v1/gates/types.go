// Package gates defines the companion document holding one record per quality
// gate (A-F). Gate records are written wholesale, never partially patched.
package gates

const (
	SchemaID      = "plumb.run.gates"
	SchemaVersion = "1.0.0"
)

// Gate record statuses.
const (
	StatusNotRun = "not_run"
	StatusPass   = "pass"
	StatusFail   = "fail"
)

// GateIDs lists every gate a run must clear, in order.
var GateIDs = []string{"A", "B", "C", "D", "E", "F"}

type Document struct {
	SchemaID      string            `json:"schema_id"`
	SchemaVersion string            `json:"schema_version"`
	RunID         string            `json:"run_id"`
	Gates         map[string]Record `json:"gates"`
}

type Record struct {
	Status    string             `json:"status"`
	CheckedAt string             `json:"checked_at,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
	Notes     string             `json:"notes,omitempty"`
}

// NewDocument returns a gates document with every gate not_run.
func NewDocument(runID string) Document {
	records := make(map[string]Record, len(GateIDs))
	for _, id := range GateIDs {
		records[id] = Record{Status: StatusNotRun}
	}
	return Document{
		SchemaID:      SchemaID,
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Gates:         records,
	}
}
