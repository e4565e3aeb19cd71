// Package audit defines the append-only per-run event record. One JSON line per
// mutation; the stream is never rewritten.
package audit

const (
	SchemaID      = "plumb.audit.event"
	SchemaVersion = "1.0.0"
)

// Event kinds emitted by the core.
const (
	KindRunInit         = "run_init"
	KindManifestApply   = "manifest_apply"
	KindWatchdogTimeout = "watchdog_timeout"
	KindGateEval        = "gate_eval"
	KindFixtureFreeze   = "fixture_freeze"
	KindFixtureSeed     = "fixture_seed"
	KindReplay          = "replay"
)

type Event struct {
	SchemaID      string `json:"schema_id"`
	SchemaVersion string `json:"schema_version"`
	EventID       string `json:"event_id"`
	RunID         string `json:"run_id"`
	TS            string `json:"ts"`
	Kind          string `json:"kind"`
	Reason        string `json:"reason,omitempty"`
	PrevRevision  int    `json:"prev_revision,omitempty"`
	NewRevision   int    `json:"new_revision,omitempty"`
	PatchDigest   string `json:"patch_digest,omitempty"`
	Detail        string `json:"detail,omitempty"`
}
