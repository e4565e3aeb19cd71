// Package bundle defines the fixture bundle descriptor: an immutable,
// self-describing snapshot of a run used to prove deterministic reproducibility.
package bundle

const (
	SchemaID      = "plumb.fixture.bundle"
	SchemaVersion = "1.0.0"
)

type Descriptor struct {
	SchemaID      string   `json:"schema_id"`
	SchemaVersion string   `json:"schema_version"`
	BundleID      string   `json:"bundle_id"`
	RunID         string   `json:"run_id"`
	CreatedAt     string   `json:"created_at"`
	NoWeb         bool     `json:"no_web"`
	IncludedPaths []string `json:"included_paths"`
}

// DescriptorFile is the bundle's own metadata file at the bundle root.
const DescriptorFile = "bundle.json"

// RequiredPaths is the minimum file set every bundle must include, relative to
// the bundle root and lexicographically sorted.
func RequiredPaths() []string {
	return []string{
		"citations/citations.jsonl",
		"reports/gate_e.citation_utilization_report.json",
		"reports/gate_e.numeric_claims_report.json",
		"reports/gate_e.sections_present_report.json",
		"reports/gate_e.status_report.json",
		"state/gates.json",
		"state/manifest.json",
		"synthesis/final-synthesis.md",
	}
}
