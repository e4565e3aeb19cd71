// Package gatee defines the four Gate E report documents. Reports carry no
// timestamps so identical inputs always serialize to identical bytes.
package gatee

const SchemaVersion = "1.0.0"

// Report schema ids.
const (
	NumericClaimsSchemaID       = "plumb.gate_e.numeric_claims_report"
	SectionsPresentSchemaID     = "plumb.gate_e.sections_present_report"
	CitationUtilizationSchemaID = "plumb.gate_e.citation_utilization_report"
	StatusSchemaID              = "plumb.gate_e.status_report"
)

// Report file names under the run's reports directory.
const (
	NumericClaimsFile       = "gate_e.numeric_claims_report.json"
	SectionsPresentFile     = "gate_e.sections_present_report.json"
	CitationUtilizationFile = "gate_e.citation_utilization_report.json"
	StatusFile              = "gate_e.status_report.json"
)

// Finding pinpoints one numeric token in a paragraph lacking a citation
// marker. Line and Column are 1-based; Column counts characters, not bytes.
type Finding struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Token  string `json:"token"`
	Text   string `json:"text"`
}

type NumericClaimsReport struct {
	SchemaID            string    `json:"schema_id"`
	SchemaVersion       string    `json:"schema_version"`
	RunID               string    `json:"run_id"`
	UncitedNumericClaim int       `json:"uncited_numeric_claims"`
	Findings            []Finding `json:"findings"`
}

type SectionsPresentReport struct {
	SchemaID              string   `json:"schema_id"`
	SchemaVersion         string   `json:"schema_version"`
	RunID                 string   `json:"run_id"`
	Required              []string `json:"required"`
	Present               []string `json:"present"`
	Missing               []string `json:"missing"`
	ReportSectionsPresent int      `json:"report_sections_present"`
}

type CitationUtilizationReport struct {
	SchemaID                string   `json:"schema_id"`
	SchemaVersion           string   `json:"schema_version"`
	RunID                   string   `json:"run_id"`
	ValidatedCidsCount      int      `json:"validated_cids_count"`
	UsedCidsCount           int      `json:"used_cids_count"`
	TotalCidMentions        int      `json:"total_cid_mentions"`
	CitationUtilizationRate float64  `json:"citation_utilization_rate"`
	DuplicateCitationRate   float64  `json:"duplicate_citation_rate"`
	UsedCids                []string `json:"used_cids"`
	UnusedCids              []string `json:"unused_cids"`
}

type StatusReport struct {
	SchemaID              string   `json:"schema_id"`
	SchemaVersion         string   `json:"schema_version"`
	RunID                 string   `json:"run_id"`
	Status                string   `json:"status"`
	UncitedNumericClaims  int      `json:"uncited_numeric_claims"`
	ReportSectionsPresent int      `json:"report_sections_present"`
	Warnings              []string `json:"warnings"`
	InputDigest           string   `json:"input_digest"`
}
