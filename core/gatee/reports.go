package gatee

import (
	"fmt"
	"path/filepath"

	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/fsx"
	"github.com/davidahmann/plumb/core/jcs"
	schemagatee "github.com/davidahmann/plumb/core/schema/v1/gatee"
)

// ReportSet is the four Gate E report documents for one evaluation.
type ReportSet struct {
	NumericClaims       schemagatee.NumericClaimsReport
	SectionsPresent     schemagatee.SectionsPresentReport
	CitationUtilization schemagatee.CitationUtilizationReport
	Status              schemagatee.StatusReport
}

// BuildReports assembles the report documents. Reports are timestamp-free so
// repeated evaluations over identical inputs are byte-identical.
func BuildReports(runID string, eval Evaluation, inputDigest string) ReportSet {
	return ReportSet{
		NumericClaims: schemagatee.NumericClaimsReport{
			SchemaID:            schemagatee.NumericClaimsSchemaID,
			SchemaVersion:       schemagatee.SchemaVersion,
			RunID:               runID,
			UncitedNumericClaim: eval.Metrics.UncitedNumericClaims,
			Findings:            eval.Findings,
		},
		SectionsPresent: schemagatee.SectionsPresentReport{
			SchemaID:              schemagatee.SectionsPresentSchemaID,
			SchemaVersion:         schemagatee.SchemaVersion,
			RunID:                 runID,
			Required:              RequiredSections,
			Present:               eval.PresentSections,
			Missing:               eval.MissingSections,
			ReportSectionsPresent: eval.Metrics.ReportSectionsPresent,
		},
		CitationUtilization: schemagatee.CitationUtilizationReport{
			SchemaID:                schemagatee.CitationUtilizationSchemaID,
			SchemaVersion:           schemagatee.SchemaVersion,
			RunID:                   runID,
			ValidatedCidsCount:      eval.Metrics.ValidatedCidsCount,
			UsedCidsCount:           eval.Metrics.UsedCidsCount,
			TotalCidMentions:        eval.Metrics.TotalCidMentions,
			CitationUtilizationRate: eval.Metrics.CitationUtilizationRate,
			DuplicateCitationRate:   eval.Metrics.DuplicateCitationRate,
			UsedCids:                eval.UsedCids,
			UnusedCids:              eval.UnusedCids,
		},
		Status: schemagatee.StatusReport{
			SchemaID:              schemagatee.StatusSchemaID,
			SchemaVersion:         schemagatee.SchemaVersion,
			RunID:                 runID,
			Status:                eval.Status,
			UncitedNumericClaims:  eval.Metrics.UncitedNumericClaims,
			ReportSectionsPresent: eval.Metrics.ReportSectionsPresent,
			Warnings:              eval.Warnings,
			InputDigest:           inputDigest,
		},
	}
}

// InputDigest fingerprints one evaluation for audit correlation: the resolved
// relative input paths, a digest of the synthesis bytes, the metrics, and the
// warnings, hashed in canonical form.
func InputDigest(synthesisRel, citationsRel string, markdown []byte, eval Evaluation) (string, error) {
	fingerprint := struct {
		SynthesisPath  string   `json:"synthesis_path"`
		CitationsPath  string   `json:"citations_path"`
		MarkdownDigest string   `json:"markdown_digest"`
		Metrics        Metrics  `json:"metrics"`
		Warnings       []string `json:"warnings"`
	}{
		SynthesisPath:  synthesisRel,
		CitationsPath:  citationsRel,
		MarkdownDigest: jcs.DigestBytes(markdown),
		Metrics:        eval.Metrics,
		Warnings:       eval.Warnings,
	}
	return jcs.DigestValue(fingerprint)
}

// WriteReports persists the four reports atomically in canonical form under
// the reports directory and returns their paths keyed by file name.
func WriteReports(reportsDir string, set ReportSet) (map[string]string, error) {
	documents := []struct {
		file  string
		value any
	}{
		{schemagatee.NumericClaimsFile, set.NumericClaims},
		{schemagatee.SectionsPresentFile, set.SectionsPresent},
		{schemagatee.CitationUtilizationFile, set.CitationUtilization},
		{schemagatee.StatusFile, set.Status},
	}
	paths := make(map[string]string, len(documents))
	for _, document := range documents {
		canonical, err := jcs.MarshalCanonical(document.value)
		if err != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("encode %s: %w", document.file, err),
				coreerrors.CategoryInternalFailure, coreerrors.CodeWriteFailed, "", false)
		}
		path := filepath.Join(reportsDir, document.file)
		if err := fsx.WriteCanonicalDocument(path, canonical, 0o600); err != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("persist %s: %w", document.file, err),
				coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "check filesystem permissions", false)
		}
		paths[document.file] = path
	}
	return paths, nil
}

// GateMetrics flattens the evaluation metrics into the gates-document shape.
func GateMetrics(metrics Metrics) map[string]float64 {
	return map[string]float64{
		"uncited_numeric_claims":    float64(metrics.UncitedNumericClaims),
		"report_sections_present":   float64(metrics.ReportSectionsPresent),
		"validated_cids_count":      float64(metrics.ValidatedCidsCount),
		"used_cids_count":           float64(metrics.UsedCidsCount),
		"total_cid_mentions":        float64(metrics.TotalCidMentions),
		"citation_utilization_rate": metrics.CitationUtilizationRate,
		"duplicate_citation_rate":   metrics.DuplicateCitationRate,
	}
}
