// Package replay re-executes the Gate E engine against a frozen fixture
// bundle and proves, by content hashing, that the recorded reports are
// bit-reproducible. The comparison engine is generic over a list of relative
// paths: recompute(inputs) must equal golden(inputs).
package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/davidahmann/plumb/core/audit"
	"github.com/davidahmann/plumb/core/bundle"
	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/fsx"
	"github.com/davidahmann/plumb/core/gatee"
	"github.com/davidahmann/plumb/core/jcs"
	"github.com/davidahmann/plumb/core/manifest"
	schemaaudit "github.com/davidahmann/plumb/core/schema/v1/audit"
	schemagatee "github.com/davidahmann/plumb/core/schema/v1/gatee"
	"github.com/davidahmann/plumb/core/schema/v1/gates"
)

const (
	ReportSchemaID      = "plumb.replay.report"
	reportSchemaVersion = "1.0.0"
	scratchDir          = "replay"
)

// FileCheck records one golden-vs-recomputed content comparison.
type FileCheck struct {
	Path             string `json:"path"`
	BundledDigest    string `json:"bundled_digest"`
	RecomputedDigest string `json:"recomputed_digest"`
	Match            bool   `json:"match"`
}

// AgreementCheck records one of the independent status/warning agreements.
type AgreementCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type Result struct {
	SchemaID        string           `json:"schema_id"`
	SchemaVersion   string           `json:"schema_version"`
	RunID           string           `json:"run_id"`
	BundleID        string           `json:"bundle_id"`
	Reason          string           `json:"reason,omitempty"`
	Status          string           `json:"status"`
	FileChecks      []FileCheck      `json:"file_checks"`
	AgreementChecks []AgreementCheck `json:"agreement_checks"`
	Summary         string           `json:"summary"`
	ReportPath      string           `json:"-"`
}

// comparedReports lists the recomputed artifacts a replay must reproduce,
// relative to the reports directory.
func comparedReports() []string {
	return []string{
		schemagatee.CitationUtilizationFile,
		schemagatee.NumericClaimsFile,
		schemagatee.SectionsPresentFile,
		schemagatee.StatusFile,
	}
}

// Replay validates the bundle, recomputes the Gate E reports into a scratch
// subdirectory, and compares artifacts and verdicts. Pass requires every file
// digest to match and all four status/warning agreements to hold.
func Replay(bundleRoot, reason string) (Result, error) {
	descriptor, err := bundle.Validate(bundleRoot)
	if err != nil {
		return Result{}, err
	}

	doc, err := manifest.Load(filepath.Join(bundleRoot, "state", "manifest.json"))
	if err != nil {
		return Result{}, asBundleInvalid(err)
	}
	gatesDoc, err := manifest.LoadGates(filepath.Join(bundleRoot, "state", "gates.json"))
	if err != nil {
		return Result{}, asBundleInvalid(err)
	}
	if doc.RunID != descriptor.RunID || gatesDoc.RunID != descriptor.RunID {
		return Result{}, asBundleInvalid(fmt.Errorf("run_id disagreement: bundle=%s manifest=%s gates=%s",
			descriptor.RunID, doc.RunID, gatesDoc.RunID))
	}

	scratchRoot := filepath.Join(bundleRoot, scratchDir)
	recomputed, err := gatee.EvaluateTree(doc, bundleRoot, scratchRoot)
	if err != nil {
		return Result{}, coreerrors.Wrap(fmt.Errorf("recompute gate reports: %w", err),
			coreerrors.CategoryVerification, coreerrors.CodeReportRecomputeFailed,
			"the bundled inputs no longer evaluate cleanly", false)
	}

	fileChecks, err := compareReportFiles(bundleRoot, scratchRoot)
	if err != nil {
		return Result{}, err
	}
	agreementChecks, err := compareVerdicts(bundleRoot, recomputed.Eval, gatesDoc)
	if err != nil {
		return Result{}, err
	}

	status := gates.StatusPass
	for _, check := range fileChecks {
		if !check.Match {
			status = gates.StatusFail
		}
	}
	for _, check := range agreementChecks {
		if !check.OK {
			status = gates.StatusFail
		}
	}

	result := Result{
		SchemaID:        ReportSchemaID,
		SchemaVersion:   reportSchemaVersion,
		RunID:           descriptor.RunID,
		BundleID:        descriptor.BundleID,
		Reason:          reason,
		Status:          status,
		FileChecks:      fileChecks,
		AgreementChecks: agreementChecks,
		Summary:         summarize(status, fileChecks, agreementChecks),
	}
	reportPath, err := writeReplayReport(scratchRoot, result)
	if err != nil {
		return Result{}, err
	}
	result.ReportPath = reportPath

	event := audit.NewEvent(descriptor.RunID, schemaaudit.KindReplay, reason)
	event.Detail = fmt.Sprintf("bundle=%s status=%s", descriptor.BundleID, status)
	audit.AppendBestEffort(filepath.Join(scratchRoot, "audit.jsonl"), event)

	return result, nil
}

func compareReportFiles(bundleRoot, scratchRoot string) ([]FileCheck, error) {
	checks := make([]FileCheck, 0, len(comparedReports()))
	for _, file := range comparedReports() {
		bundledPath := filepath.Join(bundleRoot, "reports", file)
		recomputedPath := filepath.Join(scratchRoot, "reports", file)

		bundled, err := os.ReadFile(bundledPath) // #nosec G304 -- paths derive from the validated bundle root.
		if err != nil {
			return nil, compareFailed(fmt.Errorf("read bundled report %s: %w", file, err))
		}
		fresh, err := os.ReadFile(recomputedPath) // #nosec G304 -- scratch path derives from the bundle root.
		if err != nil {
			return nil, compareFailed(fmt.Errorf("read recomputed report %s: %w", file, err))
		}
		bundledDigest := jcs.DigestBytes(bundled)
		recomputedDigest := jcs.DigestBytes(fresh)
		checks = append(checks, FileCheck{
			Path:             "reports/" + file,
			BundledDigest:    bundledDigest,
			RecomputedDigest: recomputedDigest,
			Match:            bundledDigest == recomputedDigest,
		})
	}
	return checks, nil
}

// compareVerdicts re-derives status and warnings three ways (fresh
// evaluation, bundled status report, bundled gates snapshot) and requires
// exact agreement as four independent checks.
func compareVerdicts(bundleRoot string, fresh gatee.Evaluation, gatesDoc gates.Document) ([]AgreementCheck, error) {
	raw, err := os.ReadFile(filepath.Join(bundleRoot, "reports", schemagatee.StatusFile)) // #nosec G304
	if err != nil {
		return nil, compareFailed(fmt.Errorf("read bundled status report: %w", err))
	}
	var bundledStatus schemagatee.StatusReport
	if err := json.Unmarshal(raw, &bundledStatus); err != nil {
		return nil, compareFailed(fmt.Errorf("parse bundled status report: %w", err))
	}
	gateRecord, ok := gatesDoc.Gates["E"]
	if !ok {
		return nil, compareFailed(fmt.Errorf("gates snapshot has no record for gate E"))
	}

	checks := []AgreementCheck{
		agreement("status_report_status", bundledStatus.Status, fresh.Status),
		warningAgreement("status_report_warnings", bundledStatus.Warnings, fresh.Warnings),
		agreement("gates_snapshot_status", gateRecord.Status, fresh.Status),
		warningAgreement("gates_snapshot_warnings", gateRecord.Warnings, fresh.Warnings),
	}
	return checks, nil
}

func agreement(name, recorded, fresh string) AgreementCheck {
	check := AgreementCheck{Name: name, OK: recorded == fresh}
	if !check.OK {
		check.Detail = fmt.Sprintf("recorded %q, recomputed %q", recorded, fresh)
	}
	return check
}

func warningAgreement(name string, recorded, fresh []string) AgreementCheck {
	recordedSorted := slices.Clone(recorded)
	freshSorted := slices.Clone(fresh)
	slices.Sort(recordedSorted)
	slices.Sort(freshSorted)
	check := AgreementCheck{Name: name, OK: slices.Equal(recordedSorted, freshSorted)}
	if !check.OK {
		check.Detail = fmt.Sprintf("recorded %v, recomputed %v", recordedSorted, freshSorted)
	}
	return check
}

func summarize(status string, fileChecks []FileCheck, agreementChecks []AgreementCheck) string {
	mismatches := 0
	for _, check := range fileChecks {
		if !check.Match {
			mismatches++
		}
	}
	disagreements := 0
	for _, check := range agreementChecks {
		if !check.OK {
			disagreements++
		}
	}
	return fmt.Sprintf("%s: %d/%d files matched, %d/%d verdict checks agreed",
		status, len(fileChecks)-mismatches, len(fileChecks), len(agreementChecks)-disagreements, len(agreementChecks))
}

func writeReplayReport(scratchRoot string, result Result) (string, error) {
	canonical, err := jcs.MarshalCanonical(result)
	if err != nil {
		return "", coreerrors.Wrap(fmt.Errorf("encode replay report: %w", err),
			coreerrors.CategoryInternalFailure, coreerrors.CodeWriteFailed, "", false)
	}
	path := filepath.Join(scratchRoot, "replay_report.json")
	if err := fsx.WriteCanonicalDocument(path, canonical, 0o600); err != nil {
		return "", coreerrors.Wrap(fmt.Errorf("persist replay report: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "", false)
	}
	return path, nil
}

func asBundleInvalid(err error) error {
	return coreerrors.Wrap(err,
		coreerrors.CategoryVerification, coreerrors.CodeBundleInvalid,
		"re-freeze the bundle from an intact run", false)
}

func compareFailed(cause error) error {
	return coreerrors.Wrap(cause,
		coreerrors.CategoryVerification, coreerrors.CodeCompareFailed,
		"a comparison input was malformed; inspect the bundle", false)
}
