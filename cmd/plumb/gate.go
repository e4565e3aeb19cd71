package main

import (
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/plumb/core/audit"
	"github.com/davidahmann/plumb/core/gatee"
	"github.com/davidahmann/plumb/core/manifest"
	schemaaudit "github.com/davidahmann/plumb/core/schema/v1/audit"
	"github.com/davidahmann/plumb/core/schema/v1/gates"
	schemarun "github.com/davidahmann/plumb/core/schema/v1/run"
)

type gateEvalOutput struct {
	OK                    bool     `json:"ok"`
	RunID                 string   `json:"run_id,omitempty"`
	Status                string   `json:"status,omitempty"`
	UncitedNumericClaims  int      `json:"uncited_numeric_claims"`
	ReportSectionsPresent int      `json:"report_sections_present"`
	Warnings              []string `json:"warnings,omitempty"`
	InputDigest           string   `json:"input_digest,omitempty"`
	ReportPaths           []string `json:"report_paths,omitempty"`
	errorEnvelope
}

func runGate(arguments []string) int {
	if len(arguments) == 0 || arguments[0] != "eval" {
		printGateUsage()
		return exitInvalidInput
	}
	return runGateEval(arguments[1:])
}

func runGateEval(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Evaluate Gate E: uncited numeric claims, required section coverage, and citation utilization over the synthesis document. Writes four canonical reports and the gate record; pass and fail are both ok results.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{"manifest": true})
	flagSet := flag.NewFlagSet("gate-eval", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var manifestPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&manifestPath, "manifest", "", "path to manifest.json")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeGateEvalOutput(jsonOutput, gateEvalOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}
	if helpFlag {
		printGateUsage()
		return exitOK
	}
	if strings.TrimSpace(manifestPath) == "" {
		err := fmt.Errorf("--manifest is required")
		return writeGateEvalOutput(jsonOutput, gateEvalOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}

	doc, err := manifest.Load(manifestPath)
	if err != nil {
		return writeGateEvalOutput(jsonOutput, gateEvalOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	result, err := gatee.EvaluateManifest(manifestPath)
	if err != nil {
		return writeGateEvalOutput(jsonOutput, gateEvalOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}

	if err := recordGateResult(doc, result); err != nil {
		return writeGateEvalOutput(jsonOutput, gateEvalOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}

	reportPaths := make([]string, 0, len(result.ReportPaths))
	for _, path := range result.ReportPaths {
		reportPaths = append(reportPaths, path)
	}
	sort.Strings(reportPaths)
	output := gateEvalOutput{
		OK:                    true,
		RunID:                 result.RunID,
		Status:                result.Eval.Status,
		UncitedNumericClaims:  result.Eval.Metrics.UncitedNumericClaims,
		ReportSectionsPresent: result.Eval.Metrics.ReportSectionsPresent,
		Warnings:              result.Eval.Warnings,
		InputDigest:           result.InputDigest,
		ReportPaths:           reportPaths,
	}
	exitCode := exitOK
	if result.Eval.Status != gates.StatusPass {
		exitCode = exitVerifyFailed
	}
	return writeGateEvalOutput(jsonOutput, output, exitCode)
}

// recordGateResult writes the gate E record wholesale and notes the
// evaluation on the audit trail.
func recordGateResult(doc schemarun.Manifest, result gatee.RunResult) error {
	gatesPath, err := manifest.ArtifactPath(doc, schemarun.PathGates)
	if err != nil {
		return err
	}
	record := gates.Record{
		Status:    result.Eval.Status,
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
		Metrics:   gatee.GateMetrics(result.Eval.Metrics),
		Warnings:  result.Eval.Warnings,
	}
	if err := manifest.WriteGateRecord(gatesPath, doc.RunID, "E", record); err != nil {
		return err
	}

	if auditPath, auditErr := manifest.ArtifactPath(doc, schemarun.PathAuditLog); auditErr == nil {
		event := audit.NewEvent(doc.RunID, schemaaudit.KindGateEval, "gate E evaluated")
		event.PatchDigest = result.InputDigest
		event.Detail = result.Eval.Status
		audit.AppendBestEffort(auditPath, event)
	}
	return nil
}

func writeGateEvalOutput(jsonOutput bool, output gateEvalOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		fmt.Printf("gate eval error: %s\n", output.Error)
		return exitCode
	}
	fmt.Printf("gate E %s: uncited_numeric_claims=%d report_sections_present=%d\n",
		output.Status, output.UncitedNumericClaims, output.ReportSectionsPresent)
	if len(output.Warnings) > 0 {
		fmt.Printf("warnings: %s\n", strings.Join(output.Warnings, ", "))
	}
	return exitCode
}
