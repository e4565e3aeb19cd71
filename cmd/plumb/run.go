package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davidahmann/plumb/core/manifest"
	schemarun "github.com/davidahmann/plumb/core/schema/v1/run"
)

type runInitOutput struct {
	OK           bool   `json:"ok"`
	RunID        string `json:"run_id,omitempty"`
	Root         string `json:"root,omitempty"`
	ManifestPath string `json:"manifest_path,omitempty"`
	GatesPath    string `json:"gates_path,omitempty"`
	Revision     int    `json:"revision,omitempty"`
	errorEnvelope
}

type runPatchOutput struct {
	OK           bool   `json:"ok"`
	RunID        string `json:"run_id,omitempty"`
	PrevRevision int    `json:"prev_revision,omitempty"`
	NewRevision  int    `json:"new_revision,omitempty"`
	errorEnvelope
}

type runShowOutput struct {
	OK       bool          `json:"ok"`
	Manifest *schemarun.Manifest `json:"manifest,omitempty"`
	errorEnvelope
}

func runRun(arguments []string) int {
	if len(arguments) == 0 {
		printRunUsage()
		return exitInvalidInput
	}
	switch arguments[0] {
	case "init":
		return runRunInit(arguments[1:])
	case "patch":
		return runRunPatch(arguments[1:])
	case "show":
		return runRunShow(arguments[1:])
	default:
		printRunUsage()
		return exitInvalidInput
	}
}

func runRunInit(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Create a run root with a revision-1 manifest and a gates document with every gate not_run.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"root": true, "run-id": true, "stage": true,
	})
	flagSet := flag.NewFlagSet("run-init", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var root string
	var runID string
	var stage string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&root, "root", "", "run root directory to create")
	flagSet.StringVar(&runID, "run-id", "", "run identifier")
	flagSet.StringVar(&stage, "stage", "", "initial stage (default init)")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeRunInitOutput(jsonOutput, runInitOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}
	if helpFlag {
		printRunUsage()
		return exitOK
	}
	if strings.TrimSpace(root) == "" || strings.TrimSpace(runID) == "" {
		err := fmt.Errorf("--root and --run-id are required")
		return writeRunInitOutput(jsonOutput, runInitOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}

	result, err := manifest.InitRun(manifest.InitOptions{
		RunID: runID,
		Root:  root,
		Stage: stage,
	})
	if err != nil {
		return writeRunInitOutput(jsonOutput, runInitOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeRunInitOutput(jsonOutput, runInitOutput{
		OK:           true,
		RunID:        result.RunID,
		Root:         result.Root,
		ManifestPath: result.ManifestPath,
		GatesPath:    result.GatesPath,
		Revision:     result.Revision,
	}, exitOK)
}

func runRunPatch(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Apply one revision-checked patch to the manifest: status, stage transition, or an appended failure. A stale --expected-revision is rejected without side effects.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"manifest": true, "expected-revision": true, "status": true,
		"stage": true, "now": true, "reason": true,
		"failure-kind": true, "failure-message": true,
	})
	flagSet := flag.NewFlagSet("run-patch", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var manifestPath string
	var expectedRevision int
	var status string
	var stage string
	var nowText string
	var reason string
	var failureKind string
	var failureMessage string
	var failureRetryable bool
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&manifestPath, "manifest", "", "path to manifest.json")
	flagSet.IntVar(&expectedRevision, "expected-revision", 0, "revision the caller read")
	flagSet.StringVar(&status, "status", "", "new run status")
	flagSet.StringVar(&stage, "stage", "", "advance to this stage")
	flagSet.StringVar(&nowText, "now", "", "RFC3339 clock override for the transition")
	flagSet.StringVar(&reason, "reason", "", "reason recorded on the audit trail")
	flagSet.StringVar(&failureKind, "failure-kind", "", "append a failure of this kind")
	flagSet.StringVar(&failureMessage, "failure-message", "", "failure message")
	flagSet.BoolVar(&failureRetryable, "failure-retryable", false, "mark the appended failure retryable")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeRunPatchOutput(jsonOutput, runPatchOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}
	if helpFlag {
		printRunUsage()
		return exitOK
	}
	if strings.TrimSpace(manifestPath) == "" || expectedRevision < 1 {
		err := fmt.Errorf("--manifest and --expected-revision (>=1) are required")
		return writeRunPatchOutput(jsonOutput, runPatchOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}

	patch, err := buildPatch(manifestPath, status, stage, nowText, failureKind, failureMessage, failureRetryable)
	if err != nil {
		return writeRunPatchOutput(jsonOutput, runPatchOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInvalidInput))
	}
	if reason == "" {
		reason = "manual patch"
	}
	result, err := manifest.Apply(manifestPath, patch, expectedRevision, reason)
	if err != nil {
		return writeRunPatchOutput(jsonOutput, runPatchOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeRunPatchOutput(jsonOutput, runPatchOutput{
		OK:           true,
		RunID:        result.RunID,
		PrevRevision: result.PrevRevision,
		NewRevision:  result.NewRevision,
	}, exitOK)
}

// buildPatch translates the flag surface into the typed patch. A stage
// transition closes out the current history entry and restarts the stage
// clock; a failure flag appends to the full failures array.
func buildPatch(manifestPath, status, stage, nowText, failureKind, failureMessage string, failureRetryable bool) (manifest.Patch, error) {
	patch := manifest.Patch{}
	if status != "" {
		patch.Status = &status
	}
	if stage == "" && failureKind == "" {
		if status == "" {
			return manifest.Patch{}, fmt.Errorf("nothing to patch: pass --status, --stage, or --failure-kind")
		}
		return patch, nil
	}

	current, err := manifest.Load(manifestPath)
	if err != nil {
		return manifest.Patch{}, err
	}
	now := time.Now().UTC()
	if nowText != "" {
		parsed, parseErr := time.Parse(time.RFC3339, nowText)
		if parseErr != nil {
			return manifest.Patch{}, fmt.Errorf("parse --now: %w", parseErr)
		}
		now = parsed.UTC()
	}
	timestamp := now.Format(time.RFC3339)

	if stage != "" {
		history := append(append([]schemarun.StageHistory{}, current.Stage.History...), schemarun.StageHistory{
			Stage:     current.Stage.Current,
			EnteredAt: current.Stage.StartedAt,
			ExitedAt:  timestamp,
		})
		patch.Stage = &schemarun.Stage{
			Current:        stage,
			StartedAt:      timestamp,
			LastProgressAt: timestamp,
			History:        history,
		}
	}
	if failureKind != "" {
		patch.Failures = append(append([]schemarun.Failure{}, current.Failures...), schemarun.Failure{
			Kind:      failureKind,
			Stage:     current.Stage.Current,
			Message:   failureMessage,
			Retryable: failureRetryable,
			TS:        timestamp,
		})
	}
	return patch, nil
}

func runRunShow(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Print the manifest after schema validation. Read-only.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{"manifest": true})
	flagSet := flag.NewFlagSet("run-show", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var manifestPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&manifestPath, "manifest", "", "path to manifest.json")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeRunShowOutput(jsonOutput, runShowOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}
	if helpFlag {
		printRunUsage()
		return exitOK
	}
	if strings.TrimSpace(manifestPath) == "" {
		err := fmt.Errorf("--manifest is required")
		return writeRunShowOutput(jsonOutput, runShowOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}

	doc, err := manifest.Load(manifestPath)
	if err != nil {
		return writeRunShowOutput(jsonOutput, runShowOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeRunShowOutput(jsonOutput, runShowOutput{OK: true, Manifest: &doc}, exitOK)
}

func writeRunInitOutput(jsonOutput bool, output runInitOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.OK {
		fmt.Printf("run init ok: %s (revision %d)\n", output.Root, output.Revision)
		return exitCode
	}
	fmt.Printf("run init error: %s\n", output.Error)
	return exitCode
}

func writeRunPatchOutput(jsonOutput bool, output runPatchOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.OK {
		fmt.Printf("run patch ok: %s revision %d -> %d\n", output.RunID, output.PrevRevision, output.NewRevision)
		return exitCode
	}
	fmt.Printf("run patch error: %s\n", output.Error)
	return exitCode
}

func writeRunShowOutput(jsonOutput bool, output runShowOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.OK {
		fmt.Printf("run %s: status=%s stage=%s revision=%d failures=%d\n",
			output.Manifest.RunID, output.Manifest.Status, output.Manifest.Stage.Current,
			output.Manifest.Revision, len(output.Manifest.Failures))
		return exitCode
	}
	fmt.Printf("run show error: %s\n", output.Error)
	return exitCode
}
