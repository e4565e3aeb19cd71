package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/davidahmann/plumb/core/replay"
	"github.com/davidahmann/plumb/core/schema/v1/gates"
)

type replayOutput struct {
	OK              bool                    `json:"ok"`
	RunID           string                  `json:"run_id,omitempty"`
	BundleID        string                  `json:"bundle_id,omitempty"`
	Status          string                  `json:"status,omitempty"`
	Summary         string                  `json:"summary,omitempty"`
	FileChecks      []replay.FileCheck      `json:"file_checks,omitempty"`
	AgreementChecks []replay.AgreementCheck `json:"agreement_checks,omitempty"`
	ReportPath      string                  `json:"report_path,omitempty"`
	errorEnvelope
}

func runReplay(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Re-run the Gate E engine against a frozen fixture bundle and prove the recorded reports are bit-reproducible: four content-hash comparisons plus four status/warning agreements. A mismatch is a failed verification, not an error.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"bundle": true, "reason": true,
	})
	flagSet := flag.NewFlagSet("replay", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var bundleRoot string
	var reason string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&bundleRoot, "bundle", "", "bundle directory to replay")
	flagSet.StringVar(&reason, "reason", "", "reason recorded on the audit trail")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeReplayOutput(jsonOutput, replayOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}
	if helpFlag {
		printReplayUsage()
		return exitOK
	}
	if strings.TrimSpace(bundleRoot) == "" {
		err := fmt.Errorf("--bundle is required")
		return writeReplayOutput(jsonOutput, replayOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}
	if reason == "" {
		reason = "manual replay"
	}

	result, err := replay.Replay(bundleRoot, reason)
	if err != nil {
		return writeReplayOutput(jsonOutput, replayOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	exitCode := exitOK
	if result.Status != gates.StatusPass {
		exitCode = exitVerifyFailed
	}
	return writeReplayOutput(jsonOutput, replayOutput{
		OK:              true,
		RunID:           result.RunID,
		BundleID:        result.BundleID,
		Status:          result.Status,
		Summary:         result.Summary,
		FileChecks:      result.FileChecks,
		AgreementChecks: result.AgreementChecks,
		ReportPath:      result.ReportPath,
	}, exitCode)
}

func writeReplayOutput(jsonOutput bool, output replayOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		fmt.Printf("replay error: %s\n", output.Error)
		return exitCode
	}
	fmt.Printf("replay %s\n", output.Summary)
	for _, check := range output.FileChecks {
		marker := "ok"
		if !check.Match {
			marker = "MISMATCH"
		}
		fmt.Printf("  %-8s %s\n", marker, check.Path)
	}
	for _, check := range output.AgreementChecks {
		marker := "ok"
		if !check.OK {
			marker = "DISAGREE"
		}
		fmt.Printf("  %-8s %s", marker, check.Name)
		if check.Detail != "" {
			fmt.Printf(" (%s)", check.Detail)
		}
		fmt.Println()
	}
	fmt.Printf("report: %s\n", output.ReportPath)
	return exitCode
}
