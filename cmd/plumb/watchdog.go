package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davidahmann/plumb/core/watchdog"
)

type watchdogOutput struct {
	OK             bool   `json:"ok"`
	RunID          string `json:"run_id,omitempty"`
	Stage          string `json:"stage,omitempty"`
	TimedOut       bool   `json:"timed_out"`
	ElapsedSeconds int    `json:"elapsed_s,omitempty"`
	TimeoutSeconds int    `json:"timeout_s,omitempty"`
	CheckpointPath string `json:"checkpoint_path,omitempty"`
	NewRevision    int    `json:"new_revision,omitempty"`
	errorEnvelope
}

func runWatchdog(arguments []string) int {
	if len(arguments) == 0 || arguments[0] != "check" {
		printWatchdogUsage()
		return exitInvalidInput
	}
	return runWatchdogCheck(arguments[1:])
}

func runWatchdogCheck(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Check elapsed time in the manifest's current stage against the timeout table. Within the allowance the check is read-only; past it, a checkpoint is written and the run is failed terminally.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"manifest": true, "stage": true, "now": true, "timeouts": true,
	})
	flagSet := flag.NewFlagSet("watchdog-check", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var manifestPath string
	var stageOverride string
	var nowText string
	var timeoutsPath string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&manifestPath, "manifest", "", "path to manifest.json")
	flagSet.StringVar(&stageOverride, "stage", "", "stage the caller believes is current")
	flagSet.StringVar(&nowText, "now", "", "RFC3339 clock override (testing)")
	flagSet.StringVar(&timeoutsPath, "timeouts", "", "YAML stage timeout table override")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeWatchdogOutput(jsonOutput, watchdogOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}
	if helpFlag {
		printWatchdogUsage()
		return exitOK
	}
	if strings.TrimSpace(manifestPath) == "" {
		err := fmt.Errorf("--manifest is required")
		return writeWatchdogOutput(jsonOutput, watchdogOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
	}

	options := watchdog.CheckOptions{StageOverride: stageOverride}
	if nowText != "" {
		parsed, err := time.Parse(time.RFC3339, nowText)
		if err != nil {
			err = fmt.Errorf("parse --now: %w", err)
			return writeWatchdogOutput(jsonOutput, watchdogOutput{errorEnvelope: envelopeFor(err)}, exitInvalidInput)
		}
		options.Now = parsed.UTC()
	}
	timeouts, err := watchdog.LoadTimeouts(timeoutsPath)
	if err != nil {
		return writeWatchdogOutput(jsonOutput, watchdogOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInvalidInput))
	}
	options.Timeouts = timeouts

	result, err := watchdog.Check(manifestPath, options)
	if err != nil {
		return writeWatchdogOutput(jsonOutput, watchdogOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	return writeWatchdogOutput(jsonOutput, watchdogOutput{
		OK:             true,
		RunID:          result.RunID,
		Stage:          result.Stage,
		TimedOut:       result.TimedOut,
		ElapsedSeconds: result.ElapsedSeconds,
		TimeoutSeconds: result.TimeoutSeconds,
		CheckpointPath: result.CheckpointPath,
		NewRevision:    result.NewRevision,
	}, exitOK)
}

func writeWatchdogOutput(jsonOutput bool, output watchdogOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if !output.OK {
		fmt.Printf("watchdog error: %s\n", output.Error)
		return exitCode
	}
	if output.TimedOut {
		fmt.Printf("watchdog: stage %s TIMED OUT (%ds > %ds); checkpoint %s, run failed at revision %d\n",
			output.Stage, output.ElapsedSeconds, output.TimeoutSeconds, output.CheckpointPath, output.NewRevision)
		return exitCode
	}
	fmt.Printf("watchdog: stage %s within allowance (%ds of %ds)\n",
		output.Stage, output.ElapsedSeconds, output.TimeoutSeconds)
	return exitCode
}
