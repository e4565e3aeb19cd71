package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/davidahmann/plumb/core/fsx"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	startedAt := time.Now()
	correlationID := newCorrelationID(arguments)
	setCurrentCorrelationID(correlationID)
	command := normalizeCommand(arguments)
	writeOperationalEvent(command, correlationID, "start", 0, 0, startedAt.UTC())
	exitCode := runDispatch(arguments)
	finishedAt := time.Now().UTC()
	writeOperationalEvent(command, correlationID, "end", exitCode, time.Since(startedAt), finishedAt)
	setCurrentCorrelationID("")
	return exitCode
}

func runDispatch(arguments []string) int {
	if len(arguments) < 2 {
		fmt.Println("plumb", version)
		return exitOK
	}
	if arguments[1] == "--explain" {
		return writeExplain("Plumb coordinates deterministic deep-research runs: a revision-checked run manifest, a stage watchdog, the Gate E quality evaluation, and fixture replay that proves reports are bit-reproducible.")
	}

	switch arguments[1] {
	case "run":
		return runRun(arguments[2:])
	case "watchdog":
		return runWatchdog(arguments[2:])
	case "gate":
		return runGate(arguments[2:])
	case "fixture":
		return runFixture(arguments[2:])
	case "replay":
		return runReplay(arguments[2:])
	case "version", "--version", "-v":
		if hasExplainFlag(arguments[2:]) {
			return writeExplain("Print the CLI version.")
		}
		fmt.Println("plumb", version)
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func normalizeCommand(arguments []string) string {
	if len(arguments) < 2 {
		return "version"
	}
	command := strings.TrimSpace(arguments[1])
	switch command {
	case "":
		return "unknown"
	case "--version", "-v", "version":
		return "version"
	case "--explain":
		return "explain"
	}
	if len(arguments) > 2 {
		subcommand := strings.TrimSpace(arguments[2])
		if subcommand != "" && !strings.HasPrefix(subcommand, "-") {
			return command + " " + subcommand
		}
	}
	return command
}

type operationalEvent struct {
	SchemaID      string `json:"schema_id"`
	Command       string `json:"command"`
	CorrelationID string `json:"correlation_id"`
	Phase         string `json:"phase"`
	ExitCode      int    `json:"exit_code,omitempty"`
	ElapsedMS     int64  `json:"elapsed_ms,omitempty"`
	TS            string `json:"ts"`
	Version       string `json:"version"`
}

// writeOperationalEvent appends to the optional operational stream. Failures
// warn on stderr and never change the command outcome.
func writeOperationalEvent(command, correlationID, phase string, exitCode int, elapsed time.Duration, now time.Time) {
	operationalPath := strings.TrimSpace(os.Getenv("PLUMB_OPERATIONAL_LOG"))
	if operationalPath == "" {
		return
	}
	event := operationalEvent{
		SchemaID:      "plumb.operational.event",
		Command:       command,
		CorrelationID: correlationID,
		Phase:         phase,
		TS:            now.Format(time.RFC3339Nano),
		Version:       version,
	}
	if phase == "end" {
		event.ExitCode = exitCode
		event.ElapsedMS = elapsed.Milliseconds()
	}
	line, err := json.Marshal(event)
	if err == nil {
		err = fsx.AppendLineLocked(operationalPath, line, 0o600)
	}
	if err != nil && !strings.EqualFold(strings.TrimSpace(os.Getenv("PLUMB_TELEMETRY_WARN")), "off") {
		fmt.Fprintf(os.Stderr, "plumb warning: operational log write failed: %v\n", err)
	}
}
