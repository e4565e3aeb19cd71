package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/plumb/core/manifest"
	schemarun "github.com/davidahmann/plumb/core/schema/v1/run"
)

func TestRunDispatch(t *testing.T) {
	if code := run([]string{"plumb"}); code != exitOK {
		t.Fatalf("run without args: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"plumb", "version"}); code != exitOK {
		t.Fatalf("run version: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"plumb", "unknown"}); code != exitInvalidInput {
		t.Fatalf("run unknown: expected %d got %d", exitInvalidInput, code)
	}
	if code := run([]string{"plumb", "--explain"}); code != exitOK {
		t.Fatalf("run explain: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"plumb", "run", "init", "--help"}); code != exitOK {
		t.Fatalf("run init help: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"plumb", "run", "patch", "--explain"}); code != exitOK {
		t.Fatalf("run patch explain: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"plumb", "watchdog", "check", "--help"}); code != exitOK {
		t.Fatalf("watchdog help: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"plumb", "gate", "eval", "--help"}); code != exitOK {
		t.Fatalf("gate eval help: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"plumb", "fixture", "freeze", "--help"}); code != exitOK {
		t.Fatalf("fixture freeze help: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"plumb", "replay", "--help"}); code != exitOK {
		t.Fatalf("replay help: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"plumb", "watchdog", "nonsense"}); code != exitInvalidInput {
		t.Fatalf("watchdog unknown subcommand: expected %d got %d", exitInvalidInput, code)
	}
}

func TestNormalizeCommand(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"plumb"}, "version"},
		{[]string{"plumb", "--version"}, "version"},
		{[]string{"plumb", "--explain"}, "explain"},
		{[]string{"plumb", "run", "init"}, "run init"},
		{[]string{"plumb", "gate", "eval", "--manifest", "x"}, "gate eval"},
		{[]string{"plumb", "replay", "--bundle", "x"}, "replay"},
	}
	for _, tc := range cases {
		if got := normalizeCommand(tc.args); got != tc.want {
			t.Errorf("normalizeCommand(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}

const cliSynthesis = `## Summary

Adoption grew steadily [@src_a].

## Key Findings

No blockers remain [@src_b].

## Evidence

Interviews corroborate the telemetry.

## Caveats

Early data.
`

func seedCLIRun(t *testing.T) (root, manifestPath string) {
	t.Helper()
	root = filepath.Join(t.TempDir(), "run-cli")
	if code := run([]string{"plumb", "run", "init", "--root", root, "--run-id", "run-cli", "--json"}); code != exitOK {
		t.Fatalf("run init exit = %d", code)
	}
	manifestPath = filepath.Join(root, "state", "manifest.json")
	if err := os.WriteFile(filepath.Join(root, "synthesis", "final-synthesis.md"), []byte(cliSynthesis), 0o600); err != nil {
		t.Fatalf("write synthesis: %v", err)
	}
	citations := `{"cid":"src_a","status":"valid"}` + "\n" + `{"cid":"src_b","status":"valid"}` + "\n"
	if err := os.WriteFile(filepath.Join(root, "citations", "citations.jsonl"), []byte(citations), 0o600); err != nil {
		t.Fatalf("write citations: %v", err)
	}
	return root, manifestPath
}

func TestRunLifecycleThroughCLI(t *testing.T) {
	_, manifestPath := seedCLIRun(t)

	if code := run([]string{"plumb", "run", "patch", "--manifest", manifestPath,
		"--expected-revision", "1", "--status", "running", "--json"}); code != exitOK {
		t.Fatalf("run patch exit = %d", code)
	}
	// The same expected revision a second time is a stale write.
	if code := run([]string{"plumb", "run", "patch", "--manifest", manifestPath,
		"--expected-revision", "1", "--status", "failed", "--json"}); code != exitConflict {
		t.Fatalf("stale run patch exit = %d, want %d", code, exitConflict)
	}
	if code := run([]string{"plumb", "run", "show", "--manifest", manifestPath, "--json"}); code != exitOK {
		t.Fatalf("run show exit = %d", code)
	}

	doc, err := manifest.Load(manifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Status != schemarun.StatusRunning || doc.Revision != 2 {
		t.Errorf("manifest = status %s revision %d", doc.Status, doc.Revision)
	}
}

func TestGateEvalAndReplayThroughCLI(t *testing.T) {
	root, manifestPath := seedCLIRun(t)

	if code := run([]string{"plumb", "gate", "eval", "--manifest", manifestPath, "--json"}); code != exitOK {
		t.Fatalf("gate eval exit = %d", code)
	}
	gatesDoc, err := manifest.LoadGates(filepath.Join(root, "state", "gates.json"))
	if err != nil {
		t.Fatalf("LoadGates: %v", err)
	}
	if gatesDoc.Gates["E"].Status != "pass" {
		t.Fatalf("gate E status = %q", gatesDoc.Gates["E"].Status)
	}

	bundleDir := filepath.Join(t.TempDir(), "bundle")
	if code := run([]string{"plumb", "fixture", "freeze", "--manifest", manifestPath, "--out", bundleDir, "--json"}); code != exitOK {
		t.Fatalf("fixture freeze exit = %d", code)
	}
	if code := run([]string{"plumb", "replay", "--bundle", bundleDir, "--json"}); code != exitOK {
		t.Fatalf("replay exit = %d", code)
	}

	seededDir := filepath.Join(t.TempDir(), "seeded")
	if code := run([]string{"plumb", "fixture", "seed", "--bundle", bundleDir, "--dest", seededDir, "--json"}); code != exitOK {
		t.Fatalf("fixture seed exit = %d", code)
	}
	if _, err := os.Stat(filepath.Join(seededDir, "synthesis", "final-synthesis.md")); err != nil {
		t.Errorf("seeded root incomplete: %v", err)
	}

	// Tampering with the bundled synthesis must surface as a verification failure.
	tampered := cliSynthesis + "\nUncited growth of 73% this week.\n"
	if err := os.WriteFile(filepath.Join(bundleDir, "synthesis", "final-synthesis.md"), []byte(tampered), 0o600); err != nil {
		t.Fatalf("tamper synthesis: %v", err)
	}
	if code := run([]string{"plumb", "replay", "--bundle", bundleDir, "--json"}); code != exitVerifyFailed {
		t.Fatalf("tampered replay exit = %d, want %d", code, exitVerifyFailed)
	}
}

func TestGateEvalFailVerdictExitCode(t *testing.T) {
	root, manifestPath := seedCLIRun(t)
	failing := strings.Replace(cliSynthesis, "Adoption grew steadily [@src_a].", "Adoption grew 18% this quarter.", 1)
	if err := os.WriteFile(filepath.Join(root, "synthesis", "final-synthesis.md"), []byte(failing), 0o600); err != nil {
		t.Fatalf("rewrite synthesis: %v", err)
	}

	if code := run([]string{"plumb", "gate", "eval", "--manifest", manifestPath, "--json"}); code != exitVerifyFailed {
		t.Fatalf("gate eval exit = %d, want %d", code, exitVerifyFailed)
	}
	gatesDoc, err := manifest.LoadGates(filepath.Join(root, "state", "gates.json"))
	if err != nil {
		t.Fatalf("LoadGates: %v", err)
	}
	if gatesDoc.Gates["E"].Status != "fail" {
		t.Errorf("gate E status = %q, want fail", gatesDoc.Gates["E"].Status)
	}
}

func TestWatchdogCheckThroughCLI(t *testing.T) {
	_, manifestPath := seedCLIRun(t)

	doc, err := manifest.Load(manifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	within := doc.Stage.StartedAt
	if code := run([]string{"plumb", "watchdog", "check", "--manifest", manifestPath, "--now", within, "--json"}); code != exitOK {
		t.Fatalf("within-allowance check exit = %d", code)
	}
	if code := run([]string{"plumb", "watchdog", "check", "--manifest", manifestPath,
		"--stage", "plan", "--now", within, "--json"}); code != exitInvalidInput {
		t.Fatalf("stage mismatch exit = %d, want %d", code, exitInvalidInput)
	}
}
