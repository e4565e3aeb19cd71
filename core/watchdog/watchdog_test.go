package watchdog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/manifest"
	"github.com/davidahmann/plumb/core/schema/v1/run"
)

var stageStart = time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

func initWatchedRun(t *testing.T) manifest.InitResult {
	t.Helper()
	result, err := manifest.InitRun(manifest.InitOptions{
		RunID: "run-001",
		Root:  filepath.Join(t.TempDir(), "run-001"),
		Now:   stageStart,
	})
	if err != nil {
		t.Fatalf("InitRun: %v", err)
	}
	return result
}

func TestCheckWithinAllowanceIsReadOnly(t *testing.T) {
	result := initWatchedRun(t)
	before, err := os.ReadFile(result.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}

	check, err := Check(result.ManifestPath, CheckOptions{
		Now: stageStart.Add(300 * time.Second), // exactly at the allowance
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if check.TimedOut {
		t.Error("elapsed == timeout must not time out; the boundary is strictly greater")
	}
	if check.ElapsedSeconds != 300 || check.TimeoutSeconds != 300 {
		t.Errorf("elapsed/timeout = %d/%d", check.ElapsedSeconds, check.TimeoutSeconds)
	}

	after, err := os.ReadFile(result.ManifestPath)
	if err != nil {
		t.Fatalf("re-read manifest: %v", err)
	}
	if string(before) != string(after) {
		t.Error("a within-allowance check modified the manifest")
	}
}

func TestCheckPastAllowanceFailsRun(t *testing.T) {
	result := initWatchedRun(t)

	check, err := Check(result.ManifestPath, CheckOptions{
		Now: stageStart.Add(301 * time.Second),
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !check.TimedOut {
		t.Fatal("elapsed == timeout+1 must time out")
	}
	if check.NewRevision != 2 {
		t.Errorf("new revision = %d, want 2", check.NewRevision)
	}

	content, err := os.ReadFile(check.CheckpointPath)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	if !strings.Contains(string(content), "run-001") || !strings.Contains(string(content), "stage: init") {
		t.Errorf("checkpoint content:\n%s", content)
	}
	if filepath.Base(check.CheckpointPath) != "watchdog-init.md" {
		t.Errorf("checkpoint path = %s", check.CheckpointPath)
	}

	doc, err := manifest.Load(result.ManifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Status != run.StatusFailed {
		t.Errorf("status = %q, want failed", doc.Status)
	}
	if len(doc.Failures) != 1 {
		t.Fatalf("failures = %+v, want one timeout entry", doc.Failures)
	}
	failure := doc.Failures[0]
	if failure.Kind != "timeout" || failure.Stage != run.StageInit || failure.Retryable {
		t.Errorf("failure = %+v", failure)
	}

	trail, err := os.ReadFile(filepath.Join(result.Root, "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("read audit trail: %v", err)
	}
	if !strings.Contains(string(trail), `"kind":"watchdog_timeout"`) {
		t.Error("audit trail is missing the watchdog_timeout event")
	}
}

func TestCheckStageOverrideMismatch(t *testing.T) {
	result := initWatchedRun(t)

	_, err := Check(result.ManifestPath, CheckOptions{
		StageOverride: run.StagePlan,
		Now:           stageStart.Add(time.Second),
	})
	if !coreerrors.IsCode(err, coreerrors.CodeStageMismatch) {
		t.Fatalf("err = %v, want stage_mismatch", err)
	}
}

func TestCheckClockSkewClampsToZero(t *testing.T) {
	result := initWatchedRun(t)

	check, err := Check(result.ManifestPath, CheckOptions{
		Now: stageStart.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if check.ElapsedSeconds != 0 || check.TimedOut {
		t.Errorf("check = %+v; a clock behind started_at must clamp to zero", check)
	}
}

func TestCheckUnknownStageInTimeoutTable(t *testing.T) {
	result := initWatchedRun(t)

	_, err := Check(result.ManifestPath, CheckOptions{
		Now:      stageStart.Add(time.Second),
		Timeouts: map[string]int{run.StagePlan: 900},
	})
	if !coreerrors.IsCode(err, coreerrors.CodeInvalidArgs) {
		t.Fatalf("err = %v, want invalid_args", err)
	}
}

func TestLoadTimeoutsMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeouts.yaml")
	if err := os.WriteFile(path, []byte("wave1: 60\nsynthesis: 7200\n"), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}

	timeouts, err := LoadTimeouts(path)
	if err != nil {
		t.Fatalf("LoadTimeouts: %v", err)
	}
	if timeouts[run.StageWave1] != 60 || timeouts[run.StageSynthesis] != 7200 {
		t.Errorf("overrides not applied: %v", timeouts)
	}
	if timeouts[run.StageInit] != 300 {
		t.Errorf("defaults lost: %v", timeouts)
	}
}

func TestLoadTimeoutsRejectsNonPositive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeouts.yaml")
	if err := os.WriteFile(path, []byte("wave1: 0\n"), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}
	if _, err := LoadTimeouts(path); !coreerrors.IsCode(err, coreerrors.CodeInvalidArgs) {
		t.Fatalf("err = %v, want invalid_args", err)
	}
}

func TestLoadTimeoutsEmptyPathReturnsDefaults(t *testing.T) {
	timeouts, err := LoadTimeouts("")
	if err != nil {
		t.Fatalf("LoadTimeouts: %v", err)
	}
	if len(timeouts) != 8 {
		t.Errorf("default table has %d stages, want 8", len(timeouts))
	}
}
