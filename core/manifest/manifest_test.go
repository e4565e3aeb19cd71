package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/schema/v1/run"
)

func initTestRun(t *testing.T) InitResult {
	t.Helper()
	result, err := InitRun(InitOptions{
		RunID: "run-001",
		Root:  filepath.Join(t.TempDir(), "run-001"),
		Now:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("InitRun: %v", err)
	}
	return result
}

func TestInitRunCreatesLayout(t *testing.T) {
	result := initTestRun(t)

	for _, relative := range []string{"state/manifest.json", "state/gates.json", "logs", "synthesis", "citations", "reports"} {
		if _, err := os.Stat(filepath.Join(result.Root, filepath.FromSlash(relative))); err != nil {
			t.Errorf("missing %s: %v", relative, err)
		}
	}

	doc, err := Load(result.ManifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Revision != 1 || doc.Status != run.StatusCreated || doc.Stage.Current != run.StageInit {
		t.Errorf("fresh manifest = revision %d status %s stage %s", doc.Revision, doc.Status, doc.Stage.Current)
	}
	if doc.Limits != DefaultLimits() {
		t.Errorf("limits = %+v, want defaults", doc.Limits)
	}

	gatesDoc, err := LoadGates(result.GatesPath)
	if err != nil {
		t.Fatalf("LoadGates: %v", err)
	}
	for gateID, record := range gatesDoc.Gates {
		if record.Status != "not_run" {
			t.Errorf("gate %s status = %q, want not_run", gateID, record.Status)
		}
	}
}

func TestInitRunRejectsExistingRoot(t *testing.T) {
	result := initTestRun(t)

	_, err := InitRun(InitOptions{RunID: "run-001", Root: result.Root})
	if !coreerrors.IsCode(err, coreerrors.CodeAlreadyExistsConflict) {
		t.Fatalf("err = %v, want already_exists_conflict", err)
	}
}

func TestInitRunRejectsTraversingRunID(t *testing.T) {
	for _, runID := range []string{"", "..", "a/b", `a\b`, "run..01"} {
		_, err := InitRun(InitOptions{RunID: runID, Root: filepath.Join(t.TempDir(), "r")})
		if err == nil {
			t.Errorf("run id %q accepted", runID)
		}
	}
}

func TestApplyIncrementsRevision(t *testing.T) {
	result := initTestRun(t)

	status := run.StatusRunning
	applied, err := Apply(result.ManifestPath, Patch{Status: &status}, 1, "start run")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied.PrevRevision != 1 || applied.NewRevision != 2 {
		t.Errorf("revisions = %d -> %d, want 1 -> 2", applied.PrevRevision, applied.NewRevision)
	}

	doc, err := Load(result.ManifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Status != run.StatusRunning || doc.Revision != 2 {
		t.Errorf("doc = status %s revision %d", doc.Status, doc.Revision)
	}
}

func TestApplyStaleRevisionLeavesDocumentUntouched(t *testing.T) {
	result := initTestRun(t)

	status := run.StatusRunning
	if _, err := Apply(result.ManifestPath, Patch{Status: &status}, 1, "start run"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	before, err := os.ReadFile(result.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}

	failed := run.StatusFailed
	_, err = Apply(result.ManifestPath, Patch{Status: &failed}, 1, "stale writer")
	if !coreerrors.IsCode(err, coreerrors.CodeConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if !coreerrors.RetryableOf(err) {
		t.Error("revision conflicts must be marked retryable")
	}

	after, err := os.ReadFile(result.ManifestPath)
	if err != nil {
		t.Fatalf("re-read manifest: %v", err)
	}
	if string(before) != string(after) {
		t.Error("a rejected patch modified the document")
	}
}

func TestApplyStageTransition(t *testing.T) {
	result := initTestRun(t)

	doc, err := Load(result.ManifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	timestamp := "2026-01-02T03:10:00Z"
	stage := run.Stage{
		Current:        run.StagePlan,
		StartedAt:      timestamp,
		LastProgressAt: timestamp,
		History: append(doc.Stage.History, run.StageHistory{
			Stage:     doc.Stage.Current,
			EnteredAt: doc.Stage.StartedAt,
			ExitedAt:  timestamp,
		}),
	}
	if _, err := Apply(result.ManifestPath, Patch{Stage: &stage}, doc.Revision, "advance to plan"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	updated, err := Load(result.ManifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if updated.Stage.Current != run.StagePlan {
		t.Errorf("stage = %q, want plan", updated.Stage.Current)
	}
	if len(updated.Stage.History) != 1 || updated.Stage.History[0].Stage != run.StageInit {
		t.Errorf("history = %+v, want one closed init entry", updated.Stage.History)
	}
}

func TestApplyRecordsAuditEvent(t *testing.T) {
	result := initTestRun(t)

	status := run.StatusRunning
	if _, err := Apply(result.ManifestPath, Patch{Status: &status}, 1, "start run"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	trail, err := os.ReadFile(filepath.Join(result.Root, "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("read audit trail: %v", err)
	}
	if !strings.Contains(string(trail), `"kind":"manifest_apply"`) {
		t.Error("audit trail is missing the manifest_apply event")
	}
	if !strings.Contains(string(trail), `"kind":"run_init"`) {
		t.Error("audit trail is missing the run_init event")
	}
}

func TestLoadRejectsMalformedManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")

	if _, err := Load(path); !coreerrors.IsCode(err, coreerrors.CodeNotFound) {
		t.Errorf("missing file err = %v, want not_found", err)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); !coreerrors.IsCode(err, coreerrors.CodeInvalidJSON) {
		t.Errorf("malformed err = %v, want invalid_json", err)
	}

	if err := os.WriteFile(path, []byte(`{"schema_id":"plumb.run.manifest"}`), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); !coreerrors.IsCode(err, coreerrors.CodeSchemaValidationFailed) {
		t.Errorf("incomplete err = %v, want schema_validation_failed", err)
	}
}

func TestArtifactPathRejectsTraversal(t *testing.T) {
	result := initTestRun(t)
	doc, err := Load(result.ManifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	doc.Artifacts.Paths["escape"] = "../outside.json"
	if _, err := ArtifactPath(doc, "escape"); !coreerrors.IsCode(err, coreerrors.CodePathTraversal) {
		t.Errorf("traversal err = %v, want path_traversal", err)
	}

	doc.Artifacts.Paths["absolute"] = "/etc/passwd"
	if _, err := ArtifactPath(doc, "absolute"); !coreerrors.IsCode(err, coreerrors.CodePathTraversal) {
		t.Errorf("absolute err = %v, want path_traversal", err)
	}

	if _, err := ArtifactPath(doc, "undeclared"); !coreerrors.IsCode(err, coreerrors.CodeMissingArtifact) {
		t.Errorf("undeclared err = %v, want missing_artifact", err)
	}
}
