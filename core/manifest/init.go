package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davidahmann/plumb/core/audit"
	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/fsx"
	"github.com/davidahmann/plumb/core/jcs"
	schemaaudit "github.com/davidahmann/plumb/core/schema/v1/audit"
	"github.com/davidahmann/plumb/core/schema/v1/gates"
	"github.com/davidahmann/plumb/core/schema/v1/run"
	"github.com/davidahmann/plumb/core/schema/validate"
)

type InitOptions struct {
	RunID  string
	Root   string
	Stage  string
	Limits run.Limits
	Now    time.Time
}

type InitResult struct {
	RunID        string `json:"run_id"`
	Root         string `json:"root"`
	ManifestPath string `json:"manifest_path"`
	GatesPath    string `json:"gates_path"`
	Revision     int    `json:"revision"`
}

// DefaultLimits are applied when the caller does not cap the run explicitly.
func DefaultLimits() run.Limits {
	return run.Limits{
		MaxAgentsPerWave:    6,
		MaxSummaryKB:        256,
		MaxReviewIterations: 3,
	}
}

// InitRun creates a run root with the standard layout, a revision-1 manifest,
// and a gates document with every gate not_run. A pre-existing run root is a
// conflict. Any downstream failure removes the partially created root.
func InitRun(options InitOptions) (InitResult, error) {
	if err := ValidateRunID(options.RunID); err != nil {
		return InitResult{}, err
	}
	root, err := filepath.Abs(options.Root)
	if err != nil {
		return InitResult{}, coreerrors.Wrap(fmt.Errorf("resolve run root: %w", err),
			coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidArgs, "pass a resolvable run root", false)
	}
	if _, statErr := os.Stat(root); statErr == nil {
		return InitResult{}, coreerrors.Wrap(fmt.Errorf("run root already exists: %s", root),
			coreerrors.CategoryStateContention, coreerrors.CodeAlreadyExistsConflict,
			"choose a new run root or archive the existing one", false)
	}

	stage := options.Stage
	if stage == "" {
		stage = run.StageInit
	}
	limits := options.Limits
	if limits == (run.Limits{}) {
		limits = DefaultLimits()
	}
	now := options.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	timestamp := now.UTC().Format(time.RFC3339)

	doc := run.Manifest{
		SchemaID:      run.SchemaID,
		SchemaVersion: run.SchemaVersion,
		RunID:         options.RunID,
		Revision:      1,
		Status:        run.StatusCreated,
		Stage: run.Stage{
			Current:        stage,
			StartedAt:      timestamp,
			LastProgressAt: timestamp,
			History:        []run.StageHistory{},
		},
		Limits: limits,
		Artifacts: run.Artifacts{
			Root:  root,
			Paths: run.DefaultArtifactPaths(),
		},
		Failures: []run.Failure{},
	}

	result, err := materializeRun(root, doc)
	if err != nil {
		_ = os.RemoveAll(root)
		return InitResult{}, err
	}
	return result, nil
}

func materializeRun(root string, doc run.Manifest) (InitResult, error) {
	for _, dir := range []string{"state", "logs", "synthesis", "citations", "reports"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o750); err != nil {
			return InitResult{}, coreerrors.Wrap(fmt.Errorf("create run layout: %w", err),
				coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "check filesystem permissions", false)
		}
	}

	manifestPath, err := ArtifactPath(doc, run.PathManifest)
	if err != nil {
		return InitResult{}, err
	}
	if err := writeValidatedDocument(manifestPath, doc, validate.DocManifest); err != nil {
		return InitResult{}, err
	}

	gatesPath, err := ArtifactPath(doc, run.PathGates)
	if err != nil {
		return InitResult{}, err
	}
	if err := writeValidatedDocument(gatesPath, gates.NewDocument(doc.RunID), validate.DocGates); err != nil {
		return InitResult{}, err
	}

	if auditPath, auditErr := ArtifactPath(doc, run.PathAuditLog); auditErr == nil {
		event := audit.NewEvent(doc.RunID, schemaaudit.KindRunInit, "run initialized")
		event.NewRevision = doc.Revision
		audit.AppendBestEffort(auditPath, event)
	}

	return InitResult{
		RunID:        doc.RunID,
		Root:         root,
		ManifestPath: manifestPath,
		GatesPath:    gatesPath,
		Revision:     doc.Revision,
	}, nil
}

func writeValidatedDocument(path string, value any, doc validate.Document) error {
	canonical, err := jcs.MarshalCanonical(value)
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("encode document: %w", err),
			coreerrors.CategoryInternalFailure, coreerrors.CodeWriteFailed, "", false)
	}
	if err := validate.ValidateJSON(doc, canonical); err != nil {
		return coreerrors.Wrap(err,
			coreerrors.CategorySchemaViolation, coreerrors.CodeSchemaValidationFailed, "", false)
	}
	if err := fsx.WriteCanonicalDocument(path, canonical, 0o600); err != nil {
		return coreerrors.Wrap(fmt.Errorf("persist document: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "check filesystem permissions", false)
	}
	return nil
}
