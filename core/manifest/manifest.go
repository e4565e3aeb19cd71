// Package manifest implements the run's authoritative state document and the
// compare-and-swap mutation path every writer must go through. The revision
// check is the system's only mutual-exclusion mechanism: a loser fails fast
// with a conflict and decides for itself whether to re-read and retry.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davidahmann/plumb/core/audit"
	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/fsx"
	"github.com/davidahmann/plumb/core/jcs"
	schemaaudit "github.com/davidahmann/plumb/core/schema/v1/audit"
	"github.com/davidahmann/plumb/core/schema/v1/run"
	"github.com/davidahmann/plumb/core/schema/validate"
)

// Patch is the typed shallow merge applied over the current document. Nil
// fields are left untouched. Failures replaces the full array; append-only
// semantics are the caller's obligation.
type Patch struct {
	Status   *string       `json:"status,omitempty"`
	Stage    *run.Stage    `json:"stage,omitempty"`
	Limits   *run.Limits   `json:"limits,omitempty"`
	Failures []run.Failure `json:"failures,omitempty"`
}

type ApplyResult struct {
	RunID        string `json:"run_id"`
	PrevRevision int    `json:"prev_revision"`
	NewRevision  int    `json:"new_revision"`
}

// Load reads, parses, and schema-validates a manifest document.
func Load(path string) (run.Manifest, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- manifest path is caller-provided by design.
	if err != nil {
		if os.IsNotExist(err) {
			return run.Manifest{}, coreerrors.Wrap(fmt.Errorf("manifest not found: %s", path),
				coreerrors.CategoryNotFound, coreerrors.CodeNotFound, "check the manifest path", false)
		}
		return run.Manifest{}, coreerrors.Wrap(fmt.Errorf("read manifest: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "check filesystem permissions", false)
	}
	var doc run.Manifest
	if err := json.Unmarshal(raw, &doc); err != nil {
		return run.Manifest{}, coreerrors.Wrap(fmt.Errorf("parse manifest: %w", err),
			coreerrors.CategorySchemaViolation, coreerrors.CodeInvalidJSON, "the manifest is not valid JSON", false)
	}
	if err := validate.ValidateJSON(validate.DocManifest, raw); err != nil {
		return run.Manifest{}, coreerrors.Wrap(err,
			coreerrors.CategorySchemaViolation, coreerrors.CodeSchemaValidationFailed, "the manifest violates manifest.v1", false)
	}
	return doc, nil
}

// Apply performs one optimistic-concurrency-checked mutation: re-read from
// disk, compare revisions, merge, schema-validate the result, persist
// atomically, and record the transition on the audit trail (best-effort).
func Apply(path string, patch Patch, expectedRevision int, reason string) (ApplyResult, error) {
	current, err := Load(path)
	if err != nil {
		return ApplyResult{}, err
	}
	if current.Revision != expectedRevision {
		return ApplyResult{}, coreerrors.Wrap(
			fmt.Errorf("revision conflict: expected %d, document is at %d", expectedRevision, current.Revision),
			coreerrors.CategoryStateContention, coreerrors.CodeConflict,
			"re-read the manifest and retry with the current revision", true)
	}

	merged := merge(current, patch)
	merged.Revision = current.Revision + 1

	canonical, err := jcs.MarshalCanonical(merged)
	if err != nil {
		return ApplyResult{}, coreerrors.Wrap(fmt.Errorf("encode manifest: %w", err),
			coreerrors.CategoryInternalFailure, coreerrors.CodeWriteFailed, "", false)
	}
	if err := validate.ValidateJSON(validate.DocManifest, canonical); err != nil {
		return ApplyResult{}, coreerrors.Wrap(err,
			coreerrors.CategorySchemaViolation, coreerrors.CodeSchemaValidationFailed,
			"the patched manifest violates manifest.v1; nothing was written", false)
	}
	if err := fsx.WriteCanonicalDocument(path, canonical, 0o600); err != nil {
		return ApplyResult{}, coreerrors.Wrap(fmt.Errorf("persist manifest: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "check filesystem permissions and free space", false)
	}

	appendApplyEvent(merged, current.Revision, patch, reason)

	return ApplyResult{
		RunID:        merged.RunID,
		PrevRevision: current.Revision,
		NewRevision:  merged.Revision,
	}, nil
}

func merge(current run.Manifest, patch Patch) run.Manifest {
	merged := current
	if patch.Status != nil {
		merged.Status = *patch.Status
	}
	if patch.Stage != nil {
		merged.Stage = *patch.Stage
	}
	if patch.Limits != nil {
		merged.Limits = *patch.Limits
	}
	if patch.Failures != nil {
		merged.Failures = patch.Failures
	}
	return merged
}

func appendApplyEvent(merged run.Manifest, prevRevision int, patch Patch, reason string) {
	auditPath, err := ArtifactPath(merged, run.PathAuditLog)
	if err != nil {
		return
	}
	event := audit.NewEvent(merged.RunID, schemaaudit.KindManifestApply, reason)
	event.PrevRevision = prevRevision
	event.NewRevision = merged.Revision
	if digest, digestErr := jcs.DigestValue(patch); digestErr == nil {
		event.PatchDigest = digest
	}
	audit.AppendBestEffort(auditPath, event)
}

// ArtifactPath resolves a named artifact path against the run root.
func ArtifactPath(doc run.Manifest, key string) (string, error) {
	relative, ok := doc.Artifacts.Paths[key]
	if !ok {
		return "", coreerrors.Wrap(fmt.Errorf("artifact path %q is not declared in the manifest", key),
			coreerrors.CategoryNotFound, coreerrors.CodeMissingArtifact, "declare the path under artifacts.paths", false)
	}
	if err := checkRelativeArtifactPath(relative); err != nil {
		return "", err
	}
	return filepath.Join(doc.Artifacts.Root, filepath.FromSlash(relative)), nil
}

func checkRelativeArtifactPath(relative string) error {
	if filepath.IsAbs(relative) || strings.HasPrefix(relative, "/") {
		return traversalError(relative)
	}
	for _, segment := range strings.Split(filepath.ToSlash(relative), "/") {
		if segment == ".." {
			return traversalError(relative)
		}
	}
	return nil
}

func traversalError(relative string) error {
	return coreerrors.Wrap(fmt.Errorf("artifact path %q escapes the run root", relative),
		coreerrors.CategoryPathTraversal, coreerrors.CodePathTraversal,
		"artifact paths must be relative and must not traverse parent directories", false)
}

// ValidateRunID rejects identifiers that could escape the run root when used
// as a path component.
func ValidateRunID(runID string) error {
	trimmed := strings.TrimSpace(runID)
	if trimmed == "" {
		return coreerrors.Wrap(fmt.Errorf("run_id is required"),
			coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidArgs, "pass a non-empty run id", false)
	}
	if strings.ContainsAny(trimmed, "/\\") || trimmed == "." || trimmed == ".." || strings.Contains(trimmed, "..") {
		return coreerrors.Wrap(fmt.Errorf("run_id %q contains path separators or traversal sequences", runID),
			coreerrors.CategoryPathTraversal, coreerrors.CodePathTraversal,
			"run ids may not contain path separators or ..", false)
	}
	return nil
}
