// Package bundle freezes runs into immutable fixture directories and
// validates them before replay. Bundles never perform network access; no_web
// is asserted, not configurable.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/plumb/core/audit"
	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/fsx"
	"github.com/davidahmann/plumb/core/jcs"
	"github.com/davidahmann/plumb/core/manifest"
	schemaaudit "github.com/davidahmann/plumb/core/schema/v1/audit"
	schemabundle "github.com/davidahmann/plumb/core/schema/v1/bundle"
	"github.com/davidahmann/plumb/core/schema/v1/run"
	"github.com/davidahmann/plumb/core/schema/validate"
)

type FreezeResult struct {
	BundleID      string   `json:"bundle_id"`
	RunID         string   `json:"run_id"`
	Root          string   `json:"root"`
	IncludedPaths []string `json:"included_paths"`
}

// Freeze snapshots a run into a new bundle directory: the required file set
// plus bundle.json with a sorted included_paths list. A failure part-way
// removes the partially created bundle.
func Freeze(manifestPath, outDir string) (FreezeResult, error) {
	doc, err := manifest.Load(manifestPath)
	if err != nil {
		return FreezeResult{}, err
	}
	out, err := filepath.Abs(outDir)
	if err != nil {
		return FreezeResult{}, coreerrors.Wrap(fmt.Errorf("resolve bundle root: %w", err),
			coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidArgs, "", false)
	}
	if _, statErr := os.Stat(out); statErr == nil {
		return FreezeResult{}, coreerrors.Wrap(fmt.Errorf("bundle root already exists: %s", out),
			coreerrors.CategoryStateContention, coreerrors.CodeAlreadyExistsConflict,
			"choose a new bundle directory", false)
	}

	result, err := freezeInto(doc, out)
	if err != nil {
		_ = os.RemoveAll(out)
		return FreezeResult{}, err
	}
	return result, nil
}

func freezeInto(doc run.Manifest, out string) (FreezeResult, error) {
	included := schemabundle.RequiredPaths()
	for _, relative := range included {
		source := filepath.Join(doc.Artifacts.Root, filepath.FromSlash(relative))
		destination := filepath.Join(out, filepath.FromSlash(relative))
		if err := copyFile(source, destination); err != nil {
			return FreezeResult{}, err
		}
	}

	descriptor := schemabundle.Descriptor{
		SchemaID:      schemabundle.SchemaID,
		SchemaVersion: schemabundle.SchemaVersion,
		BundleID:      uuid.NewString(),
		RunID:         doc.RunID,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		NoWeb:         true,
		IncludedPaths: append([]string{}, included...),
	}
	sort.Strings(descriptor.IncludedPaths)

	canonical, err := jcs.MarshalCanonical(descriptor)
	if err != nil {
		return FreezeResult{}, coreerrors.Wrap(fmt.Errorf("encode bundle descriptor: %w", err),
			coreerrors.CategoryInternalFailure, coreerrors.CodeWriteFailed, "", false)
	}
	if err := validate.ValidateJSON(validate.DocBundle, canonical); err != nil {
		return FreezeResult{}, coreerrors.Wrap(err,
			coreerrors.CategorySchemaViolation, coreerrors.CodeSchemaValidationFailed, "", false)
	}
	if err := fsx.WriteCanonicalDocument(filepath.Join(out, schemabundle.DescriptorFile), canonical, 0o600); err != nil {
		return FreezeResult{}, coreerrors.Wrap(fmt.Errorf("persist bundle descriptor: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "", false)
	}

	if auditPath, auditErr := manifest.ArtifactPath(doc, run.PathAuditLog); auditErr == nil {
		event := audit.NewEvent(doc.RunID, schemaaudit.KindFixtureFreeze, "run frozen into fixture bundle")
		event.Detail = descriptor.BundleID
		audit.AppendBestEffort(auditPath, event)
	}

	return FreezeResult{
		BundleID:      descriptor.BundleID,
		RunID:         doc.RunID,
		Root:          out,
		IncludedPaths: descriptor.IncludedPaths,
	}, nil
}

// Validate checks bundle structure and metadata without touching any content:
// descriptor well-formedness, no_web, sorted included_paths covering the
// required set, and every declared path present as a plain file.
func Validate(bundleRoot string) (schemabundle.Descriptor, error) {
	descriptorPath := filepath.Join(bundleRoot, schemabundle.DescriptorFile)
	raw, err := os.ReadFile(descriptorPath) // #nosec G304 -- bundle root is caller-provided by design.
	if err != nil {
		return schemabundle.Descriptor{}, invalidBundle(fmt.Errorf("read bundle.json: %w", err))
	}
	var descriptor schemabundle.Descriptor
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return schemabundle.Descriptor{}, invalidBundle(fmt.Errorf("parse bundle.json: %w", err))
	}
	if err := validate.ValidateJSON(validate.DocBundle, raw); err != nil {
		return schemabundle.Descriptor{}, invalidBundle(err)
	}
	if !descriptor.NoWeb {
		return schemabundle.Descriptor{}, invalidBundle(fmt.Errorf("bundle must declare no_web=true; fixtures never perform network access"))
	}
	if !sort.StringsAreSorted(descriptor.IncludedPaths) {
		return schemabundle.Descriptor{}, invalidBundle(fmt.Errorf("included_paths must be lexicographically sorted"))
	}

	declared := make(map[string]struct{}, len(descriptor.IncludedPaths))
	for _, relative := range descriptor.IncludedPaths {
		declared[relative] = struct{}{}
	}
	for _, required := range schemabundle.RequiredPaths() {
		if _, ok := declared[required]; !ok {
			return schemabundle.Descriptor{}, invalidBundle(fmt.Errorf("included_paths is missing required file %s", required))
		}
	}
	for _, relative := range descriptor.IncludedPaths {
		info, statErr := os.Stat(filepath.Join(bundleRoot, filepath.FromSlash(relative)))
		if statErr != nil {
			return schemabundle.Descriptor{}, invalidBundle(fmt.Errorf("declared file missing: %s", relative))
		}
		if !info.Mode().IsRegular() {
			return schemabundle.Descriptor{}, invalidBundle(fmt.Errorf("declared path is not a plain file: %s", relative))
		}
	}
	return descriptor, nil
}

// Seed materializes a bundle into a fresh run root and re-anchors the seeded
// manifest at the destination, so later operations act on the copy rather than
// the run the bundle was frozen from. Any downstream failure removes the
// partially created root.
func Seed(bundleRoot, destRoot string) (FreezeResult, error) {
	descriptor, err := Validate(bundleRoot)
	if err != nil {
		return FreezeResult{}, err
	}
	dest, err := filepath.Abs(destRoot)
	if err != nil {
		return FreezeResult{}, coreerrors.Wrap(fmt.Errorf("resolve destination root: %w", err),
			coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidArgs, "", false)
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		return FreezeResult{}, coreerrors.Wrap(fmt.Errorf("destination root already exists: %s", dest),
			coreerrors.CategoryStateContention, coreerrors.CodeAlreadyExistsConflict,
			"choose a new destination directory", false)
	}

	for _, relative := range descriptor.IncludedPaths {
		source := filepath.Join(bundleRoot, filepath.FromSlash(relative))
		destination := filepath.Join(dest, filepath.FromSlash(relative))
		if err := copyFile(source, destination); err != nil {
			_ = os.RemoveAll(dest)
			return FreezeResult{}, err
		}
	}

	doc, err := reanchorSeededManifest(dest)
	if err != nil {
		_ = os.RemoveAll(dest)
		return FreezeResult{}, err
	}

	event := audit.NewEvent(descriptor.RunID, schemaaudit.KindFixtureSeed, "fixture bundle seeded into run root")
	event.Detail = descriptor.BundleID
	if auditPath, auditErr := manifest.ArtifactPath(doc, run.PathAuditLog); auditErr == nil {
		audit.AppendBestEffort(auditPath, event)
	}

	return FreezeResult{
		BundleID:      descriptor.BundleID,
		RunID:         descriptor.RunID,
		Root:          dest,
		IncludedPaths: descriptor.IncludedPaths,
	}, nil
}

// reanchorSeededManifest points the seeded manifest's artifacts.root at the
// destination. Without this every operation driven through the seeded manifest
// would read and mutate the source run's tree.
func reanchorSeededManifest(dest string) (run.Manifest, error) {
	manifestPath := filepath.Join(dest, "state", "manifest.json")
	doc, err := manifest.Load(manifestPath)
	if err != nil {
		return run.Manifest{}, invalidBundle(fmt.Errorf("load seeded manifest: %w", err))
	}
	doc.Artifacts.Root = dest

	canonical, err := jcs.MarshalCanonical(doc)
	if err != nil {
		return run.Manifest{}, coreerrors.Wrap(fmt.Errorf("encode seeded manifest: %w", err),
			coreerrors.CategoryInternalFailure, coreerrors.CodeWriteFailed, "", false)
	}
	if err := validate.ValidateJSON(validate.DocManifest, canonical); err != nil {
		return run.Manifest{}, coreerrors.Wrap(err,
			coreerrors.CategorySchemaViolation, coreerrors.CodeSchemaValidationFailed, "", false)
	}
	if err := fsx.WriteCanonicalDocument(manifestPath, canonical, 0o600); err != nil {
		return run.Manifest{}, coreerrors.Wrap(fmt.Errorf("persist seeded manifest: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "", false)
	}
	return doc, nil
}

func copyFile(source, destination string) error {
	data, err := os.ReadFile(source) // #nosec G304 -- both endpoints derive from validated roots.
	if err != nil {
		if os.IsNotExist(err) {
			return coreerrors.Wrap(fmt.Errorf("artifact not found: %s", source),
				coreerrors.CategoryNotFound, coreerrors.CodeMissingArtifact,
				"the run is missing a file the bundle requires", false)
		}
		return coreerrors.Wrap(fmt.Errorf("read %s: %w", source, err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "", false)
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o750); err != nil {
		return coreerrors.Wrap(fmt.Errorf("create directory for %s: %w", destination, err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "", false)
	}
	if err := fsx.WriteFileAtomic(destination, data, 0o600); err != nil {
		return coreerrors.Wrap(fmt.Errorf("write %s: %w", destination, err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "", false)
	}
	return nil
}

func invalidBundle(cause error) error {
	return coreerrors.Wrap(cause,
		coreerrors.CategoryVerification, coreerrors.CodeBundleInvalid,
		"re-freeze the bundle from an intact run", false)
}
