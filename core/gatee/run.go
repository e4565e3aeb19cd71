package gatee

import (
	"fmt"
	"os"
	"path/filepath"

	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/manifest"
	"github.com/davidahmann/plumb/core/schema/v1/run"
)

// RunResult bundles one full gate evaluation over a run tree: the pure
// evaluation, the assembled reports, and where they were written.
type RunResult struct {
	RunID       string
	Eval        Evaluation
	Reports     ReportSet
	ReportPaths map[string]string
	InputDigest string
}

// EvaluateTree resolves the synthesis and citation artifacts declared by the
// manifest against inputRoot, runs the engine, and writes the four reports
// under outputRoot. Replay passes a scratch outputRoot so the bundled inputs
// are never mutated.
func EvaluateTree(doc run.Manifest, inputRoot, outputRoot string) (RunResult, error) {
	synthesisRel, ok := doc.Artifacts.Paths[run.PathSynthesis]
	if !ok {
		return RunResult{}, missingArtifactPath(run.PathSynthesis)
	}
	citationsRel, ok := doc.Artifacts.Paths[run.PathCitations]
	if !ok {
		return RunResult{}, missingArtifactPath(run.PathCitations)
	}
	reportsRel, ok := doc.Artifacts.Paths[run.PathReports]
	if !ok {
		return RunResult{}, missingArtifactPath(run.PathReports)
	}

	synthesisPath := filepath.Join(inputRoot, filepath.FromSlash(synthesisRel))
	markdown, err := os.ReadFile(synthesisPath) // #nosec G304 -- path resolves from the validated manifest.
	if err != nil {
		if os.IsNotExist(err) {
			return RunResult{}, coreerrors.Wrap(fmt.Errorf("synthesis document not found: %s", synthesisPath),
				coreerrors.CategoryNotFound, coreerrors.CodeMissingArtifact, "the synthesis stage must complete first", false)
		}
		return RunResult{}, coreerrors.Wrap(fmt.Errorf("read synthesis: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "check filesystem permissions", false)
	}
	if capKB := doc.Limits.MaxSummaryKB; capKB > 0 && len(markdown) > capKB*1024 {
		return RunResult{}, coreerrors.Wrap(
			fmt.Errorf("synthesis document is %d bytes, over the %d KB cap", len(markdown), capKB),
			coreerrors.CategoryInvalidInput, coreerrors.CodeSizeCapExceeded,
			"raise limits.max_summary_kb or shorten the synthesis", false)
	}

	validatedCids, err := LoadValidatedCids(filepath.Join(inputRoot, filepath.FromSlash(citationsRel)))
	if err != nil {
		return RunResult{}, err
	}

	eval := Evaluate(string(markdown), validatedCids)
	inputDigest, err := InputDigest(synthesisRel, citationsRel, markdown, eval)
	if err != nil {
		return RunResult{}, coreerrors.Wrap(fmt.Errorf("fingerprint evaluation: %w", err),
			coreerrors.CategoryInternalFailure, coreerrors.CodeWriteFailed, "", false)
	}

	reports := BuildReports(doc.RunID, eval, inputDigest)
	reportsDir := filepath.Join(outputRoot, filepath.FromSlash(reportsRel))
	if err := os.MkdirAll(reportsDir, 0o750); err != nil {
		return RunResult{}, coreerrors.Wrap(fmt.Errorf("create reports directory: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "", false)
	}
	reportPaths, err := WriteReports(reportsDir, reports)
	if err != nil {
		return RunResult{}, err
	}

	return RunResult{
		RunID:       doc.RunID,
		Eval:        eval,
		Reports:     reports,
		ReportPaths: reportPaths,
		InputDigest: inputDigest,
	}, nil
}

// EvaluateManifest runs EvaluateTree against the manifest's own recorded root.
func EvaluateManifest(manifestPath string) (RunResult, error) {
	doc, err := manifest.Load(manifestPath)
	if err != nil {
		return RunResult{}, err
	}
	return EvaluateTree(doc, doc.Artifacts.Root, doc.Artifacts.Root)
}

func missingArtifactPath(key string) error {
	return coreerrors.Wrap(fmt.Errorf("artifact path %q is not declared in the manifest", key),
		coreerrors.CategoryNotFound, coreerrors.CodeMissingArtifact, "declare the path under artifacts.paths", false)
}
