// Package watchdog detects stalled stages by elapsed wall-clock time. The
// check itself is read-only polling; only a detected timeout mutates the run,
// through the manifest state machine, and that failure is terminal.
package watchdog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/plumb/core/audit"
	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/fsx"
	"github.com/davidahmann/plumb/core/manifest"
	schemaaudit "github.com/davidahmann/plumb/core/schema/v1/audit"
	"github.com/davidahmann/plumb/core/schema/v1/run"
)

// DefaultTimeouts maps each stage to its allowance in seconds.
func DefaultTimeouts() map[string]int {
	return map[string]int{
		run.StageInit:      300,
		run.StagePlan:      900,
		run.StageWave1:     1800,
		run.StageWave2:     1800,
		run.StageCitations: 900,
		run.StageSummary:   900,
		run.StageSynthesis: 1800,
		run.StageGates:     600,
	}
}

// LoadTimeouts merges a YAML override file ({stage: seconds}) over the
// defaults. An empty path returns the defaults unchanged.
func LoadTimeouts(path string) (map[string]int, error) {
	timeouts := DefaultTimeouts()
	if path == "" {
		return timeouts, nil
	}
	raw, err := os.ReadFile(path) // #nosec G304 -- timeout table path is caller-provided config.
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("read timeout table: %w", err),
			coreerrors.CategoryNotFound, coreerrors.CodeNotFound, "check the --timeouts path", false)
	}
	overrides := map[string]int{}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("parse timeout table: %w", err),
			coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidArgs, "the timeout table must map stage names to seconds", false)
	}
	for stage, seconds := range overrides {
		if seconds <= 0 {
			return nil, coreerrors.Wrap(fmt.Errorf("timeout for stage %q must be positive, got %d", stage, seconds),
				coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidArgs, "", false)
		}
		timeouts[stage] = seconds
	}
	return timeouts, nil
}

type CheckOptions struct {
	// StageOverride, when set, must equal the manifest's current stage.
	StageOverride string
	// Now overrides the wall clock; zero means time.Now.
	Now time.Time
	// Timeouts overrides the stage timeout table; nil means DefaultTimeouts.
	Timeouts map[string]int
}

type CheckResult struct {
	RunID          string `json:"run_id"`
	Stage          string `json:"stage"`
	TimedOut       bool   `json:"timed_out"`
	ElapsedSeconds int    `json:"elapsed_s"`
	TimeoutSeconds int    `json:"timeout_s"`
	CheckpointPath string `json:"checkpoint_path,omitempty"`
	NewRevision    int    `json:"new_revision,omitempty"`
}

// Check computes elapsed time in the manifest's current stage. Within the
// allowance it is side-effect free. Past the allowance (strictly greater) it
// writes a checkpoint artifact and drives the manifest to a terminal failed
// status with an appended timeout failure.
func Check(manifestPath string, options CheckOptions) (CheckResult, error) {
	doc, err := manifest.Load(manifestPath)
	if err != nil {
		return CheckResult{}, err
	}
	stage := doc.Stage.Current
	if options.StageOverride != "" && options.StageOverride != stage {
		return CheckResult{}, coreerrors.Wrap(
			fmt.Errorf("stage override %q does not match manifest stage %q", options.StageOverride, stage),
			coreerrors.CategoryInvalidInput, coreerrors.CodeStageMismatch,
			"re-read the manifest; the run has moved on", false)
	}

	timeouts := options.Timeouts
	if timeouts == nil {
		timeouts = DefaultTimeouts()
	}
	timeoutSeconds, ok := timeouts[stage]
	if !ok {
		return CheckResult{}, coreerrors.Wrap(fmt.Errorf("no timeout configured for stage %q", stage),
			coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidArgs, "add the stage to the timeout table", false)
	}

	startedAt, err := time.Parse(time.RFC3339, doc.Stage.StartedAt)
	if err != nil {
		return CheckResult{}, coreerrors.Wrap(fmt.Errorf("parse stage started_at: %w", err),
			coreerrors.CategorySchemaViolation, coreerrors.CodeInvalidJSON, "", false)
	}
	now := options.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	elapsedSeconds := int(now.Sub(startedAt) / time.Second)
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}

	result := CheckResult{
		RunID:          doc.RunID,
		Stage:          stage,
		ElapsedSeconds: elapsedSeconds,
		TimeoutSeconds: timeoutSeconds,
	}
	if elapsedSeconds <= timeoutSeconds {
		return result, nil
	}

	checkpointPath, err := writeCheckpoint(doc, stage, elapsedSeconds, timeoutSeconds, now)
	if err != nil {
		return CheckResult{}, err
	}
	applied, err := failRun(manifestPath, doc, stage, elapsedSeconds, timeoutSeconds, now)
	if err != nil {
		return CheckResult{}, err
	}
	if auditPath, auditErr := manifest.ArtifactPath(doc, run.PathAuditLog); auditErr == nil {
		event := audit.NewEvent(doc.RunID, schemaaudit.KindWatchdogTimeout,
			fmt.Sprintf("stage %s exceeded %ds", stage, timeoutSeconds))
		event.NewRevision = applied.NewRevision
		event.Detail = checkpointPath
		audit.AppendBestEffort(auditPath, event)
	}

	result.TimedOut = true
	result.CheckpointPath = checkpointPath
	result.NewRevision = applied.NewRevision
	return result, nil
}

func writeCheckpoint(doc run.Manifest, stage string, elapsedSeconds, timeoutSeconds int, now time.Time) (string, error) {
	logsDir, err := manifest.ArtifactPath(doc, run.PathLogs)
	if err != nil {
		return "", err
	}
	auditRel := doc.Artifacts.Paths[run.PathAuditLog]
	checkpointPath := filepath.Join(logsDir, fmt.Sprintf("watchdog-%s.md", stage))
	content := fmt.Sprintf(`# Watchdog checkpoint

- run_id: %s
- stage: %s
- elapsed_s: %d
- timeout_s: %d
- detected_at: %s
- audit_log: %s

The stage exceeded its allowance and the run was marked failed. Retrying is an
explicit external decision recorded back into the manifest.
`, doc.RunID, stage, elapsedSeconds, timeoutSeconds, now.UTC().Format(time.RFC3339), auditRel)
	if err := fsx.WriteFileAtomic(checkpointPath, []byte(content), 0o600); err != nil {
		return "", coreerrors.Wrap(fmt.Errorf("write checkpoint: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "check filesystem permissions", false)
	}
	return checkpointPath, nil
}

func failRun(manifestPath string, doc run.Manifest, stage string, elapsedSeconds, timeoutSeconds int, now time.Time) (manifest.ApplyResult, error) {
	status := run.StatusFailed
	failures := append(append([]run.Failure{}, doc.Failures...), run.Failure{
		Kind:      "timeout",
		Stage:     stage,
		Message:   fmt.Sprintf("stage %s exceeded %ds after %ds", stage, timeoutSeconds, elapsedSeconds),
		Retryable: false,
		TS:        now.UTC().Format(time.RFC3339),
	})
	return manifest.Apply(manifestPath, manifest.Patch{
		Status:   &status,
		Failures: failures,
	}, doc.Revision, fmt.Sprintf("watchdog timeout in stage %s", stage))
}
