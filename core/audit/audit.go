// Package audit appends per-run events to a newline-delimited JSON stream.
// Logging is a side channel: callers on correctness-critical paths use
// AppendBestEffort, which never propagates a failure.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/plumb/core/fsx"
	"github.com/davidahmann/plumb/core/jcs"
	schemaaudit "github.com/davidahmann/plumb/core/schema/v1/audit"
)

// NewEvent fills in identity and timestamp fields for an event.
func NewEvent(runID, kind, reason string) schemaaudit.Event {
	return schemaaudit.Event{
		SchemaID:      schemaaudit.SchemaID,
		SchemaVersion: schemaaudit.SchemaVersion,
		EventID:       uuid.NewString(),
		RunID:         runID,
		TS:            time.Now().UTC().Format(time.RFC3339Nano),
		Kind:          kind,
		Reason:        reason,
	}
}

// Append writes one event line to the trail.
func Append(path string, event schemaaudit.Event) error {
	line, err := jcs.MarshalCanonical(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	if err := fsx.AppendLineLocked(path, line, 0o600); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// AppendBestEffort writes one event line and swallows any failure. The audit
// trail must never block the operation that triggered it.
func AppendBestEffort(path string, event schemaaudit.Event) {
	_ = Append(path, event)
}
