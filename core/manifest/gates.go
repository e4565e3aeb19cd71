package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/schema/v1/gates"
	"github.com/davidahmann/plumb/core/schema/validate"
)

// LoadGates reads, parses, and schema-validates a gates document.
func LoadGates(path string) (gates.Document, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- gates path is caller-provided by design.
	if err != nil {
		if os.IsNotExist(err) {
			return gates.Document{}, coreerrors.Wrap(fmt.Errorf("gates document not found: %s", path),
				coreerrors.CategoryNotFound, coreerrors.CodeNotFound, "initialize the run first", false)
		}
		return gates.Document{}, coreerrors.Wrap(fmt.Errorf("read gates document: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "check filesystem permissions", false)
	}
	var doc gates.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return gates.Document{}, coreerrors.Wrap(fmt.Errorf("parse gates document: %w", err),
			coreerrors.CategorySchemaViolation, coreerrors.CodeInvalidJSON, "the gates document is not valid JSON", false)
	}
	if err := validate.ValidateJSON(validate.DocGates, raw); err != nil {
		return gates.Document{}, coreerrors.Wrap(err,
			coreerrors.CategorySchemaViolation, coreerrors.CodeSchemaValidationFailed, "the gates document violates gates.v1", false)
	}
	return doc, nil
}

// WriteGateRecord replaces one gate's record wholesale and persists the
// document atomically. The document's run_id must match the manifest's.
func WriteGateRecord(path, runID, gateID string, record gates.Record) error {
	doc, err := LoadGates(path)
	if err != nil {
		return err
	}
	if doc.RunID != runID {
		return coreerrors.Wrap(fmt.Errorf("gates run_id %q does not match manifest run_id %q", doc.RunID, runID),
			coreerrors.CategoryInvalidInput, coreerrors.CodeInvalidArgs,
			"the gates document belongs to a different run", false)
	}
	if doc.Gates == nil {
		doc.Gates = map[string]gates.Record{}
	}
	doc.Gates[gateID] = record
	return writeValidatedDocument(path, doc, validate.DocGates)
}
