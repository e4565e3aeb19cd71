package gatee

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	coreerrors "github.com/davidahmann/plumb/core/errors"
	"github.com/davidahmann/plumb/core/schema/v1/citation"
	"github.com/davidahmann/plumb/core/schema/validate"
)

// LoadValidatedCids reads a citations.jsonl stream and returns the cids whose
// independent validation landed on valid or paywalled.
func LoadValidatedCids(path string) (map[string]struct{}, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- citations path resolves from the manifest.
	if err != nil {
		if os.IsNotExist(err) {
			return nil, coreerrors.Wrap(fmt.Errorf("citations file not found: %s", path),
				coreerrors.CategoryNotFound, coreerrors.CodeMissingArtifact, "run citation validation first", false)
		}
		return nil, coreerrors.Wrap(fmt.Errorf("read citations: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "check filesystem permissions", false)
	}
	if err := validate.ValidateJSONL(validate.DocCitation, raw); err != nil {
		return nil, coreerrors.Wrap(err,
			coreerrors.CategorySchemaViolation, coreerrors.CodeSchemaValidationFailed,
			"every citations.jsonl line must be a citation record", false)
	}

	validated := map[string]struct{}{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record citation.Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, coreerrors.Wrap(fmt.Errorf("parse citation record: %w", err),
				coreerrors.CategorySchemaViolation, coreerrors.CodeInvalidJSON, "", false)
		}
		if record.Validated() {
			validated[record.CID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("scan citations: %w", err),
			coreerrors.CategoryIOFailure, coreerrors.CodeWriteFailed, "", false)
	}
	return validated, nil
}
