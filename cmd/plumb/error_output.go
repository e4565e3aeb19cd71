package main

import (
	"encoding/json"
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/plumb/core/errors"
)

const (
	exitOK              = 0
	exitInternalFailure = 1
	exitInvalidInput    = 2
	exitVerifyFailed    = 3
	exitConflict        = 4
	exitNotFound        = 5
)

// errorEnvelope is embedded in every command output; empty on success.
type errorEnvelope struct {
	Error         string `json:"error,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
	Hint          string `json:"hint,omitempty"`
}

func envelopeFor(err error) errorEnvelope {
	if err == nil {
		return errorEnvelope{}
	}
	envelope := errorEnvelope{
		Error:         err.Error(),
		ErrorCode:     coreerrors.CodeOf(err),
		ErrorCategory: string(coreerrors.CategoryOf(err)),
		Retryable:     coreerrors.RetryableOf(err),
		Hint:          coreerrors.HintOf(err),
	}
	if envelope.ErrorCode == "" {
		envelope.ErrorCode = coreerrors.CodeInvalidArgs
	}
	if envelope.ErrorCategory == "" {
		envelope.ErrorCategory = string(coreerrors.CategoryInvalidInput)
	}
	return envelope
}

func exitCodeForError(err error, fallbackExit int) int {
	if err == nil {
		return exitOK
	}
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput, coreerrors.CategorySchemaViolation, coreerrors.CategoryPathTraversal:
		return exitInvalidInput
	case coreerrors.CategoryNotFound:
		return exitNotFound
	case coreerrors.CategoryStateContention:
		return exitConflict
	case coreerrors.CategoryVerification:
		return exitVerifyFailed
	case coreerrors.CategoryIOFailure, coreerrors.CategoryInternalFailure:
		return exitInternalFailure
	}
	return fallbackExit
}

func writeJSONOutput(output any, exitCode int) int {
	encoded, err := marshalWithCorrelation(output)
	if err != nil {
		fmt.Println(`{"ok":false,"error":"failed to encode output","error_code":"internal_failure","error_category":"internal_failure","retryable":false}`)
		return exitInternalFailure
	}
	fmt.Println(string(encoded))
	return exitCode
}

func marshalWithCorrelation(output any) ([]byte, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	if existing, _ := result["correlation_id"].(string); strings.TrimSpace(existing) == "" {
		if correlationID := currentCorrelationID(); correlationID != "" {
			result["correlation_id"] = correlationID
		}
	}
	return json.Marshal(result)
}
