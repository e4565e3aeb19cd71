package main

import (
	"encoding/json"
	"errors"
	"testing"

	coreerrors "github.com/davidahmann/plumb/core/errors"
)

func TestEnvelopeForClassifiedError(t *testing.T) {
	err := coreerrors.Wrap(errors.New("revision conflict"),
		coreerrors.CategoryStateContention, coreerrors.CodeConflict, "re-read and retry", true)
	envelope := envelopeFor(err)

	if envelope.Error != "revision conflict" {
		t.Errorf("error = %q", envelope.Error)
	}
	if envelope.ErrorCode != coreerrors.CodeConflict || envelope.ErrorCategory != string(coreerrors.CategoryStateContention) {
		t.Errorf("envelope = %+v", envelope)
	}
	if !envelope.Retryable || envelope.Hint == "" {
		t.Errorf("envelope = %+v", envelope)
	}
}

func TestEnvelopeForPlainErrorDefaults(t *testing.T) {
	envelope := envelopeFor(errors.New("flag provided but not defined"))
	if envelope.ErrorCode != coreerrors.CodeInvalidArgs {
		t.Errorf("code = %q, want the invalid_args default", envelope.ErrorCode)
	}
	if envelope.ErrorCategory != string(coreerrors.CategoryInvalidInput) {
		t.Errorf("category = %q", envelope.ErrorCategory)
	}
}

func TestExitCodeForErrorCategoryMapping(t *testing.T) {
	cases := []struct {
		category coreerrors.Category
		want     int
	}{
		{coreerrors.CategoryInvalidInput, exitInvalidInput},
		{coreerrors.CategorySchemaViolation, exitInvalidInput},
		{coreerrors.CategoryPathTraversal, exitInvalidInput},
		{coreerrors.CategoryNotFound, exitNotFound},
		{coreerrors.CategoryStateContention, exitConflict},
		{coreerrors.CategoryVerification, exitVerifyFailed},
		{coreerrors.CategoryIOFailure, exitInternalFailure},
		{coreerrors.CategoryInternalFailure, exitInternalFailure},
	}
	for _, tc := range cases {
		err := coreerrors.Wrap(errors.New("x"), tc.category, "code", "", false)
		if got := exitCodeForError(err, exitInternalFailure); got != tc.want {
			t.Errorf("exit for %s = %d, want %d", tc.category, got, tc.want)
		}
	}
	if exitCodeForError(nil, exitInternalFailure) != exitOK {
		t.Error("nil error must exit ok")
	}
}

func TestMarshalWithCorrelationInjectsID(t *testing.T) {
	setCurrentCorrelationID("cafebabe")
	defer setCurrentCorrelationID("")

	encoded, err := marshalWithCorrelation(map[string]any{"ok": true})
	if err != nil {
		t.Fatalf("marshalWithCorrelation: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["correlation_id"] != "cafebabe" {
		t.Errorf("correlation_id = %v", decoded["correlation_id"])
	}
	if decoded["ok"] != true {
		t.Errorf("payload lost: %v", decoded)
	}
}
