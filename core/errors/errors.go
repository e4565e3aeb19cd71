package errors

import "errors"

type Category string

const (
	CategoryInvalidInput    Category = "invalid_input"
	CategoryNotFound        Category = "not_found"
	CategorySchemaViolation Category = "schema_violation"
	CategoryPathTraversal   Category = "path_traversal"
	CategoryStateContention Category = "state_contention"
	CategoryVerification    Category = "verification_failed"
	CategoryIOFailure       Category = "io_failure"
	CategoryInternalFailure Category = "internal_failure"
)

// Stable machine-readable codes carried alongside the coarse category.
const (
	CodeInvalidArgs            = "invalid_args"
	CodeNotFound               = "not_found"
	CodeMissingArtifact        = "missing_artifact"
	CodeInvalidJSON            = "invalid_json"
	CodeSchemaValidationFailed = "schema_validation_failed"
	CodePathTraversal          = "path_traversal"
	CodeConflict               = "conflict"
	CodeAlreadyExistsConflict  = "already_exists_conflict"
	CodeStageMismatch          = "stage_mismatch"
	CodeSizeCapExceeded        = "size_cap_exceeded"
	CodeBundleInvalid          = "bundle_invalid"
	CodeReportRecomputeFailed  = "report_recompute_failed"
	CodeCompareFailed          = "compare_failed"
	CodeWriteFailed            = "write_failed"
)

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
