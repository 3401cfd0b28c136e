// Package errors carries the structured error codes shared by the query
// pipeline, its transports and the workflow job worker.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode is a stable, machine-readable failure code.
type ErrorCode string

// Outcome codes. These surface on failed envelopes as the "error" field.
const (
	ErrCodeNoMatchFound       ErrorCode = "NO_MATCH_FOUND"
	ErrCodeLowConfidence      ErrorCode = "LOW_CONFIDENCE"
	ErrCodeMissingSources     ErrorCode = "MISSING_SOURCES"
	ErrCodeUnsupportedContent ErrorCode = "UNSUPPORTED_CONTENT"
	ErrCodeCompanyUnresolved  ErrorCode = "COMPANY_UNRESOLVED"
)

// Infrastructure codes.
const (
	ErrCodeSearchQueryFailed    ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeCacheUnavailable     ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidRequest       ErrorCode = "INVALID_REQUEST"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// BPMNError is thrown back to the workflow engine when a job cannot complete.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns the job variables sent alongside a fail or throw
// command.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewNoMatchFoundError(details string) *StandardError {
	return newError(ErrCodeNoMatchFound, "No matching documentation found", details, false)
}

// NewLowConfidenceError records the computed confidence in Metadata.
func NewLowConfidenceError(confidence, threshold float64) *StandardError {
	e := newError(ErrCodeLowConfidence, "Confidence below threshold",
		fmt.Sprintf("confidence: %.3f, threshold: %.3f", confidence, threshold), false)
	e.Metadata = map[string]interface{}{"confidence": confidence, "threshold": threshold}
	return e
}

func NewMissingSourcesError(details string) *StandardError {
	return newError(ErrCodeMissingSources, "Source documents missing", details, false)
}

func NewUnsupportedContentError(details string) *StandardError {
	return newError(ErrCodeUnsupportedContent, "Response content not supported by sources", details, false)
}

func NewCompanyUnresolvedError(company string) *StandardError {
	return newError(ErrCodeCompanyUnresolved, "Company could not be resolved", fmt.Sprintf("company: %s", company), false)
}

func NewSearchQueryFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Search backend error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Entity store query error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
}

func NewCacheUnavailableError(err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Response cache unavailable", err.Error(), true)
}

func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid query request", details, false)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// BPMNErrorMapping renames internal codes for the process model where the
// two differ. Codes missing here are thrown unchanged.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeNoMatchFound:       "QUERY_NO_MATCH",
	ErrCodeLowConfidence:      "QUERY_LOW_CONFIDENCE",
	ErrCodeMissingSources:     "QUERY_MISSING_SOURCES",
	ErrCodeUnsupportedContent: "QUERY_UNSUPPORTED_CONTENT",
	ErrCodeInvalidRequest:     "QUERY_INVALID_REQUEST",
}

// GetRetryCount returns how many times the job worker should retry code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSearchQueryFailed, ErrCodeQueryExecutionFailed:
		return 3
	case ErrCodeCacheUnavailable:
		return 1
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, ok := BPMNErrorMapping[stdErr.Code]
	if !ok {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// AsStandardError unwraps err to a *StandardError when one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch c := string(code); {
	case code == ErrCodeLowConfidence, code == ErrCodeMissingSources, code == ErrCodeUnsupportedContent:
		return "VALIDATION"
	case code == ErrCodeNoMatchFound, code == ErrCodeCompanyUnresolved:
		return "RETRIEVAL"
	case strings.Contains(c, "SEARCH"):
		return "SEARCH"
	case strings.Contains(c, "QUERY"):
		return "DATABASE"
	case strings.Contains(c, "CACHE"):
		return "CACHE"
	case strings.Contains(c, "INVALID"):
		return "REQUEST"
	default:
		return "OTHER"
	}
}
