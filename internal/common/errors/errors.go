// Package errors provides standardized error handling for the admin gateway.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Topic registry / configuration errors (fatal at startup)
	ErrCodeSchemaInvalid ErrorCode = "SCHEMA_ERROR"
	ErrCodeTopicNotFound ErrorCode = "TOPIC_NOT_FOUND"

	// Guardrail outcomes (user-visible, never exceptions)
	ErrCodeOutOfScope ErrorCode = "OUT_OF_SCOPE"
	ErrCodeInjection  ErrorCode = "INJECTION"
	ErrCodeUngrounded ErrorCode = "UNGROUNDED"

	// Conversation state store
	ErrCodeStateStoreFailed  ErrorCode = "STATE_STORE_FAILED"
	ErrCodeStateStoreTimeout ErrorCode = "STATE_STORE_TIMEOUT"

	// Retrieval
	ErrCodeRetrievalConnectionFailed ErrorCode = "RETRIEVAL_CONNECTION_FAILED"
	ErrCodeRetrievalQueryFailed      ErrorCode = "RETRIEVAL_QUERY_FAILED"
	ErrCodeRetrievalTimeout          ErrorCode = "RETRIEVAL_TIMEOUT"
	ErrCodeIndexNotFound             ErrorCode = "INDEX_NOT_FOUND"

	// LLM collaborators
	ErrCodeLLMTimeout          ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMSynthesisFailed  ErrorCode = "LLM_SYNTHESIS_FAILED"
	ErrCodeIntentParsingFailed ErrorCode = "INTENT_PARSING_FAILED"

	// Audit / dispatch / notification
	ErrCodeAuditInsertFailed       ErrorCode = "AUDIT_INSERT_FAILED"
	ErrCodeWorkflowDispatchFailed  ErrorCode = "WORKFLOW_DISPATCH_FAILED"
	ErrCodeNotificationSendFailed  ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeDatabaseConnectionError ErrorCode = "DATABASE_CONNECTION_FAILED"
)

// StandardError represents a structured application error.
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

// ==========================
// 2. Error Constructors
// ==========================

// NewSchemaError creates a non-retryable topic definition error. Fatal at startup:
// the process must not serve traffic with partial or ambiguous topic data.
func NewSchemaError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchemaInvalid,
		Message:   "Malformed topic definition",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTopicNotFoundError creates a recoverable unknown-topic error.
func NewTopicNotFoundError(topicID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTopicNotFound,
		Message:   "Topic not found in registry",
		Details:   fmt.Sprintf("topicId: %s", topicID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStateStoreFailedError creates a retryable conversation state error.
func NewStateStoreFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateStoreFailed,
		Message:   "Conversation state store error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetrievalQueryFailedError creates a retryable retrieval error.
func NewRetrievalQueryFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetrievalQueryFailed,
		Message:   "Retrieval query error",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetrievalTimeoutError creates a retryable retrieval timeout error.
func NewRetrievalTimeoutError(index string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetrievalTimeout,
		Message:   "Retrieval query timeout",
		Details:   fmt.Sprintf("index: %s", index),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexNotFoundError creates a non-retryable index not found error.
func NewIndexNotFoundError(indexName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexNotFound,
		Message:   "Search index not found",
		Details:   fmt.Sprintf("indexName: %s", indexName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM call timeout",
		Details:   "call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMSynthesisFailedError creates a retryable LLM synthesis error.
func NewLLMSynthesisFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMSynthesisFailed,
		Message:   "LLM synthesis API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIntentParsingFailedError creates a retryable intent classification error.
func NewIntentParsingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIntentParsingFailed,
		Message:   "Intent classification error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuditInsertFailedError creates a retryable audit trail error.
func NewAuditInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditInsertFailed,
		Message:   "Audit record insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkflowDispatchFailedError creates a retryable workflow dispatch error.
func NewWorkflowDispatchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowDispatchFailed,
		Message:   "Agent workflow dispatch failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionError,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExternalServiceError creates a generic retryable external service error.
func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTimeoutError creates a generic retryable timeout error.
func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the recommended retry count per error code. Guardrail
// outcomes and configuration errors are never retried; uncertainty during a live
// turn is resolved by the caller to a safe verdict, not by retrying here.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStateStoreFailed,
		ErrCodeRetrievalConnectionFailed,
		ErrCodeRetrievalQueryFailed,
		ErrCodeDatabaseConnectionError,
		ErrCodeAuditInsertFailed,
		ErrCodeWorkflowDispatchFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeIntentParsingFailed,
		ErrCodeLLMSynthesisFailed:
		return 3

	case ErrCodeStateStoreTimeout,
		ErrCodeRetrievalTimeout:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SCHEMA") || strings.Contains(codeStr, "TOPIC"):
		return "REGISTRY"
	case strings.Contains(codeStr, "SCOPE") || strings.Contains(codeStr, "INJECTION") || strings.Contains(codeStr, "UNGROUNDED"):
		return "GUARDRAIL"
	case strings.Contains(codeStr, "STATE"):
		return "CONVERSATION"
	case strings.Contains(codeStr, "RETRIEVAL") || strings.Contains(codeStr, "INDEX"):
		return "RETRIEVAL"
	case strings.Contains(codeStr, "LLM") || strings.Contains(codeStr, "INTENT"):
		return "AI"
	case strings.Contains(codeStr, "WORKFLOW"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "AUDIT"):
		return "DATABASE"
	default:
		return "OTHER"
	}
}
