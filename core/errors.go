package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory is the closed classification taxonomy every error surfaced
// to callers is mapped into.
type ErrorCategory string

const (
	CategoryAuth          ErrorCategory = "auth"
	CategoryValidation    ErrorCategory = "validation"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryNetwork       ErrorCategory = "network"
	CategoryServer        ErrorCategory = "server"
	CategoryAgentConfig   ErrorCategory = "agent_config"
	CategoryToolExecution ErrorCategory = "tool_execution"
	CategoryUnknown       ErrorCategory = "unknown"
)

// Internal condition codes. Messages attached to these codes are generated
// by the runtime itself and are safe to show to callers verbatim.
const (
	CodeMaxHandoffsExceeded          = "MAX_HANDOFFS_EXCEEDED"
	CodeMaxIterationsExceeded        = "MAX_ITERATIONS_EXCEEDED"
	CodeRateLimitExceeded            = "RATE_LIMIT_EXCEEDED"
	CodeMaxActiveStreamsExceeded     = "MAX_ACTIVE_STREAMS_EXCEEDED"
	CodeConversationBusy             = "CONVERSATION_BUSY"
	CodeToolQueueTimeout             = "TOOL_QUEUE_TIMEOUT"
	CodeToolTimeout                  = "TOOL_TIMEOUT"
	CodeApprovalTimeout              = "APPROVAL_TIMEOUT"
	CodeMaxPendingApprovalsExceeded  = "MAX_PENDING_APPROVALS_EXCEEDED"
	CodeMCPTimeout                   = "MCP_TIMEOUT"
	CodeNoApprovalsApplied           = "NO_APPROVALS_APPLIED"
	CodeApprovalRejected             = "APPROVAL_REJECTED"
	CodeAgentNotFound                = "AGENT_NOT_FOUND"
	CodeToolExecutionFailed          = "TOOL_EXECUTION_FAILED"
	CodeUnknown                      = "UNKNOWN_ERROR"
)

// internalCodes maps runtime-generated codes to their category. An error
// carrying one of these codes keeps its original message through
// classification; everything else is replaced by a fixed safe message.
var internalCodes = map[string]ErrorCategory{
	CodeMaxHandoffsExceeded:         CategoryAgentConfig,
	CodeMaxIterationsExceeded:       CategoryAgentConfig,
	CodeRateLimitExceeded:           CategoryRateLimit,
	CodeMaxActiveStreamsExceeded:    CategoryRateLimit,
	CodeConversationBusy:            CategoryRateLimit,
	CodeToolQueueTimeout:            CategoryTimeout,
	CodeToolTimeout:                 CategoryTimeout,
	CodeApprovalTimeout:             CategoryTimeout,
	CodeMaxPendingApprovalsExceeded: CategoryAgentConfig,
	CodeMCPTimeout:                  CategoryTimeout,
	CodeNoApprovalsApplied:          CategoryValidation,
	CodeApprovalRejected:            CategoryToolExecution,
	CodeAgentNotFound:               CategoryAgentConfig,
}

// safeMessages are the fixed user-facing messages substituted for any error
// whose raw text may carry credentials, hostnames or stack traces.
var safeMessages = map[ErrorCategory]string{
	CategoryAuth:          "Authentication with the model backend failed.",
	CategoryValidation:    "The request was invalid.",
	CategoryRateLimit:     "Too many requests. Please slow down and retry.",
	CategoryTimeout:       "The operation timed out.",
	CategoryNetwork:       "A network error occurred while contacting an upstream service.",
	CategoryServer:        "An upstream service reported an internal error.",
	CategoryAgentConfig:   "The agent configuration is invalid.",
	CategoryToolExecution: "A tool failed to execute.",
	CategoryUnknown:       "An unexpected error occurred.",
}

// Error is a coded, categorized error. It is both the type the runtime uses
// for its own conditions and the output of Classify for arbitrary failures.
type Error struct {
	Code     string
	Category ErrorCategory
	Message  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s/%s] %s", e.Category, e.Code, e.Message)
}

// NewError constructs a coded error. The category is derived from the code
// when the code is one of the runtime's internal conditions.
func NewError(code string, message string) *Error {
	cat, ok := internalCodes[code]
	if !ok {
		cat = CategoryUnknown
	}
	return &Error{Code: code, Category: cat, Message: message}
}

// Errorf constructs a coded error with a formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// StatusError attaches an HTTP-style status code to an underlying error.
// Provider adapters wrap SDK failures with it so the classifier and the
// retry predicate can reason about status without vendor imports.
type StatusError struct {
	Status int
	Err    error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Status, e.Err)
}

// Unwrap exposes the wrapped error.
func (e *StatusError) Unwrap() error { return e.Err }

// HTTPStatus implements the optional status capability.
func (e *StatusError) HTTPStatus() int { return e.Status }

// statusCoder is the minimal capability the classifier probes for an
// HTTP-style status.
type statusCoder interface{ HTTPStatus() int }

// HTTPStatus extracts an HTTP-style status code from err, or 0.
func HTTPStatus(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// Classify maps an arbitrary error to the closed taxonomy and a safe
// user-facing message. Priority: internal code, HTTP status, message
// pattern. Raw messages of non-internal errors are discarded; only the
// fixed category message survives.
func Classify(err error, fallbackCode string) *Error {
	if err == nil {
		return nil
	}
	if fallbackCode == "" {
		fallbackCode = CodeUnknown
	}

	var cerr *Error
	if errors.As(err, &cerr) {
		if _, internal := internalCodes[cerr.Code]; internal {
			// Runtime-generated: code, category and message are safe.
			return cerr
		}
	}

	cat := categorize(err)
	return &Error{Code: fallbackCode, Category: cat, Message: safeMessages[cat]}
}

func categorize(err error) ErrorCategory {
	if status := HTTPStatus(err); status != 0 {
		switch {
		case status == 401 || status == 403:
			return CategoryAuth
		case status == 429:
			return CategoryRateLimit
		case status == 408:
			return CategoryTimeout
		case status >= 500:
			return CategoryServer
		case status >= 400:
			return CategoryValidation
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication"):
		return CategoryAuth
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return CategoryRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(msg, "econnrefused") || strings.Contains(msg, "econnreset") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "broken pipe") || strings.Contains(msg, "network"):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}
