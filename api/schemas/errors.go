// api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// -- Error Taxonomy --

// ErrorCategory classifies agent failures for recovery branching and
// user-facing reporting.
type ErrorCategory string

const (
	ErrElementNotFound        ErrorCategory = "ELEMENT_NOT_FOUND"
	ErrNavigationFailed       ErrorCategory = "NAVIGATION_FAILED"
	ErrTimeout                ErrorCategory = "TIMEOUT"
	ErrProviderError          ErrorCategory = "PROVIDER_ERROR"
	ErrIterationLimitExceeded ErrorCategory = "ITERATION_LIMIT_EXCEEDED"
	ErrUserAborted            ErrorCategory = "USER_ABORTED"
	ErrUnexpectedPageState    ErrorCategory = "UNEXPECTED_PAGE_STATE"
)

// AgentError wraps an underlying failure with its taxonomy category.
type AgentError struct {
	Category ErrorCategory
	Message  string
	Err      error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError builds a categorized error wrapping err (which may be nil).
func NewAgentError(category ErrorCategory, message string, err error) *AgentError {
	return &AgentError{Category: category, Message: message, Err: err}
}

// CategoryOf extracts the taxonomy category from err, or empty when err is
// not an AgentError anywhere in its chain.
func CategoryOf(err error) ErrorCategory {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Category
	}
	return ""
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category ErrorCategory) bool {
	return CategoryOf(err) == category
}

// IsFatal reports whether the category must terminate the task instead of
// being recovered through a failed history entry.
func (c ErrorCategory) IsFatal() bool {
	switch c {
	case ErrIterationLimitExceeded, ErrUserAborted:
		return true
	}
	return false
}
