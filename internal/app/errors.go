package app

import (
	"fmt"
	"net/http"
)

// DomainError is an operation failure with the HTTP status and code the
// API reports for it.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errSubmissionNotFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Submission not found", nil)
}

func errOtherAgent() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Proposal belongs to another agent", nil)
}

// errCorruptedPayload reports a stored payload that no longer decodes.
func errCorruptedPayload(err error) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "CORRUPTED_PAYLOAD", "Stored proposal data is corrupted", map[string]any{"reason": err.Error()})
}
