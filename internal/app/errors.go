package app

import (
	"fmt"
	"net/http"
)

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

// errAlreadyCommented trips when the anonymous abuse guard finds a prior
// comment by the same author or from the same network origin.
func errAlreadyCommented() *DomainError {
	return domainError(http.StatusConflict, "ALREADY_COMMENTED", "Already Commented", nil)
}

// errThreadUnavailable trips when an anonymous submission targets a question
// that cannot be found.
func errThreadUnavailable() *DomainError {
	return domainError(http.StatusNotFound, "THREAD_UNAVAILABLE", "Question Unavailable", nil)
}
