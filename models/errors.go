package models

import (
	"errors"
	"fmt"
)

// Error codes used to classify crawl faults. Every code except
// ErrCodeStoreRead is fatal to the run.
const (
	ErrCodeHTTPStatus = "HTTP_STATUS"
	ErrCodeTransport  = "TRANSPORT"
	ErrCodeParse      = "PARSE"
	ErrCodeStoreRead  = "STORE_READ"
	ErrCodeStoreWrite = "STORE_WRITE"
)

// CrawlError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type CrawlError struct {
	Code    string
	Message string

	// Status is the HTTP status code for ErrCodeHTTPStatus faults, 0 otherwise.
	Status int

	Err error // wrapped original error
}

func (e *CrawlError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// ExitCode is the process exit code this fault maps to: the HTTP status for
// status faults, 1 for everything else.
func (e *CrawlError) ExitCode() int {
	if e.Code == ErrCodeHTTPStatus && e.Status > 0 {
		return e.Status
	}
	return 1
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(code, message string, err error) *CrawlError {
	return &CrawlError{Code: code, Message: message, Err: err}
}

// NewStatusError creates an ErrCodeHTTPStatus fault for a non-success response.
func NewStatusError(url string, status int) *CrawlError {
	return &CrawlError{
		Code:    ErrCodeHTTPStatus,
		Message: "unexpected response from " + url,
		Status:  status,
	}
}

// IsCode reports whether err wraps a CrawlError with the given code.
func IsCode(err error, code string) bool {
	var ce *CrawlError
	return errors.As(err, &ce) && ce.Code == code
}
