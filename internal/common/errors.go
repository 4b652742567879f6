package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error taxonomy for the extraction pipeline. Missing data is never an
// error: stages degrade to nil fields plus an inference note. Only
// structurally invalid input or an unreachable capability raises.
var (
	// ErrUnsupportedFileType: the upload's extension is not pdf/jpg/jpeg/png.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrConfiguration: the extraction capability is not configured.
	// Fatal at startup, never a per-request condition.
	ErrConfiguration = errors.New("extraction capability not configured")
	// ErrExtractionCall: the model call failed in transit. Transient;
	// the caller decides whether to retry.
	ErrExtractionCall = errors.New("extraction call failed")
	// ErrInvalidDate: a date string failed to parse as a real calendar
	// date. Folded into "field absent" by the pipeline.
	ErrInvalidDate = errors.New("invalid date format")

	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
