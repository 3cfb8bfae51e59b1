package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType defines distinct categories for errors originating from hlsvault components.
type ErrorType string

const (
	// ValidationError represents errors caused by invalid request parameters or configuration.
	ValidationError ErrorType = "validation_error"
	// NotFoundError represents a missing source file or a missing cached rendition.
	NotFoundError ErrorType = "not_found_error"
	// ProbeError represents ffprobe failures. These are normally recovered with fallbacks.
	ProbeError ErrorType = "probe_error"
	// TranscodingError represents failures of the ffmpeg encode process.
	TranscodingError ErrorType = "transcoding_error"
	// HLSError represents errors writing or reading HLS playlists.
	HLSError ErrorType = "hls_error"
	// PackagingError represents failures while remuxing a rendition for download.
	PackagingError ErrorType = "packaging_error"
	// BusyError represents a rendition directory that is locked by another writer.
	BusyError ErrorType = "busy_error"
	// DownloadError represents errors fetching a remote source.
	DownloadError ErrorType = "download_error"
	// SystemError represents underlying file system or process problems.
	SystemError ErrorType = "system_error"
)

// StructuredError represents a detailed error originating from hlsvault operations.
// It includes a type, message, optional details, timestamp, and a specific error code.
type StructuredError struct {
	// Type categorizes the error (e.g., NotFoundError, TranscodingError).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context or the underlying error message, if available.
	Details string `json:"details,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
	// Code provides a specific integer code, see error_codes.go.
	Code int `json:"code"`

	cause error
}

// Error implements the standard `error` interface for StructuredError.
func (e *StructuredError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Details)
}

// Unwrap returns the wrapped cause, if any.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// JSON returns the StructuredError serialized as a JSON string.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// New creates a new StructuredError instance stamped with the current time.
func New(errorType ErrorType, message, details string, code int) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
		Code:      code,
	}
}

// Wrap creates a new StructuredError whose Details carry the message of err.
// The original error stays reachable through errors.Is and errors.As.
func Wrap(err error, errorType ErrorType, message string, code int) *StructuredError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	se := New(errorType, message, details, code)
	se.cause = err
	return se
}

// As returns the first StructuredError in err's chain.
func As(err error) (*StructuredError, bool) {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsType reports whether err carries a StructuredError of the given type.
func IsType(err error, errorType ErrorType) bool {
	se, ok := As(err)
	return ok && se.Type == errorType
}

// HTTPStatus maps an error to the status code the HTTP layer should answer with.
func HTTPStatus(err error) int {
	se, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if se.Code == ErrMasterTimeout || se.Code == ErrJobCancelled {
		return http.StatusServiceUnavailable
	}
	switch se.Type {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case BusyError:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
