package errors

import "fmt"

// AppError represents a client-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// APIError is returned when a vendor response carries a result code other
// than the success sentinel. Result and Message are the vendor's own values.
type APIError struct {
	Result  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (result code %q)", e.Message, e.Result)
}

// NewAPIError creates an APIError from a vendor envelope
func NewAPIError(result, message string) *APIError {
	return &APIError{Result: result, Message: message}
}

// Error codes
const (
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeTransportFailed  = "TRANSPORT_FAILED"
	ErrCodeAPIError         = "API_ERROR"
	ErrCodeListInconsistent = "LIST_INCONSISTENT"
	ErrCodeUploadFailed     = "UPLOAD_FAILED"
	ErrCodeDownloadFailed   = "DOWNLOAD_FAILED"
	ErrCodeInvalidInput     = "INVALID_INPUT"
)
