// Package errors provides structured application errors shared across the
// gRPC OCR boundary. Codes travel as an errdetails.ErrorInfo reason so a
// remote recognizer's failure keeps its meaning on the client side.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain identifies this service in ErrorInfo details.
const Domain = "betwatch"

// Code classifies an AppError.
type Code string

const (
	Unknown          Code = "UNKNOWN"
	Internal         Code = "INTERNAL"
	InvalidArgument  Code = "INVALID_ARGUMENT"
	Unavailable      Code = "UNAVAILABLE"
	Timeout          Code = "TIMEOUT"
	Cancelled        Code = "CANCELLED"
	StreamOffline    Code = "STREAM_OFFLINE"
	StreamEnded      Code = "STREAM_ENDED"
	DecodeFailed     Code = "DECODE_FAILED"
	OCRInitFailed    Code = "OCR_INIT_FAILED"
	OCRExtractFailed Code = "OCR_EXTRACT_FAILED"
	OCRInvalidImage  Code = "OCR_INVALID_IMAGE"
	NotifyFailed     Code = "NOTIFY_FAILED"
	ConfigInvalid    Code = "CONFIG_INVALID"
)

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	Unknown:          codes.Unknown,
	Internal:         codes.Internal,
	InvalidArgument:  codes.InvalidArgument,
	Unavailable:      codes.Unavailable,
	Timeout:          codes.DeadlineExceeded,
	Cancelled:        codes.Canceled,
	StreamOffline:    codes.NotFound,
	StreamEnded:      codes.Unavailable,
	DecodeFailed:     codes.Internal,
	OCRInitFailed:    codes.Unavailable,
	OCRExtractFailed: codes.Internal,
	OCRInvalidImage:  codes.InvalidArgument,
	NotifyFailed:     codes.Unavailable,
	ConfigInvalid:    codes.InvalidArgument,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// ToProto converts to an ErrorInfo detail message.
func (e *AppError) ToProto() *errdetails.ErrorInfo {
	info := &errdetails.ErrorInfo{Reason: string(e.Code), Domain: Domain}
	if len(e.Metadata) > 0 {
		info.Metadata = e.Metadata
	}
	return info
}

// GRPCStatus returns a gRPC status with the ErrorInfo attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Message)
	if withDetail, err := st.WithDetails(e.ToProto()); err == nil {
		return withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			return &AppError{
				Code:     Code(info.GetReason()),
				Message:  st.Message(),
				Metadata: info.GetMetadata(),
				Cause:    err,
			}
		}
	}

	return &AppError{Code: grpcToErrorCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToErrorCode maps gRPC codes back to our error codes (best effort).
func grpcToErrorCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return StreamOffline
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.Internal:
		return Internal
	default:
		return Unknown
	}
}

// IsCode checks if err (or anything it wraps) is an AppError with code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout, StreamEnded, StreamOffline, DecodeFailed, NotifyFailed:
		return true
	default:
		return false
	}
}
