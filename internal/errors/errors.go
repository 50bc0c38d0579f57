// Package errors classifies pipeline failures with a stable Code. A Code
// decides the HTTP status of REST replies, the gRPC status of RPCs and
// whether an operation is worth retrying.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
)

// Domain tags the google.rpc.ErrorInfo attached to gRPC statuses.
const Domain = "hudreader"

// Code identifies an error class.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotFound
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeFrameMalformed
	CodeEngineInit
	CodeEngineFailed
	CodeTemplateLoad
	CodeRegionInvalid
	CodeCaptureFailed
	CodeConfigInvalid
	CodeConfigMissing
)

// statusClientClosed is the de facto status for a request the client
// abandoned.
const statusClientClosed = 499

type codeInfo struct {
	name      string
	grpc      codes.Code
	http      int
	retryable bool
}

var codeTable = map[Code]codeInfo{
	CodeUnknown:         {"UNKNOWN", codes.Unknown, http.StatusInternalServerError, false},
	CodeInternal:        {"INTERNAL", codes.Internal, http.StatusInternalServerError, false},
	CodeInvalidArgument: {"INVALID_ARGUMENT", codes.InvalidArgument, http.StatusBadRequest, false},
	CodeNotFound:        {"NOT_FOUND", codes.NotFound, http.StatusNotFound, false},
	CodeUnavailable:     {"UNAVAILABLE", codes.Unavailable, http.StatusServiceUnavailable, true},
	CodeTimeout:         {"TIMEOUT", codes.DeadlineExceeded, http.StatusGatewayTimeout, true},
	CodeCancelled:       {"CANCELLED", codes.Canceled, statusClientClosed, false},
	CodeFrameMalformed:  {"FRAME_MALFORMED", codes.InvalidArgument, http.StatusBadRequest, false},
	CodeEngineInit:      {"ENGINE_INIT_FAILED", codes.Unavailable, http.StatusServiceUnavailable, false},
	CodeEngineFailed:    {"ENGINE_FAILED", codes.Internal, http.StatusInternalServerError, false},
	CodeTemplateLoad:    {"TEMPLATE_LOAD_FAILED", codes.FailedPrecondition, http.StatusServiceUnavailable, false},
	CodeRegionInvalid:   {"REGION_INVALID", codes.InvalidArgument, http.StatusBadRequest, false},
	CodeCaptureFailed:   {"CAPTURE_FAILED", codes.Unavailable, http.StatusServiceUnavailable, true},
	CodeConfigInvalid:   {"CONFIG_INVALID", codes.InvalidArgument, http.StatusBadRequest, false},
	CodeConfigMissing:   {"CONFIG_MISSING", codes.FailedPrecondition, http.StatusInternalServerError, false},
}

func (c Code) info() codeInfo {
	if i, ok := codeTable[c]; ok {
		return i
	}
	return codeTable[CodeUnknown]
}

func (c Code) String() string { return c.info().name }

// AppError carries a Code, a message for humans and optional key/value
// context such as the region or file involved.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error renders as "CODE: message key=value: cause".
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	for _, k := range slices.Sorted(maps.Keys(e.Metadata)) {
		fmt.Fprintf(&b, " %s=%s", k, e.Metadata[k])
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error { return e.Cause }

// HTTPStatus is the status REST handlers reply with.
func (e *AppError) HTTPStatus() int { return e.Code.info().http }

// GRPCStatus lets status.FromError and the interceptors see the code. The
// ErrorInfo detail keeps the precise Code for clients.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.Code.info().grpc, e.Message)
	info := &errdetails.ErrorInfo{Reason: e.Code.String(), Domain: Domain, Metadata: e.Metadata}
	if rich, err := st.WithDetails(info); err == nil {
		return rich
	}
	return st
}

// WithMetadata records key=value on e and returns it.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	e.Metadata[key] = value
	return e
}

func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and msg to err. err stays reachable via errors.Is.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *AppError
	if errors.As(err, &e) {
		return e.Code, true
	}
	return CodeUnknown, false
}

// IsCode reports whether err's chain carries code.
func IsCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsRetryable reports whether err is a transient capture or backend
// failure. Errors without a Code are not retried.
func IsRetryable(err error) bool {
	c, ok := CodeOf(err)
	return ok && c.info().retryable
}

// CodeFromStatus recovers the Code carried by a gRPC status, falling back
// to the nearest code for statuses raised elsewhere. Peers that packed the
// ErrorInfo inside an Any are unwrapped.
func CodeFromStatus(st *status.Status) Code {
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if packed, isAny := d.(*anypb.Any); isAny {
			info = &errdetails.ErrorInfo{}
			ok = packed.UnmarshalTo(info) == nil
		}
		if !ok || info.GetDomain() != Domain {
			continue
		}
		for c, i := range codeTable {
			if i.name == info.GetReason() {
				return c
			}
		}
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	}
	return CodeUnknown
}
