// Package errs defines Loom's error taxonomy and the translations from
// it to HTTP status codes and gRPC status codes.
package errs

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an error for HTTP/gRPC status mapping and logging.
type Kind string

const (
	KindIOError            Kind = "IOError"
	KindUnknownIndex       Kind = "UnknownIndex"
	KindUnknownIndexField  Kind = "UnknownIndexField"
	KindQueryError         Kind = "QueryError"
	KindSpawnError         Kind = "SpawnError"
	KindPoisonedError      Kind = "PoisonedError"
	KindRPCError           Kind = "RPCError"
	KindUnknownError       Kind = "UnknownError"
)

// Error is Loom's typed error. It wraps an underlying cause (if any) and
// carries a Kind used for status-code translation at the API boundary.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func new(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func IOError(err error) *Error {
	return new(KindIOError, "IO error", err)
}

func IOErrorf(format string, args ...interface{}) *Error {
	return new(KindIOError, fmt.Sprintf(format, args...), nil)
}

func UnknownIndex(name string) *Error {
	return new(KindUnknownIndex, fmt.Sprintf("Unknown index: %q", name), nil)
}

func UnknownField(field string) *Error {
	return new(KindUnknownIndexField, fmt.Sprintf("Unknown field: %s", field), nil)
}

func QueryError(msg string) *Error {
	return new(KindQueryError, msg, nil)
}

func QueryErrorf(format string, args ...interface{}) *Error {
	return new(KindQueryError, fmt.Sprintf(format, args...), nil)
}

func Spawn(err error) *Error {
	return new(KindSpawnError, "failed to schedule background task", err)
}

func Poisoned() *Error {
	return new(KindPoisonedError, "writer lock poisoned by a prior panic", nil)
}

func RPC(err error) *Error {
	return new(KindRPCError, "RPC failure", err)
}

func Unknown(err error) *Error {
	return new(KindUnknownError, "unknown error", err)
}

// Of extracts the Kind of err, defaulting to KindUnknownError for plain
// errors produced outside this package.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknownError
}

// HTTPStatus maps err onto the status code used by internal/httpapi.
func HTTPStatus(err error) int {
	switch Of(err) {
	case KindUnknownIndex:
		return 404
	case KindUnknownIndexField, KindQueryError, KindIOError:
		return 400
	default:
		return 500
	}
}

// GRPCStatus maps err onto a gRPC status error for internal/clusterrpc.
func GRPCStatus(err error) error {
	switch Of(err) {
	case KindUnknownIndex:
		return status.Error(codes.NotFound, err.Error())
	case KindUnknownIndexField, KindQueryError:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
