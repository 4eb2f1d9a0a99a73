// Package apierr defines the uniform error kinds surfaced across Bayard's
// components (membership, metadata store, index engine, cluster router,
// service surface) and the mapping onto gRPC status codes and HTTP statuses.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is one of the error kinds from the error handling design.
type Kind int

const (
	Internal Kind = iota
	NotFound
	AlreadyExists
	InvalidArgument
	SchemaViolation
	SchemaIncompatible
	Unavailable
	DeadlineExceeded
	ReplicationFailed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case InvalidArgument:
		return "InvalidArgument"
	case SchemaViolation:
		return "SchemaViolation"
	case SchemaIncompatible:
		return "SchemaIncompatible"
	case Unavailable:
		return "Unavailable"
	case DeadlineExceeded:
		return "DeadlineExceeded"
	case ReplicationFailed:
		return "ReplicationFailed"
	default:
		return "Internal"
	}
}

// Error is a Kind carrying a message and, once it has crossed the router,
// the shard and node it originated from.
type Error struct {
	Kind  Kind
	Msg   string
	Shard string
	Node  string
	Cause error
}

func (e *Error) Error() string {
	if e.Shard != "" || e.Node != "" {
		return fmt.Sprintf("%s: %s (shard=%s node=%s)", e.Kind, e.Msg, e.Shard, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// WithOrigin annotates the error with the shard/node it came from, as the
// router does when collecting fan-out results.
func (e *Error) WithOrigin(shard, node string) *Error {
	cp := *e
	cp.Shard = shard
	cp.Node = node
	return &cp
}

// KindOf extracts the Kind of err, defaulting to Internal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Retryable reports whether the retry policy in the cluster router should
// retry an RPC that failed with this error: only transient-looking kinds,
// whether carried as a Kind or as the gRPC status code of a peer's reply.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Unavailable, DeadlineExceeded:
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// GRPCCode maps a Kind onto a gRPC status code.
func GRPCCode(kind Kind) codes.Code {
	switch kind {
	case NotFound:
		return codes.NotFound
	case AlreadyExists:
		return codes.AlreadyExists
	case InvalidArgument:
		return codes.InvalidArgument
	case SchemaViolation, SchemaIncompatible:
		return codes.FailedPrecondition
	case Unavailable:
		return codes.Unavailable
	case DeadlineExceeded:
		return codes.DeadlineExceeded
	case ReplicationFailed:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// HTTPStatus maps a Kind onto an HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists:
		return http.StatusConflict
	case InvalidArgument:
		return http.StatusBadRequest
	case SchemaViolation, SchemaIncompatible:
		return http.StatusUnprocessableEntity
	case Unavailable:
		return http.StatusServiceUnavailable
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	case ReplicationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MostSevere picks the most severe of two write-fan-out errors, used by the
// router when every replica acknowledgement must be reconciled into one
// error for the caller.
func MostSevere(a, b error) error {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if severity(KindOf(a)) >= severity(KindOf(b)) {
		return a
	}
	return b
}

func severity(k Kind) int {
	switch k {
	case Internal:
		return 7
	case SchemaViolation, SchemaIncompatible:
		return 6
	case ReplicationFailed:
		return 5
	case DeadlineExceeded:
		return 4
	case Unavailable:
		return 3
	case AlreadyExists:
		return 2
	case NotFound:
		return 1
	default:
		return 0
	}
}
