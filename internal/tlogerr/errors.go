// Package tlogerr defines the error taxonomy shared by the grouping
// engine, predicate index and transaction-log server: protocol
// violation, corruption, I/O failure, capacity, busy-retry, not-found
// and deadline-exceeded.
package tlogerr

import (
	"errors"
	"fmt"
)

// ProtocolError indicates a caller violated the aggregator/expression
// protocol, e.g. feeding a vector value to a scalar-only result.
type ProtocolError struct {
	Operation string
	Reason    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation in %s: %s", e.Operation, e.Reason)
}

// NewProtocolError builds a ProtocolError.
func NewProtocolError(operation, reason string) *ProtocolError {
	return &ProtocolError{Operation: operation, Reason: reason}
}

// CorruptionError indicates on-disk data failed integrity verification
// (CRC mismatch, bad header magic, truncated frame) and could not be
// recovered by tail-zero truncation.
type CorruptionError struct {
	Path   string
	Offset int64
	Reason string
	Cause  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corruption at %s offset %d: %s", e.Path, e.Offset, e.Reason)
}

func (e *CorruptionError) Unwrap() error { return e.Cause }

// NewCorruptionError builds a CorruptionError.
func NewCorruptionError(path string, offset int64, reason string, cause error) *CorruptionError {
	return &CorruptionError{Path: path, Offset: offset, Reason: reason, Cause: cause}
}

// IOError wraps a failed filesystem operation with enough context for a
// log line.
type IOError struct {
	Operation string
	Path      string
	Cause     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("I/O failure during %s on %s: %v", e.Operation, e.Path, e.Cause)
}

func (e *IOError) Unwrap() error { return e.Cause }

// NewIOError builds an IOError.
func NewIOError(operation, path string, cause error) *IOError {
	return &IOError{Operation: operation, Path: path, Cause: cause}
}

// CapacityError indicates a bounded resource (grouping's MaxGroups,
// hits' MaxHits, a domain's configured size limits) rejected further
// growth.
type CapacityError struct {
	Resource string
	Limit    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded for %s: limit %d", e.Resource, e.Limit)
}

// NewCapacityError builds a CapacityError.
func NewCapacityError(resource string, limit int) *CapacityError {
	return &CapacityError{Resource: resource, Limit: limit}
}

// BusyRetryError indicates the callee is transiently unable to make
// progress (a single-threaded committer backlog, a locked part) and the
// caller should retry with backoff.
type BusyRetryError struct {
	Operation string
	Reason    string
}

func (e *BusyRetryError) Error() string {
	return fmt.Sprintf("busy, retry %s: %s", e.Operation, e.Reason)
}

// NewBusyRetryError builds a BusyRetryError.
func NewBusyRetryError(operation, reason string) *BusyRetryError {
	return &BusyRetryError{Operation: operation, Reason: reason}
}

// NotFoundError indicates a named resource (domain, session, feature)
// does not exist.
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Name)
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(resource, name string) *NotFoundError {
	return &NotFoundError{Resource: resource, Name: name}
}

// DeadlineExceededError indicates a grouping request's deadline elapsed
// before traversal completed.
type DeadlineExceededError struct {
	Operation string
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("deadline exceeded during %s", e.Operation)
}

// NewDeadlineExceededError builds a DeadlineExceededError.
func NewDeadlineExceededError(operation string) *DeadlineExceededError {
	return &DeadlineExceededError{Operation: operation}
}

// ClassifyError maps an error to a short label suitable for a metrics
// dimension, falling back to "unknown" for anything outside this
// taxonomy.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.As(err, new(*ProtocolError)):
		return "protocol"
	case errors.As(err, new(*CorruptionError)):
		return "corruption"
	case errors.As(err, new(*IOError)):
		return "io"
	case errors.As(err, new(*CapacityError)):
		return "capacity"
	case errors.As(err, new(*BusyRetryError)):
		return "busy"
	case errors.As(err, new(*NotFoundError)):
		return "not_found"
	case errors.As(err, new(*DeadlineExceededError)):
		return "deadline_exceeded"
	default:
		return "unknown"
	}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	return errors.As(err, new(*NotFoundError))
}

// IsBusyRetry reports whether err is (or wraps) a BusyRetryError.
func IsBusyRetry(err error) bool {
	return errors.As(err, new(*BusyRetryError))
}
