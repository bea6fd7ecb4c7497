// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"fmt"

	"github.com/mongocore/driver/description"
)

// RetryableWriteError is the label that marks a write error eligible for the one-shot
// retry in the retryable writes spec.
const RetryableWriteError = "RetryableWriteError"

// TransientTransactionError is the label for errors that leave a transaction retryable
// from its first statement.
const TransientTransactionError = "TransientTransactionError"

// UnknownTransactionCommitResult is the label for commitTransaction errors where the
// outcome could not be determined.
const UnknownTransactionCommitResult = "UnknownTransactionCommitResult"

// NetworkError is a synthetic label this package attaches to connection-level failures
// so retry eligibility can be decided uniformly with server-reported errors.
const NetworkError = "NetworkError"

// notWritablePrimaryCodes and nodeIsRecoveringCodes are the server error codes that
// imply the server is no longer primary (the "not writable primary" / "node is
// recovering" category, triggering TopologyManager.markServerUnknown).
var notWritablePrimaryCodes = map[int32]bool{
	10107: true, // NotWritablePrimary
	13435: true, // NotPrimaryNoSecondaryOk
	11602: true, // InterruptedDueToReplStateChange
}

var nodeIsRecoveringCodes = map[int32]bool{
	11600: true, // InterruptedAtShutdown
	91:    true, // ShutdownInProgress
	189:   true, // PrimarySteppedDown
	13436: true, // NotPrimaryOrSecondary
	10058:  true, // LegacyNotPrimaryOrSecondary
}

// retryableCodes are the error codes the retryable writes spec names as eligible for one retry.
var retryableCodes = map[int32]bool{
	6:     true, // HostUnreachable
	7:     true, // HostNotFound
	89:    true, // NetworkTimeout
	9001:  true, // SocketException
	262:   true, // ExceededTimeLimit
	11600: true,
	11602: true,
	10107: true,
	13435: true,
	13436: true,
	189:   true,
	91:    true,
}

// nodeShuttingDownCodes are the subset of nodeIsRecoveringCodes that specifically mean
// the server process is shutting down, used to decide whether a pool must be cleared
// synchronously rather than left to drain naturally.
var nodeShuttingDownCodes = map[int32]bool{
	11600: true,
	91:    true,
}

// Error represents a command-level error: the server replied with ok:0, or a network
// failure occurred before a reply was received.
type Error struct {
	Code            int32
	Message         string
	Name            string
	Labels          []string
	TopologyVersion *description.TopologyVersion
	Wrapped         error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("(%s) %s", e.Name, e.Message)
	}
	return e.Message
}

// HasErrorLabel reports whether label is present on this error.
func (e Error) HasErrorLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// NodeIsRecovering reports whether the error code indicates the server is a recovering
// secondary.
func (e Error) NodeIsRecovering() bool { return nodeIsRecoveringCodes[e.Code] }

// NotPrimary reports whether the error code indicates the server is no longer primary.
func (e Error) NotPrimary() bool { return notWritablePrimaryCodes[e.Code] }

// NodeIsShuttingDown reports whether the error specifically means the server process is
// shutting down, in which case the connection pool must be cleared synchronously rather
// than left to idle out.
func (e Error) NodeIsShuttingDown() bool { return nodeShuttingDownCodes[e.Code] }

// NetworkError reports whether this Error represents a connection-level failure rather
// than a server-reported command error.
func (e Error) NetworkError() bool { return e.HasErrorLabel(NetworkError) || e.Wrapped != nil }

// Unwrap supports errors.Is/As against the underlying connection error, if any.
func (e Error) Unwrap() error { return e.Wrapped }

// Retryable reports whether this error is eligible for the one-shot retry of
// the retryable writes spec: an explicit label, a known retryable code, or a connection-level
// failure.
func (e Error) Retryable() bool {
	return e.HasErrorLabel(RetryableWriteError) || e.HasErrorLabel(NetworkError) || retryableCodes[e.Code]
}

// WriteError represents a single document-level write error.
type WriteError struct {
	Index   int64
	Code    int64
	Message string
}

// Error implements the error interface.
func (we WriteError) Error() string { return we.Message }

// WriteConcernError represents the writeConcernError subdocument of a write reply.
type WriteConcernError struct {
	Code            int64
	Message         string
	Details         []byte
	TopologyVersion *description.TopologyVersion
}

// Error implements the error interface.
func (wce WriteConcernError) Error() string { return wce.Message }

// NodeIsRecovering reports whether the error code indicates a recovering secondary.
func (wce WriteConcernError) NodeIsRecovering() bool { return nodeIsRecoveringCodes[int32(wce.Code)] }

// NotPrimary reports whether the error code indicates the server is no longer primary.
func (wce WriteConcernError) NotPrimary() bool { return notWritablePrimaryCodes[int32(wce.Code)] }

// NodeIsShuttingDown reports whether the error specifically means the server process is
// shutting down.
func (wce WriteConcernError) NodeIsShuttingDown() bool { return nodeShuttingDownCodes[int32(wce.Code)] }

// WriteCommandError aggregates document-level write errors and an optional write
// concern error from a single write command reply.
type WriteCommandError struct {
	WriteErrors       []WriteError
	WriteConcernError *WriteConcernError
	Labels            []string
}

// Error implements the error interface.
func (wce WriteCommandError) Error() string {
	if len(wce.WriteErrors) > 0 {
		return wce.WriteErrors[0].Message
	}
	if wce.WriteConcernError != nil {
		return wce.WriteConcernError.Message
	}
	return "write command error"
}

// HasErrorLabel reports whether label is present on this error.
func (wce WriteCommandError) HasErrorLabel(label string) bool {
	for _, l := range wce.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Retryable reports whether any constituent error is retryable.
func (wce WriteCommandError) Retryable() bool {
	if wce.HasErrorLabel(RetryableWriteError) {
		return true
	}
	if wce.WriteConcernError != nil && retryableCodes[int32(wce.WriteConcernError.Code)] {
		return true
	}
	return false
}

// QueryFailureError is returned when a legacy OP_QUERY response sets the QueryFailure
// flag.
type QueryFailureError struct {
	Message  string
	Response interface{}
}

// Error implements the error interface.
func (e QueryFailureError) Error() string { return e.Message }

// CommandResponseError wraps a malformed-reply error together with its underlying
// cause.
type CommandResponseError struct {
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e CommandResponseError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Wrapped)
	}
	return e.Message
}

// Unwrap supports errors.Is/As against the underlying cause.
func (e CommandResponseError) Unwrap() error { return e.Wrapped }

// NewCommandResponseError constructs a CommandResponseError.
func NewCommandResponseError(msg string, wrapped error) error {
	return CommandResponseError{Message: msg, Wrapped: wrapped}
}

// Retryable reports whether err is eligible for the one-shot retry of the retryable writes spec.
func Retryable(err error) bool {
	switch e := err.(type) {
	case Error:
		return e.Retryable()
	case WriteCommandError:
		return e.Retryable()
	default:
		return false
	}
}
