// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrNotConnected       = errors.New("device not connected")
	ErrConnectivity       = errors.New("connectivity failure")
	ErrMergeConfig        = errors.New("merge config failed")
	ErrNotSupported       = errors.New("operation not supported")
	ErrDeviceLocked       = errors.New("device locked by another holder")
	ErrNotFound           = errors.New("resource not found")
	ErrPreconditionFailed = errors.New("precondition not met")
	ErrValidationFailed   = errors.New("validation failed")
	ErrPermissionDenied   = errors.New("permission denied")
)

// ConnectivityError is a transport-level failure seen while talking to the
// device. Callers above the dispatch layer only ever see this type.
type ConnectivityError struct {
	Message string
}

func (e *ConnectivityError) Error() string {
	return "connectivity: " + e.Message
}

func (e *ConnectivityError) Unwrap() error {
	return ErrConnectivity
}

// NewConnectivityError creates a connectivity error from an underlying failure
func NewConnectivityError(err error) *ConnectivityError {
	if err == nil {
		return &ConnectivityError{Message: "unknown transport failure"}
	}
	return &ConnectivityError{Message: err.Error()}
}

// MergeConfigError reports a candidate that could not be staged.
// Command is empty when the failure happened before anything was sent.
type MergeConfigError struct {
	Command string
	Reason  string
}

func (e *MergeConfigError) Error() string {
	if e.Command == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Command)
}

func (e *MergeConfigError) Unwrap() error {
	return ErrMergeConfig
}

// NewMergeConfigError creates a merge error
func NewMergeConfigError(command, reason string) *MergeConfigError {
	return &MergeConfigError{Command: command, Reason: reason}
}

// UnsupportedError is a permanent capability limitation of the device class.
type UnsupportedError struct {
	Operation string
	Reason    string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Reason)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrNotSupported
}

// NewUnsupportedError creates an unsupported-operation error
func NewUnsupportedError(operation, reason string) *UnsupportedError {
	return &UnsupportedError{Operation: operation, Reason: reason}
}

// PreconditionError represents a failed precondition check with context
type PreconditionError struct {
	Operation    string
	Resource     string
	Precondition string
	Details      string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition failed for %s on %s: %s", e.Operation, e.Resource, e.Precondition)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}

// NewPreconditionError creates a new precondition error
func NewPreconditionError(operation, resource, precondition, details string) *PreconditionError {
	return &PreconditionError{
		Operation:    operation,
		Resource:     resource,
		Precondition: precondition,
		Details:      details,
	}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
