package notify

import (
	"errors"
	"fmt"
)

// FailureKind classifies a dispatch failure for the executor's retry
// decision.
type FailureKind string

const (
	// FailureTransient covers network errors, timeouts and provider-side
	// errors. Worth retrying.
	FailureTransient FailureKind = "transient"
	// FailureConfig means provider credentials or sender identity are
	// missing or rejected. A retry hits the same wall.
	FailureConfig FailureKind = "configuration"
	// FailureMissingContact means the job has no usable recipient. No
	// retry will add one.
	FailureMissingContact FailureKind = "missing_contact"
)

// DispatchError is a classified dispatch failure.
type DispatchError struct {
	Kind FailureKind
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed (%s): %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func NewTransientError(err error) error {
	return &DispatchError{Kind: FailureTransient, Err: err}
}

func NewConfigError(msg string) error {
	return &DispatchError{Kind: FailureConfig, Err: errors.New(msg)}
}

func NewMissingContactError(channel string) error {
	return &DispatchError{Kind: FailureMissingContact, Err: fmt.Errorf("no recipient for channel %s", channel)}
}

// Retryable reports whether a failed dispatch should be attempted again.
// Unclassified errors count as transient.
func Retryable(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind == FailureTransient
	}
	return true
}
