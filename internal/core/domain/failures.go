package domain

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a source could not be fetched.
type FetchErrorKind string

const (
	// FetchNotFound indicates the source URL does not exist.
	FetchNotFound FetchErrorKind = "not found"
	// FetchChecksumMismatch indicates the downloaded bytes do not match the declared checksum.
	FetchChecksumMismatch FetchErrorKind = "checksum mismatch"
	// FetchNetworkTimeout indicates the transfer did not complete in time.
	FetchNetworkTimeout FetchErrorKind = "network timeout"
	// FetchNetwork indicates any other transport failure.
	FetchNetwork FetchErrorKind = "network error"
	// FetchUnsupported indicates the archive could not be unpacked.
	FetchUnsupported FetchErrorKind = "unsupported archive"
	// FetchCache indicates the download cache could not store the archive.
	FetchCache FetchErrorKind = "cache error"
)

// FetchError reports a failed source download or extraction.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", ErrFetchFailed.Error(), e.Kind, e.URL)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the fetch sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, e.Err}
}

// InvalidConfigurationError reports which axis of a matrix cell was rejected.
type InvalidConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s=%q: %s", ErrInvalidConfiguration.Error(), e.Field, e.Value, e.Reason)
}

func (e *InvalidConfigurationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// AlreadyPatchedError reports a patch that was applied twice to the same tree.
type AlreadyPatchedError struct {
	Patch string
	File  string
}

func (e *AlreadyPatchedError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrAlreadyPatched.Error(), e.Patch, e.File)
}

func (e *AlreadyPatchedError) Unwrap() error {
	return ErrAlreadyPatched
}

// ToolchainError reports a non-zero exit of an external build tool.
type ToolchainError struct {
	Command  string
	ExitCode int
	// Stderr holds the tail of the tool's error stream.
	Stderr string
	Err    error
}

func (e *ToolchainError) Error() string {
	return fmt.Sprintf("%s: %s (exit code %d)", ErrToolchainFailed.Error(), e.Command, e.ExitCode)
}

func (e *ToolchainError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrToolchainFailed}
	}
	return []error{ErrToolchainFailed, e.Err}
}

// StoreError reports a package store failure for one artifact.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", ErrStoreFailed.Error(), e.Op, e.Key)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStoreFailed}
	}
	return []error{ErrStoreFailed, e.Err}
}

// StageError records the lifecycle stage in which a configuration's run failed.
type StageError struct {
	Stage     State
	ConfigKey string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.ConfigKey, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a caller may reasonably retry the operation that produced err.
// The engine itself never retries.
func Retryable(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind == FetchNetworkTimeout || fetchErr.Kind == FetchNetwork
	}
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}
