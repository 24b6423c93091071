package timetagger

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow is matched by every OverflowError.
	ErrOverflow         = errors.New("time tagger memory overflow")
	ErrWorkerNotRunning = errors.New("stream worker is not running")
	ErrReadoutNotActive = errors.New("no readout is active")
)

// ConfigError represents an invalid construction or call parameter.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// OverflowError is raised when a hardware memory reports a depth of capacity-1.
type OverflowError struct {
	Region   Region
	Depth    int
	Capacity int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("overflowed %s memory (depth %d, capacity %d)", e.Region, e.Depth, e.Capacity)
}

func (e *OverflowError) Is(target error) bool {
	return target == ErrOverflow
}

// TransportError represents any other failure while talking to the device.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RelayedError is what the worker hands to the reader when a readout fails.
type RelayedError struct {
	Err        error
	Diagnostic string
}

func (e *RelayedError) Error() string {
	return e.Err.Error()
}

func (e *RelayedError) Unwrap() error {
	return e.Err
}

// RemoteError is the user-visible form of a RelayedError. The diagnostic is
// kept verbatim.
type RemoteError struct {
	Diagnostic string
	Err        error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote exception\n\n%s", e.Diagnostic)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
