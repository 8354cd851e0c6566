package model

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrOperationBusy indicates that an operation of the same kind is already in flight.
	ErrOperationBusy = errors.New("operation already in progress")

	// ErrUnknownReference indicates that a branch or tag is not among the known remote references.
	ErrUnknownReference = errors.New("unknown remote reference")

	// ErrUnknownTarget indicates that a build target is not declared by the build configuration.
	ErrUnknownTarget = errors.New("unknown build target")

	ErrInvalidArgument = errors.New("invalid argument")

	// ErrShuttingDown is returned for commands issued after shutdown started.
	ErrShuttingDown = errors.New("supervisor is shutting down")
)

// ExitError reports an external process that ran and exited with a nonzero status.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%v exited with code %d", e.Command, e.Code)
}

// LaunchError reports an external process that could not be started at all.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %v: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
