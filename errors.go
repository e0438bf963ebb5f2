package dcrender

import (
	"errors"
	"fmt"
	"os"
)

// ErrResourceExhausted means that a resource block could not be
// created. The returned error also wraps the backend cause.
var ErrResourceExhausted = errors.New("dcrender: resource exhausted")

// ErrInvalidDescriptor means that a buffer or texture
// descriptor is malformed.
var ErrInvalidDescriptor = errors.New("dcrender: invalid descriptor")

func exhausted(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrResourceExhausted, stage, err)
}

// exit is replaced in tests.
var exit = os.Exit

// fatal reports an unrecoverable failure of stage and
// terminates the process with status 1.
func fatal(stage string, err error) {
	Logger().Error("fatal", "stage", stage, "err", err)
	fmt.Fprintf(os.Stderr, "dcrender: %s: %v\n", stage, err)
	exit(1)
}
