package monitoring

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAddress  = errors.New("invalid IPv4 address")
	ErrInvalidName     = errors.New("device name cannot be empty")
	ErrIndexOutOfRange = errors.New("device index out of range")
	ErrOutOfRange      = errors.New("interval out of range")
	ErrDeviceGone      = errors.New("device no longer registered")
)

// ProbeError means the probe could not be carried out at all, as opposed to
// the target not answering.
type ProbeError struct {
	Address string
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Address, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
