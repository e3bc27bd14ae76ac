package usbshare

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that no present device matched the requested address.
// It is the only retryable condition in the claim path.
var ErrNotFound = errors.New("device not found")

// ErrUnsupportedPropertyType reports a device property whose type tag is
// neither a string nor a string list.
var ErrUnsupportedPropertyType = errors.New("unsupported property type")

// ConfigurationError wraps a non-success status from the device-management
// substrate. These are transient by nature: the device tree can mutate
// between any two calls, so bulk enumeration skips the affected device.
type ConfigurationError struct {
	Op     string
	Status uint32 // CONFIGRET
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s failed (CONFIGRET 0x%X)", e.Op, e.Status)
}

// UnsupportedTopologyError reports a location string that does not match the
// Port_#/Hub_# pattern. This indicates an assumption violation rather than a
// race and is never swallowed.
type UnsupportedTopologyError struct {
	Location string
}

func (e *UnsupportedTopologyError) Error() string {
	return fmt.Sprintf("unsupported location format %q", e.Location)
}

// UnsupportedDriverError reports a protocol-version mismatch with the
// pass-through driver. Retrying cannot fix a version skew.
type UnsupportedDriverError struct {
	HaveMajor, HaveMinor uint32
	WantMajor, WantMinor uint32
}

func (e *UnsupportedDriverError) Error() string {
	return fmt.Sprintf("unsupported driver version %d.%d (need %d.%d)",
		e.HaveMajor, e.HaveMinor, e.WantMajor, e.WantMinor)
}

// ProtocolViolationError reports a structurally successful driver response
// that does not match the expected contract, such as a completion of the
// wrong size or a refused claim.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return "driver protocol violation: " + e.Reason
}

// IoError wraps a native I/O failure.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}
