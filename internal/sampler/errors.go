package sampler

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a frequency is outside the receiver's tuning range
	ErrOutOfRange = errors.New("frequency out of range")

	// ErrHardware matches every HardwareError regardless of kind
	ErrHardware = errors.New("hardware error")

	ErrDeviceNotFound = errors.New("receiver not found")
	ErrDeviceBusy     = errors.New("receiver busy")
	ErrCaptureTimeout = errors.New("capture timed out")
	ErrCaptureFailed  = errors.New("capture failed")
)

// OutOfRangeError reports a rejected frequency. No hardware was touched.
type OutOfRangeError struct {
	FrequencyHz int64
	MinHz       int64
	MaxHz       int64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("frequency %.3f MHz is outside the supported range (%.0f MHz to %.0f MHz)",
		float64(e.FrequencyHz)/1e6, float64(e.MinHz)/1e6, float64(e.MaxHz)/1e6)
}

func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// HardwareKind distinguishes receiver failures
type HardwareKind string

const (
	KindDeviceNotFound HardwareKind = "device_not_found"
	KindDeviceBusy     HardwareKind = "device_busy"
	KindCaptureTimeout HardwareKind = "capture_timeout"
	KindCaptureFailed  HardwareKind = "capture_failed"
)

// HardwareError is a per-frequency receiver failure
type HardwareError struct {
	Kind        HardwareKind
	FrequencyHz int64
	Err         error
}

// NewHardwareError builds a HardwareError of the given kind
func NewHardwareError(kind HardwareKind, frequencyHz int64, err error) *HardwareError {
	return &HardwareError{Kind: kind, FrequencyHz: frequencyHz, Err: err}
}

func (e *HardwareError) Error() string {
	msg := fmt.Sprintf("%s at %.3f MHz", kindSentinel(e.Kind), float64(e.FrequencyHz)/1e6)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// Is matches ErrHardware and the sentinel for the error's kind
func (e *HardwareError) Is(target error) bool {
	return target == ErrHardware || target == kindSentinel(e.Kind)
}

func kindSentinel(k HardwareKind) error {
	switch k {
	case KindDeviceNotFound:
		return ErrDeviceNotFound
	case KindDeviceBusy:
		return ErrDeviceBusy
	case KindCaptureTimeout:
		return ErrCaptureTimeout
	default:
		return ErrCaptureFailed
	}
}
