package domain

import (
	"context"
	"errors"
)

// Sentinel errors shared by provisioning and the clip pipeline.
var (
	ErrToolNotReady        = errors.New("ffmpeg is not ready")
	ErrInvalidSource       = errors.New("invalid source")
	ErrNetwork             = errors.New("network failure")
	ErrBadStatus           = errors.New("unexpected http status")
	ErrDisk                = errors.New("disk failure")
	ErrCorruptArchive      = errors.New("corrupt archive")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrInvalidTimeRange    = errors.New("invalid time range")
	ErrSubprocessNonZero   = errors.New("subprocess failed")
	ErrSubprocessNotFound  = errors.New("executable not found")
)

// FailureOf maps a provisioning error onto its reported failure kind.
func FailureOf(err error) ToolFailure {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ToolFailureCancelled
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrBadStatus):
		return ToolFailureNetwork
	case errors.Is(err, ErrDisk):
		return ToolFailureDisk
	case errors.Is(err, ErrUnsupportedPlatform):
		return ToolFailureUnsupported
	default:
		return ToolFailureCorruptArchive
	}
}
