package domain

import "fmt"

// ToolState is one node of the ffmpeg provisioning state machine.
type ToolState string

const (
	ToolStateUnknown     ToolState = "unknown"
	ToolStateChecking    ToolState = "checking"
	ToolStateDownloading ToolState = "downloading"
	ToolStateInstalling  ToolState = "installing"
	ToolStateReady       ToolState = "ready"
	ToolStateFailed      ToolState = "failed"
)

// ToolFailure classifies why provisioning ended in ToolStateFailed.
type ToolFailure string

const (
	ToolFailureNetwork        ToolFailure = "network"
	ToolFailureDisk           ToolFailure = "disk"
	ToolFailureCorruptArchive ToolFailure = "corrupt_archive"
	ToolFailureUnsupported    ToolFailure = "unsupported_platform"
	ToolFailureCancelled      ToolFailure = "cancelled"
)

// ToolReadyLabel is the exact label emitted every time the tool is usable.
const ToolReadyLabel = "FFmpeg is ready."

// ToolStatus is the observable provisioning status.
type ToolStatus struct {
	State    ToolState   `json:"state"`
	Progress int         `json:"progress"`
	Failure  ToolFailure `json:"failure,omitempty"`
	Reason   string      `json:"reason,omitempty"`
	Path     string      `json:"path,omitempty"`
}

// Label renders the stable UI string for the status.
func (s ToolStatus) Label() string {
	switch s.State {
	case ToolStateChecking:
		return "Checking for FFmpeg..."
	case ToolStateDownloading:
		if s.Progress < 0 || s.Progress > 100 {
			return "Downloading FFmpeg... (in progress)"
		}
		return fmt.Sprintf("Downloading FFmpeg... %d%%", s.Progress)
	case ToolStateInstalling:
		return "Installing FFmpeg..."
	case ToolStateReady:
		return ToolReadyLabel
	case ToolStateFailed:
		return fmt.Sprintf("FFmpeg setup failed (%s): %s", s.Failure, s.Reason)
	default:
		return "FFmpeg status unknown."
	}
}

// Terminal reports whether a provisioning run has settled.
func (s ToolStatus) Terminal() bool {
	return s.State == ToolStateReady || s.State == ToolStateFailed
}
