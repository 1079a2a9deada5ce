package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus tracks each pipeline stage for a single clip job.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusResolving   JobStatus = "resolving"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusTrimming    JobStatus = "trimming"
	JobStatusDone        JobStatus = "done"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed || s == JobStatusCancelled
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir    string `json:"outputDir" mapstructure:"output_dir"`
	DataDir      string `json:"dataDir" mapstructure:"data_dir"`
	TempDir      string `json:"tempDir" mapstructure:"temp_dir"`
	LogLevel     string `json:"logLevel" mapstructure:"log_level"`
	LogFormat    string `json:"logFormat" mapstructure:"log_format"`
	ListenAddr   string `json:"listenAddr" mapstructure:"listen_addr"`
	EncodePreset string `json:"encodePreset" mapstructure:"encode_preset"`
	// EncodeCRF is nil when unset; 0 selects lossless x264.
	EncodeCRF    *int   `json:"encodeCrf,omitempty" mapstructure:"encode_crf"`
}

// DefaultEncodeCRF is the x264 quality used when none is configured.
const DefaultEncodeCRF = 28

// CRF returns a settable EncodeCRF value.
func CRF(v int) *int {
	return &v
}

// EffectiveCRF returns the configured CRF or DefaultEncodeCRF.
func (s Settings) EffectiveCRF() int {
	if s.EncodeCRF == nil {
		return DefaultEncodeCRF
	}
	return *s.EncodeCRF
}

// Job stores one clip job identity and lifecycle status.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Source    string    `json:"source,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// Ratio is the requested output frame shape.
type Ratio string

const (
	RatioOriginal Ratio = "Original"
	Ratio16x9     Ratio = "16:9"
	Ratio9x16     Ratio = "9:16"
	Ratio1x1      Ratio = "1:1"
)

// Ratios lists every supported output shape in UI order.
var Ratios = []Ratio{RatioOriginal, Ratio16x9, Ratio9x16, Ratio1x1}

// ParseRatio maps a user label onto a supported Ratio. Matching ignores
// case and surrounding spaces; an empty label is rejected.
func ParseRatio(raw string) (Ratio, error) {
	label := strings.TrimSpace(raw)
	if label == "" {
		return "", fmt.Errorf("ratio is required, one of %s", strings.Join(ratioLabels(), ", "))
	}
	for _, r := range Ratios {
		if strings.EqualFold(label, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unsupported ratio: %q", raw)
}

func ratioLabels() []string {
	labels := make([]string, len(Ratios))
	for i, r := range Ratios {
		labels[i] = string(r)
	}
	return labels
}

// Terms returns the width:height terms of a fixed ratio.
// ok is false for RatioOriginal.
func (r Ratio) Terms() (w, h int, ok bool) {
	switch r {
	case Ratio16x9:
		return 16, 9, true
	case Ratio9x16:
		return 9, 16, true
	case Ratio1x1:
		return 1, 1, true
	default:
		return 0, 0, false
	}
}

// ClipRequest is one trim invocation after input parsing.
type ClipRequest struct {
	Source string
	Start  time.Duration
	End    time.Duration
	Ratio  Ratio
}

// Validate enforces End > Start and non-negative bounds.
func (r ClipRequest) Validate() error {
	if r.Start < 0 || r.End < 0 {
		return fmt.Errorf("%w: timestamps must not be negative", ErrInvalidTimeRange)
	}
	if r.End <= r.Start {
		return fmt.Errorf("%w: end must be after start", ErrInvalidTimeRange)
	}
	return nil
}
