package clip

import (
	"strconv"
	"time"
)

// Plan is a fully decided ffmpeg invocation.
type Plan struct {
	Input    string
	Output   string
	Start    time.Duration
	Duration time.Duration
	// Seek is false for inputs that already contain only the clip.
	Seek   bool
	Copy   bool
	Crop   *Box
	Preset string
	CRF    int
}

// BuildArgs renders plan as discrete ffmpeg arguments. Paths must be
// absolute so they cannot be mistaken for options or protocols.
func BuildArgs(plan Plan) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	if plan.Seek {
		args = append(args, "-ss", FormatSeconds(plan.Start))
	}
	args = append(args, "-i", plan.Input)
	if plan.Seek {
		args = append(args, "-t", FormatSeconds(plan.Duration))
	}

	if plan.Copy && plan.Crop == nil {
		args = append(args,
			"-c", "copy",
			"-avoid_negative_ts", "make_zero",
			"-movflags", "+faststart",
		)
		return append(args, plan.Output)
	}

	if plan.Crop != nil {
		args = append(args, "-vf", plan.Crop.Filter())
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", plan.Preset,
		"-crf", strconv.Itoa(plan.CRF),
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		plan.Output,
	)
	return args
}
