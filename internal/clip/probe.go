package clip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"trim-it/internal/domain"
	"trim-it/internal/process"
)

// MediaInfo is what the executor needs to know about an input.
type MediaInfo struct {
	Duration   time.Duration `json:"duration"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	VideoCodec string        `json:"videoCodec,omitempty"`
	AudioCodec string        `json:"audioCodec,omitempty"`
}

// HasVideo reports whether a video stream was found.
func (m MediaInfo) HasVideo() bool {
	return m.VideoCodec != ""
}

var (
	copyVideoCodecs = map[string]bool{"h264": true, "hevc": true, "mpeg4": true, "av1": true, "vp9": true}
	copyAudioCodecs = map[string]bool{"": true, "aac": true, "mp3": true, "ac3": true, "eac3": true, "alac": true, "opus": true}
)

// CopyCompatible reports whether the streams can be muxed into MP4
// without re-encoding.
func (m MediaInfo) CopyCompatible() bool {
	return copyVideoCodecs[m.VideoCodec] && copyAudioCodecs[m.AudioCodec]
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

var (
	durationLine = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	videoLine    = regexp.MustCompile(`Stream #\d+:\d+.*?: Video: (\w+).*?, (\d{2,5})x(\d{2,5})`)
	audioLine    = regexp.MustCompile(`Stream #\d+:\d+.*?: Audio: (\w+)`)
)

// Prober reads container metadata with ffprobe, falling back to the
// banner that ffmpeg prints for its inputs.
type Prober struct {
	runner process.Runner
}

// NewProber creates a prober on top of runner.
func NewProber(runner process.Runner) *Prober {
	return &Prober{runner: runner}
}

// Probe inspects path. ffprobe may be empty.
func (p *Prober) Probe(ctx context.Context, ffprobe, ffmpeg, path string) (MediaInfo, error) {
	if ffprobe != "" {
		log, err := p.runner.Run(ctx, ffprobe,
			"-v", "error",
			"-show_entries", "stream=codec_type,codec_name,width,height:format=duration",
			"-of", "json",
			path,
		)
		if err == nil {
			if info, perr := parseProbeJSON([]byte(log.Stdout)); perr == nil {
				return info, nil
			}
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			return MediaInfo{}, ctxErr
		}
	}

	// ffmpeg exits non-zero without an output file; the banner is still printed.
	log, err := p.runner.Run(ctx, ffmpeg, "-hide_banner", "-nostdin", "-i", path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return MediaInfo{}, ctxErr
		}
		if errors.Is(err, domain.ErrSubprocessNotFound) {
			return MediaInfo{}, err
		}
	}
	info := parseBanner(log.Stderr)
	if info.Duration == 0 && !info.HasVideo() {
		return MediaInfo{}, &CommandError{
			Log: log,
			Err: fmt.Errorf("%w: could not read media info: %s", domain.ErrSubprocessNonZero, diagnostic(log.Stderr)),
		}
	}
	return info, nil
}

func parseProbeJSON(data []byte) (MediaInfo, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return MediaInfo{}, err
	}

	var info MediaInfo
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Width, info.Height = s.Width, s.Height
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}
	if secs, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && secs > 0 {
		info.Duration = time.Duration(secs * float64(time.Second))
	}
	if info.Duration == 0 && !info.HasVideo() {
		return MediaInfo{}, errors.New("ffprobe reported no streams")
	}
	return info, nil
}

func parseBanner(stderr string) MediaInfo {
	var info MediaInfo
	if m := durationLine.FindStringSubmatch(stderr); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		sec, _ := strconv.ParseFloat(m[3], 64)
		info.Duration = time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute +
			time.Duration(sec*float64(time.Second))
	}
	if m := videoLine.FindStringSubmatch(stderr); m != nil {
		info.VideoCodec = m[1]
		info.Width, _ = strconv.Atoi(m[2])
		info.Height, _ = strconv.Atoi(m[3])
	}
	if m := audioLine.FindStringSubmatch(stderr); m != nil {
		info.AudioCodec = m[1]
	}
	return info
}
