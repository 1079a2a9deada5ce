package clip

import (
	"fmt"
	"math"

	"trim-it/internal/domain"
)

// Box is a crop rectangle in source pixels.
type Box struct {
	W, H int
	X, Y int
}

// Filter renders the box as an ffmpeg crop filter.
func (b Box) Filter() string {
	return fmt.Sprintf("crop=%d:%d:%d:%d", b.W, b.H, b.X, b.Y)
}

// CropBox returns the largest centred even-sized rectangle inside a
// srcW x srcH frame whose shape matches ratio. The side derived from the
// other is within one pixel of exact.
func CropBox(srcW, srcH int, ratio domain.Ratio) (Box, error) {
	rw, rh, ok := ratio.Terms()
	if !ok {
		return Box{}, fmt.Errorf("ratio %q has no fixed shape", ratio)
	}
	maxW, maxH := evenFloor(srcW), evenFloor(srcH)
	if maxW < 2 || maxH < 2 {
		return Box{}, fmt.Errorf("source %dx%d is too small to crop", srcW, srcH)
	}

	w, h := maxW, evenRound(float64(maxW)*float64(rh)/float64(rw))
	if h > maxH {
		h = maxH
		w = evenRound(float64(maxH) * float64(rw) / float64(rh))
	}
	if w < 2 || h < 2 {
		return Box{}, fmt.Errorf("source %dx%d is too small for %s", srcW, srcH, ratio)
	}

	return Box{
		W: w,
		H: h,
		X: evenFloor((srcW - w) / 2),
		Y: evenFloor((srcH - h) / 2),
	}, nil
}

func evenFloor(v int) int {
	if v < 0 {
		return 0
	}
	return v &^ 1
}

func evenRound(v float64) int {
	return 2 * int(math.Round(v/2))
}
