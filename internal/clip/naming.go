package clip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"trim-it/internal/domain"
)

const (
	maxSlugLen   = 48
	maxNameTries = 1000
)

// Slug turns a source name into a filesystem-safe ASCII stem.
// Accents are folded ("Café" -> "cafe"); an empty result becomes "clip".
func Slug(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), stem)
	if err != nil {
		folded = stem
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "clip"
	}
	return slug
}

// OutputName builds <slug>_trimmed_<YYYYMMDDhhmmss>.mp4.
func OutputName(sourceName string, now time.Time) string {
	return fmt.Sprintf("%s_trimmed_%s.mp4", Slug(sourceName), now.Format("20060102150405"))
}

// ReserveOutput atomically creates an empty file for name in dir. When the
// name is taken, -1, -2, ... is inserted before the extension.
func ReserveOutput(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create output dir: %v", domain.ErrDisk, err)
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxNameTries; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: reserve %s: %v", domain.ErrDisk, candidate, err)
		}
	}
	return "", fmt.Errorf("%w: no free output name for %s", domain.ErrDisk, name)
}
