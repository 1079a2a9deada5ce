package toolchain

import (
	"fmt"

	"trim-it/internal/domain"
)

// ArchiveFormat identifies how a release asset is packed.
type ArchiveFormat string

const (
	FormatZip   ArchiveFormat = "zip"
	FormatTarXZ ArchiveFormat = "tar.xz"
)

// Asset is one downloadable archive and the binaries expected inside it.
type Asset struct {
	URL      string        `json:"url"`
	Format   ArchiveFormat `json:"format"`
	Binaries []string      `json:"binaries"`
}

// Release describes a static ffmpeg build for one platform.
type Release struct {
	ID          string  `json:"id"`
	OS          string  `json:"os"`
	Arch        string  `json:"arch"`
	Name        string  `json:"name"`
	SizeLabel   string  `json:"sizeLabel,omitempty"`
	Description string  `json:"description,omitempty"`
	Assets      []Asset `json:"assets"`
}

var releaseCatalog = []Release{
	{
		ID:          "linux-amd64",
		OS:          "linux",
		Arch:        "amd64",
		Name:        "John Van Sickle static build (amd64)",
		SizeLabel:   "~40 MB",
		Description: "Statically linked ffmpeg and ffprobe release build.",
		Assets: []Asset{{
			URL:      "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-amd64-static.tar.xz",
			Format:   FormatTarXZ,
			Binaries: []string{"ffmpeg", "ffprobe"},
		}},
	},
	{
		ID:          "linux-arm64",
		OS:          "linux",
		Arch:        "arm64",
		Name:        "John Van Sickle static build (arm64)",
		SizeLabel:   "~35 MB",
		Description: "Statically linked ffmpeg and ffprobe release build.",
		Assets: []Asset{{
			URL:      "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-arm64-static.tar.xz",
			Format:   FormatTarXZ,
			Binaries: []string{"ffmpeg", "ffprobe"},
		}},
	},
	{
		ID:          "darwin-amd64",
		OS:          "darwin",
		Arch:        "amd64",
		Name:        "evermeet.cx release build",
		SizeLabel:   "~50 MB",
		Description: "Separate ffmpeg and ffprobe archives.",
		Assets:      evermeetAssets,
	},
	{
		ID:          "darwin-arm64",
		OS:          "darwin",
		Arch:        "arm64",
		Name:        "evermeet.cx release build (Rosetta)",
		SizeLabel:   "~50 MB",
		Description: "Intel build; runs under Rosetta 2 on Apple silicon.",
		Assets:      evermeetAssets,
	},
	{
		ID:          "windows-amd64",
		OS:          "windows",
		Arch:        "amd64",
		Name:        "gyan.dev release essentials",
		SizeLabel:   "~90 MB",
		Description: "Essentials build with ffmpeg.exe and ffprobe.exe.",
		Assets: []Asset{{
			URL:      "https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.zip",
			Format:   FormatZip,
			Binaries: []string{"ffmpeg.exe", "ffprobe.exe"},
		}},
	},
}

var evermeetAssets = []Asset{
	{URL: "https://evermeet.cx/ffmpeg/getrelease/zip", Format: FormatZip, Binaries: []string{"ffmpeg"}},
	{URL: "https://evermeet.cx/ffmpeg/getrelease/ffprobe/zip", Format: FormatZip, Binaries: []string{"ffprobe"}},
}

// Releases returns a copy of the built-in release catalogue.
func Releases() []Release {
	out := make([]Release, len(releaseCatalog))
	copy(out, releaseCatalog)
	return out
}

// SelectRelease picks the catalogue entry for a platform.
func SelectRelease(goos, goarch string) (Release, error) {
	for _, rel := range releaseCatalog {
		if rel.OS == goos && rel.Arch == goarch {
			return rel, nil
		}
	}
	return Release{}, fmt.Errorf("%w: no ffmpeg build for %s/%s", domain.ErrUnsupportedPlatform, goos, goarch)
}
