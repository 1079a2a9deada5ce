package toolchain

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"trim-it/internal/domain"
)

// maxBinaryBytes caps a single extracted binary.
const maxBinaryBytes = 512 << 20

// extractBinaries copies the wanted executables out of an archive into
// destDir, flattening any directory prefix. It fails when a wanted binary
// is absent.
func extractBinaries(archivePath string, format ArchiveFormat, destDir string, wanted []string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", domain.ErrDisk, destDir, err)
	}

	var (
		written []string
		err     error
	)
	switch format {
	case FormatZip:
		written, err = extractZip(archivePath, destDir, wanted)
	case FormatTarXZ:
		written, err = extractTarXZ(archivePath, destDir, wanted)
	default:
		err = fmt.Errorf("%w: unknown archive format %q", domain.ErrCorruptArchive, format)
	}
	if err != nil {
		return nil, err
	}

	if missing := missingBinaries(wanted, written); len(missing) > 0 {
		return nil, fmt.Errorf("%w: archive does not contain %s", domain.ErrCorruptArchive, strings.Join(missing, ", "))
	}
	return written, nil
}

func extractZip(archivePath, destDir string, wanted []string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open zip: %v", domain.ErrCorruptArchive, err)
	}
	defer reader.Close()

	var written []string
	for _, file := range reader.File {
		if file == nil || file.FileInfo().IsDir() {
			continue
		}
		name, ok := matchBinary(file.Name, wanted)
		if !ok {
			continue
		}

		src, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrCorruptArchive, file.Name, err)
		}
		target, err := writeBinary(destDir, name, src)
		_ = src.Close()
		if err != nil {
			return nil, err
		}
		written = append(written, target)
	}
	return written, nil
}

func extractTarXZ(archivePath, destDir string, wanted []string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open archive: %v", domain.ErrDisk, err)
	}
	defer f.Close()

	xr, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: xz header: %v", domain.ErrCorruptArchive, err)
	}

	tr := tar.NewReader(xr)
	var written []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read tar: %v", domain.ErrCorruptArchive, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name, ok := matchBinary(hdr.Name, wanted)
		if !ok {
			continue
		}

		target, err := writeBinary(destDir, name, tr)
		if err != nil {
			return nil, err
		}
		written = append(written, target)
	}
	return written, nil
}

// matchBinary reports whether an archive entry is one of the wanted
// executables, returning the flattened file name.
func matchBinary(entryName string, wanted []string) (string, bool) {
	base := path.Base(strings.ReplaceAll(entryName, "\\", "/"))
	for _, w := range wanted {
		if strings.EqualFold(base, w) {
			return w, true
		}
	}
	return "", false
}

// writeBinary writes one executable into destDir with mode 0755.
func writeBinary(destDir, name string, src io.Reader) (string, error) {
	target := filepath.Join(destDir, name)
	if !isWithinBaseDir(destDir, target) {
		return "", fmt.Errorf("%w: archive contains invalid path: %s", domain.ErrCorruptArchive, name)
	}

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %v", domain.ErrDisk, target, err)
	}

	n, copyErr := io.Copy(dst, io.LimitReader(src, maxBinaryBytes+1))
	closeErr := dst.Close()
	if copyErr != nil {
		var pathErr *os.PathError
		if errors.As(copyErr, &pathErr) {
			return "", fmt.Errorf("%w: write %s: %v", domain.ErrDisk, target, copyErr)
		}
		return "", fmt.Errorf("%w: decompress %s: %v", domain.ErrCorruptArchive, name, copyErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("%w: close %s: %v", domain.ErrDisk, target, closeErr)
	}
	if n > maxBinaryBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrCorruptArchive, name, maxBinaryBytes)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: %s is empty", domain.ErrCorruptArchive, name)
	}
	if err := os.Chmod(target, 0o755); err != nil {
		return "", fmt.Errorf("%w: chmod %s: %v", domain.ErrDisk, target, err)
	}
	return target, nil
}

func missingBinaries(wanted, written []string) []string {
	have := make(map[string]bool, len(written))
	for _, w := range written {
		have[strings.ToLower(filepath.Base(w))] = true
	}
	var missing []string
	for _, w := range wanted {
		if !have[strings.ToLower(w)] {
			missing = append(missing, w)
		}
	}
	return missing
}

// isWithinBaseDir guards archive extraction against path traversal.
func isWithinBaseDir(baseDir string, targetPath string) bool {
	baseClean := filepath.Clean(baseDir)
	targetClean := filepath.Clean(targetPath)
	relative, err := filepath.Rel(baseClean, targetClean)
	if err != nil {
		return false
	}
	return relative == "." || (!strings.HasPrefix(relative, "..") && relative != "")
}
