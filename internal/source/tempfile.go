package source

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Resolved is a local file ready for the clip executor. The pipeline
// invocation that created it owns it and must call Release.
type Resolved struct {
	Path       string
	Name       string
	Kind       Kind
	Temporary  bool
	PreTrimmed bool
	Warnings   []string

	cleanup func() error
	once    sync.Once
	err     error
}

// Release deletes any temporary file or directory behind the source.
// It is safe to call more than once.
func (r *Resolved) Release() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		if r.cleanup != nil {
			r.err = r.cleanup()
		}
	})
	return r.err
}

// createTemp opens a fresh, uniquely named file in dir.
func createTemp(dir, ext string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	pattern := fmt.Sprintf("trimit-%d-*%s", time.Now().UnixNano(), ext)
	return os.CreateTemp(dir, pattern)
}

func removeFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func removeDir(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}
