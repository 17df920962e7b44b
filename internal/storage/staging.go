package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// stageFile copies r into dir under the base name of key and returns the path
// plus a release func that removes it. On error nothing is left on disk.
// Keys are fresh version identifiers, so concurrent uploads never share a path.
func stageFile(dir, key string, r io.Reader) (string, func(), error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", nil, fmt.Errorf("create staging dir: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(key))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", nil, fmt.Errorf("create staged file: %w", err)
	}
	release := func() { _ = os.Remove(path) }

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		release()
		return "", nil, fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close staged file: %w", err)
	}
	return path, release, nil
}
