package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes to a temp file in the destination directory and
// renames it over path, so readers only ever see the old or the new content.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return joinClose(err, tmp)
	}
	if err := tmp.Chmod(perm); err != nil {
		return joinClose(err, tmp)
	}
	if err := tmp.Sync(); err != nil {
		return joinClose(err, tmp)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func joinClose(err error, f *os.File) error {
	if closeErr := f.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}
