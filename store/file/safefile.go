package file

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// safeWrite writes data to path atomically: tempfile, fsync, rename.
// The tempfile is created in the same directory as path
// so the rename stays on one filesystem.
func safeWrite(path string, data []byte, perm os.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmp := f.Name()

	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "syncing temp file")
	}
	if err = f.Chmod(perm); err != nil {
		f.Close()
		return errors.Wrap(err, "setting temp file mode")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	err = os.Rename(tmp, path)
	return errors.Wrap(err, "renaming temp file")
}

// safeAppend appends data to path, creating it if needed, and fsyncs it.
func safeAppend(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening %s for append", path)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrapf(err, "appending to %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "syncing %s", path)
	}
	return f.Close()
}
