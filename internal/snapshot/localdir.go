package snapshot

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// localDir is the private directory holding one snapshot. Files keep the
// base name they had on the device so SQLite pairs the database with its
// -journal, -wal and -shm siblings on open.
type localDir struct {
	root string
}

func (d localDir) path(name string) string { return filepath.Join(d.root, name) }

// write stores the full contents of r under name. A partial file is removed
// when the copy fails so it can never be opened as if complete.
func (d localDir) write(name string, r io.Reader) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	p := d.path(name)
	// #nosec G304: name is a validated base name inside a private temp dir.
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(p)
		return 0, err
	}
	return n, nil
}

// validateName rejects anything that is not a plain file name on the local
// platform, which rules out traversal out of the snapshot directory.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return errors.New("invalid snapshot file name")
	}
	return nil
}
