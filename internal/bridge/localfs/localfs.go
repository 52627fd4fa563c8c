// Package localfs provides a device bridge backed by a local directory that
// mirrors the device filesystem, such as an extracted backup or a mounted
// image. Remote paths are resolved below the root and cannot escape it.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/haukened/otpsnap/internal/app"
	"github.com/haukened/otpsnap/internal/domain"
)

var _ app.Bridge = (*Bridge)(nil)

// Bridge implements app.Bridge over an os.Root.
type Bridge struct {
	root *os.Root
}

// New returns a bridge rooted at dir. The directory must already exist.
func New(dir string) (*Bridge, error) {
	r, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Bridge{root: r}, nil
}

// ReadFile opens remotePath below the root. Absolute remote paths are
// treated as relative to the root.
func (b *Bridge) ReadFile(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimLeft(path.Clean("/"+remotePath), "/")
	if name == "" {
		return nil, fmt.Errorf("%w: %s: not a file", domain.ErrTransfer, remotePath)
	}
	f, err := b.root.Open(filepath.FromSlash(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, remotePath)
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransfer, remotePath, err)
	}
	st, err := f.Stat()
	if err == nil && st.IsDir() {
		err = errors.New("is a directory")
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransfer, remotePath, err)
	}
	return f, nil
}

// Close releases the root handle.
func (b *Bridge) Close() error { return b.root.Close() }
