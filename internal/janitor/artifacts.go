package janitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TempArtifacts sweeps top-level entries of Dir whose names start with one
// of Prefixes. Entries the current user may not remove are skipped.
type TempArtifacts struct {
	Dir      string
	Prefixes []string
}

// SweepBefore removes matching entries last modified before t.
func (a TempArtifacts) SweepBefore(ctx context.Context, t time.Time) (int, error) {
	dir := a.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !a.matches(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// raced with another remover
			continue
		}
		if !info.ModTime().Before(t) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (a TempArtifacts) matches(name string) bool {
	for _, p := range a.Prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
