// Package domain path.go contains the remote database path type and the
// derivation of its SQLite side files.
package domain

import (
	"path"
	"strings"
)

// Side-file suffixes appended by SQLite after the full database file name.
const (
	SuffixJournal = "-journal"
	SuffixWAL     = "-wal"
	SuffixSHM     = "-shm"
)

// SideSuffixes lists the side-file suffixes in pull order.
var SideSuffixes = []string{SuffixJournal, SuffixWAL, SuffixSHM}

// RemotePath is a slash-separated path to a database file on the device.
type RemotePath string

// ParseRemotePath validates s and returns it as a RemotePath. It enforces:
// - non-empty, no NUL bytes
// - no trailing slash (the path names a file)
// - a base name other than "." or ".."
// Returns ErrInvalidPath on failure.
func ParseRemotePath(s string) (RemotePath, error) {
	if !isValidRemotePath(s) {
		return "", ErrInvalidPath
	}
	return RemotePath(s), nil
}

// String returns the string form of the RemotePath.
func (p RemotePath) String() string { return string(p) }

// Valid reports whether the path satisfies the same rules as ParseRemotePath.
func (p RemotePath) Valid() bool { return isValidRemotePath(string(p)) }

// Base returns the file name component, used verbatim for the local copy.
func (p RemotePath) Base() string { return path.Base(string(p)) }

// WithSuffix appends suffix to the file name, never before an extension:
// accounts.db becomes accounts.db-wal.
func (p RemotePath) WithSuffix(suffix string) RemotePath {
	return RemotePath(string(p) + suffix)
}

// Candidates returns the primary path followed by its journal, WAL and
// shared-memory side files.
func (p RemotePath) Candidates() []RemotePath {
	out := make([]RemotePath, 0, 1+len(SideSuffixes))
	out = append(out, p)
	for _, s := range SideSuffixes {
		out = append(out, p.WithSuffix(s))
	}
	return out
}

func isValidRemotePath(s string) bool {
	if s == "" || strings.ContainsRune(s, 0) || strings.HasSuffix(s, "/") {
		return false
	}
	switch path.Base(s) {
	case ".", "..":
		return false
	}
	return true
}
