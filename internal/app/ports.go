// Package app defines the application layer "ports" (interfaces) and simple
// data contracts that the core use-cases of otpsnap depend upon. It follows a
// hexagonal (ports & adapters) design: this package declares what the core
// needs, while adapter packages (device bridges, the snapshot loader, the
// disclosure renderer) provide concrete implementations. No I/O, logging, SQL,
// or network concerns belong here.
package app

import (
	"context"
	"io"

	"github.com/haukened/otpsnap/internal/domain"
)

// Bridge is the device-bridge transport. ReadFile streams the full contents of
// a remote file. Implementations MUST return an error matching
// domain.ErrNotFound (errors.Is) when the path does not exist, and a different
// error for any other I/O or transport problem.
type Bridge interface {
	ReadFile(ctx context.Context, remotePath string) (io.ReadCloser, error)
}

// Database is the query surface of an opened snapshot. Rows are addressable
// by column name.
type Database interface {
	Query(ctx context.Context, query string, args ...any) ([]domain.Row, error)
	Exec(ctx context.Context, query string, args ...any) error
}

// SnapshotLoader pulls a remote database with its side files and runs fn
// against a local, self-consistent copy. All local resources are released
// after fn returns, whatever its outcome.
type SnapshotLoader interface {
	With(ctx context.Context, remotePath string, fn func(Database) error) error
}

// Account is the single capability the disclosure flow needs from an OTP
// account: its canonical otpauth URI.
type Account interface {
	URI(prependIssuer bool) string
}

// Discloser shows accounts to the user through a short-lived artifact and
// guarantees the artifact is gone when Display returns.
type Discloser interface {
	Display(ctx context.Context, accounts []Account, prependIssuer bool) error
}
