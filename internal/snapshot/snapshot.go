// Package snapshot pulls a possibly in-use SQLite database from a device,
// together with its rollback journal, write-ahead log and shared-memory
// index, into a private temporary directory and opens the local copy. SQLite
// itself reconciles the side files on open, so the snapshot observes the same
// committed state as the process that owns the database on the device.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/haukened/otpsnap/internal/app"
	"github.com/haukened/otpsnap/internal/domain"

	// database/sql SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// DirPrefix names every snapshot directory so leftovers from a killed process
// can be found by the janitor.
const DirPrefix = "otpsnap-snapshot-"

// DefaultDriver is the database/sql driver registered by go-sqlite3.
const DefaultDriver = "sqlite3"

var (
	_ app.SnapshotLoader = (*Loader)(nil)
	_ app.Database       = (*Snapshot)(nil)
)

// Loader retrieves remote databases through a device bridge.
type Loader struct {
	Bridge  app.Bridge
	TempDir string       // parent for snapshot dirs; "" means os.TempDir()
	Logger  *slog.Logger // optional logger (defaults to slog.Default())
	// DriverName selects the database/sql driver used to open snapshots,
	// e.g. a SQLCipher build registered under another name. "" means
	// DefaultDriver.
	DriverName string
}

// New constructs a Loader.
func New(bridge app.Bridge, tempDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Bridge: bridge, TempDir: tempDir, Logger: logger}
}

// Snapshot is an open connection to a local copy of a remote database. It
// owns its directory; Close releases both.
type Snapshot struct {
	remote domain.RemotePath
	dir    localDir
	db     *sql.DB
	files  []string

	once     sync.Once
	closeErr error
}

// Open pulls remotePath and its side files and opens the local copy.
//
// A missing primary file is returned unchanged (errors.Is domain.ErrNotFound).
// A missing side file is skipped. Any other read failure on any file is
// returned wrapped with domain.ErrTransfer. On error nothing is left on disk.
func (l *Loader) Open(ctx context.Context, remotePath string) (*Snapshot, error) {
	if l == nil || l.Bridge == nil {
		return nil, errors.New("snapshot loader not properly initialized")
	}
	rp, err := domain.ParseRemotePath(remotePath)
	if err != nil {
		return nil, err
	}
	log := l.logger().With("domain", "snapshot", "remote", rp.String())
	start := time.Now()

	root, err := os.MkdirTemp(l.TempDir, DirPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	dir := localDir{root: root}
	keep := false
	defer func() {
		if !keep {
			_ = os.RemoveAll(root)
		}
	}()

	var files []string
	for i, cand := range rp.Candidates() {
		n, err := l.pull(ctx, dir, cand)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) && i > 0 {
				log.Debug("side file absent", "file", cand.Base())
				continue
			}
			return nil, err
		}
		log.Debug("pulled", "file", cand.Base(), "bytes", n)
		files = append(files, cand.Base())
	}

	db, err := openLocal(ctx, l.driver(), dir.path(rp.Base()))
	if err != nil {
		return nil, err
	}
	keep = true
	log.Info("snapshot opened", "files", len(files), "ms", time.Since(start).Milliseconds())
	return &Snapshot{remote: rp, dir: dir, db: db, files: files}, nil
}

// With opens a snapshot, runs fn against it and then closes the connection
// and removes the snapshot directory, on every exit path including a panic
// raised by fn.
func (l *Loader) With(ctx context.Context, remotePath string, fn func(app.Database) error) (err error) {
	s, err := l.Open(ctx, remotePath)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := s.Close(); cErr != nil {
			err = errors.Join(err, cErr)
		}
	}()
	return fn(s)
}

func (l *Loader) driver() string {
	if l.DriverName == "" {
		return DefaultDriver
	}
	return l.DriverName
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// pull copies one remote file into dir. Not-found errors from the bridge are
// returned as-is; everything else is tagged as a transfer failure.
func (l *Loader) pull(ctx context.Context, dir localDir, p domain.RemotePath) (int64, error) {
	rc, err := l.Bridge.ReadFile(ctx, p.String())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
		return 0, transferError(p, err)
	}
	defer rc.Close()
	n, err := dir.write(p.Base(), rc)
	if err != nil {
		return 0, transferError(p, err)
	}
	return n, nil
}

func transferError(p domain.RemotePath, err error) error {
	if errors.Is(err, domain.ErrTransfer) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrTransfer, p, err)
}

// LocalDSN returns the go-sqlite3 DSN for a snapshot file. The path is
// URI-escaped so names containing '?' or '#' survive DSN parsing.
func LocalDSN(path string) string {
	u := url.URL{Path: path}
	return "file:" + u.EscapedPath() + "?_busy_timeout=5000"
}

func openLocal(ctx context.Context, driver, path string) (*sql.DB, error) {
	db, err := sql.Open(driver, LocalDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	// One connection keeps per-connection PRAGMAs (e.g. key) in effect for
	// every later query.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	return db, nil
}

// Remote returns the remote path the snapshot was taken from.
func (s *Snapshot) Remote() string { return s.remote.String() }

// Dir returns the local snapshot directory.
func (s *Snapshot) Dir() string { return s.dir.root }

// Files returns the base names of the files that were pulled, primary first.
func (s *Snapshot) Files() []string { return append([]string(nil), s.files...) }

// DB exposes the underlying handle for callers holding a *Snapshot from Open.
func (s *Snapshot) DB() *sql.DB { return s.db }

// Exec runs a statement that returns no rows.
func (s *Snapshot) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// Query runs query and returns every row keyed by column name.
func (s *Snapshot) Query(ctx context.Context, query string, args ...any) ([]domain.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []domain.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the connection and then removes the snapshot directory. It is
// safe to call more than once; later calls return the first result.
func (s *Snapshot) Close() error {
	s.once.Do(func() {
		dbErr := s.db.Close()
		rmErr := os.RemoveAll(s.dir.root)
		s.closeErr = errors.Join(dbErr, rmErr)
	})
	return s.closeErr
}
