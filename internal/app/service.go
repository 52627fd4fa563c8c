// Package app contains the application orchestration layer for otpsnap. It
// wires the snapshot loader and the disclosure renderer without performing
// any I/O itself.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/haukened/otpsnap/internal/domain"
	"github.com/haukened/otpsnap/internal/sqlesc"
)

var (
	// ErrNoAccounts indicates Show was called with nothing to display.
	ErrNoAccounts = errors.New("no accounts to display")
	// ErrKeyUnsupported indicates a key was given but the SQLite driver has
	// no encryption support, so PRAGMA key would be silently ignored.
	ErrKeyUnsupported = errors.New("sqlite driver does not support encrypted databases")
)

// Service orchestrates database snapshot queries and account disclosure using
// the injected ports.
type Service struct {
	Loader    SnapshotLoader
	Discloser Discloser
}

// QueryRequest describes one read against a remote database.
// Key, when set, is issued as PRAGMA key before the query for encrypted
// databases; pragmas cannot take bound parameters so it is escaped inline.
type QueryRequest struct {
	RemotePath string
	Key        string
	Query      string
	Args       []any
}

// QueryRemote snapshots the remote database, runs the query and returns its
// rows. The local snapshot is removed before QueryRemote returns.
func (s *Service) QueryRemote(ctx context.Context, req QueryRequest) ([]domain.Row, error) {
	if s == nil || s.Loader == nil {
		return nil, errors.New("service not properly initialized")
	}
	if _, err := domain.ParseRemotePath(req.RemotePath); err != nil {
		return nil, err
	}
	var rows []domain.Row
	err := s.Loader.With(ctx, req.RemotePath, func(db Database) error {
		if req.Key != "" {
			if err := applyKey(ctx, db, req.Key); err != nil {
				return fmt.Errorf("apply key: %w", err)
			}
		}
		var qErr error
		rows, qErr = db.Query(ctx, req.Query, req.Args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// applyKey issues PRAGMA key and checks that it took effect. A driver
// without SQLCipher answers PRAGMA cipher_version with no rows; a wrong key
// fails the first read of the schema.
func applyKey(ctx context.Context, db Database, key string) error {
	if err := db.Exec(ctx, "PRAGMA key = "+sqlesc.Quote(key)); err != nil {
		return err
	}
	rows, err := db.Query(ctx, "PRAGMA cipher_version")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrKeyUnsupported
	}
	if _, err := db.Query(ctx, "SELECT count(*) FROM sqlite_master"); err != nil {
		return err
	}
	return nil
}

// Show hands the accounts to the discloser.
func (s *Service) Show(ctx context.Context, accounts []Account, prependIssuer bool) error {
	if s == nil || s.Discloser == nil {
		return errors.New("service not properly initialized")
	}
	if len(accounts) == 0 {
		return ErrNoAccounts
	}
	return s.Discloser.Display(ctx, accounts, prependIssuer)
}
