// Package main provides the otpsnap binary. It pulls SQLite databases off a
// device into private temporary snapshots, queries them, and discloses OTP
// accounts as short-lived QR code pages.
//
// The application flow:
//  1. Parse flags (cobra).
//  2. Load defaults, apply environment variables and set flags, validate.
//  3. Install the slog handler at the configured level.
//  4. Build the device bridge and run the command.
//
// Exit status is 0 on success, 1 when the command fails and 2 when the
// configuration is invalid.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/otpsnap/internal/app"
	"github.com/haukened/otpsnap/internal/bridge/adb"
	"github.com/haukened/otpsnap/internal/bridge/localfs"
	"github.com/haukened/otpsnap/internal/bridge/sftpfs"
	"github.com/haukened/otpsnap/internal/config"
	"github.com/haukened/otpsnap/internal/disclosure"
)

// configError marks failures that happen before a command runs.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// env carries process-level dependencies so tests can swap them.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	opener disclosure.Opener // nil selects the platform browser

	cfg *config.Config
	log *slog.Logger
}

func loadConfig(overrides map[string]any) (*config.Config, error) {
	cfg, err := config.LoadWith(overrides)
	if err != nil {
		return nil, &configError{err: err}
	}
	return cfg, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openBridge builds the bridge selected by cfg. The returned close function
// is never nil.
func openBridge(cfg *config.Config) (app.Bridge, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Bridge {
	case config.BridgeADB:
		b := adb.New(adb.Config{Binary: cfg.ADBPath, Serial: cfg.ADBSerial, Root: cfg.ADBRoot}, nil)
		return b, noop, nil
	case config.BridgeSFTP:
		knownHosts, err := config.ExpandHome(cfg.SFTPKnownHosts)
		if err != nil {
			return nil, noop, err
		}
		keyFile, err := config.ExpandHome(cfg.SFTPKeyFile)
		if err != nil {
			return nil, noop, err
		}
		b, err := sftpfs.Dial(sftpfs.Config{
			Addr:       cfg.SFTPAddr,
			User:       cfg.SFTPUser,
			KeyFile:    keyFile,
			KnownHosts: knownHosts,
			Timeout:    cfg.SFTPTimeout,
		})
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	case config.BridgeLocal:
		b, err := localfs.New(cfg.LocalRoot)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown bridge %q", cfg.Bridge)
}

func run(ctx context.Context, args []string, e *env) int {
	root := newRootCmd(e)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	log := e.log
	if log == nil {
		log = newLogger(e.stderr, slog.LevelInfo)
	}
	var ce *configError
	if errors.As(err, &ce) {
		log.Error("configuration error", "err", ce.err)
		return 2
	}
	log.Error("command failed", "err", err)
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], &env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
	stop()
	os.Exit(code)
}
