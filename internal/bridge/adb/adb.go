// Package adb provides a device bridge that reads files through the Android
// Debug Bridge binary. Existence is probed with "adb shell test -e", whose
// exit status is propagated by the shell protocol, and contents are streamed
// with "adb exec-out cat", which is binary safe. App databases usually need
// root, so commands can be wrapped in "su -c".
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/haukened/otpsnap/internal/app"
	"github.com/haukened/otpsnap/internal/domain"
)

var _ app.Bridge = (*Bridge)(nil)

// Runner executes a local command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args. Stderr is folded into the returned error; the
// underlying *exec.ExitError stays reachable with errors.As.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204: binary and args come from operator config.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// Config selects the adb binary and device.
type Config struct {
	Binary string // adb executable; "" means "adb"
	Serial string // device serial passed as -s; "" lets adb choose
	Root   bool   // wrap remote commands in su -c
}

// Bridge implements app.Bridge over adb.
type Bridge struct {
	cfg Config
	run Runner
}

// New returns a Bridge. A nil runner selects ExecRunner.
func New(cfg Config, run Runner) *Bridge {
	if cfg.Binary == "" {
		cfg.Binary = "adb"
	}
	if run == nil {
		run = ExecRunner{}
	}
	return &Bridge{cfg: cfg, run: run}
}

type exitCoder interface {
	ExitCode() int
}

// ReadFile returns the full contents of remotePath.
func (b *Bridge) ReadFile(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	ok, err := b.exists(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransfer, remotePath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, remotePath)
	}
	out, err := b.run.Run(ctx, b.cfg.Binary, b.args("exec-out", "cat "+Quote(remotePath))...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrTransfer, remotePath, err)
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}

// exists reports whether remotePath exists. test exits 1 for a missing path;
// any other failure is a transport problem.
func (b *Bridge) exists(ctx context.Context, remotePath string) (bool, error) {
	_, err := b.run.Run(ctx, b.cfg.Binary, b.args("shell", "test -e "+Quote(remotePath))...)
	if err == nil {
		return true, nil
	}
	var ec exitCoder
	if errors.As(err, &ec) && ec.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

func (b *Bridge) args(service, command string) []string {
	var a []string
	if b.cfg.Serial != "" {
		a = append(a, "-s", b.cfg.Serial)
	}
	if b.cfg.Root {
		command = "su -c " + Quote(command)
	}
	return append(a, service, command)
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
