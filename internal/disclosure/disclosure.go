// Package disclosure renders decoded OTP accounts into a self-refreshing HTML
// page with one QR code and one live code per account, opens it in the
// user's default viewer and deletes it again after a short viewing window.
//
// The page holds plain-text secrets. It is written with owner-only
// permissions and removed on every exit path of Display. Opening is
// fire-and-forget, so the fixed grace period is a bounded mitigation against
// deleting the file before a slow viewer has read it, not a guarantee.
package disclosure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/browser"

	"github.com/haukened/otpsnap/internal/app"
	wembed "github.com/haukened/otpsnap/web"
)

// FilePrefix names every disclosure file so leftovers from a killed process
// can be found by the janitor.
const FilePrefix = "otpsnap-disclosure-"

// DefaultGrace is how long Display waits after launching the viewer.
const DefaultGrace = 10 * time.Second

const templateName = "disclosure.tmpl.html"

var _ app.Discloser = (*Renderer)(nil)

// Opener launches the system viewer for a URL and returns without waiting
// for the viewer to exit.
type Opener interface {
	Open(url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

// Open calls f(u).
func (f OpenerFunc) Open(u string) error { return f(u) }

// BrowserOpener opens URLs with the platform's default handler.
type BrowserOpener struct{}

// Open hands u to xdg-open, open or start depending on the platform.
func (BrowserOpener) Open(u string) error { return browser.OpenURL(u) }

// Config holds tunables for the Renderer.
type Config struct {
	Grace   time.Duration // viewing window; <= 0 means DefaultGrace
	TempDir string        // parent for the page file; "" means os.TempDir()
	Logger  *slog.Logger  // optional logger (defaults to slog.Default())
}

// Renderer implements app.Discloser.
type Renderer struct {
	opener Opener
	cfg    Config
	tmpl   *template.Template
	sleep  func(ctx context.Context, d time.Duration) error
}

type page struct {
	Title    string
	Accounts template.JS
}

// New parses the embedded page template and returns a Renderer. A nil opener
// selects BrowserOpener.
func New(opener Opener, cfg Config) (*Renderer, error) {
	if opener == nil {
		opener = BrowserOpener{}
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	t, err := template.ParseFS(wembed.FS, templateName)
	if err != nil {
		return nil, fmt.Errorf("parse disclosure template: %w", err)
	}
	return &Renderer{opener: opener, cfg: cfg, tmpl: t, sleep: sleepContext}, nil
}

// Render returns the page for uris. The URIs are sorted so equal sets always
// produce identical bytes whatever their input order.
func (r *Renderer) Render(uris []string) ([]byte, error) {
	sorted := make([]string, len(uris))
	copy(sorted, uris)
	sort.Strings(sorted)
	// encoding/json escapes <, > and & so no URI can close the script element.
	js, err := json.MarshalIndent(sorted, "        ", "    ")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, templateName, page{Title: "OTP QR Codes", Accounts: template.JS(js)}); err != nil {
		return nil, fmt.Errorf("render disclosure page: %w", err)
	}
	return buf.Bytes(), nil
}

// Display renders accounts, writes the page to a private temporary file,
// opens it, waits for the grace period and deletes the file. The file is
// deleted whether or not any earlier step failed.
func (r *Renderer) Display(ctx context.Context, accounts []app.Account, prependIssuer bool) (err error) {
	log := r.cfg.Logger.With("domain", "disclosure")
	uris := make([]string, 0, len(accounts))
	for _, a := range accounts {
		uris = append(uris, a.URI(prependIssuer))
	}
	body, err := r.Render(uris)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(r.cfg.TempDir, FilePrefix+"*.html")
	if err != nil {
		return fmt.Errorf("create disclosure file: %w", err)
	}
	name := f.Name()
	defer func() {
		rmErr := os.Remove(name)
		if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Error("remove disclosure file", "file", name, "err", rmErr)
			err = errors.Join(err, rmErr)
			return
		}
		log.Info("disclosure file removed", "file", name)
	}()

	if err = writePrivate(f, body); err != nil {
		return fmt.Errorf("write disclosure file: %w", err)
	}
	if err = r.opener.Open(FileURL(name)); err != nil {
		return fmt.Errorf("open viewer: %w", err)
	}
	log.Info("disclosure opened", "accounts", len(uris), "grace", r.cfg.Grace)
	return r.sleep(ctx, r.cfg.Grace)
}

func writePrivate(f *os.File, body []byte) error {
	err := f.Chmod(0o600)
	if err == nil {
		_, err = f.Write(body)
	}
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	return err
}

// FileURL converts a local path into a file:// URL.
func FileURL(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
