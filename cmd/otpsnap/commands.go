package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haukened/otpsnap/internal/app"
	"github.com/haukened/otpsnap/internal/disclosure"
	"github.com/haukened/otpsnap/internal/janitor"
	"github.com/haukened/otpsnap/internal/otp"
	"github.com/haukened/otpsnap/internal/snapshot"
)

var version = "dev" // set by the linker

// defaultQuery lists the tables of the snapshot when no SQL is given.
const defaultQuery = "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name"

// flagKeys maps persistent flag names to configuration keys.
var flagKeys = map[string]string{
	"bridge":        "bridge",
	"adb-path":      "adb_path",
	"serial":        "adb_serial",
	"root":          "adb_root",
	"sftp-addr":     "sftp_addr",
	"sftp-user":     "sftp_user",
	"sftp-key":      "sftp_key_file",
	"known-hosts":   "sftp_known_hosts",
	"sftp-timeout":  "sftp_timeout",
	"local-root":    "local_root",
	"temp-dir":      "temp_dir",
	"grace":         "grace",
	"sweep-max-age": "sweep_max_age",
	"log-level":     "log_level",
}

// overridesFrom collects the configuration flags the user actually set.
func overridesFrom(fs *pflag.FlagSet) map[string]any {
	out := map[string]any{}
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			out[key] = f.Value.String()
		}
	})
	return out
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "otpsnap",
		Short:         "Snapshot device SQLite databases and disclose OTP accounts as QR codes",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(overridesFrom(cmd.Flags()))
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = newLogger(e.stderr, cfg.LogLevel)
			return nil
		},
	}
	root.SetIn(e.stdin)
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &configError{err: err}
	})

	pf := root.PersistentFlags()
	pf.String("bridge", "", "device bridge: adb, sftp or local")
	pf.String("adb-path", "", "adb executable")
	pf.String("serial", "", "adb device serial")
	pf.Bool("root", true, "read files through su -c (adb)")
	pf.String("sftp-addr", "", "SSH server host[:port]")
	pf.String("sftp-user", "", "SSH user")
	pf.String("sftp-key", "", "SSH private key file (agent when empty)")
	pf.String("known-hosts", "", "known_hosts file for host key verification")
	pf.Duration("sftp-timeout", 0, "SSH dial timeout")
	pf.String("local-root", "", "directory mirroring the device filesystem (local bridge)")
	pf.String("temp-dir", "", "parent directory for snapshots and disclosure pages")
	pf.Duration("grace", 0, "how long a disclosure page stays on disk")
	pf.Duration("sweep-max-age", 0, "minimum age of leftovers removed by sweep")
	pf.String("log-level", "", "debug, info, warn or error")

	root.AddCommand(newQueryCmd(e), newShowCmd(e), newExportCmd(), newSweepCmd(e), newVersionCmd())
	return root
}

func newQueryCmd(e *env) *cobra.Command {
	var dbPath, key string
	cmd := &cobra.Command{
		Use:   "query --db PATH [SQL]",
		Short: "Copy a remote database into a private snapshot and print query rows as JSON lines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := defaultQuery
			if len(args) == 1 {
				query = args[0]
			}
			bridge, closeBridge, err := openBridge(e.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := closeBridge(); cerr != nil {
					e.log.Warn("close bridge", "err", cerr)
				}
			}()

			svc := &app.Service{Loader: snapshot.New(bridge, e.cfg.TempDir, e.log)}
			rows, err := svc.QueryRemote(cmd.Context(), app.QueryRequest{RemotePath: dbPath, Key: key, Query: query})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range rows {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			e.log.Debug("query complete", "remote", dbPath, "rows", len(rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "absolute path of the database on the device")
	cmd.Flags().StringVar(&key, "key", "", "SQLCipher passphrase; fails unless the SQLite driver supports encryption")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newShowCmd(e *env) *cobra.Command {
	var uriFile string
	var prependIssuer bool
	cmd := &cobra.Command{
		Use:   "show --uri-file FILE",
		Short: "Display otpauth URIs as QR codes in a page deleted after the grace period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := readAccounts(cmd.InOrStdin(), uriFile)
			if err != nil {
				return err
			}
			r, err := disclosure.New(e.opener, disclosure.Config{Grace: e.cfg.Grace, TempDir: e.cfg.TempDir, Logger: e.log})
			if err != nil {
				return err
			}
			list := make([]app.Account, len(accounts))
			for i, a := range accounts {
				list[i] = a
			}
			svc := &app.Service{Discloser: r}
			return svc.Show(cmd.Context(), list, prependIssuer)
		},
	}
	cmd.Flags().StringVar(&uriFile, "uri-file", "", `file with one otpauth URI per line ("-" for stdin)`)
	cmd.Flags().BoolVar(&prependIssuer, "prepend-issuer", false, `label accounts as "issuer: name"`)
	_ = cmd.MarkFlagRequired("uri-file")
	return cmd
}

func newExportCmd() *cobra.Command {
	var uriFile string
	cmd := &cobra.Command{
		Use:   "export --uri-file FILE",
		Short: "Print otpauth URIs as an andOTP JSON backup",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := readAccounts(cmd.InOrStdin(), uriFile)
			if err != nil {
				return err
			}
			entries := make([]otp.AndOTPEntry, len(accounts))
			for i, a := range accounts {
				entries[i] = a.AndOTP()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}
	cmd.Flags().StringVar(&uriFile, "uri-file", "", `file with one otpauth URI per line ("-" for stdin)`)
	_ = cmd.MarkFlagRequired("uri-file")
	return cmd
}

// readAccounts parses one otpauth URI per line. Blank lines and lines
// starting with '#' are skipped, and repeated accounts are collapsed.
func readAccounts(stdin io.Reader, name string) ([]otp.Account, error) {
	var r io.Reader = stdin
	if name != "-" {
		f, err := os.Open(name) // #nosec G304: operator-supplied path.
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var out []otp.Account
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		acct, err := otp.ParseURI(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, acct)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return otp.Dedup(out), nil
}

func newSweepCmd(e *env) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove snapshot directories and disclosure pages left behind by killed runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := janitor.TempArtifacts{
				Dir:      e.cfg.TempDir,
				Prefixes: []string{snapshot.DirPrefix, disclosure.FilePrefix},
			}
			j := janitor.New(store, janitor.Config{Interval: interval, MaxAge: e.cfg.SweepMaxAge, Logger: e.log})
			if interval <= 0 {
				n, err := j.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", n)
				return nil
			}
			if _, err := j.RunOnce(cmd.Context()); err != nil {
				e.log.Warn("initial sweep", "err", err)
			}
			j.Start(cmd.Context())
			<-j.Done()
			j.Stop()
			m := j.MetricsSnapshot()
			e.log.Info("sweep stopped", "cycles", m.Cycles, "removed", m.Removed, "failures", m.Failures)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat the sweep at this interval until interrupted (0 runs once)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, c := resolveBuildVersion(nil)
			out := v
			if c != "" {
				out += " (" + c + ")"
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

// resolveBuildVersion prefers the module version and VCS revision recorded
// in the build info over the linker-set version.
func resolveBuildVersion(info *debug.BuildInfo) (string, string) {
	if info == nil {
		if bi, ok := debug.ReadBuildInfo(); ok {
			info = bi
		}
	}
	v, commit := version, ""
	if info == nil {
		return v, commit
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			commit = s.Value
		}
	}
	return v, commit
}
