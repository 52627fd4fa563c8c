// Package config provides layered configuration loading for otpsnap.
// It merges Defaults -> Environment Variables -> CLI Flags, with validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variable names before they are
// lower-cased into configuration keys.
const EnvPrefix = "OTPSNAP_"

// Config holds the merged runtime configuration.
type Config struct {
	Bridge         BridgeKind    `koanf:"bridge" validate:"oneof=adb sftp local"`
	ADBPath        string        `koanf:"adb_path" validate:"required_if=Bridge adb"`
	ADBSerial      string        `koanf:"adb_serial"`
	ADBRoot        bool          `koanf:"adb_root"`
	SFTPAddr       string        `koanf:"sftp_addr" validate:"required_if=Bridge sftp,omitempty,hostport"`
	SFTPUser       string        `koanf:"sftp_user" validate:"required_if=Bridge sftp"`
	SFTPKeyFile    string        `koanf:"sftp_key_file"`
	SFTPKnownHosts string        `koanf:"sftp_known_hosts" validate:"required_if=Bridge sftp"`
	SFTPTimeout    time.Duration `koanf:"sftp_timeout" validate:"gt=0"`
	LocalRoot      string        `koanf:"local_root" validate:"required_if=Bridge local"`
	TempDir        string        `koanf:"temp_dir"`
	Grace          time.Duration `koanf:"grace" validate:"gt=0"`
	SweepMaxAge    time.Duration `koanf:"sweep_max_age" validate:"gt=0"`
	LogLevel       slog.Level    `koanf:"log_level"`
}

// DefaultAppConfig is the lowest configuration layer.
var DefaultAppConfig = Config{
	Bridge:         BridgeADB,
	ADBPath:        "adb",
	ADBRoot:        true,
	SFTPKnownHosts: "~/.ssh/known_hosts",
	SFTPTimeout:    10 * time.Second,
	Grace:          10 * time.Second,
	SweepMaxAge:    time.Hour,
	LogLevel:       slog.LevelInfo,
}

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil)
}

var registerValidators = func(v *validator.Validate) error {
	return v.RegisterValidation("hostport", validHostPort)
}

// Load returns the configuration built from defaults and the environment.
func Load() (*Config, error) {
	return LoadWith(nil)
}

// LoadWith is Load with a final layer of key/value overrides, typically the
// CLI flags the user actually set. Keys use the koanf names ("grace",
// "log_level"); values may be strings and are decoded like environment values.
func LoadWith(overrides map[string]any) (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	for key, val := range overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       decodeHook(),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	v := validator.New()
	if err := registerValidators(v); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.SweepMaxAge <= cfg.Grace {
		return nil, errors.New("sweep_max_age must be greater than grace")
	}
	return &cfg, nil
}

// hostChecks runs the stock validator tags validHostPort is built from.
var hostChecks = validator.New()

// validHostPort accepts "host" or "host:port" where host is an RFC 1123 name
// or an IP address (IPv6 bracketed), and port is in 1..65535.
func validHostPort(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			return hostChecks.Var(s[1:len(s)-1], "required,ipv6") == nil
		}
		return hostChecks.Var(s, "required,hostname_rfc1123|ipv4") == nil
	}
	n, err := strconv.Atoi(port)
	if err != nil || hostChecks.Var(n, "min=1,max=65535") != nil {
		return false
	}
	return hostChecks.Var(host, "required,hostname_rfc1123|ip") == nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
