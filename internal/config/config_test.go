package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assert.EqualValues(t, DefaultAppConfig, *cfg)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("OTPSNAP_BRIDGE", " SFTP ")
	t.Setenv("OTPSNAP_SFTP_ADDR", "phone.lan:8022")
	t.Setenv("OTPSNAP_SFTP_USER", "u0_a123")
	t.Setenv("OTPSNAP_SFTP_TIMEOUT", "3s")
	t.Setenv("OTPSNAP_ADB_ROOT", "false")
	t.Setenv("OTPSNAP_GRACE", "30s")
	t.Setenv("OTPSNAP_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BridgeSFTP, cfg.Bridge)
	assert.Equal(t, "phone.lan:8022", cfg.SFTPAddr)
	assert.Equal(t, "u0_a123", cfg.SFTPUser)
	assert.Equal(t, 3*time.Second, cfg.SFTPTimeout)
	assert.False(t, cfg.ADBRoot)
	assert.Equal(t, 30*time.Second, cfg.Grace)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestOverridesBeatEnv(t *testing.T) {
	t.Setenv("OTPSNAP_GRACE", "30s")
	cfg, err := LoadWith(map[string]any{
		"grace":      "5s",
		"bridge":     "local",
		"local_root": "/tmp/device",
	})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Grace)
	assert.Equal(t, BridgeLocal, cfg.Bridge)
	assert.Equal(t, "/tmp/device", cfg.LocalRoot)
}

func TestRequiredPerBridge(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"sftp_without_addr", map[string]string{"OTPSNAP_BRIDGE": "sftp", "OTPSNAP_SFTP_USER": "u"}},
		{"sftp_without_user", map[string]string{"OTPSNAP_BRIDGE": "sftp", "OTPSNAP_SFTP_ADDR": "phone:22"}},
		{"local_without_root", map[string]string{"OTPSNAP_BRIDGE": "local"}},
		{"adb_without_binary", map[string]string{"OTPSNAP_ADB_PATH": ""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestUnknownBridge(t *testing.T) {
	t.Setenv("OTPSNAP_BRIDGE", "usb")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown bridge "usb"`)
}

func TestBadDurations(t *testing.T) {
	for _, key := range []string{"OTPSNAP_GRACE", "OTPSNAP_SFTP_TIMEOUT", "OTPSNAP_SWEEP_MAX_AGE"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "soon")
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestZeroGrace(t *testing.T) {
	t.Setenv("OTPSNAP_GRACE", "0s")
	_, err := Load()
	assert.Error(t, err)
}

func TestBadLogLevel(t *testing.T) {
	t.Setenv("OTPSNAP_LOG_LEVEL", "chatty")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidHostPort(t *testing.T) {
	type sample struct {
		Addr string `validate:"hostport"`
	}

	v := validator.New()
	if err := v.RegisterValidation("hostport", validHostPort); err != nil {
		t.Fatalf("register validation: %v", err)
	}

	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{name: "empty", addr: "", valid: false},
		{name: "bare_hostname", addr: "phone.lan", valid: true},
		{name: "bare_ipv4", addr: "192.168.1.20", valid: true},
		{name: "hostname_port", addr: "phone.lan:8022", valid: true},
		{name: "ipv4_port", addr: "127.0.0.1:22", valid: true},
		{name: "ipv6_bracketed", addr: "[::1]", valid: true},
		{name: "ipv6_bracketed_port", addr: "[fe80::1]:2222", valid: true},
		{name: "unbracketed_ipv6", addr: "::1:8080", valid: false},
		{name: "missing_host", addr: ":22", valid: false},
		{name: "missing_port_after_colon", addr: "phone:", valid: false},
		{name: "non_numeric_port", addr: "phone:ssh", valid: false},
		{name: "port_zero", addr: "phone:0", valid: false},
		{name: "port_max_valid", addr: "phone:65535", valid: true},
		{name: "port_overflow", addr: "phone:65536", valid: false},
		{name: "negative_port", addr: "phone:-1", valid: false},
		{name: "invalid_host_chars", addr: "not a host!:22", valid: false},
		{name: "leading_hyphen", addr: "-phone:22", valid: false},
		{name: "empty_label", addr: "phone..lan", valid: false},
		{name: "trailing_space", addr: "phone:22 ", valid: false},
		{name: "bracketed_hostname", addr: "[phone]", valid: false},
		{name: "bracketed_ipv4", addr: "[10.0.0.1]", valid: false},
		{name: "label_too_long", addr: strings.Repeat("a", 64) + ".lan:22", valid: false},
		{name: "empty_host_with_port", addr: "[]:22", valid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := sample{Addr: tc.addr}
			err := v.Struct(&s)
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestInvalidSFTPAddr(t *testing.T) {
	t.Setenv("OTPSNAP_BRIDGE", "sftp")
	t.Setenv("OTPSNAP_SFTP_USER", "u")
	t.Setenv("OTPSNAP_SFTP_ADDR", "phone:99999")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaultError(t *testing.T) {
	orig := defaultLoader
	t.Cleanup(func() { defaultLoader = orig })
	defaultLoader = func(k *koanf.Koanf) error {
		assert.NotNil(t, k)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestLoadEnvError(t *testing.T) {
	orig := envLoader
	t.Cleanup(func() { envLoader = orig })
	envLoader = func(k *koanf.Koanf) error {
		assert.NotNil(t, k)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestRegisterValidationFails(t *testing.T) {
	orig := registerValidators
	t.Cleanup(func() { registerValidators = orig })
	registerValidators = func(v *validator.Validate) error {
		assert.NotNil(t, v)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestSweepAgeNotAboveGrace(t *testing.T) {
	t.Setenv("OTPSNAP_GRACE", "10m")
	t.Setenv("OTPSNAP_SWEEP_MAX_AGE", "5m")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "sweep_max_age must be greater than grace" {
		t.Fatalf("expected sweep/grace error, got: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandHome("~/.ssh/known_hosts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ssh", "known_hosts"), got)

	got, err = ExpandHome("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ExpandHome("/etc/ssh/ssh_known_hosts")
	require.NoError(t, err)
	assert.Equal(t, "/etc/ssh/ssh_known_hosts", got)

	got, err = ExpandHome("~other/file")
	require.NoError(t, err)
	assert.Equal(t, "~other/file", got)
}

func TestMain(m *testing.M) {
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, EnvPrefix) {
			_ = os.Unsetenv(key)
		}
	}
	os.Exit(m.Run())
}
