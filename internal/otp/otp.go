// Package otp implements the OTP account model: TOTP, HOTP and the Steam and
// Authy variants found on Android authenticator apps. Accounts render to
// otpauth:// URIs; codes are computed by the viewer, never here.
package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Algorithm names the HMAC hash.
type Algorithm string

// Supported algorithms.
const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

// Defaults applied to zero-valued fields.
const (
	DefaultDigits = 6
	DefaultPeriod = 30
	SteamDigits   = 5
)

// ErrUnknownAlgorithm is returned for an unsupported hash name.
var ErrUnknownAlgorithm = errors.New("unknown otp algorithm")

func (a Algorithm) orDefault() Algorithm {
	if a == "" {
		return SHA1
	}
	return a
}

// Validate reports ErrUnknownAlgorithm for anything but SHA1, SHA256 or
// SHA512. The empty algorithm means SHA1.
func (a Algorithm) Validate() error {
	switch Algorithm(strings.ToUpper(string(a.orDefault()))) {
	case SHA1, SHA256, SHA512:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
}

// TOTP is a time-based account (RFC 6238).
type TOTP struct {
	Name      string
	Issuer    string
	Secret    []byte
	Digits    int
	Period    int
	Algorithm Algorithm
}

// HOTP is a counter-based account (RFC 4226).
type HOTP struct {
	Name      string
	Issuer    string
	Secret    []byte
	Counter   uint64
	Digits    int
	Algorithm Algorithm
}

// Steam is a five-digit TOTP account exported by Steam Guard. The viewer
// shows it like any other TOTP account.
type Steam struct{ TOTP }

// Authy is a TOTP account exported by the Authy app. The viewer shows it
// like any other TOTP account.
type Authy struct{ TOTP }

// NewSteam returns a Steam account with the fixed Steam digit count.
func NewSteam(name, issuer string, secret []byte) Steam {
	return Steam{TOTP{Name: name, Issuer: issuer, Secret: secret, Digits: SteamDigits, Period: DefaultPeriod, Algorithm: SHA1}}
}

func (t TOTP) digits() int {
	if t.Digits <= 0 {
		return DefaultDigits
	}
	return t.Digits
}

func (t TOTP) period() int {
	if t.Period <= 0 {
		return DefaultPeriod
	}
	return t.Period
}

func (t TOTP) params() url.Values {
	return url.Values{
		"digits":    {strconv.Itoa(t.digits())},
		"period":    {strconv.Itoa(t.period())},
		"algorithm": {string(t.Algorithm.orDefault())},
	}
}

// URI returns the otpauth URI of the account.
func (t TOTP) URI(prependIssuer bool) string {
	return buildURI("totp", t.Name, t.Issuer, t.Secret, t.params(), prependIssuer)
}

func (s Steam) steamDigits() int {
	if s.Digits <= 0 {
		return SteamDigits
	}
	return s.Digits
}

// URI returns the otpauth URI of the account.
func (s Steam) URI(prependIssuer bool) string {
	params := s.params()
	params.Set("digits", strconv.Itoa(s.steamDigits()))
	return buildURI("steam", s.Name, s.Issuer, s.Secret, params, prependIssuer)
}

// URI returns the otpauth URI of the account.
func (a Authy) URI(prependIssuer bool) string {
	return buildURI("authy", a.Name, a.Issuer, a.Secret, a.params(), prependIssuer)
}

func (h HOTP) digits() int {
	if h.Digits <= 0 {
		return DefaultDigits
	}
	return h.Digits
}

// URI returns the otpauth URI of the account.
func (h HOTP) URI(prependIssuer bool) string {
	params := url.Values{
		"counter":   {strconv.FormatUint(h.Counter, 10)},
		"digits":    {strconv.Itoa(h.digits())},
		"algorithm": {string(h.Algorithm.orDefault())},
	}
	return buildURI("hotp", h.Name, h.Issuer, h.Secret, params, prependIssuer)
}

// EncodeSecret returns the unpadded base32 form used in URIs.
func EncodeSecret(secret []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
}

// DecodeSecret decodes base32 leniently: case, spaces and missing or
// surplus padding are tolerated.
func DecodeSecret(s string) ([]byte, error) {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	s = strings.TrimRight(s, "=")
	if r := len(s) % 8; r != 0 {
		s += strings.Repeat("=", 8-r)
	}
	return base32.StdEncoding.DecodeString(s)
}

func buildURI(typ, name, issuer string, secret []byte, params url.Values, prependIssuer bool) string {
	params.Set("secret", EncodeSecret(secret))
	if issuer != "" {
		params.Set("issuer", issuer)
	}
	label := name
	switch {
	case prependIssuer && issuer != "":
		label = issuer + ": " + name
	case label == "":
		label = "Unknown"
	}
	return "otpauth://" + typ + "/" + quoteLabel(label) + "?" + params.Encode()
}

// quoteLabel percent-encodes every byte except unreserved characters and '/'.
func quoteLabel(s string) string {
	const upperhex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '-' || c == '_' || c == '.' || c == '~' || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}
