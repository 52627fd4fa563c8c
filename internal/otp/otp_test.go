package otp

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSteamURIUsesFiveDigits(t *testing.T) {
	acct := NewSteam("gaben", "Steam", []byte("12345678901234567890"))
	assert.Contains(t, acct.URI(false), "digits=5")
	assert.Contains(t, acct.URI(false), "otpauth://steam/")

	custom := Steam{TOTP{Name: "x", Secret: []byte("k"), Digits: 7}}
	assert.Contains(t, custom.URI(false), "digits=7")
}

func TestAuthyURIType(t *testing.T) {
	acct := Authy{TOTP{Name: "a", Secret: []byte("12345678901234567890"), Digits: 7, Period: 10}}
	u := acct.URI(false)
	assert.True(t, strings.HasPrefix(u, "otpauth://authy/a?"), u)
	assert.Contains(t, u, "digits=7")
	assert.Contains(t, u, "period=10")
}

func TestAlgorithmValidate(t *testing.T) {
	for _, a := range []Algorithm{"", SHA1, SHA256, SHA512, "sha256"} {
		assert.NoError(t, a.Validate(), "algorithm %q", a)
	}
	err := Algorithm("MD5").Validate()
	assert.True(t, errors.Is(err, ErrUnknownAlgorithm))
}

func TestDecodeSecretLenient(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"JBSWY3DPEHPK3PXP", []byte("Hello!\xDE\xAD\xBE\xEF")},
		{"jbswy3dpehpk3pxp", []byte("Hello!\xDE\xAD\xBE\xEF")},
		{"JBSW Y3DP EHPK 3PXP", []byte("Hello!\xDE\xAD\xBE\xEF")},
		{"MZXW6", []byte("foo")},
		{"MZXW6===", []byte("foo")},
		{"MZXW6=====", []byte("foo")},
	}
	for _, tc := range tests {
		got, err := DecodeSecret(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	assert.Equal(t, "MZXW6", EncodeSecret([]byte("foo")))
}

func TestURI(t *testing.T) {
	secret := []byte("Hello!\xDE\xAD\xBE\xEF")
	tests := []struct {
		name    string
		acct    Account
		prepend bool
		want    string
	}{
		{
			name: "totp_plain",
			acct: TOTP{Name: "alice@example.com", Secret: secret},
			want: "otpauth://totp/alice%40example.com?algorithm=SHA1&digits=6&period=30&secret=JBSWY3DPEHPK3PXP",
		},
		{
			name: "totp_issuer_not_prepended",
			acct: TOTP{Name: "alice", Issuer: "ACME Co", Secret: secret},
			want: "otpauth://totp/alice?algorithm=SHA1&digits=6&issuer=ACME+Co&period=30&secret=JBSWY3DPEHPK3PXP",
		},
		{
			name:    "totp_issuer_prepended",
			acct:    TOTP{Name: "alice", Issuer: "ACME", Secret: secret},
			prepend: true,
			want:    "otpauth://totp/ACME%3A%20alice?algorithm=SHA1&digits=6&issuer=ACME&period=30&secret=JBSWY3DPEHPK3PXP",
		},
		{
			name:    "prepend_without_issuer",
			acct:    TOTP{Name: "alice", Secret: secret},
			prepend: true,
			want:    "otpauth://totp/alice?algorithm=SHA1&digits=6&period=30&secret=JBSWY3DPEHPK3PXP",
		},
		{
			name: "unknown_name",
			acct: TOTP{Secret: secret},
			want: "otpauth://totp/Unknown?algorithm=SHA1&digits=6&period=30&secret=JBSWY3DPEHPK3PXP",
		},
		{
			name: "hotp",
			acct: HOTP{Name: "a/b", Secret: secret, Counter: 3, Digits: 8, Algorithm: SHA256},
			want: "otpauth://hotp/a/b?algorithm=SHA256&counter=3&digits=8&secret=JBSWY3DPEHPK3PXP",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.acct.URI(tc.prepend))
		})
	}
}

func TestParseURIRoundTrip(t *testing.T) {
	secret := []byte("12345678901234567890")
	accts := []Account{
		TOTP{Name: "alice", Issuer: "ACME", Secret: secret, Digits: 8, Period: 60, Algorithm: SHA512},
		HOTP{Name: "bob", Secret: secret, Counter: 9, Digits: 6, Algorithm: SHA1},
		NewSteam("gaben", "Steam", secret),
		Authy{TOTP{Name: "carol", Secret: secret, Digits: 7, Period: 10, Algorithm: SHA1}},
	}
	for _, a := range accts {
		for _, prepend := range []bool{false, true} {
			got, err := ParseURI(a.URI(prepend))
			require.NoError(t, err)
			assert.Equal(t, a.URI(false), got.URI(false))
		}
	}
}

func TestParseURIErrors(t *testing.T) {
	bad := []string{
		"http://totp/a?secret=JBSWY3DP",
		"otpauth://totp/a",
		"otpauth://totp/a?secret=!!!",
		"otpauth://weird/a?secret=JBSWY3DP",
		"otpauth://hotp/a?secret=JBSWY3DP",
		"otpauth://totp/a?secret=JBSWY3DP&digits=x",
		"otpauth://totp/a?secret=JBSWY3DP&algorithm=MD5",
	}
	for _, s := range bad {
		_, err := ParseURI(s)
		assert.True(t, errors.Is(err, ErrInvalidURI), "%s: %v", s, err)
	}
}
