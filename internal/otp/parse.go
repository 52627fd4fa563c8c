package otp

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidURI is returned when a string is not a usable otpauth URI.
var ErrInvalidURI = errors.New("invalid otpauth uri")

// Account is any account produced by ParseURI.
type Account interface {
	URI(prependIssuer bool) string
	Type() string
	AndOTP() AndOTPEntry
}

// ParseURI reads an otpauth URI back into a TOTP, HOTP, Steam or Authy
// account. A label of the form "Issuer: name" is split when the issuer
// parameter matches its prefix.
func ParseURI(raw string) (Account, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	if u.Scheme != "otpauth" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURI, u.Scheme)
	}
	q := u.Query()
	secret, err := DecodeSecret(q.Get("secret"))
	if err != nil || len(secret) == 0 {
		return nil, fmt.Errorf("%w: bad secret", ErrInvalidURI)
	}
	issuer := q.Get("issuer")
	name := strings.TrimPrefix(u.Path, "/")
	if issuer != "" && strings.HasPrefix(name, issuer+":") {
		name = strings.TrimSpace(strings.TrimPrefix(name, issuer+":"))
	}
	digits, err := intParam(q, "digits", 0)
	if err != nil {
		return nil, err
	}
	alg := Algorithm(strings.ToUpper(q.Get("algorithm")))
	if err := alg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}

	switch typ := strings.ToLower(u.Host); typ {
	case "hotp":
		counter, err := strconv.ParseUint(q.Get("counter"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: counter: %w", ErrInvalidURI, err)
		}
		return HOTP{Name: name, Issuer: issuer, Secret: secret, Counter: counter, Digits: digits, Algorithm: alg}, nil
	case "totp", "steam", "authy":
		period, err := intParam(q, "period", 0)
		if err != nil {
			return nil, err
		}
		t := TOTP{Name: name, Issuer: issuer, Secret: secret, Digits: digits, Period: period, Algorithm: alg}
		switch typ {
		case "steam":
			return Steam{t}, nil
		case "authy":
			return Authy{t}, nil
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: type %q", ErrInvalidURI, typ)
	}
}

func intParam(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidURI, key, v)
	}
	return n, nil
}
