package otp

// AndOTPEntry is one record of an andOTP JSON backup. Counter is set only
// for HOTP accounts and Period only for time-based ones.
type AndOTPEntry struct {
	Secret    string  `json:"secret"`
	Label     string  `json:"label"`
	Type      string  `json:"type"`
	Digits    int     `json:"digits"`
	Period    int     `json:"period,omitempty"`
	Counter   *uint64 `json:"counter,omitempty"`
	Algorithm string  `json:"algorithm"`
}

// Type returns the otpauth type of the account.
func (TOTP) Type() string { return "totp" }

// Type returns the otpauth type of the account.
func (HOTP) Type() string { return "hotp" }

// Type returns the otpauth type of the account.
func (Steam) Type() string { return "steam" }

// Type returns the otpauth type of the account.
func (Authy) Type() string { return "authy" }

func (t TOTP) andOTP(typ string, digits int) AndOTPEntry {
	return AndOTPEntry{
		Secret:    EncodeSecret(t.Secret),
		Label:     t.Name,
		Type:      typ,
		Digits:    digits,
		Period:    t.period(),
		Algorithm: string(t.Algorithm.orDefault()),
	}
}

// AndOTP returns the account as an andOTP backup entry.
func (t TOTP) AndOTP() AndOTPEntry { return t.andOTP("TOTP", t.digits()) }

// AndOTP returns the account as an andOTP backup entry.
func (s Steam) AndOTP() AndOTPEntry { return s.TOTP.andOTP("STEAM", s.steamDigits()) }

// AndOTP returns the account as an andOTP backup entry.
func (a Authy) AndOTP() AndOTPEntry { return a.TOTP.andOTP("AUTHY", a.digits()) }

// AndOTP returns the account as an andOTP backup entry.
func (h HOTP) AndOTP() AndOTPEntry {
	counter := h.Counter
	return AndOTPEntry{
		Secret:    EncodeSecret(h.Secret),
		Label:     h.Name,
		Type:      "HOTP",
		Digits:    h.digits(),
		Counter:   &counter,
		Algorithm: string(h.Algorithm.orDefault()),
	}
}

// Equal reports whether a and b are the same account: same type, name and
// secret. Issuer, digits, period, counter and algorithm are ignored.
func Equal(a, b Account) bool {
	ea, eb := a.AndOTP(), b.AndOTP()
	return ea.Type == eb.Type && ea.Label == eb.Label && ea.Secret == eb.Secret
}

// CounterlessEqual reports whether two HOTP accounts differ at most in
// their counter.
func CounterlessEqual(a, b HOTP) bool {
	return Equal(a, b) && a.digits() == b.digits() && a.Algorithm.orDefault() == b.Algorithm.orDefault()
}

// Dedup drops accounts Equal to an earlier one, keeping the first position.
// When two HOTP entries differ only in counter, the higher counter is kept
// since a lower one would replay codes the server already accepted.
func Dedup(accounts []Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, acct := range accounts {
		dup := -1
		for i, seen := range out {
			if Equal(seen, acct) {
				dup = i
				break
			}
		}
		if dup < 0 {
			out = append(out, acct)
			continue
		}
		prev, ok1 := out[dup].(HOTP)
		next, ok2 := acct.(HOTP)
		if ok1 && ok2 && CounterlessEqual(prev, next) && next.Counter > prev.Counter {
			out[dup] = next
		}
	}
	return out
}
