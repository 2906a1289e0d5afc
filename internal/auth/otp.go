package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const otpIssuer = "Voyageur"

// OTPManager mints the six digit codes emailed for signup confirmation,
// passwordless sign-in and password recovery. Each pending verification
// gets its own secret; the period equals the code lifetime.
type OTPManager struct {
	period time.Duration
}

// NewOTPManager creates codes valid for ttl
func NewOTPManager(ttl time.Duration) *OTPManager {
	if ttl < 30*time.Second {
		ttl = 30 * time.Second
	}
	return &OTPManager{period: ttl}
}

func (m *OTPManager) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(m.period / time.Second),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// TTL returns how long an issued code stays valid
func (m *OTPManager) TTL() time.Duration {
	return m.period
}

// Issue generates a fresh secret for email and the code for issuedAt
func (m *OTPManager) Issue(email string, issuedAt time.Time) (secret, code string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      otpIssuer,
		AccountName: email,
		Period:      uint(m.period / time.Second),
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate otp secret: %w", err)
	}

	code, err = totp.GenerateCodeCustom(key.Secret(), issuedAt, m.opts())
	if err != nil {
		return "", "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return key.Secret(), code, nil
}

// Validate checks code against the secret minted at issuedAt. Lifetime is
// enforced by the caller.
func (m *OTPManager) Validate(code, secret string, issuedAt time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, issuedAt, m.opts())
	return err == nil && valid
}
