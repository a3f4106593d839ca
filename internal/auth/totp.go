package auth

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPManager handles TOTP enrollment and validation per RFC 6238.
type TOTPManager struct {
	issuer    string
	skewSteps uint
	now       func() time.Time
}

// NewTOTPManager creates a new TOTP manager. skewSteps is the number of
// 30-second steps of clock drift accepted in either direction.
func NewTOTPManager(issuer string, skewSteps uint) *TOTPManager {
	return &TOTPManager{
		issuer:    issuer,
		skewSteps: skewSteps,
		now:       time.Now,
	}
}

// SetClock overrides the manager's time source. Test use only.
func (tm *TOTPManager) SetClock(now func() time.Time) {
	tm.now = now
}

// GenerateSecret creates a new base32 secret for the account and a QR code
// (PNG data URL) of the provisioning URI for authenticator apps.
func (tm *TOTPManager) GenerateSecret(accountEmail string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		SecretSize:  32,
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return "", "", fmt.Errorf("failed to create QR code: %w", err)
	}

	qrImage, err := qr.PNG(200)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	qrDataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage)

	return key.Secret(), qrDataURL, nil
}

// Validate checks a submitted code against the secret, allowing the
// configured clock skew. Stateless; TOTP replay is bounded by the step size.
func (tm *TOTPManager) Validate(secret, code string) bool {
	valid, err := totp.ValidateCustom(code, secret, tm.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      tm.skewSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}
