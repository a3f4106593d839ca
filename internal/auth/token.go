package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/planpago/planpago/internal/models"
)

// Token types carried in the "typ" claim. A step-up token proves only that
// the credential check passed; it is never accepted as a session.
const (
	TokenTypeSession = "session"
	TokenTypeStepUp  = "stepup"
)

// Claims is the full claim set for both token types. The pending-change
// fields are set only on step-up tokens minted by the profile change flow;
// their values are applied verbatim at confirmation time, so they must never
// be populated from anything but server-side state.
type Claims struct {
	Type            string `json:"typ"`
	NewEmail        string `json:"new_email,omitempty"`
	NewPasswordHash string `json:"new_password_hash,omitempty"`
	jwt.RegisteredClaims
}

// AccountID returns the token subject.
func (c *Claims) AccountID() string {
	return c.Subject
}

// TokenCodec creates and verifies signed, time-limited tokens. Tokens are
// self-contained; there is no server-side session table, so revocation is
// only possible via expiry or secret rotation.
type TokenCodec struct {
	secret         string
	sessionTTL     time.Duration
	stepUpTokenTTL time.Duration
	now            func() time.Time
}

// NewTokenCodec creates a new TokenCodec
func NewTokenCodec(secret string, sessionTTL, stepUpTokenTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:         secret,
		sessionTTL:     sessionTTL,
		stepUpTokenTTL: stepUpTokenTTL,
		now:            time.Now,
	}
}

// SetClock overrides the codec's time source. Test use only.
func (tc *TokenCodec) SetClock(now func() time.Time) {
	tc.now = now
}

// Issue signs an arbitrary claim set with the given TTL.
func (tc *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := tc.now()

	claims.RegisteredClaims.ID = uuid.New().String()
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)
	claims.RegisteredClaims.NotBefore = jwt.NewNumericDate(now)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)

	tokenString, err := token.SignedString([]byte(tc.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// IssueSession creates a full session token for the given account.
func (tc *TokenCodec) IssueSession(accountID string) (string, error) {
	return tc.Issue(Claims{
		Type:             TokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{Subject: accountID},
	}, tc.sessionTTL)
}

// IssueStepUp creates a temp token proving the credential check passed,
// optionally sealing a pending email/password change.
func (tc *TokenCodec) IssueStepUp(accountID, newEmail, newPasswordHash string) (string, error) {
	return tc.Issue(Claims{
		Type:             TokenTypeStepUp,
		NewEmail:         newEmail,
		NewPasswordHash:  newPasswordHash,
		RegisteredClaims: jwt.RegisteredClaims{Subject: accountID},
	}, tc.stepUpTokenTTL)
}

// Verify parses and validates a token. Expired tokens fail with
// models.ErrTokenExpired; anything else wrong with the token (bad signature,
// wrong algorithm, garbage input) fails with models.ErrInvalidToken so
// callers can distinguish "try again" from "reject outright".
func (tc *TokenCodec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tc.secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return tc.now() }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrInvalidToken
	}

	if !token.Valid {
		return nil, models.ErrInvalidToken
	}

	if claims.Type == "" || claims.Subject == "" {
		return nil, models.ErrInvalidToken
	}

	return claims, nil
}

// VerifyType verifies the token and additionally requires the given type.
func (tc *TokenCodec) VerifyType(tokenString, tokenType string) (*Claims, error) {
	claims, err := tc.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenType {
		return nil, models.ErrInvalidToken
	}
	return claims, nil
}
