package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// defaultTokenTTL is the fixed session window. Expiry is the only
	// lifecycle control: there is no refresh and no revocation list.
	defaultTokenTTL = 2 * time.Hour

	// minSigningSecretLength mirrors the deployment floor on the token
	// signing secret.
	minSigningSecretLength = 24
)

var (
	ErrInvalidIssuerConfig = errors.New("auth: invalid token issuer config")
	ErrMissingToken        = errors.New("auth: token required")
	ErrInvalidToken        = errors.New("auth: invalid token")

	errShortSigningSecret = fmt.Errorf("signing secret must be at least %d bytes", minSigningSecretLength)
	errMissingUserID      = errors.New("user id claim must be provided")
	errMissingTelegramID  = errors.New("telegram id claim must be provided")
)

// SessionClaims is the JWT payload bound to a session token: the internal
// user id and the external Telegram id, nothing else.
type SessionClaims struct {
	UserID     string `json:"uid"`
	TelegramID string `json:"tg_id"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the backend JWT issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer mints and validates session tokens after initData verification.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with validated configuration.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) < minSigningSecretLength {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIssuerConfig, errShortSigningSecret)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("%w: issuer required", ErrInvalidIssuerConfig)
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, fmt.Errorf("%w: audience required", ErrInvalidIssuerConfig)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		tokenTTL:      ttl,
		clock:         clock,
	}, nil
}

// Issue produces a signed session token and its expiry (seconds) for the
// resolved internal user.
func (i *TokenIssuer) Issue(userID, telegramID string) (string, int64, error) {
	if strings.TrimSpace(userID) == "" {
		return "", 0, errMissingUserID
	}
	if strings.TrimSpace(telegramID) == "" {
		return "", 0, errMissingTelegramID
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.tokenTTL).UTC()

	claims := SessionClaims{
		UserID:     userID,
		TelegramID: telegramID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// Validate ensures the session token is well formed, signed by this issuer
// and not expired, and returns the embedded claims. Signature and expiry
// failures are both reported as ErrInvalidToken so callers cannot leak
// which check failed.
func (i *TokenIssuer) Validate(tokenString string) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		// Keep the jwt error in the chain so callers can tell expiry
		// apart for logging without changing the outward error.
		return SessionClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return SessionClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.TelegramID) == "" {
		return SessionClaims{}, fmt.Errorf("%w: identity claims missing", ErrInvalidToken)
	}
	return *claims, nil
}
