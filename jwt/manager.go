// Package jwt provides the HS256 session-token manager used by the bundled
// in-memory identity store. Real deployments talk to a backend that mints its
// own tokens; this package exists so dev and end-to-end test sessions carry
// verifiable, expiring credentials instead of bare strings.
package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 32

var (
	// ErrTokenInvalid is returned for malformed, mis-signed, or expired
	// tokens.
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims is the decoded subset this module cares about.
type Claims struct {
	UserID    string
	ExpiresAt int64
}

// Manager mints and parses HS256 session tokens.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewManager validates the secret and returns a Manager.
func NewManager(secret []byte, issuer string, ttl time.Duration) (*Manager, error) {
	if len(secret) < minSecretBytes {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if issuer == "" {
		return nil, errors.New("jwt issuer must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	return &Manager{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

// Mint issues a token for userID and returns it with its unix expiry.
func (m *Manager) Mint(userID string) (string, int64, error) {
	if userID == "" {
		return "", 0, errors.New("empty user id")
	}

	now := time.Now()
	expiresAt := now.Add(m.ttl)

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   userID,
		Issuer:    m.issuer,
		ID:        uuid.NewString(),
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, expiresAt.Unix(), nil
}

// Parse verifies signature, issuer, and expiry, returning the claims.
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	var claims jwtlib.RegisteredClaims

	token, err := jwtlib.ParseWithClaims(
		tokenString,
		&claims,
		func(*jwtlib.Token) (any, error) { return m.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(m.issuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return &Claims{
		UserID:    claims.Subject,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}
