package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin" // staff: may confirm, complete, and manage resources
)

// clockSkew is how far the identity provider's clock may drift from ours.
const clockSkew = 30 * time.Second

var errNoSubject = errors.New("token has no subject")

// Claims is what the identity provider puts in an access token.
type Claims struct {
	UserID string `json:"sub"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager verifies HS256 access tokens minted by the identity provider.
// Issue exists for local tooling and tests.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
}

func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		ttl:    ttl,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Issue signs a token for userID that expires after the manager's ttl.
func (m *JWTManager) Issue(userID, role string) (string, error) {
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify returns the claims of raw if it is an unexpired HS256 token signed with our secret.
func (m *JWTManager) Verify(raw string) (*Claims, error) {
	var claims Claims
	if _, err := m.parser.ParseWithClaims(raw, &claims, m.key); err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	if claims.UserID == "" {
		return nil, errNoSubject
	}
	return &claims, nil
}

func (m *JWTManager) key(*jwt.Token) (any, error) {
	return m.secret, nil
}
