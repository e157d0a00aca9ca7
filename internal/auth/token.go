// ABOUTME: HS256 service tokens shared between the client and the analysis service
// ABOUTME: Minted per request by the transport, verified by the fake analysis service

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Issuer is the "iss" claim on every token minted by this client.
const Issuer = "insight-chat"

// DefaultTTL is the lifetime of a per-request token.
const DefaultTTL = 2 * time.Minute

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (subject string, err error)
}

// ServiceTokens signs and verifies HS256 JWTs with a shared secret.
type ServiceTokens struct {
	secret []byte
}

// NewServiceTokens creates a signer/verifier for secret.
func NewServiceTokens(secret []byte) *ServiceTokens {
	return &ServiceTokens{secret: secret}
}

// Verify validates the token and returns its "sub" claim.
func (s *ServiceTokens) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(Issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Sign mints a token for subject valid for ttl. A non-positive ttl uses
// DefaultTTL.
func (s *ServiceTokens) Sign(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": Issuer,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
