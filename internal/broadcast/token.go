package broadcast

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MintToken signs a broadcast access token good for ttl, returned from the
// ingress's /negotiate endpoint (spec.md §6, modeled on the original
// SignalR-shaped negotiate handshake).
func MintToken(secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Subject:   "broadcast-client",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyToken validates a broadcast access token, returning an error if it
// is expired, malformed, or signed with a different secret.
func VerifyToken(tokenString, secret string) error {
	_, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	return err
}
