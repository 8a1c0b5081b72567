package license

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims binds an operator token to one node.
type Claims struct {
	Machine string `json:"machine"`
	jwt.RegisteredClaims
}

// CreateToken signs a token for subject that is only valid on machine.
func CreateToken(secret, subject, machine string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Machine: machine,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies the signature and expiry and returns claims.
func ParseToken(secret, token string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
