package devbackend

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "touradmin-dev"
	tokenTTL    = 24 * time.Hour
)

type SessionClaims struct {
	jwt.RegisteredClaims

	Admin bool `json:"admin,omitempty"`
}

// IssueToken signs an HS256 session token for userID.
func IssueToken(userID string, admin bool, secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("missing jwt secret")
	}
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		Admin: admin,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken validates a session token and returns its claims.
func VerifyToken(tokenString, secret string, now time.Time) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}
	if secret == "" {
		return nil, fmt.Errorf("missing jwt secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	claims := &SessionClaims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing subject")
	}
	return claims, nil
}
