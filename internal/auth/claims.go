package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token audiences. A WebSocket ticket cannot be used as an access token
// and the reverse.
const (
	AudienceAPI = "omnihome-api"
	AudienceWS  = "omnihome-ws"
)

const (
	defaultAccessTTL = 60 * time.Minute
	ticketTTL        = 60 * time.Second
)

// Claims are the JWT claims issued to dashboard users.
type Claims struct {
	jwt.RegisteredClaims
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

// GenerateAccessToken signs an HS256 access token for user. A ttl of zero
// uses the default of one hour.
func GenerateAccessToken(user *User, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return sign(user, secret, AudienceAPI, ttl)
}

// GenerateTicket signs a one-minute token for opening a WebSocket, where
// browsers cannot set an Authorization header.
func GenerateTicket(user *User, secret string) (string, error) {
	return sign(user, secret, AudienceWS, ticketTTL)
}

func sign(user *User, secret, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: user.Role,
		Name: user.DisplayName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates an access token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	return parse(tokenString, secret, AudienceAPI)
}

// ParseTicket validates a WebSocket ticket and returns its claims.
func ParseTicket(tokenString, secret string) (*Claims, error) {
	return parse(tokenString, secret, AudienceWS)
}

func parse(tokenString, secret, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}
	return claims, nil
}
