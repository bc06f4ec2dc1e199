package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiry is the lifetime of a session token.
const DefaultExpiry = 12 * time.Hour

// Claims holds the JWT payload fields. Role and Status are decoded through
// their UnmarshalText methods, so tokens carrying unknown values fail to
// parse.
type Claims struct {
	PhoneNumber string        `json:"phoneNumber"`
	Role        domain.Role   `json:"role"`
	Status      domain.Status `json:"status"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 JWTs.
type Provider struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewProvider(secret string, expiry time.Duration) (*Provider, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Provider{secret: []byte(secret), expiry: expiry, now: time.Now}, nil
}

// Sign issues a token for user.
func (p *Provider) Sign(user *domain.User) (string, error) {
	now := p.now()
	claims := Claims{
		PhoneNumber: user.PhoneNumber,
		Role:        user.Role,
		Status:      user.Status,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, errors.New("invalid role claim")
	}
	return claims, nil
}
