package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims are the JWT claims carried by dossier-portal tokens.
type ActorClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenParser verifies bearer tokens and extracts the actor they identify.
type TokenParser struct {
	secret []byte
}

// NewTokenParser creates a parser using the shared HMAC signing secret.
func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

// ParseAuthorizationHeader extracts the actor from an "Authorization: Bearer"
// header value.
func (p *TokenParser) ParseAuthorizationHeader(header string) (*Actor, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("authorization header must use the Bearer scheme")
	}
	return p.Parse(strings.TrimPrefix(header, prefix))
}

// Parse verifies the token signature and returns the actor it identifies.
func (p *TokenParser) Parse(tokenString string) (*Actor, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &Actor{ID: claims.Subject, Roles: claims.Roles}, nil
}
