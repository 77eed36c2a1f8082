package jwtverifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clinic-appointments/internal/ports/auth"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrNotConfigured = errors.New("jwt verifier not configured")
	ErrTokenEmpty    = errors.New("token is empty")
	ErrMissingUserID = errors.New("token claims missing sub")
)

// Verifier implementa auth.AuthVerifier con tokens HS256 firmados con un secreto compartido.
type Verifier struct {
	secret []byte
}

func New(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || len(v.secret) == 0 {
		return auth.Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return auth.Claims{}, fmt.Errorf("jwt verify failed: %w", err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return auth.Claims{}, errors.New("jwt invalid claims")
	}

	claims := auth.Claims{
		UserID:   strings.TrimSpace(stringClaim(mc, "sub")),
		Email:    stringClaim(mc, "email"),
		TenantID: stringClaim(mc, "tenant_id"),
	}
	if claims.UserID == "" {
		return auth.Claims{}, ErrMissingUserID
	}
	return claims, nil
}

func stringClaim(mc jwt.MapClaims, key string) string {
	s, _ := mc[key].(string)
	return s
}
