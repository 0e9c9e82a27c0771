package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"storefront/internal/domain"
)

const (
	adminAudience = "storefront-admin"
	roleAdmin     = "admin"
)

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Admin signs and checks operator tokens for back-office routes such as
// order status and payment overrides. An Admin without a secret is disabled
// and rejects every token.
type Admin struct {
	secret []byte
	now    func() time.Time
}

func NewAdmin(secret string) *Admin {
	return &Admin{secret: []byte(secret), now: time.Now}
}

func (a *Admin) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Issue mints an admin token for subject, valid for ttl.
func (a *Admin) Issue(subject string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("admin tokens are disabled: no secret configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := a.now()
	claims := adminClaims{
		Role: roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{adminAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// Authorize returns domain.ErrInvalidToken for missing, forged or expired
// tokens and domain.ErrForbidden when the admin API is disabled or the token
// lacks the admin role.
func (a *Admin) Authorize(token string) error {
	if !a.Enabled() {
		return domain.ErrForbidden
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return domain.ErrInvalidToken
	}
	claims := &adminClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(adminAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return domain.ErrInvalidToken
	}
	if claims.Role != roleAdmin {
		return domain.ErrForbidden
	}
	return nil
}
