// Package session issues and checks the signed tokens that bind a client to
// the cart it created.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"storefront/internal/domain"
)

const issuer = "storefront"

type cartClaims struct {
	CartID string `json:"cart_id"`
	jwt.RegisteredClaims
}

// Manager signs cart tokens with HS256. A Manager without a secret is
// disabled: it issues no tokens and accepts every request.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *Manager) Enabled() bool {
	return m != nil && len(m.secret) > 0
}

// Issue returns a token for cartID. ownerRef, when present, becomes the
// subject claim.
func (m *Manager) Issue(cartID string, ownerRef *string) (string, time.Time, error) {
	if !m.Enabled() {
		return "", time.Time{}, nil
	}
	now := m.now()
	expires := now.Add(m.ttl)
	claims := cartClaims{
		CartID: cartID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if ownerRef != nil {
		claims.Subject = *ownerRef
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign cart token: %w", err)
	}
	return signed, expires, nil
}

// Authorize checks that token was issued by this manager for cartID.
func (m *Manager) Authorize(token, cartID string) error {
	if !m.Enabled() {
		return nil
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return domain.ErrInvalidToken
	}
	claims := &cartClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: expired", domain.ErrInvalidToken)
		}
		return domain.ErrInvalidToken
	}
	if claims.CartID != cartID {
		return domain.ErrInvalidToken
	}
	return nil
}
