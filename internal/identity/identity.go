package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned for missing, malformed or expired session tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Service bridges to the external identity provider. Session tokens are JWTs
// signed with a shared secret; the subject claim is the stable user id.
// Privileged actors are a configured allow-list, checked case-insensitively
// the way the admin email list behaves upstream.
type Service struct {
	secret       []byte
	admins       map[string]bool
	adminKeyHash []byte
	tokenTTL     time.Duration
}

func NewService(secret string, adminActors []string, adminKeyHash string) *Service {
	admins := make(map[string]bool, len(adminActors))
	for _, a := range adminActors {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			admins[a] = true
		}
	}
	return &Service{
		secret:       []byte(secret),
		admins:       admins,
		adminKeyHash: []byte(adminKeyHash),
		tokenTTL:     24 * time.Hour,
	}
}

// CurrentActorID verifies the bearer token and returns the actor id, or ""
// with ErrInvalidToken.
func (s *Service) CurrentActorID(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// IssueToken mints a session token for the given user. Used by local
// development and tests; production tokens come from the identity provider.
func (s *Service) IssueToken(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	})
	return token.SignedString(s.secret)
}

// IsPrivileged reports whether the actor is on the admin allow-list.
func (s *Service) IsPrivileged(actorID string) bool {
	return s.admins[strings.ToLower(strings.TrimSpace(actorID))]
}

// VerifyAdminKey compares a raw operator key against the configured bcrypt
// hash. Admin endpoints require both a privileged actor and this key.
func (s *Service) VerifyAdminKey(raw string) bool {
	if len(s.adminKeyHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(s.adminKeyHash, []byte(raw)) == nil
}
