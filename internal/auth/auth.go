package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Authentication errors. All of them are hard errors: the handshake ends
// before any registration happens.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrInactiveUser = errors.New("user not found or inactive")
)

// Authenticator resolves a bearer credential to a directory user.
type Authenticator struct {
	secret    []byte
	directory interfaces.Directory
	tokenTTL  time.Duration
}

// NewAuthenticator creates an authenticator with an HS256 signing secret.
func NewAuthenticator(secret string, directory interfaces.Directory, tokenTTL time.Duration) *Authenticator {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Authenticator{
		secret:    []byte(secret),
		directory: directory,
		tokenTTL:  tokenTTL,
	}
}

// IssueToken mints an access token for a user. The identity subsystem owns
// login; this exists for provisioning and tests.
func (a *Authenticator) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Authenticate validates a token and resolves the user behind it.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (*types.User, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	user, err := a.directory.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			return nil, ErrInactiveUser
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	return user, nil
}

// FromAuthorizationHeader extracts the token from a "Bearer <token>" header.
// Returns "" when the header is absent or malformed.
func FromAuthorizationHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
