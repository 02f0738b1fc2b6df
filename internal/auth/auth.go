// Package auth issues and parses identity tokens and resolves the role of the
// caller: a valid role claim wins, then the stored user profile, then guest.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

// Identity is the caller of an operation. The zero value is an anonymous guest.
type Identity struct {
	UID   string      `json:"uid"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// Anonymous reports whether no user is attached to the identity.
func (i Identity) Anonymous() bool {
	return i.UID == ""
}

func (i Identity) IsAdmin() bool {
	return i.UID != "" && i.Role == models.RoleAdmin
}

// DisplayName falls back to the email, then to "user".
func (i Identity) DisplayName() string {
	switch {
	case i.Name != "":
		return i.Name
	case i.Email != "":
		return i.Email
	default:
		return "user"
	}
}

// System is the identity used by operator tooling.
var System = Identity{UID: "system", Name: "system", Role: models.RoleAdmin}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or an anonymous guest.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Identity{Role: models.RoleGuest}
}

// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UID   string `json:"uid"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 identity tokens and resolves roles
// against the stored user profiles.
type Tokens struct {
	secret   []byte
	duration time.Duration
	users    repository.UserRepo
	logger   *slog.Logger
	now      func() time.Time
}

func NewTokens(secret string, duration time.Duration, users repository.UserRepo, logger *slog.Logger) *Tokens {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tokens{secret: []byte(secret), duration: duration, users: users, logger: logger, now: time.Now}
}

// Issue signs a token carrying the user's identity and role.
func (t *Tokens) Issue(u *models.User) (string, error) {
	if u == nil {
		return "", fmt.Errorf("user is nil")
	}
	now := t.now()
	claims := Claims{
		UID:   u.ID,
		Name:  u.DisplayName,
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}

// Parse verifies the token and resolves the caller's identity.
func (t *Tokens) Parse(ctx context.Context, token string) (Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.UID == "" {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{UID: claims.UID, Name: claims.Name, Email: claims.Email}
	id.Role = t.ResolveRole(ctx, claims.UID, claims.Role)
	return id, nil
}

// ResolveRole returns the claimed role when it is one of user or admin,
// otherwise the role stored on the user profile, otherwise guest.
func (t *Tokens) ResolveRole(ctx context.Context, uid, claim string) models.Role {
	if r := models.NormalizeRole(claim); r != models.RoleGuest {
		return r
	}
	if t.users == nil || uid == "" {
		return models.RoleGuest
	}
	u, err := t.users.GetUserByID(ctx, uid)
	if err != nil {
		t.logger.Warn("auth: role lookup failed", slog.String("uid", uid), slog.Any("err", err))
		return models.RoleGuest
	}
	if u == nil {
		return models.RoleGuest
	}
	return models.NormalizeRole(string(u.Role))
}
