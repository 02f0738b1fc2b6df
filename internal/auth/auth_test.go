package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository/mock"
)

func TestIssueAndParse(t *testing.T) {
	m := mock.NewMocks()
	tokens := auth.NewTokens("secret", time.Hour, m.UserRepo, nil)

	tok, err := tokens.Issue(&models.User{ID: "u1", Email: "a@example.com", DisplayName: "Alice", Role: models.RoleAdmin})
	require.NoError(t, err)

	id, err := tokens.Parse(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UID: "u1", Name: "Alice", Email: "a@example.com", Role: models.RoleAdmin}, id)
	assert.True(t, id.IsAdmin())
	assert.False(t, id.Anonymous())
}

func TestParse_Rejects(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour, nil, nil)
	other := auth.NewTokens("other", time.Hour, nil, nil)
	expired := auth.NewTokens("secret", -time.Minute, nil, nil)

	wrongKey, err := other.Issue(&models.User{ID: "u1"})
	require.NoError(t, err)
	old, err := expired.Issue(&models.User{ID: "u1"})
	require.NoError(t, err)
	noUID, err := tokens.Issue(&models.User{})
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"uid": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong key", wrongKey},
		{"expired", old},
		{"missing uid", noUID},
		{"alg none", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Parse(context.Background(), tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestResolveRole(t *testing.T) {
	m := mock.NewMocks()
	require.NoError(t, m.UserRepo.CreateUser(context.Background(), &models.User{ID: "admin-1", Email: "root@example.com", Role: models.RoleAdmin}))
	require.NoError(t, m.UserRepo.CreateUser(context.Background(), &models.User{ID: "user-1", Email: "u@example.com"}))
	tokens := auth.NewTokens("secret", time.Hour, m.UserRepo, nil)

	tests := []struct {
		name  string
		uid   string
		claim string
		want  models.Role
	}{
		{"claim wins over profile", "admin-1", "user", models.RoleUser},
		{"admin claim", "nobody", "admin", models.RoleAdmin},
		{"profile fallback admin", "admin-1", "", models.RoleAdmin},
		{"profile fallback user", "user-1", "bogus", models.RoleUser},
		{"unknown user is guest", "ghost", "", models.RoleGuest},
		{"ai claim is not an identity role", "ghost", "ai", models.RoleGuest},
		{"anonymous", "", "", models.RoleGuest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokens.ResolveRole(context.Background(), tt.uid, tt.claim))
		})
	}

	m.UserRepo.GetErr = errors.New("db down")
	assert.Equal(t, models.RoleGuest, tokens.ResolveRole(context.Background(), "admin-1", ""))
}

func TestContextIdentity(t *testing.T) {
	anon := auth.FromContext(context.Background())
	assert.True(t, anon.Anonymous())
	assert.Equal(t, models.RoleGuest, anon.Role)

	ctx := auth.WithIdentity(context.Background(), auth.Identity{UID: "u1", Email: "a@example.com", Role: models.RoleUser})
	id := auth.FromContext(ctx)
	assert.Equal(t, "u1", id.UID)
	assert.Equal(t, "a@example.com", id.DisplayName())
	assert.False(t, id.IsAdmin())
}
