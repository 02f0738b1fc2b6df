package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/qna/internal/auth"
	"github.com/garnizeh/qna/pkg/models"
	"github.com/garnizeh/qna/pkg/repository"
)

type AuthHandler struct {
	users  repository.UserRepo
	tokens *auth.Tokens
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(users repository.UserRepo, tokens *auth.Tokens) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type signinRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Signup registers a user profile with the user role. Admins are created
// out of band with qnactl.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx := r.Context()
	existing, err := h.users.GetUserByEmail(ctx, email)
	if err != nil {
		writeError(w, fmt.Errorf("lookup user: %w", err))
		return
	}
	if existing != nil {
		writeErrorStatus(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, fmt.Errorf("hash password: %w", err))
		return
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.Name),
		Role:         models.RoleUser,
		PasswordHash: string(hash),
	}
	if err := h.users.CreateUser(ctx, u); err != nil {
		writeError(w, fmt.Errorf("create user: %w", err))
		return
	}

	h.respondWithToken(w, u, http.StatusCreated)
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.users.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || u == nil {
		if err != nil {
			logger.Error("signin lookup failed", slog.Any("err", err))
		}
		writeErrorStatus(w, http.StatusUnauthorized, "credentials not found")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeErrorStatus(w, http.StatusUnauthorized, "credentials not found")
		return
	}

	h.respondWithToken(w, u, http.StatusOK)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, u *models.User, status int) {
	token, err := h.tokens.Issue(u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, authResponse{Token: token, User: u}, status)
}

// Signout is client-side for stateless tokens.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "signed out"}, http.StatusOK)
}

// Me returns the identity resolved for the caller's token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, auth.FromContext(r.Context()), http.StatusOK)
}
