package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/qna/pkg/models"
)

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	role := u.Role
	if role == "" {
		role = models.RoleUser
	}

	ts := now()
	if _, err := r.conn.Exec(ctx, `INSERT INTO users (id, email, display_name, role, password_hash, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, string(role), u.PasswordHash, ts, ts); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	u.Role = role
	u.CreatedAt = fromMillis(ts)
	u.UpdatedAt = u.CreatedAt
	return nil
}

func (r *SQLiteRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, email, display_name, role, password_hash, created, updated FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, email, display_name, role, password_hash, created, updated FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepo) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		u       models.User
		role    string
		created int64
		updated int64
	)
	if err := r.conn.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.DisplayName, &role, &u.PasswordHash, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = models.Role(role)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}
