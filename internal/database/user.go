// internal/database/user.go
package database

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/rebuttal-gg/rebuttal/internal/auth"
	"github.com/rebuttal-gg/rebuttal/internal/models"
	"github.com/rebuttal-gg/rebuttal/internal/rating"
)

// AuthCookieName is the cookie that carries the session JWT.
const AuthCookieName = "auth_token"

// UserFromRequest resolves the account behind a request's auth cookie.
// Returns an error for anonymous requests, bad tokens, or a missing row.
func UserFromRequest(r *http.Request) (*models.User, error) {
	cookie, err := r.Cookie(AuthCookieName)
	if err != nil {
		return nil, fmt.Errorf("no auth cookie: %w", err)
	}
	handle, err := auth.AuthenticateJWT(cookie.Value)
	if err != nil {
		return nil, err
	}
	if DB == nil {
		return nil, fmt.Errorf("database not connected")
	}
	return GetUserByHandle(r.Context(), handle)
}

// CreateUser inserts a new account. The handle is the primary key; a
// duplicate insert surfaces as a pgconn unique-violation for the handler to
// map to a conflict response.
func CreateUser(ctx context.Context, user *models.User) error {
	hash, err := auth.HashPassword(user.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash
	if user.Icon == "" {
		user.Icon = models.DefaultIcon
	}
	if user.Banner == "" {
		user.Banner = models.DefaultBanner
	}
	user.Elo = rating.StartingElo

	q := `INSERT INTO users (handle, email, password, elo, ranked_wins, ranked_losses, icon, banner)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.Handle, user.Email, user.Password,
			user.Elo, user.RankedWins, user.RankedLosses,
			user.Icon, user.Banner,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByHandle loads a full account row, password hash included.
func GetUserByHandle(ctx context.Context, handle string) (*models.User, error) {
	var u models.User
	q := `
	SELECT handle, email, password, elo, ranked_wins, ranked_losses, icon, banner, created_at
	FROM users
	WHERE handle=$1
	`
	err := DB.QueryRow(ctx, q, handle).Scan(
		&u.Handle, &u.Email, &u.Password,
		&u.Elo, &u.RankedWins, &u.RankedLosses,
		&u.Icon, &u.Banner, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser checks credentials and mints a session JWT.
func AuthenticateUser(ctx context.Context, handle, password string) (string, error) {
	user, err := GetUserByHandle(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}

	match, err := auth.VerifyPassword(password, user.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(user.Handle)
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}
	return token, nil
}

// UpdateUserProfile stores new cosmetic fields for a handle.
func UpdateUserProfile(ctx context.Context, handle, icon, banner string) error {
	q := `UPDATE users SET icon=$1, banner=$2 WHERE handle=$3`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, icon, banner, handle)
		return err
	})
}

// TopUsers returns the leaderboard: highest-rated accounts first.
func TopUsers(ctx context.Context, limit int) ([]models.User, error) {
	q := `
	SELECT handle, elo, ranked_wins, ranked_losses, icon, banner
	FROM users
	ORDER BY elo DESC, ranked_wins DESC, handle ASC
	LIMIT $1
	`
	rows, err := DB.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.Handle, &u.Elo, &u.RankedWins, &u.RankedLosses, &u.Icon, &u.Banner); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
