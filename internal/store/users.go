package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

const userColumns = `id, username, email, password_hash, is_active, is_admin, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

func CreateUser(ctx context.Context, db database.Querier, username, email, passwordHash string) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (username, email, password_hash, is_active, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, FALSE, NOW(), NOW())
		RETURNING ` + userColumns

	err := scanUser(db.QueryRowContext(ctx, query, username, email, passwordHash), user)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, database.ErrDuplicateUser
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, db database.Querier, id int64) (*models.User, error) {
	user := &models.User{}

	err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id), user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// GetUserByLogin looks a user up by username or email.
func GetUserByLogin(ctx context.Context, db database.Querier, login string) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1 LIMIT 1`

	err := scanUser(db.QueryRowContext(ctx, query, login), user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by login: %w", err)
	}

	return user, nil
}

// FindOrCreateOAuthUser returns the user registered under email, creating one
// with the given display name and placeholder hash when none exists.
func FindOrCreateOAuthUser(ctx context.Context, db *sql.DB, email, name, placeholderHash string) (*models.User, bool, error) {
	var (
		user    *models.User
		created bool
	)

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		created = false
		user = &models.User{}

		err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1 FOR UPDATE`, email), user)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find oauth user: %w", err)
		}

		base := strings.TrimSpace(name)
		if base == "" {
			base, _, _ = strings.Cut(email, "@")
		}
		username, err := freeUsername(ctx, tx, base)
		if err != nil {
			return err
		}

		user, err = CreateUser(ctx, tx, username, email, placeholderHash)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return user, created, nil
}

// freeUsername appends a numeric suffix to base until it is unused.
func freeUsername(ctx context.Context, q database.Querier, base string) (string, error) {
	candidate := base
	for i := 2; i < 1000; i++ {
		var exists bool
		err := q.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, candidate).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", database.ErrDuplicateUser
}
