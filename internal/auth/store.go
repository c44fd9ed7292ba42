package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserStore defines the interface for principal persistence.
//
// The refresh token mutators are deliberately single-field updates rather
// than a whole-record save: ReplaceRefreshToken is the compare-and-set that
// serialises concurrent refresh rotations per principal (exactly one caller
// wins; the loser observes a mismatch).
type UserStore interface {
	Create(ctx context.Context, principal *Principal) error
	FindByEmail(ctx context.Context, email string) (*Principal, error)

	// SetRefreshToken unconditionally records the principal's current
	// refresh token (used at login, which starts a new lineage).
	SetRefreshToken(ctx context.Context, email, token string) error

	// ReplaceRefreshToken swaps the stored refresh token for next only if
	// the stored value equals current. Returns false when the stored value
	// did not match (the token was already rotated or stolen).
	ReplaceRefreshToken(ctx context.Context, email, current, next string) (bool, error)

	// ClearRefreshToken revokes the principal's refresh lineage.
	ClearRefreshToken(ctx context.Context, email string) error

	SetConfirmed(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

// SQLiteUserStore implements UserStore using SQLite.
type SQLiteUserStore struct {
	db *sql.DB
}

// NewUserStore creates a new SQLite-backed user store.
func NewUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

// Create inserts a new principal. The ID is generated if empty.
func (s *SQLiteUserStore) Create(ctx context.Context, principal *Principal) error {
	if principal.ID == "" {
		principal.ID = "usr-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	principal.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	principal.UpdatedAt = principal.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, refresh_token, confirmed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		principal.ID, principal.Username, principal.Email, principal.PasswordHash,
		nullString(principal.RefreshToken), boolToInt(principal.Confirmed), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// FindByEmail retrieves a principal by email address.
func (s *SQLiteUserStore) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	var p Principal
	var refreshToken sql.NullString
	var confirmed int
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, refresh_token, confirmed, created_at, updated_at
		 FROM users WHERE email = ?`, email,
	).Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &refreshToken,
		&confirmed, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownPrincipal
		}
		return nil, fmt.Errorf("finding user by email: %w", err)
	}

	p.Confirmed = confirmed != 0
	if refreshToken.Valid {
		p.RefreshToken = refreshToken.String
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &p, nil
}

// SetRefreshToken records the principal's current refresh token.
func (s *SQLiteUserStore) SetRefreshToken(ctx context.Context, email, token string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token = ?, updated_at = ? WHERE email = ?",
		token, now, email,
	)
	if err != nil {
		return fmt.Errorf("setting refresh token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUnknownPrincipal
	}
	return nil
}

// ReplaceRefreshToken atomically swaps the stored refresh token for next,
// but only if the stored value still equals current. The single-row UPDATE
// with the token in the WHERE clause is what makes concurrent rotations for
// the same principal race-free.
func (s *SQLiteUserStore) ReplaceRefreshToken(ctx context.Context, email, current, next string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token = ?, updated_at = ? WHERE email = ? AND refresh_token = ?",
		next, now, email, current,
	)
	if err != nil {
		return false, fmt.Errorf("rotating refresh token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return rows == 1, nil
}

// ClearRefreshToken removes the principal's stored refresh token,
// revoking the whole refresh lineage.
func (s *SQLiteUserStore) ClearRefreshToken(ctx context.Context, email string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token = NULL, updated_at = ? WHERE email = ?",
		now, email,
	)
	if err != nil {
		return fmt.Errorf("clearing refresh token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUnknownPrincipal
	}
	return nil
}

// SetConfirmed marks the principal's email address as confirmed.
func (s *SQLiteUserStore) SetConfirmed(ctx context.Context, email string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET confirmed = 1, updated_at = ? WHERE email = ?",
		now, email,
	)
	if err != nil {
		return fmt.Errorf("confirming email: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUnknownPrincipal
	}
	return nil
}

// UpdatePassword changes the principal's password hash.
func (s *SQLiteUserStore) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE email = ?",
		passwordHash, now, email,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUnknownPrincipal
	}
	return nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
