package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afterdarksys/mockfactory/internal/dbpool"
)

// Store provides database operations for users.
type Store struct {
	dbtx dbpool.DBTX
}

// NewStore creates a user Store backed by the given database connection.
func NewStore(dbtx dbpool.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const userColumns = `id, email, password_hash, tier, is_active, api_key_hash, api_key_prefix, created_at, updated_at`

// Row represents a row returned from the users table.
type Row struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Tier         string
	IsActive     bool
	APIKeyHash   *string
	APIKeyPrefix *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ToResponse converts a Row to a Response DTO. The password hash and full
// API key hash are never exposed — only the masked prefix (spec §6).
func (u *Row) ToResponse() Response {
	resp := Response{
		ID:        u.ID,
		Email:     u.Email,
		Tier:      u.Tier,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.APIKeyPrefix != nil {
		resp.APIKeyPrefix = *u.APIKeyPrefix
	}
	return resp
}

func scanRow(row pgx.Row) (Row, error) {
	var u Row
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Tier, &u.IsActive,
		&u.APIKeyHash, &u.APIKeyPrefix, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// Get returns a single user by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Row, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanRow(s.dbtx.QueryRow(ctx, query, id))
}

// GetByEmail returns a single user by email.
func (s *Store) GetByEmail(ctx context.Context, email string) (Row, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanRow(s.dbtx.QueryRow(ctx, query, email))
}

// GetByAPIKeyHash returns the user bound to the given API key hash, used by
// internal/authctx to resolve bearer tokens.
func (s *Store) GetByAPIKeyHash(ctx context.Context, hash string) (Row, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE api_key_hash = $1 AND is_active = true`
	return scanRow(s.dbtx.QueryRow(ctx, query, hash))
}

// CreateParams holds parameters for creating a user.
type CreateParams struct {
	Email        string
	PasswordHash string
	Tier         string
	APIKeyHash   string
	APIKeyPrefix string
}

// Create inserts a new user.
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	query := `INSERT INTO users (email, password_hash, tier, is_active, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3, true, $4, $5)
		RETURNING ` + userColumns
	row := s.dbtx.QueryRow(ctx, query, p.Email, p.PasswordHash, p.Tier, p.APIKeyHash, p.APIKeyPrefix)
	return scanRow(row)
}

// SetTier updates a user's billing tier (admin/billing-event mutation, spec §3).
func (s *Store) SetTier(ctx context.Context, id uuid.UUID, tier string) error {
	tag, err := s.dbtx.Exec(ctx, `UPDATE users SET tier = $2, updated_at = now() WHERE id = $1`, id, tier)
	if err != nil {
		return fmt.Errorf("setting tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Deactivate soft-disables a user (spec §3 "soft-disable via activity flag").
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx, `UPDATE users SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
