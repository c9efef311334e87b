// Package user implements the User entity (spec §3): identity, credential
// material, tier, and activity flag. A User solely owns its Environments.
package user

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the enumerated billing/quota tier (spec §3).
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierTeam Tier = "team"
)

// CreateRequest is the JSON body for POST /api/v1/users.
type CreateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Tier     string `json:"tier" validate:"omitempty,oneof=free pro team"`
}

// Response is the JSON response for a single user. It never includes the
// password hash or raw API key — only the masked prefix, per the masking
// rule that applies to all credential material (spec §6).
type Response struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Tier         string    `json:"tier"`
	IsActive     bool      `json:"is_active"`
	APIKeyPrefix string    `json:"api_key_prefix,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateResponse is returned once, at creation time, and is the only
// response shape that ever carries the raw API key.
type CreateResponse struct {
	Response
	APIKey string `json:"api_key"`
}
