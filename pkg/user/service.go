package user

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/afterdarksys/mockfactory/internal/authctx"
)

// Service encapsulates user business logic: registration, tier changes,
// and the authctx.Resolver contract used to bind API keys to identities.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a user Service backed by the given global pool.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{
		store:  NewStore(pool),
		logger: logger,
	}
}

// Create registers a new user, hashing the password and minting an API key.
// The raw API key is returned exactly once; only its hash is persisted.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return CreateResponse{}, fmt.Errorf("hashing password: %w", err)
	}

	tier := req.Tier
	if tier == "" {
		tier = string(TierFree)
	}

	rawKey, keyHash, keyPrefix := generateAPIKey()

	row, err := s.store.Create(ctx, CreateParams{
		Email:        req.Email,
		PasswordHash: string(hash),
		Tier:         tier,
		APIKeyHash:   keyHash,
		APIKeyPrefix: keyPrefix,
	})
	if err != nil {
		return CreateResponse{}, fmt.Errorf("creating user: %w", err)
	}

	return CreateResponse{
		Response: row.ToResponse(),
		APIKey:   rawKey,
	}, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Response, error) {
	row, err := s.store.Get(ctx, id)
	if err != nil {
		return Response{}, fmt.Errorf("getting user: %w", err)
	}
	return row.ToResponse(), nil
}

// SetTier updates a user's billing tier (admin/billing-event mutation, spec §3).
func (s *Service) SetTier(ctx context.Context, id uuid.UUID, tier string) error {
	return s.store.SetTier(ctx, id, tier)
}

// Deactivate soft-disables a user.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.store.Deactivate(ctx, id)
}

// Resolve implements authctx.Resolver: it hashes the presented token and
// looks up the user bound to it. Used as the sole authentication path since
// full OAuth/OIDC is out of scope (spec §1, §6).
func (s *Service) Resolve(ctx context.Context, token string) (authctx.Identity, error) {
	hash := hashAPIKey(token)

	row, err := s.store.GetByAPIKeyHash(ctx, hash)
	if err != nil {
		return authctx.Identity{}, authctx.ErrInvalidCredential
	}

	// Constant-time compare against the stored hash defends against timing
	// side channels beyond what the lookup query itself provides.
	if row.APIKeyHash == nil || subtle.ConstantTimeCompare([]byte(*row.APIKeyHash), []byte(hash)) != 1 {
		return authctx.Identity{}, authctx.ErrInvalidCredential
	}

	return authctx.Identity{UserID: row.ID, Tier: row.Tier}, nil
}

// generateAPIKey creates a random API key with prefix "mf_", its SHA-256
// hash, and a short prefix for display (masking rule, spec §6).
func generateAPIKey() (raw, hash, prefix string) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	raw = fmt.Sprintf("mf_%x", b)
	hash = hashAPIKey(raw)
	prefix = raw[:10]
	return
}

func hashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
