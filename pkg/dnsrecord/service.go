package dnsrecord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afterdarksys/mockfactory/internal/apperr"
	"github.com/afterdarksys/mockfactory/pkg/environment"
)

// Service implements the DNS Record Store half of C5: CRUD and bulk insert
// scoped to an owned environment (spec §4.7).
type Service struct {
	pool *pgxpool.Pool
	envs *environment.Service
	log  *slog.Logger
}

// NewService creates a dnsrecord Service.
func NewService(pool *pgxpool.Pool, envs *environment.Service, log *slog.Logger) *Service {
	return &Service{pool: pool, envs: envs, log: log}
}

// ownedEnvironment checks the caller owns environmentID, masking cross-user
// existence as NotFound per P2/S5 (same convention as environment.Service).
func (s *Service) ownedEnvironment(ctx context.Context, ownerID uuid.UUID, environmentID string) error {
	_, err := s.envs.Get(ctx, ownerID, environmentID)
	return err
}

// Create validates and inserts a single DNS record (spec §4.7, P10).
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, environmentID string, req CreateRequest) (Response, error) {
	if err := s.ownedEnvironment(ctx, ownerID, environmentID); err != nil {
		return Response{}, err
	}
	if err := req.Validate(); err != nil {
		return Response{}, apperr.New(apperr.InvalidRequest, err.Error())
	}

	store := NewStore(s.pool)
	row, err := store.Create(ctx, environmentID, req)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return Response{}, apperr.New(apperr.Conflict, "dns record already exists")
		}
		return Response{}, apperr.Wrap(apperr.InternalError, "creating dns record", err)
	}
	return row.ToResponse(), nil
}

// BulkCreate validates and inserts up to 100 records, reporting per-record
// success/failure rather than aborting the whole call on the first bad row
// (spec §4.7 "partial success is explicit").
func (s *Service) BulkCreate(ctx context.Context, ownerID uuid.UUID, environmentID string, req BulkCreateRequest) ([]BulkResult, error) {
	if err := s.ownedEnvironment(ctx, ownerID, environmentID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, apperr.New(apperr.InvalidRequest, err.Error())
	}

	store := NewStore(s.pool)
	results := make([]BulkResult, len(req.Records))
	for i, rec := range req.Records {
		if err := rec.Validate(); err != nil {
			results[i] = BulkResult{Index: i, Error: err.Error()}
			continue
		}
		row, err := store.Create(ctx, environmentID, rec)
		if err != nil {
			results[i] = BulkResult{Index: i, Error: err.Error()}
			continue
		}
		resp := row.ToResponse()
		results[i] = BulkResult{Index: i, Record: &resp}
	}
	return results, nil
}

// List returns every DNS record belonging to an owned environment.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, environmentID string) ([]Response, error) {
	if err := s.ownedEnvironment(ctx, ownerID, environmentID); err != nil {
		return nil, err
	}
	store := NewStore(s.pool)
	rows, err := store.ListByEnvironment(ctx, environmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "listing dns records", err)
	}
	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

// Delete removes a DNS record belonging to an owned environment.
func (s *Service) Delete(ctx context.Context, ownerID uuid.UUID, environmentID string, id uuid.UUID) error {
	if err := s.ownedEnvironment(ctx, ownerID, environmentID); err != nil {
		return err
	}
	store := NewStore(s.pool)
	if _, err := store.Get(ctx, environmentID, id); err != nil {
		return apperr.New(apperr.NotFound, "dns record not found")
	}
	if err := store.Delete(ctx, environmentID, id); err != nil {
		return apperr.Wrap(apperr.InternalError, "deleting dns record", fmt.Errorf("%w", err))
	}
	return nil
}
