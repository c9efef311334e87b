package dnsrecord

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afterdarksys/mockfactory/internal/dbpool"
)

// Store provides database operations for DNS records.
type Store struct {
	dbtx dbpool.DBTX
}

// NewStore creates a Store backed by the given database connection.
func NewStore(dbtx dbpool.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const dnsRecordColumns = `id, environment_id, name, type, value, ttl, priority, weight, port, created_at`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(&r.ID, &r.EnvironmentID, &r.Name, &r.Type, &r.Value, &r.TTL, &r.Priority, &r.Weight, &r.Port, &r.CreatedAt)
	return r, err
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var items []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.EnvironmentID, &r.Name, &r.Type, &r.Value, &r.TTL, &r.Priority, &r.Weight, &r.Port, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning dns record row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dns record rows: %w", err)
	}
	return items, nil
}

// Create inserts a DNS record. Uniqueness on (environment, name, type, value)
// is enforced by a database constraint; a violation surfaces as a pgx unique
// violation for the caller to map to Conflict.
func (s *Store) Create(ctx context.Context, environmentID string, r CreateRequest) (Row, error) {
	query := `INSERT INTO dns_records (
		id, environment_id, name, type, value, ttl, priority, weight, port, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	RETURNING ` + dnsRecordColumns
	row := s.dbtx.QueryRow(ctx, query, uuid.New(), environmentID, r.Name, r.Type, r.Value, r.TTL, r.Priority, r.Weight, r.Port)
	return scanRow(row)
}

// ListByEnvironment returns every DNS record belonging to an environment.
func (s *Store) ListByEnvironment(ctx context.Context, environmentID string) ([]Row, error) {
	rows, err := s.dbtx.Query(ctx, `SELECT `+dnsRecordColumns+` FROM dns_records WHERE environment_id = $1 ORDER BY created_at ASC`, environmentID)
	if err != nil {
		return nil, fmt.Errorf("listing dns records: %w", err)
	}
	return scanRows(rows)
}

// Get fetches a single record scoped to its environment (ownership of the
// environment is checked by the caller, Service.ownedEnvironment).
func (s *Store) Get(ctx context.Context, environmentID string, id uuid.UUID) (Row, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+dnsRecordColumns+` FROM dns_records WHERE id = $1 AND environment_id = $2`, id, environmentID)
	return scanRow(row)
}

// Delete removes a DNS record.
func (s *Store) Delete(ctx context.Context, environmentID string, id uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `DELETE FROM dns_records WHERE id = $1 AND environment_id = $2`, id, environmentID)
	if err != nil {
		return fmt.Errorf("deleting dns record: %w", err)
	}
	return nil
}

// Resolve returns the oldest record across all environments matching
// (name, type), or zero-value/false on no match (spec §4.7 multi-tenant
// lookup, P-DNS read-only lock-free requirement: this issues a single
// read-only SELECT).
func (s *Store) Resolve(ctx context.Context, name string, recordType Type) (Row, bool, error) {
	query := `SELECT ` + dnsRecordColumns + ` FROM dns_records
		WHERE name = $1 AND type = $2
		ORDER BY created_at ASC
		LIMIT 1`
	row, err := scanRow(s.dbtx.QueryRow(ctx, query, name, recordType))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Row{}, false, nil
		}
		return Row{}, false, fmt.Errorf("resolving dns name: %w", err)
	}
	return row, true, nil
}
