package serviceinstance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afterdarksys/mockfactory/internal/dbpool"
)

// Store provides database operations for service instances.
type Store struct {
	dbtx dbpool.DBTX
}

// NewStore creates a Store backed by the given database connection.
func NewStore(dbtx dbpool.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const serviceInstanceColumns = `id, environment_id, kind, backing, container_id, port,
	namespace, credentials, endpoint, state, created_at`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(
		&r.ID, &r.EnvironmentID, &r.Kind, &r.Backing, &r.ContainerID, &r.Port,
		&r.Namespace, &r.Credentials, &r.Endpoint, &r.State, &r.CreatedAt,
	)
	return r, err
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var items []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID, &r.EnvironmentID, &r.Kind, &r.Backing, &r.ContainerID, &r.Port,
			&r.Namespace, &r.Credentials, &r.Endpoint, &r.State, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning service instance row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service instance rows: %w", err)
	}
	return items, nil
}

// CreateParams holds parameters for creating a service instance.
type CreateParams struct {
	ID            uuid.UUID
	EnvironmentID string
	Kind          string
	Backing       Backing
	ContainerID   *string
	Port          *int
	Namespace     *string
	Credentials   string
	Endpoint      string
}

// Create inserts a new service instance in state PROVISIONING. The caller
// supplies the ID up front so it can be used as the port allocator's lease
// key before the row exists (spec §4.5 step 1 leases a port before the
// service instance is durable).
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	query := `INSERT INTO service_instances (
		id, environment_id, kind, backing, container_id, port, namespace,
		credentials, endpoint, state, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	RETURNING ` + serviceInstanceColumns
	row := s.dbtx.QueryRow(ctx, query,
		p.ID, p.EnvironmentID, p.Kind, p.Backing, p.ContainerID, p.Port,
		p.Namespace, p.Credentials, p.Endpoint, StateProvisioning,
	)
	return scanRow(row)
}

// ListByEnvironment returns all service instances for an environment, in
// creation order (declared order, spec §3).
func (s *Store) ListByEnvironment(ctx context.Context, environmentID string) ([]Row, error) {
	query := `SELECT ` + serviceInstanceColumns + ` FROM service_instances
		WHERE environment_id = $1 ORDER BY created_at ASC`
	rows, err := s.dbtx.Query(ctx, query, environmentID)
	if err != nil {
		return nil, fmt.Errorf("listing service instances: %w", err)
	}
	return scanRows(rows)
}

// SetState transitions a service instance to a new state.
func (s *Store) SetState(ctx context.Context, id uuid.UUID, state State) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE service_instances SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("setting service instance state: %w", err)
	}
	return nil
}

// Delete removes a service instance row (called after its container/namespace
// has been torn down).
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `DELETE FROM service_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting service instance: %w", err)
	}
	return nil
}

// ListOrphanCandidates returns active container-backed instances, for the
// port-GC loop to cross-check against the runtime (spec §4.9).
func (s *Store) ListOrphanCandidates(ctx context.Context) ([]Row, error) {
	query := `SELECT ` + serviceInstanceColumns + ` FROM service_instances
		WHERE backing = $1 AND state != $2`
	rows, err := s.dbtx.Query(ctx, query, BackingContainer, StateDestroyed)
	if err != nil {
		return nil, fmt.Errorf("listing orphan candidates: %w", err)
	}
	return scanRows(rows)
}

// CreatedAtOf returns the row's creation timestamp.
func CreatedAtOf(r Row) time.Time { return r.CreatedAt }
