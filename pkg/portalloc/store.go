package portalloc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afterdarksys/mockfactory/internal/apperr"
	"github.com/afterdarksys/mockfactory/internal/dbpool"
)

// Store provides database operations for port allocations.
type Store struct {
	pool               *pgxpool.Pool
	rangeMin, rangeMax int
}

// NewStore creates a port allocation Store bound to the leasable host port
// range (PORT_RANGE_MIN/PORT_RANGE_MAX, spec §4.4); a zero bound falls back
// to DefaultRangeMin/DefaultRangeMax.
func NewStore(pool *pgxpool.Pool, rangeMin, rangeMax int) *Store {
	if rangeMin <= 0 {
		rangeMin = DefaultRangeMin
	}
	if rangeMax <= 0 {
		rangeMax = DefaultRangeMax
	}
	return &Store{pool: pool, rangeMin: rangeMin, rangeMax: rangeMax}
}

// Allocate leases the smallest available port in [rangeMin, rangeMax] for the
// given ServiceInstance. Each attempt runs its own transaction: a lost race
// against the unique partial index `(port) WHERE active` aborts that attempt
// and is retried up to maxRetries before failing with Conflict (spec §4.4).
func (s *Store) Allocate(ctx context.Context, serviceInstanceID uuid.UUID) (int, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		port, ok, err := s.allocateOnce(ctx, serviceInstanceID)
		if err != nil {
			return 0, apperr.Wrap(apperr.InternalError, "allocating port", err)
		}
		if ok {
			return port, nil
		}
	}
	return 0, apperr.New(apperr.Conflict, "ports exhausted")
}

func (s *Store) allocateOnce(ctx context.Context, serviceInstanceID uuid.UUID) (int, bool, error) {
	var port int
	err := dbpool.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		query := `INSERT INTO port_allocations (port, service_instance_id, active, allocated_at)
			SELECT p, $3, true, now()
			FROM generate_series($1, $2) AS p
			WHERE NOT EXISTS (
				SELECT 1 FROM port_allocations a WHERE a.port = p AND a.active
			)
			ORDER BY p
			LIMIT 1
			ON CONFLICT (port) WHERE active DO NOTHING
			RETURNING port`
		row := tx.QueryRow(ctx, query, s.rangeMin, s.rangeMax, serviceInstanceID)
		return row.Scan(&port)
	})
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return port, true, nil
}

// Release flips a ServiceInstance's active allocation to inactive, retaining
// the row for audit (spec §4.4).
func (s *Store) Release(ctx context.Context, serviceInstanceID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE port_allocations
		SET active = false, released_at = now()
		WHERE service_instance_id = $1 AND active`,
		serviceInstanceID,
	)
	if err != nil {
		return fmt.Errorf("releasing port allocation: %w", err)
	}
	return nil
}

// ReleaseOrphan flips a specific port's active allocation to inactive; used
// by the GC loop when the owning ServiceInstance is gone or its container no
// longer exists (spec §4.9).
func (s *Store) ReleaseOrphan(ctx context.Context, port int) error {
	_, err := s.pool.Exec(ctx, `UPDATE port_allocations
		SET active = false, released_at = now()
		WHERE port = $1 AND active`,
		port,
	)
	if err != nil {
		return fmt.Errorf("releasing orphan port allocation: %w", err)
	}
	return nil
}

// ActiveAllocation pairs an active port with the ServiceInstance it is leased to.
type ActiveAllocation struct {
	Port              int
	ServiceInstanceID uuid.UUID
}

// ListActive returns all currently active allocations, for GC reconciliation.
func (s *Store) ListActive(ctx context.Context) ([]ActiveAllocation, error) {
	rows, err := s.pool.Query(ctx, `SELECT port, service_instance_id FROM port_allocations WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("listing active allocations: %w", err)
	}
	defer rows.Close()

	var items []ActiveAllocation
	for rows.Next() {
		var a ActiveAllocation
		if err := rows.Scan(&a.Port, &a.ServiceInstanceID); err != nil {
			return nil, fmt.Errorf("scanning active allocation: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating active allocations: %w", err)
	}
	return items, nil
}

// CountActive returns the number of currently active allocations (used by
// metrics.PortsInUse).
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM port_allocations WHERE active`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active allocations: %w", err)
	}
	return count, nil
}
