package metering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afterdarksys/mockfactory/internal/dbpool"
)

// Store provides database operations for usage intervals. It holds the pool
// itself, rather than the narrower dbpool.DBTX, because SplitAtHourBoundary
// needs dbpool.WithTx.
type Store struct {
	dbtx dbpool.DBTX
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{dbtx: pool, pool: pool}
}

const usageIntervalColumns = `id, environment_id, period_start, period_end, hourly_rate, cost, billed`

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(&r.ID, &r.EnvironmentID, &r.PeriodStart, &r.PeriodEnd, &r.HourlyRate, &r.Cost, &r.Billed)
	return r, err
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var items []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.EnvironmentID, &r.PeriodStart, &r.PeriodEnd, &r.HourlyRate, &r.Cost, &r.Billed); err != nil {
			return nil, fmt.Errorf("scanning usage interval row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage interval rows: %w", err)
	}
	return items, nil
}

// OpenInterval opens a new UsageInterval for an environment transitioning to
// RUNNING (spec §4.3/§4.8). The invariant "at most one open interval per
// environment" is enforced by a partial unique index on (environment_id)
// WHERE period_end IS NULL, so a caller that races this call against itself
// gets a constraint violation instead of two opens.
func (s *Store) OpenInterval(ctx context.Context, environmentID string, hourlyRate float64) error {
	query := `INSERT INTO usage_intervals (id, environment_id, period_start, hourly_rate, billed)
		VALUES ($1, $2, now(), $3, false)`
	_, err := s.dbtx.Exec(ctx, query, uuid.New(), environmentID, hourlyRate)
	if err != nil {
		return fmt.Errorf("opening usage interval: %w", err)
	}
	return nil
}

// CloseInterval closes an environment's open interval, computing cost as
// (period_end - period_start) * hourly_rate (spec §4.8), and returns that
// cost so the caller can add it to the environment's running-cost
// accumulator. Returns 0 if there was no open interval to close.
func (s *Store) CloseInterval(ctx context.Context, environmentID string) (float64, error) {
	query := `UPDATE usage_intervals
		SET period_end = now(),
		    cost = EXTRACT(EPOCH FROM (now() - period_start)) / 3600.0 * hourly_rate
		WHERE environment_id = $1 AND period_end IS NULL
		RETURNING cost`
	var cost *float64
	err := s.dbtx.QueryRow(ctx, query, environmentID).Scan(&cost)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("closing usage interval: %w", err)
	}
	if cost == nil {
		return 0, nil
	}
	return *cost, nil
}

// ListOpenOlderThan returns every open interval whose period_start is older
// than olderThan, for the hourly reconciliation loop (spec §4.8).
func (s *Store) ListOpenOlderThan(ctx context.Context, olderThan time.Duration) ([]Row, error) {
	query := `SELECT ` + usageIntervalColumns + ` FROM usage_intervals
		WHERE period_end IS NULL AND period_start <= now() - make_interval(secs => $1)`
	rows, err := s.dbtx.Query(ctx, query, olderThan.Seconds())
	if err != nil {
		return nil, fmt.Errorf("listing long-open usage intervals: %w", err)
	}
	return scanRows(rows)
}

// SplitAtHourBoundary closes an open interval at its hour boundary and opens
// a fresh one at the same instant, decoupling billing granularity from
// environment lifetime (spec §4.8). Both statements run in one transaction
// so a crash between them can never leave a RUNNING environment with zero
// open intervals (invariant P4).
func (s *Store) SplitAtHourBoundary(ctx context.Context, row Row) error {
	boundary := row.PeriodStart.Add(time.Hour)
	cost := boundary.Sub(row.PeriodStart).Hours() * row.HourlyRate

	return dbpool.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		closeQuery := `UPDATE usage_intervals SET period_end = $2, cost = $3 WHERE id = $1`
		if _, err := tx.Exec(ctx, closeQuery, row.ID, boundary, cost); err != nil {
			return fmt.Errorf("closing interval at hour boundary: %w", err)
		}

		openQuery := `INSERT INTO usage_intervals (id, environment_id, period_start, hourly_rate, billed)
			VALUES ($1, $2, $3, $4, false)`
		if _, err := tx.Exec(ctx, openQuery, uuid.New(), row.EnvironmentID, boundary, row.HourlyRate); err != nil {
			return fmt.Errorf("opening split interval: %w", err)
		}
		return nil
	})
}

// SumCost returns the total cost of all closed intervals for an environment;
// open intervals have a NULL cost and add nothing.
func (s *Store) SumCost(ctx context.Context, environmentID string) (float64, error) {
	var total float64
	err := s.dbtx.QueryRow(ctx, `SELECT COALESCE(SUM(cost), 0) FROM usage_intervals WHERE environment_id = $1`, environmentID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing usage interval cost: %w", err)
	}
	return total, nil
}
