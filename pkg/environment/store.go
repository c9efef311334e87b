package environment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afterdarksys/mockfactory/internal/dbpool"
)

// Store provides database operations for environments.
type Store struct {
	dbtx dbpool.DBTX
}

// NewStore creates an environment Store backed by the given database connection.
func NewStore(dbtx dbpool.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// WithTx returns a Store bound to tx, for use inside a lifecycle transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{dbtx: tx}
}

const environmentColumns = `id, owner_id, display_name, hostname, services, state,
	created_at, last_activity_at, started_at, stopped_at, destroyed_at,
	auto_shutdown_seconds, hourly_rate, running_cost, auto_delete_at`

// Row represents a row returned from the environments table.
type Row struct {
	ID                  string
	OwnerID              uuid.UUID
	DisplayName          string
	Hostname             *string
	Services             []ServiceDeclaration
	State                State
	CreatedAt            time.Time
	LastActivityAt       time.Time
	StartedAt            *time.Time
	StoppedAt            *time.Time
	DestroyedAt          *time.Time
	AutoShutdownSeconds  int64
	HourlyRate           float64
	RunningCost          float64
	AutoDeleteAt         *time.Time
}

// ToResponse converts a Row to a Response DTO.
func (r *Row) ToResponse() Response {
	return Response{
		ID:                r.ID,
		OwnerID:           r.OwnerID,
		Name:              r.DisplayName,
		Hostname:          r.Hostname,
		Services:          r.Services,
		State:             r.State,
		CreatedAt:         r.CreatedAt,
		LastActivityAt:    r.LastActivityAt,
		StartedAt:         r.StartedAt,
		StoppedAt:         r.StoppedAt,
		DestroyedAt:       r.DestroyedAt,
		AutoShutdownAfter: time.Duration(r.AutoShutdownSeconds) * time.Second,
		HourlyRate:        r.HourlyRate,
		RunningCost:       r.RunningCost,
	}
}

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	var servicesJSON []byte
	err := row.Scan(
		&r.ID, &r.OwnerID, &r.DisplayName, &r.Hostname, &servicesJSON, &r.State,
		&r.CreatedAt, &r.LastActivityAt, &r.StartedAt, &r.StoppedAt, &r.DestroyedAt,
		&r.AutoShutdownSeconds, &r.HourlyRate, &r.RunningCost, &r.AutoDeleteAt,
	)
	if err != nil {
		return Row{}, err
	}
	if len(servicesJSON) > 0 {
		if err := json.Unmarshal(servicesJSON, &r.Services); err != nil {
			return Row{}, fmt.Errorf("unmarshaling services: %w", err)
		}
	}
	return r, nil
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	var items []Row
	for rows.Next() {
		var r Row
		var servicesJSON []byte
		if err := rows.Scan(
			&r.ID, &r.OwnerID, &r.DisplayName, &r.Hostname, &servicesJSON, &r.State,
			&r.CreatedAt, &r.LastActivityAt, &r.StartedAt, &r.StoppedAt, &r.DestroyedAt,
			&r.AutoShutdownSeconds, &r.HourlyRate, &r.RunningCost, &r.AutoDeleteAt,
		); err != nil {
			return nil, fmt.Errorf("scanning environment row: %w", err)
		}
		if len(servicesJSON) > 0 {
			if err := json.Unmarshal(servicesJSON, &r.Services); err != nil {
				return nil, fmt.Errorf("unmarshaling services: %w", err)
			}
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating environment rows: %w", err)
	}
	return items, nil
}

// CreateParams holds parameters for creating an environment.
type CreateParams struct {
	ID                  string
	OwnerID              uuid.UUID
	DisplayName          string
	Services             []ServiceDeclaration
	AutoShutdownSeconds  int64
	HourlyRate           float64
}

// Create inserts a new environment in state CREATED.
func (s *Store) Create(ctx context.Context, p CreateParams) (Row, error) {
	servicesJSON, err := json.Marshal(p.Services)
	if err != nil {
		return Row{}, fmt.Errorf("marshaling services: %w", err)
	}

	query := `INSERT INTO environments (
		id, owner_id, display_name, services, state,
		last_activity_at, auto_shutdown_seconds, hourly_rate, running_cost
	) VALUES ($1, $2, $3, $4, $5, now(), $6, $7, 0)
	RETURNING ` + environmentColumns

	row := s.dbtx.QueryRow(ctx, query,
		p.ID, p.OwnerID, p.DisplayName, servicesJSON, StateCreated,
		p.AutoShutdownSeconds, p.HourlyRate,
	)
	return scanRow(row)
}

// Get returns a single environment by ID.
func (s *Store) Get(ctx context.Context, id string) (Row, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments WHERE id = $1`
	return scanRow(s.dbtx.QueryRow(ctx, query, id))
}

// GetForUpdate locks the environment row for the duration of the enclosing
// transaction, serializing concurrent lifecycle mutations (spec §5).
func (s *Store) GetForUpdate(ctx context.Context, id string) (Row, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments WHERE id = $1 FOR UPDATE`
	return scanRow(s.dbtx.QueryRow(ctx, query, id))
}

// ListFilters holds optional filters for listing environments.
type ListFilters struct {
	OwnerID uuid.UUID
	State   State
}

// List returns environments owned by the given user, optionally filtered by state.
func (s *Store) List(ctx context.Context, filters ListFilters) ([]Row, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments WHERE owner_id = $1`
	args := []any{filters.OwnerID}
	if filters.State != "" {
		query += ` AND state = $2`
		args = append(args, filters.State)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing environments: %w", err)
	}
	return scanRows(rows)
}

// ListRunningPastDeadline returns RUNNING environments whose idle time has
// reached their own auto_shutdown_seconds (spec §4.9: each Environment
// carries its own auto-shutdown-after, not a global threshold).
func (s *Store) ListRunningPastDeadline(ctx context.Context) ([]Row, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments
		WHERE state = $1 AND now() - last_activity_at >= make_interval(secs => auto_shutdown_seconds)`
	rows, err := s.dbtx.Query(ctx, query, StateRunning)
	if err != nil {
		return nil, fmt.Errorf("listing idle environments: %w", err)
	}
	return scanRows(rows)
}

// ListExpired returns environments whose auto_delete_at has passed.
func (s *Store) ListExpired(ctx context.Context) ([]Row, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments
		WHERE auto_delete_at IS NOT NULL AND auto_delete_at <= now() AND state != $1`
	rows, err := s.dbtx.Query(ctx, query, StateDestroyed)
	if err != nil {
		return nil, fmt.Errorf("listing expired environments: %w", err)
	}
	return scanRows(rows)
}

// SetState transitions an environment to a new state, stamping the
// corresponding lifecycle timestamp (spec §4.3's side-effect column).
func (s *Store) SetState(ctx context.Context, id string, state State) error {
	var stampCol string
	switch state {
	case StateRunning:
		stampCol = `started_at = now(),`
	case StateStopped:
		stampCol = `stopped_at = now(),`
	case StateDestroyed:
		stampCol = `destroyed_at = now(),`
	}
	query := fmt.Sprintf(`UPDATE environments SET %s state = $2 WHERE id = $1`, stampCol)
	tag, err := s.dbtx.Exec(ctx, query, id, state)
	if err != nil {
		return fmt.Errorf("setting environment state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// TouchActivity bumps last_activity_at to now (spec §4.6 cross-cutting rule).
func (s *Store) TouchActivity(ctx context.Context, id string) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE environments SET last_activity_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching activity: %w", err)
	}
	return nil
}

// SetHostname sets the environment's custom hostname.
func (s *Store) SetHostname(ctx context.Context, id, hostname string) error {
	tag, err := s.dbtx.Exec(ctx, `UPDATE environments SET hostname = $2 WHERE id = $1`, id, hostname)
	if err != nil {
		return fmt.Errorf("setting hostname: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AddRunningCost adds delta to the running-cost accumulator.
func (s *Store) AddRunningCost(ctx context.Context, id string, delta float64) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE environments SET running_cost = running_cost + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("adding running cost: %w", err)
	}
	return nil
}
