package emulation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type lambdaFunctionRow struct {
	Name          string
	EnvironmentID string
	Runtime       string
	Handler       string
	MemoryMB      int
	TimeoutSecs   int
	EnvVars       map[string]string
	CreatedAt     time.Time
}

type lambdaStore struct {
	pool *pgxpool.Pool
}

func newLambdaStore(pool *pgxpool.Pool) *lambdaStore {
	return &lambdaStore{pool: pool}
}

func (s *lambdaStore) create(ctx context.Context, f lambdaFunctionRow) (lambdaFunctionRow, error) {
	envVarsJSON, err := json.Marshal(f.EnvVars)
	if err != nil {
		return lambdaFunctionRow{}, fmt.Errorf("encoding function env vars: %w", err)
	}
	query := `INSERT INTO emulated_lambda_functions
		(name, environment_id, runtime, handler, memory_mb, timeout_secs, env_vars, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now()) RETURNING created_at`
	err = s.pool.QueryRow(ctx, query, f.Name, f.EnvironmentID, f.Runtime, f.Handler, f.MemoryMB, f.TimeoutSecs, envVarsJSON).Scan(&f.CreatedAt)
	if err != nil {
		return lambdaFunctionRow{}, fmt.Errorf("creating lambda function: %w", err)
	}
	return f, nil
}

func (s *lambdaStore) get(ctx context.Context, environmentID, name string) (lambdaFunctionRow, error) {
	var f lambdaFunctionRow
	var envVarsJSON []byte
	query := `SELECT name, environment_id, runtime, handler, memory_mb, timeout_secs, env_vars, created_at
		FROM emulated_lambda_functions WHERE environment_id = $1 AND name = $2`
	err := s.pool.QueryRow(ctx, query, environmentID, name).Scan(
		&f.Name, &f.EnvironmentID, &f.Runtime, &f.Handler, &f.MemoryMB, &f.TimeoutSecs, &envVarsJSON, &f.CreatedAt,
	)
	if err != nil {
		return lambdaFunctionRow{}, fmt.Errorf("getting lambda function: %w", err)
	}
	if err := json.Unmarshal(envVarsJSON, &f.EnvVars); err != nil {
		return lambdaFunctionRow{}, fmt.Errorf("decoding function env vars: %w", err)
	}
	return f, nil
}

func (s *lambdaStore) delete(ctx context.Context, environmentID, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM emulated_lambda_functions WHERE environment_id = $1 AND name = $2`, environmentID, name)
	if err != nil {
		return fmt.Errorf("deleting lambda function: %w", err)
	}
	return nil
}

func (s *lambdaStore) list(ctx context.Context, environmentID string) ([]lambdaFunctionRow, error) {
	query := `SELECT name, environment_id, runtime, handler, memory_mb, timeout_secs, env_vars, created_at
		FROM emulated_lambda_functions WHERE environment_id = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, environmentID)
	if err != nil {
		return nil, fmt.Errorf("listing lambda functions: %w", err)
	}
	defer rows.Close()

	var items []lambdaFunctionRow
	for rows.Next() {
		var f lambdaFunctionRow
		var envVarsJSON []byte
		if err := rows.Scan(&f.Name, &f.EnvironmentID, &f.Runtime, &f.Handler, &f.MemoryMB, &f.TimeoutSecs, &envVarsJSON, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lambda function: %w", err)
		}
		if err := json.Unmarshal(envVarsJSON, &f.EnvVars); err != nil {
			return nil, fmt.Errorf("decoding function env vars: %w", err)
		}
		items = append(items, f)
	}
	return items, rows.Err()
}
