package emulation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type dynamoTableRow struct {
	Name          string
	EnvironmentID string
	HashKey       string
	RangeKey      string // empty if the table has no range key
	CreatedAt     time.Time
}

type dynamoItemRow struct {
	TableName     string
	EnvironmentID string
	HashValue     string
	RangeValue    string
	Attributes    map[string]any
}

type dynamoStore struct {
	pool *pgxpool.Pool
}

func newDynamoStore(pool *pgxpool.Pool) *dynamoStore {
	return &dynamoStore{pool: pool}
}

func (s *dynamoStore) createTable(ctx context.Context, t dynamoTableRow) (dynamoTableRow, error) {
	query := `INSERT INTO emulated_dynamo_tables (name, environment_id, hash_key, range_key, created_at)
		VALUES ($1, $2, $3, $4, now()) RETURNING created_at`
	err := s.pool.QueryRow(ctx, query, t.Name, t.EnvironmentID, t.HashKey, t.RangeKey).Scan(&t.CreatedAt)
	if err != nil {
		return dynamoTableRow{}, fmt.Errorf("creating table: %w", err)
	}
	return t, nil
}

func (s *dynamoStore) getTable(ctx context.Context, environmentID, name string) (dynamoTableRow, error) {
	var t dynamoTableRow
	query := `SELECT name, environment_id, hash_key, range_key, created_at
		FROM emulated_dynamo_tables WHERE environment_id = $1 AND name = $2`
	err := s.pool.QueryRow(ctx, query, environmentID, name).Scan(&t.Name, &t.EnvironmentID, &t.HashKey, &t.RangeKey, &t.CreatedAt)
	if err != nil {
		return dynamoTableRow{}, fmt.Errorf("getting table: %w", err)
	}
	return t, nil
}

func (s *dynamoStore) deleteTable(ctx context.Context, environmentID, name string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM emulated_dynamo_items WHERE environment_id = $1 AND table_name = $2`, environmentID, name); err != nil {
		return fmt.Errorf("deleting table items: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM emulated_dynamo_tables WHERE environment_id = $1 AND name = $2`, environmentID, name); err != nil {
		return fmt.Errorf("deleting table: %w", err)
	}
	return nil
}

func (s *dynamoStore) putItem(ctx context.Context, item dynamoItemRow) error {
	attrsJSON, err := json.Marshal(item.Attributes)
	if err != nil {
		return fmt.Errorf("encoding item attributes: %w", err)
	}
	query := `INSERT INTO emulated_dynamo_items (environment_id, table_name, hash_value, range_value, attributes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (environment_id, table_name, hash_value, range_value) DO UPDATE SET attributes = $5`
	if _, err := s.pool.Exec(ctx, query, item.EnvironmentID, item.TableName, item.HashValue, item.RangeValue, attrsJSON); err != nil {
		return fmt.Errorf("putting item: %w", err)
	}
	return nil
}

func (s *dynamoStore) getItem(ctx context.Context, environmentID, tableName, hashValue, rangeValue string) (dynamoItemRow, bool, error) {
	var attrsJSON []byte
	item := dynamoItemRow{EnvironmentID: environmentID, TableName: tableName, HashValue: hashValue, RangeValue: rangeValue}
	query := `SELECT attributes FROM emulated_dynamo_items
		WHERE environment_id = $1 AND table_name = $2 AND hash_value = $3 AND range_value = $4`
	err := s.pool.QueryRow(ctx, query, environmentID, tableName, hashValue, rangeValue).Scan(&attrsJSON)
	if err != nil {
		return dynamoItemRow{}, false, nil
	}
	if err := json.Unmarshal(attrsJSON, &item.Attributes); err != nil {
		return dynamoItemRow{}, false, fmt.Errorf("decoding item attributes: %w", err)
	}
	return item, true, nil
}

func (s *dynamoStore) deleteItem(ctx context.Context, environmentID, tableName, hashValue, rangeValue string) error {
	query := `DELETE FROM emulated_dynamo_items
		WHERE environment_id = $1 AND table_name = $2 AND hash_value = $3 AND range_value = $4`
	if _, err := s.pool.Exec(ctx, query, environmentID, tableName, hashValue, rangeValue); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

func (s *dynamoStore) queryByHash(ctx context.Context, environmentID, tableName, hashValue string) ([]dynamoItemRow, error) {
	query := `SELECT hash_value, range_value, attributes FROM emulated_dynamo_items
		WHERE environment_id = $1 AND table_name = $2 AND hash_value = $3 ORDER BY range_value ASC`
	rows, err := s.pool.Query(ctx, query, environmentID, tableName, hashValue)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []dynamoItemRow
	for rows.Next() {
		item := dynamoItemRow{EnvironmentID: environmentID, TableName: tableName}
		var attrsJSON []byte
		if err := rows.Scan(&item.HashValue, &item.RangeValue, &attrsJSON); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		if err := json.Unmarshal(attrsJSON, &item.Attributes); err != nil {
			return nil, fmt.Errorf("decoding item attributes: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
