package emulation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// objectMetaStore tracks S3-family bucket/object metadata (spec §4.6: "ETags
// are computed and stored in C1") alongside the real bytes, which live in the
// Object Store Adapter's namespace.
type objectMetaStore struct {
	pool *pgxpool.Pool
}

func newObjectMetaStore(pool *pgxpool.Pool) *objectMetaStore {
	return &objectMetaStore{pool: pool}
}

func (s *objectMetaStore) recordBucket(ctx context.Context, environmentID, bucket string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO emulated_buckets (environment_id, bucket, created_at)
		VALUES ($1, $2, now()) ON CONFLICT (environment_id, bucket) DO NOTHING`, environmentID, bucket)
	if err != nil {
		return fmt.Errorf("recording bucket: %w", err)
	}
	return nil
}

func (s *objectMetaStore) forgetBucket(ctx context.Context, environmentID, bucket string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM emulated_buckets WHERE environment_id = $1 AND bucket = $2`, environmentID, bucket)
	if err != nil {
		return fmt.Errorf("forgetting bucket: %w", err)
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM emulated_objects WHERE environment_id = $1 AND bucket = $2`, environmentID, bucket)
	if err != nil {
		return fmt.Errorf("forgetting bucket objects: %w", err)
	}
	return nil
}

func (s *objectMetaStore) listBuckets(ctx context.Context, environmentID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT bucket FROM emulated_buckets WHERE environment_id = $1 ORDER BY created_at ASC`, environmentID)
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var bucket string
		if err := rows.Scan(&bucket); err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", err)
		}
		names = append(names, bucket)
	}
	return names, rows.Err()
}

func (s *objectMetaStore) recordObject(ctx context.Context, environmentID, bucket, key, etag string, size int64) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO emulated_objects (environment_id, bucket, key, etag, size, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (environment_id, bucket, key) DO UPDATE SET etag = $4, size = $5`,
		environmentID, bucket, key, etag, size)
	if err != nil {
		return fmt.Errorf("recording object: %w", err)
	}
	return nil
}

func (s *objectMetaStore) forgetObject(ctx context.Context, environmentID, bucket, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM emulated_objects WHERE environment_id = $1 AND bucket = $2 AND key = $3`,
		environmentID, bucket, key)
	if err != nil {
		return fmt.Errorf("forgetting object: %w", err)
	}
	return nil
}

func (s *objectMetaStore) listObjects(ctx context.Context, environmentID, bucket string) ([]ObjectListing, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, etag, size FROM emulated_objects
		WHERE environment_id = $1 AND bucket = $2 ORDER BY key ASC`, environmentID, bucket)
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	defer rows.Close()

	var items []ObjectListing
	for rows.Next() {
		var o ObjectListing
		if err := rows.Scan(&o.Key, &o.ETag, &o.Size); err != nil {
			return nil, fmt.Errorf("scanning object listing: %w", err)
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
