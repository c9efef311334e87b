package emulation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ec2InstanceState mirrors the EC2-like state machine (spec §4.6): pending →
// running → stopping → stopped / terminated. No VM backs these rows.
type ec2InstanceState string

const (
	ec2Pending    ec2InstanceState = "pending"
	ec2Running    ec2InstanceState = "running"
	ec2Stopping   ec2InstanceState = "stopping"
	ec2Stopped    ec2InstanceState = "stopped"
	ec2Terminated ec2InstanceState = "terminated"
)

type ec2InstanceRow struct {
	ID            string
	EnvironmentID string
	InstanceType  string
	PrivateIP     string
	PublicIP      *string
	State         ec2InstanceState
	CreatedAt     time.Time
}

type ec2Store struct {
	pool *pgxpool.Pool
}

func newEC2Store(pool *pgxpool.Pool) *ec2Store {
	return &ec2Store{pool: pool}
}

func randomInstanceID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "i-" + hex.EncodeToString(buf)
}

func randomPrivateIP() string {
	a, _ := rand.Int(rand.Reader, big.NewInt(256))
	b, _ := rand.Int(rand.Reader, big.NewInt(256))
	return fmt.Sprintf("10.0.%d.%d", a.Int64(), b.Int64())
}

func (s *ec2Store) create(ctx context.Context, environmentID, instanceType string, assignPublicIP bool) (ec2InstanceRow, error) {
	row := ec2InstanceRow{
		ID:            randomInstanceID(),
		EnvironmentID: environmentID,
		InstanceType:  instanceType,
		PrivateIP:     randomPrivateIP(),
		State:         ec2Pending,
	}
	if assignPublicIP {
		ip := randomPrivateIP() // synthesized, not routable; emulation only
		row.PublicIP = &ip
	}
	query := `INSERT INTO emulated_ec2_instances
		(id, environment_id, instance_type, private_ip, public_ip, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now()) RETURNING created_at`
	err := s.pool.QueryRow(ctx, query, row.ID, row.EnvironmentID, row.InstanceType, row.PrivateIP, row.PublicIP, row.State).Scan(&row.CreatedAt)
	if err != nil {
		return ec2InstanceRow{}, fmt.Errorf("creating ec2 instance: %w", err)
	}
	return row, nil
}

func (s *ec2Store) setState(ctx context.Context, environmentID, id string, state ec2InstanceState) error {
	_, err := s.pool.Exec(ctx, `UPDATE emulated_ec2_instances SET state = $3
		WHERE environment_id = $1 AND id = $2`, environmentID, id, state)
	if err != nil {
		return fmt.Errorf("setting ec2 instance state: %w", err)
	}
	return nil
}

func (s *ec2Store) listByEnvironment(ctx context.Context, environmentID string) ([]ec2InstanceRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, environment_id, instance_type, private_ip, public_ip, state, created_at
		FROM emulated_ec2_instances WHERE environment_id = $1 ORDER BY created_at ASC`, environmentID)
	if err != nil {
		return nil, fmt.Errorf("listing ec2 instances: %w", err)
	}
	defer rows.Close()

	var items []ec2InstanceRow
	for rows.Next() {
		var r ec2InstanceRow
		if err := rows.Scan(&r.ID, &r.EnvironmentID, &r.InstanceType, &r.PrivateIP, &r.PublicIP, &r.State, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ec2 instance: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
