package metering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afterdarksys/mockfactory/pkg/environment"
)

// Service implements environment.Metering and runs the hourly reconciliation
// loop (spec §4.8, C9).
type Service struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	interval time.Duration
}

// NewService creates a metering Service. interval is the reconciliation loop
// period (default 1h per spec §4.8).
func NewService(pool *pgxpool.Pool, logger *slog.Logger, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{pool: pool, logger: logger, interval: interval}
}

var _ environment.Metering = (*Service)(nil)

// OpenInterval fulfils environment.Metering: opens a UsageInterval at the
// given hourly rate.
func (s *Service) OpenInterval(ctx context.Context, envID string, hourlyRate float64) error {
	store := NewStore(s.pool)
	return store.OpenInterval(ctx, envID, hourlyRate)
}

// CloseInterval fulfils environment.Metering: closes the environment's open
// interval and returns its computed cost.
func (s *Service) CloseInterval(ctx context.Context, envID string) (float64, error) {
	store := NewStore(s.pool)
	return store.CloseInterval(ctx, envID)
}

// RunningCost returns the summed cost of an environment's closed usage
// intervals. The open interval, if any, has no cost until it is closed and
// is not counted. Response.RunningCost is read from the environment row's
// running_cost column, not from here.
func (s *Service) RunningCost(ctx context.Context, envID string) (float64, error) {
	store := NewStore(s.pool)
	return store.SumCost(ctx, envID)
}

// Run starts the reconciliation loop: every interval, any open UsageInterval
// older than one hour is split at the hour boundary (spec §4.8). It blocks
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("metering reconciliation loop started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("metering reconciliation loop stopped")
			return nil
		case <-ticker.C:
			if err := s.reconcile(ctx); err != nil {
				s.logger.Error("metering reconciliation tick", "error", err)
			}
		}
	}
}

func (s *Service) reconcile(ctx context.Context) error {
	store := NewStore(s.pool)
	rows, err := store.ListOpenOlderThan(ctx, time.Hour)
	if err != nil {
		return fmt.Errorf("listing long-open usage intervals: %w", err)
	}

	for _, row := range rows {
		if err := store.SplitAtHourBoundary(ctx, row); err != nil {
			s.logger.Error("splitting usage interval at hour boundary",
				"environment_id", row.EnvironmentID, "error", err)
			continue
		}
		s.logger.Debug("split long-open usage interval", "environment_id", row.EnvironmentID)
	}
	return nil
}
