package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/afterdarksys/mockfactory/pkg/serviceinstance"
)

// Run starts all three loops and blocks until ctx is cancelled (spec §4.9:
// three independent loops, single-instance).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"shutdown_interval", s.shutdownInterval,
		"port_gc_interval", s.portGCInterval,
		"purge_interval", s.purgeInterval,
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.runLoop(ctx, "auto-shutdown", s.shutdownInterval, s.autoShutdownTick) }()
	go func() { defer wg.Done(); s.runLoop(ctx, "port-gc", s.portGCInterval, s.portGCTick) }()
	go func() { defer wg.Done(); s.runLoop(ctx, "purge", s.purgeInterval, s.purgeTick) }()
	wg.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context, name string, interval time.Duration, tick func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "loop", name, "error", err)
			}
		}
	}
}

// autoShutdownTick stops every RUNNING environment whose idle time has
// reached its own auto-shutdown-after (spec §4.9 bullet 1, invariant P11).
func (s *Scheduler) autoShutdownTick(ctx context.Context) error {
	rows, err := s.envStore.ListRunningPastDeadline(ctx)
	if err != nil {
		return fmt.Errorf("listing environments past auto-shutdown deadline: %w", err)
	}

	for _, row := range rows {
		if _, err := s.envs.Stop(ctx, row.OwnerID, row.ID); err != nil {
			s.logger.Error("auto-shutdown stop failed", "environment_id", row.ID, "error", err)
			continue
		}
		s.logger.Info("auto-shutdown stopped idle environment", "environment_id", row.ID)
	}
	return nil
}

// portGCTick cross-checks every active, container-backed port allocation
// against both its owning service instance and the container runtime, and
// releases the port if either is gone (spec §4.9 bullet 2). An allocation
// whose service instance row no longer exists, or whose container the
// runtime no longer knows about, is orphaned: the provisioning/teardown flow
// that would have released it normally never ran to completion.
func (s *Scheduler) portGCTick(ctx context.Context) error {
	active, err := s.ports.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active port allocations: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	candidates, err := s.services.ListOrphanCandidates(ctx)
	if err != nil {
		return fmt.Errorf("listing service instance orphan candidates: %w", err)
	}
	byID := make(map[string]serviceinstance.Row, len(candidates))
	for _, row := range candidates {
		byID[row.ID.String()] = row
	}

	for _, alloc := range active {
		row, ok := byID[alloc.ServiceInstanceID.String()]
		if !ok {
			s.releasePort(ctx, alloc.Port, reasonInstanceGone)
			continue
		}
		if row.ContainerID == nil {
			continue // managed-backed (bucket) instance: no container to check
		}
		state, inspectErr := s.runtime.Inspect(ctx, *row.ContainerID)
		if release, reason := decidePortRelease(inspectErr, state); release {
			s.releasePort(ctx, alloc.Port, reason)
		}
	}
	return nil
}

const (
	reasonInstanceGone  = "service instance no longer exists"
	reasonUninspectable = "container no longer inspectable"
)

// decidePortRelease is the pure decision at the heart of portGCTick's inner
// loop, split out so it can be unit tested without a runtime or database.
// Ports survive STOPPED: a stopped container is not an absent one, so only
// a container the runtime can no longer find (inspectErr != nil) is
// orphaned here. A DESTROYED or missing service instance is filtered out
// by the caller's candidate lookup before this is even called.
func decidePortRelease(inspectErr error, state serviceinstance.ContainerState) (release bool, reason string) {
	if inspectErr != nil {
		return true, reasonUninspectable
	}
	return false, ""
}

func (s *Scheduler) releasePort(ctx context.Context, port int, reason string) {
	if err := s.ports.ReleaseOrphan(ctx, port); err != nil {
		s.logger.Error("releasing orphan port failed", "port", port, "error", err)
		return
	}
	s.logger.Info("released orphan port allocation", "port", port, "reason", reason)
}

// purgeTick destroys every environment whose auto-delete deadline has
// passed (spec §4.9 bullet 3).
func (s *Scheduler) purgeTick(ctx context.Context) error {
	rows, err := s.envStore.ListExpired(ctx)
	if err != nil {
		return fmt.Errorf("listing expired environments: %w", err)
	}

	for _, row := range rows {
		if err := s.envs.Destroy(ctx, row.OwnerID, row.ID); err != nil {
			s.logger.Error("purge destroy failed", "environment_id", row.ID, "error", err)
			continue
		}
		s.logger.Info("purged expired environment", "environment_id", row.ID)
	}
	return nil
}
