// Package scheduler implements Background Schedulers (spec §4.9, C10): three
// independent fixed-interval loops that keep Environment state converged with
// reality — stopping idle environments, reclaiming orphaned port leases, and
// purging expired environments. None require leader election; the control
// plane assumes at most one running scheduler per deployment.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/afterdarksys/mockfactory/pkg/environment"
	"github.com/afterdarksys/mockfactory/pkg/portalloc"
	"github.com/afterdarksys/mockfactory/pkg/serviceinstance"
)

// ContainerRuntime is the slice of serviceinstance.ContainerRuntime the
// port-GC loop needs to cross-check a container-backed allocation against
// the runtime. Implemented by pkg/containerrt.Client.
type ContainerRuntime interface {
	Inspect(ctx context.Context, containerID string) (serviceinstance.ContainerState, error)
}

// Scheduler owns the three background loops. Each is started independently
// by Run and stops when ctx is cancelled.
type Scheduler struct {
	envs     *environment.Service
	envStore *environment.Store
	ports    *portalloc.Store
	services *serviceinstance.Store
	runtime  ContainerRuntime
	logger   *slog.Logger

	shutdownInterval time.Duration
	portGCInterval   time.Duration
	purgeInterval    time.Duration
}

// Config bundles the three loop periods (spec §4.9: 15m, 10m, 1h defaults).
type Config struct {
	ShutdownInterval time.Duration
	PortGCInterval   time.Duration
	PurgeInterval    time.Duration
}

// New creates a Scheduler. envStore and services are given their own
// (non-transactional) Store handles since each loop does its own direct
// reads outside of any request transaction.
func New(envs *environment.Service, envStore *environment.Store, ports *portalloc.Store, services *serviceinstance.Store, runtime ContainerRuntime, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.ShutdownInterval <= 0 {
		cfg.ShutdownInterval = 15 * time.Minute
	}
	if cfg.PortGCInterval <= 0 {
		cfg.PortGCInterval = 10 * time.Minute
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = time.Hour
	}
	return &Scheduler{
		envs:             envs,
		envStore:         envStore,
		ports:            ports,
		services:         services,
		runtime:          runtime,
		logger:           logger,
		shutdownInterval: cfg.ShutdownInterval,
		portGCInterval:   cfg.PortGCInterval,
		purgeInterval:    cfg.PurgeInterval,
	}
}
