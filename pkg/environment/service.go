package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afterdarksys/mockfactory/internal/activitylog"
	"github.com/afterdarksys/mockfactory/internal/apperr"
	"github.com/afterdarksys/mockfactory/internal/dbpool"
)

// Provisioner is the Service Provisioner (C6) contract Service depends on.
// Implemented by pkg/serviceinstance.Service. Kept as an interface here so
// environment has no import-time dependency on container/object-store
// adapters.
type Provisioner interface {
	Provision(ctx context.Context, envID string, services []ServiceDeclaration) ([]EndpointDescriptor, error)
	Teardown(ctx context.Context, envID string) error
	StartAll(ctx context.Context, envID string) error
	StopAll(ctx context.Context, envID string) error
}

// Metering is the billing-accrual contract (C9) Service depends on.
type Metering interface {
	OpenInterval(ctx context.Context, envID string, hourlyRate float64) error
	CloseInterval(ctx context.Context, envID string) (cost float64, err error)
}

// RateTable resolves the hourly rate contribution of one declared service.
type RateTable interface {
	HourlyRate(kind string) float64
}

const (
	defaultAutoShutdown      = 4 * time.Hour
	defaultProvisioningTimeout = 120 * time.Second
)

// Service encapsulates environment lifecycle business logic (spec §4.3).
type Service struct {
	pool                *pgxpool.Pool
	provisioner         Provisioner
	metering            Metering
	rates               RateTable
	activity            *activitylog.Writer
	logger              *slog.Logger
	onDestroyed         func(environmentID string)
	provisioningTimeout time.Duration
}

// SetOnDestroyed registers a hook invoked after an environment is fully
// destroyed. Used to purge state with no foreign key to cascade from (the
// cloud-emulation router's in-memory IAM resources) without giving this
// package an import-time dependency on pkg/emulation.
func (s *Service) SetOnDestroyed(hook func(environmentID string)) {
	s.onDestroyed = hook
}

// NewService creates an environment Service. provisioningTimeout bounds how
// long Create waits on the Provisioner before treating provisioning as
// failed (spec §4.3/§4.5); 0 falls back to defaultProvisioningTimeout.
func NewService(pool *pgxpool.Pool, provisioner Provisioner, metering Metering, rates RateTable, activity *activitylog.Writer, provisioningTimeout time.Duration, logger *slog.Logger) *Service {
	if provisioningTimeout <= 0 {
		provisioningTimeout = defaultProvisioningTimeout
	}
	return &Service{
		pool:                pool,
		provisioner:         provisioner,
		metering:            metering,
		rates:               rates,
		activity:            activity,
		logger:              logger,
		provisioningTimeout: provisioningTimeout,
	}
}

// Create inserts a CREATED environment, then drives it through
// provision() -> PROVISIONING -> RUNNING (or ERROR with best-effort rollback
// on provisioning failure), per the spec §4.3 transition table.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req CreateRequest) (CreateResponse, error) {
	autoShutdown := defaultAutoShutdown
	if req.AutoShutdownHours > 0 {
		autoShutdown = time.Duration(req.AutoShutdownHours * float64(time.Hour))
	}

	var rate float64
	for _, svc := range req.Services {
		rate += s.rates.HourlyRate(svc.Kind)
	}

	id := NewID()
	var row Row
	err := dbpool.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)
		var err error
		row, err = store.Create(ctx, CreateParams{
			ID:                  id,
			OwnerID:             ownerID,
			DisplayName:         req.Name,
			Services:            req.Services,
			AutoShutdownSeconds: int64(autoShutdown.Seconds()),
			HourlyRate:          rate,
		})
		if err != nil {
			return fmt.Errorf("inserting environment: %w", err)
		}
		return store.SetState(ctx, id, StateProvisioning)
	})
	if err != nil {
		return CreateResponse{}, apperr.Wrap(apperr.InternalError, "creating environment", err)
	}
	row.State = StateProvisioning
	s.logActivity(id, "environment.provision_started", nil)

	provisionCtx, cancel := context.WithTimeout(ctx, s.provisioningTimeout)
	endpoints, provErr := s.provisioner.Provision(provisionCtx, id, req.Services)
	cancel()
	if provErr != nil {
		s.logger.Error("provisioning failed, rolling back", "environment_id", id, "error", provErr)
		if teardownErr := s.provisioner.Teardown(ctx, id); teardownErr != nil {
			s.logger.Error("rollback teardown failed", "environment_id", id, "error", teardownErr)
		}
		if setErr := s.withStore(ctx, func(store *Store) error {
			return store.SetState(ctx, id, StateError)
		}); setErr != nil {
			s.logger.Error("marking environment ERROR failed", "environment_id", id, "error", setErr)
		}
		s.logActivity(id, "environment.provision_failed", nil)
		return CreateResponse{}, apperr.Wrap(apperr.ProvisioningFailure, "provisioning environment", provErr)
	}

	err = dbpool.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)
		if err := store.SetState(ctx, id, StateRunning); err != nil {
			return err
		}
		return s.metering.OpenInterval(ctx, id, rate)
	})
	if err != nil {
		return CreateResponse{}, apperr.Wrap(apperr.InternalError, "activating environment", err)
	}

	final, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return CreateResponse{}, err
	}
	s.logActivity(id, "environment.running", nil)

	return CreateResponse{Response: final, Endpoints: endpoints}, nil
}

// Get returns an environment owned by ownerID, or NotFound otherwise
// (cross-user reads never distinguish "exists but not yours" from "absent",
// per spec §8 P2/S5).
func (s *Service) Get(ctx context.Context, ownerID uuid.UUID, id string) (Response, error) {
	store := NewStore(s.pool)
	row, err := store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Response{}, apperr.New(apperr.NotFound, "environment not found")
		}
		return Response{}, apperr.Wrap(apperr.InternalError, "getting environment", err)
	}
	if row.OwnerID != ownerID {
		return Response{}, apperr.New(apperr.NotFound, "environment not found")
	}
	return row.ToResponse(), nil
}

// List returns environments owned by ownerID, optionally filtered by state.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, state State) ([]Response, error) {
	store := NewStore(s.pool)
	rows, err := store.List(ctx, ListFilters{OwnerID: ownerID, State: state})
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "listing environments", err)
	}
	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

// Stop transitions RUNNING -> STOPPED: stop containers, close the open
// UsageInterval, stamp stopped-at (spec §4.3).
func (s *Service) Stop(ctx context.Context, ownerID uuid.UUID, id string) (Response, error) {
	row, err := s.lockOwned(ctx, ownerID, id)
	if err != nil {
		return Response{}, err
	}
	if row.State != StateRunning {
		return Response{}, apperr.New(apperr.Conflict, fmt.Sprintf("cannot stop environment in state %s", row.State))
	}

	if err := s.provisioner.StopAll(ctx, id); err != nil {
		return Response{}, apperr.Wrap(apperr.ProvisioningFailure, "stopping services", err)
	}

	cost, err := s.metering.CloseInterval(ctx, id)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.InternalError, "closing usage interval", err)
	}

	err = dbpool.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)
		if err := store.AddRunningCost(ctx, id, cost); err != nil {
			return err
		}
		return store.SetState(ctx, id, StateStopped)
	})
	if err != nil {
		return Response{}, apperr.Wrap(apperr.InternalError, "stopping environment", err)
	}
	s.logActivity(id, "environment.stopped", nil)

	return s.Get(ctx, ownerID, id)
}

// Start transitions STOPPED -> PROVISIONING -> RUNNING, reusing the original
// ports, credentials, and namespaces (spec §4.3, §4.5 restart semantics;
// start() never reallocates or rotates — see the Open Question decision in
// SPEC_FULL.md).
func (s *Service) Start(ctx context.Context, ownerID uuid.UUID, id string) (Response, error) {
	row, err := s.lockOwned(ctx, ownerID, id)
	if err != nil {
		return Response{}, err
	}
	if row.State != StateStopped {
		return Response{}, apperr.New(apperr.Conflict, fmt.Sprintf("cannot start environment in state %s", row.State))
	}

	if err := s.withStore(ctx, func(store *Store) error {
		return store.SetState(ctx, id, StateProvisioning)
	}); err != nil {
		return Response{}, apperr.Wrap(apperr.InternalError, "transitioning to provisioning", err)
	}

	if err := s.provisioner.StartAll(ctx, id); err != nil {
		if setErr := s.withStore(ctx, func(store *Store) error {
			return store.SetState(ctx, id, StateError)
		}); setErr != nil {
			s.logger.Error("marking environment ERROR failed", "environment_id", id, "error", setErr)
		}
		return Response{}, apperr.Wrap(apperr.ProvisioningFailure, "restarting services", err)
	}

	err = dbpool.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)
		if err := store.SetState(ctx, id, StateRunning); err != nil {
			return err
		}
		return s.metering.OpenInterval(ctx, id, row.HourlyRate)
	})
	if err != nil {
		return Response{}, apperr.Wrap(apperr.InternalError, "starting environment", err)
	}
	s.logActivity(id, "environment.started", nil)

	return s.Get(ctx, ownerID, id)
}

// Destroy transitions RUNNING/STOPPED/ERROR -> DESTROYING -> DESTROYED.
// Idempotent: calling it again on an already-DESTROYED environment is a
// successful no-op (spec §4.3 Rules, §8 P6).
func (s *Service) Destroy(ctx context.Context, ownerID uuid.UUID, id string) error {
	row, err := s.lockOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if row.State == StateDestroyed {
		return nil
	}
	if row.State == StateDestroying {
		return nil
	}

	var closeCost float64
	if row.State == StateRunning {
		closeCost, err = s.metering.CloseInterval(ctx, id)
		if err != nil {
			return apperr.Wrap(apperr.InternalError, "closing usage interval", err)
		}
	}

	if err := s.withStore(ctx, func(store *Store) error {
		if row.State == StateRunning {
			if err := store.AddRunningCost(ctx, id, closeCost); err != nil {
				return err
			}
		}
		return store.SetState(ctx, id, StateDestroying)
	}); err != nil {
		return apperr.Wrap(apperr.InternalError, "transitioning to destroying", err)
	}

	if err := s.provisioner.Teardown(ctx, id); err != nil {
		s.logger.Error("teardown during destroy failed, environment left in DESTROYING", "environment_id", id, "error", err)
		return apperr.Wrap(apperr.ProvisioningFailure, "destroying environment", err)
	}

	if err := s.withStore(ctx, func(store *Store) error {
		return store.SetState(ctx, id, StateDestroyed)
	}); err != nil {
		return apperr.Wrap(apperr.InternalError, "marking destroyed", err)
	}
	s.logActivity(id, "environment.destroyed", nil)

	if s.onDestroyed != nil {
		s.onDestroyed(id)
	}

	return nil
}

// SetHostname assigns a custom hostname to the environment.
func (s *Service) SetHostname(ctx context.Context, ownerID uuid.UUID, id, hostname string) (Response, error) {
	if _, err := s.lockOwned(ctx, ownerID, id); err != nil {
		return Response{}, err
	}

	err := s.withStore(ctx, func(store *Store) error {
		if err := store.SetHostname(ctx, id, hostname); err != nil {
			var pgErr interface{ SQLState() string }
			if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
				return apperr.New(apperr.Conflict, "hostname already in use")
			}
			return err
		}
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return Response{}, err
		}
		return Response{}, apperr.Wrap(apperr.InternalError, "setting hostname", err)
	}

	return s.Get(ctx, ownerID, id)
}

// TouchActivity bumps last-activity, called by the emulation router on
// every request that passes its ownership check, before the family
// translator runs (spec §4.6).
func (s *Service) TouchActivity(ctx context.Context, id string) error {
	return s.withStore(ctx, func(store *Store) error {
		return store.TouchActivity(ctx, id)
	})
}

// lockOwned locks the environment row for the lifetime of a single-statement
// transaction and verifies ownership, serializing concurrent lifecycle
// mutations per environment (spec §5).
func (s *Service) lockOwned(ctx context.Context, ownerID uuid.UUID, id string) (Row, error) {
	var row Row
	err := dbpool.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)
		var err error
		row, err = store.GetForUpdate(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, apperr.New(apperr.NotFound, "environment not found")
		}
		return Row{}, apperr.Wrap(apperr.InternalError, "locking environment", err)
	}
	if row.OwnerID != ownerID {
		return Row{}, apperr.New(apperr.NotFound, "environment not found")
	}
	return row, nil
}

func (s *Service) withStore(ctx context.Context, fn func(store *Store) error) error {
	return dbpool.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(NewStore(tx))
	})
}

func (s *Service) logActivity(id, action string, detail []byte) {
	if s.activity == nil {
		return
	}
	s.activity.Log(uuidFromEnvID(id), action, detail)
}

// uuidFromEnvID derives a deterministic UUID from an environment's opaque
// token so activitylog (keyed by uuid.UUID) can still reference it.
func uuidFromEnvID(id string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
}
