package serviceinstance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afterdarksys/mockfactory/internal/apperr"
	"github.com/afterdarksys/mockfactory/pkg/environment"
	"github.com/afterdarksys/mockfactory/pkg/portalloc"
)

// ContainerState is the result of ContainerRuntime.Inspect (spec §4.2).
type ContainerState struct {
	Running   bool
	StartedAt time.Time
	ExitCode  int
}

// ContainerRuntime is the Container Runtime Adapter contract (spec §4.2, C2).
// Implemented by pkg/containerrt.Client.
type ContainerRuntime interface {
	Create(ctx context.Context, image string, env map[string]string, command []string, internalPort, hostPort int, labels map[string]string) (containerID string, err error)
	Start(ctx context.Context, containerID string) error
	Stop(ctx context.Context, containerID string, grace time.Duration) error
	Remove(ctx context.Context, containerID string, force bool) error
	Inspect(ctx context.Context, containerID string) (ContainerState, error)
	Exec(ctx context.Context, containerID string, argv []string) (stdout, stderr string, exitCode int, err error)
}

// ObjectStoreNamespaces is the namespace-management slice of the Object
// Store Adapter (spec §4.5 managed-backed flow, C3). Implemented by
// pkg/objectstore.Client.
type ObjectStoreNamespaces interface {
	CreateNamespace(ctx context.Context, name string) error
	DeleteNamespace(ctx context.Context, name string) error
}

// BaseDomainer supplies the base domain used to compose virtual hostnames
// for managed-backed services (spec §4.5 step 3).
type BaseDomainer interface {
	BaseDomain() string
}

// Service implements the Service Provisioner (spec §4.5, C6): it fulfils
// environment.Provisioner by driving both the container-backed and
// managed-backed flows per declared service, with rollback on partial
// failure.
type Service struct {
	pool             *pgxpool.Pool
	ports            *portalloc.Store
	runtime          ContainerRuntime
	objects          ObjectStoreNamespaces
	domain           BaseDomainer
	readinessTimeout time.Duration
	logger           *slog.Logger
}

// NewService creates a serviceinstance Service. readinessTimeout bounds the
// container-backed readiness poll (spec §4.5 step 5); 0 falls back to
// defaultReadinessTimeout.
func NewService(pool *pgxpool.Pool, ports *portalloc.Store, runtime ContainerRuntime, objects ObjectStoreNamespaces, domain BaseDomainer, readinessTimeout time.Duration, logger *slog.Logger) *Service {
	if readinessTimeout <= 0 {
		readinessTimeout = defaultReadinessTimeout
	}
	return &Service{
		pool:             pool,
		ports:            ports,
		runtime:          runtime,
		objects:          objects,
		domain:           domain,
		readinessTimeout: readinessTimeout,
		logger:           logger,
	}
}

// Provision fulfils environment.Provisioner: it provisions every declared
// service in order; on failure of service i, it tears down services 1..i-1
// in reverse creation order and surfaces ProvisioningFailure (spec §4.5).
func (s *Service) Provision(ctx context.Context, envID string, services []environment.ServiceDeclaration) ([]environment.EndpointDescriptor, error) {
	store := NewStore(s.pool)
	var created []Row

	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			if err := s.destroyOne(ctx, created[i]); err != nil {
				s.logger.Error("rollback teardown of service instance failed",
					"service_instance_id", created[i].ID, "error", err)
			}
		}
	}

	var endpoints []environment.EndpointDescriptor
	for _, decl := range services {
		row, err := s.provisionOne(ctx, envID, decl)
		if err != nil {
			rollback()
			return nil, fmt.Errorf("provisioning %s: %w", decl.Kind, err)
		}
		created = append(created, row)
		if err := store.SetState(ctx, row.ID, StateRunning); err != nil {
			rollback()
			return nil, fmt.Errorf("marking %s running: %w", decl.Kind, err)
		}
		row.State = StateRunning
		endpoints = append(endpoints, environment.EndpointDescriptor{
			ServiceKind: decl.Kind,
			Endpoint:    row.ToResponse().Endpoint,
		})
	}

	return endpoints, nil
}

func (s *Service) provisionOne(ctx context.Context, envID string, decl environment.ServiceDeclaration) (Row, error) {
	capab, ok := Lookup(decl.Kind)
	if !ok {
		return Row{}, apperr.New(apperr.InvalidRequest, fmt.Sprintf("unknown service kind %q", decl.Kind))
	}

	if capab.Backing == BackingManaged {
		return s.provisionManaged(ctx, envID, capab)
	}
	return s.provisionContainer(ctx, envID, capab)
}

func (s *Service) provisionContainer(ctx context.Context, envID string, capab Capability) (Row, error) {
	id := uuid.New()

	port, err := s.ports.Allocate(ctx, id)
	if err != nil {
		return Row{}, fmt.Errorf("leasing port: %w", err)
	}

	username, password := generateCredential()
	env := map[string]string{
		"POSTGRES_PASSWORD": password,
		"POSTGRES_USER":     username,
		"MYSQL_ROOT_PASSWORD": password,
		"REDIS_PASSWORD":      password,
		"MONGO_INITDB_ROOT_USERNAME": username,
		"MONGO_INITDB_ROOT_PASSWORD": password,
	}
	labels := map[string]string{"environment": envID, "service-kind": capab.Kind}

	containerID, err := s.runtime.Create(ctx, capab.Image, env, nil, capab.InternalPort, port, labels)
	if err != nil {
		_ = s.ports.Release(ctx, id)
		return Row{}, apperr.Wrap(apperr.ProvisioningFailure, "creating container", err)
	}

	if err := s.runtime.Start(ctx, containerID); err != nil {
		_ = s.runtime.Remove(ctx, containerID, true)
		_ = s.ports.Release(ctx, id)
		return Row{}, apperr.Wrap(apperr.ProvisioningFailure, "starting container", err)
	}

	if err := s.pollReadiness(ctx, containerID, capab); err != nil {
		_ = s.runtime.Stop(ctx, containerID, 0)
		_ = s.runtime.Remove(ctx, containerID, true)
		_ = s.ports.Release(ctx, id)
		return Row{}, apperr.Wrap(apperr.ProvisioningFailure, "readiness probe", err)
	}

	credentials := fmt.Sprintf("%s:%s", username, password)
	endpoint := connectionEndpoint(capab.Kind, "127.0.0.1", port, username, password)

	store := NewStore(s.pool)
	row, err := store.Create(ctx, CreateParams{
		ID:            id,
		EnvironmentID: envID,
		Kind:          capab.Kind,
		Backing:       BackingContainer,
		ContainerID:   &containerID,
		Port:          &port,
		Credentials:   credentials,
		Endpoint:      endpoint,
	})
	if err != nil {
		return Row{}, fmt.Errorf("persisting service instance: %w", err)
	}
	return row, nil
}

func (s *Service) provisionManaged(ctx context.Context, envID string, capab Capability) (Row, error) {
	id := uuid.New()
	namespace := fmt.Sprintf("mockfactory-%s-%s", envID, capab.Kind)

	if err := s.objects.CreateNamespace(ctx, namespace); err != nil {
		return Row{}, apperr.Wrap(apperr.ProvisioningFailure, "creating namespace", err)
	}

	_, token := generateCredential()
	endpoint := fmt.Sprintf("https://%s.%s.%s", capab.Kind, envID, s.domain.BaseDomain())

	store := NewStore(s.pool)
	row, err := store.Create(ctx, CreateParams{
		ID:            id,
		EnvironmentID: envID,
		Kind:          capab.Kind,
		Backing:       BackingManaged,
		Namespace:     &namespace,
		Credentials:   token,
		Endpoint:      endpoint,
	})
	if err != nil {
		_ = s.objects.DeleteNamespace(ctx, namespace)
		return Row{}, fmt.Errorf("persisting service instance: %w", err)
	}
	return row, nil
}

// pollReadiness polls a container-backed instance's readiness probe with
// linear backoff (waits of 1, 2, 3, ... times defaultReadinessInterval) up to
// s.readinessTimeout (spec §4.5 step 5).
func (s *Service) pollReadiness(ctx context.Context, containerID string, capab Capability) error {
	deadline := time.Now().Add(s.readinessTimeout)
	for attempt := 1; time.Now().Before(deadline); attempt++ {
		ready, err := s.probe(ctx, containerID, capab)
		if err == nil && ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * defaultReadinessInterval):
		}
	}
	return apperr.New(apperr.Timeout, "readiness probe timed out")
}

func (s *Service) probe(ctx context.Context, containerID string, capab Capability) (bool, error) {
	switch capab.Readiness {
	case ReadinessRedisPing:
		_, _, exit, err := s.runtime.Exec(ctx, containerID, []string{"redis-cli", "ping"})
		return err == nil && exit == 0, err
	case ReadinessPgIsReady:
		_, _, exit, err := s.runtime.Exec(ctx, containerID, []string{"pg_isready"})
		return err == nil && exit == 0, err
	default:
		state, err := s.runtime.Inspect(ctx, containerID)
		return err == nil && state.Running, err
	}
}

// Teardown fulfils environment.Provisioner: it destroys every service
// instance belonging to envID, in reverse creation order.
func (s *Service) Teardown(ctx context.Context, envID string) error {
	store := NewStore(s.pool)
	rows, err := store.ListByEnvironment(ctx, envID)
	if err != nil {
		return fmt.Errorf("listing service instances for teardown: %w", err)
	}

	var firstErr error
	for i := len(rows) - 1; i >= 0; i-- {
		if err := s.destroyOne(ctx, rows[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) destroyOne(ctx context.Context, row Row) error {
	store := NewStore(s.pool)

	if row.Backing == BackingContainer {
		if row.ContainerID != nil {
			if err := s.runtime.Stop(ctx, *row.ContainerID, 5*time.Second); err != nil {
				s.logger.Warn("stopping container during teardown", "container_id", *row.ContainerID, "error", err)
			}
			if err := s.runtime.Remove(ctx, *row.ContainerID, true); err != nil {
				s.logger.Warn("removing container during teardown", "container_id", *row.ContainerID, "error", err)
			}
		}
		if err := s.ports.Release(ctx, row.ID); err != nil {
			s.logger.Warn("releasing port during teardown", "service_instance_id", row.ID, "error", err)
		}
	} else if row.Namespace != nil {
		if err := s.objects.DeleteNamespace(ctx, *row.Namespace); err != nil {
			s.logger.Warn("deleting namespace during teardown", "namespace", *row.Namespace, "error", err)
		}
	}

	if err := store.SetState(ctx, row.ID, StateDestroyed); err != nil {
		return fmt.Errorf("marking service instance destroyed: %w", err)
	}
	return store.Delete(ctx, row.ID)
}

// StopAll fulfils environment.Provisioner: stops every container-backed
// service instance without destroying it (spec §4.3 RUNNING -> STOPPED).
func (s *Service) StopAll(ctx context.Context, envID string) error {
	store := NewStore(s.pool)
	rows, err := store.ListByEnvironment(ctx, envID)
	if err != nil {
		return fmt.Errorf("listing service instances to stop: %w", err)
	}

	for _, row := range rows {
		if row.Backing == BackingContainer && row.ContainerID != nil {
			if err := s.runtime.Stop(ctx, *row.ContainerID, 5*time.Second); err != nil {
				return apperr.Wrap(apperr.ProvisioningFailure, "stopping container", err)
			}
		}
		if err := store.SetState(ctx, row.ID, StateStopped); err != nil {
			return fmt.Errorf("marking service instance stopped: %w", err)
		}
	}
	return nil
}

// StartAll fulfils environment.Provisioner: restarts containers without
// recreating them, reusing the original port and credentials (spec §4.5
// restart semantics).
func (s *Service) StartAll(ctx context.Context, envID string) error {
	store := NewStore(s.pool)
	rows, err := store.ListByEnvironment(ctx, envID)
	if err != nil {
		return fmt.Errorf("listing service instances to start: %w", err)
	}

	for _, row := range rows {
		if row.Backing == BackingContainer && row.ContainerID != nil {
			if err := s.runtime.Start(ctx, *row.ContainerID); err != nil {
				return apperr.Wrap(apperr.ProvisioningFailure, "starting container", err)
			}
			capab, _ := Lookup(row.Kind)
			if err := s.pollReadiness(ctx, *row.ContainerID, capab); err != nil {
				return err
			}
		}
		if err := store.SetState(ctx, row.ID, StateRunning); err != nil {
			return fmt.Errorf("marking service instance running: %w", err)
		}
	}
	return nil
}

// List returns the service instances belonging to an environment, masked.
func (s *Service) List(ctx context.Context, envID string) ([]Response, error) {
	store := NewStore(s.pool)
	rows, err := store.ListByEnvironment(ctx, envID)
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalError, "listing service instances", err)
	}
	items := make([]Response, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToResponse())
	}
	return items, nil
}

func generateCredential() (username, secret string) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return "mockfactory", hex.EncodeToString(b)
}

func connectionEndpoint(kind, host string, port int, username, password string) string {
	switch {
	case kind == "redis" || kind == "elasticmq":
		return fmt.Sprintf("redis://:%s@%s:%d", password, host, port)
	case kind == "mongodb":
		return fmt.Sprintf("mongodb://%s:%s@%s:%d", username, password, host, port)
	case kind == "mysql":
		return fmt.Sprintf("mysql://%s:%s@%s:%d", username, password, host, port)
	default:
		return fmt.Sprintf("postgres://%s:%s@%s:%d", username, password, host, port)
	}
}
