// Package app wires configuration, infrastructure, and domain services into
// the two runtime modes: the HTTP API and the background worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/afterdarksys/mockfactory/internal/activitylog"
	"github.com/afterdarksys/mockfactory/internal/authctx"
	"github.com/afterdarksys/mockfactory/internal/cache"
	"github.com/afterdarksys/mockfactory/internal/config"
	"github.com/afterdarksys/mockfactory/internal/dbpool"
	"github.com/afterdarksys/mockfactory/internal/httpserver"
	"github.com/afterdarksys/mockfactory/internal/telemetry"
	"github.com/afterdarksys/mockfactory/pkg/containerrt"
	"github.com/afterdarksys/mockfactory/pkg/dnsrecord"
	"github.com/afterdarksys/mockfactory/pkg/emulation"
	"github.com/afterdarksys/mockfactory/pkg/environment"
	"github.com/afterdarksys/mockfactory/pkg/metering"
	"github.com/afterdarksys/mockfactory/pkg/objectstore"
	"github.com/afterdarksys/mockfactory/pkg/portalloc"
	"github.com/afterdarksys/mockfactory/pkg/scheduler"
	"github.com/afterdarksys/mockfactory/pkg/serviceinstance"
	"github.com/afterdarksys/mockfactory/pkg/user"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting mockfactoryd",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, "mockfactoryd", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := dbpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := dbpool.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// baseDomainAdapter exposes config.Config's BaseDomain field as the
// BaseDomain() method serviceinstance.BaseDomainer requires. A method
// cannot share a name with a field on the same type, so config.Config
// itself cannot implement the interface directly.
type baseDomainAdapter struct {
	domain string
}

func (b baseDomainAdapter) BaseDomain() string {
	return b.domain
}

// buildEnvironment wires the environment lifecycle service and everything
// it depends on (ports, container runtime, object store, metering). Shared
// between api and worker mode since both need environment state transitions.
func buildEnvironment(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, activity *activitylog.Writer, logger *slog.Logger) (*environment.Service, *metering.Service, *containerrt.Client, *objectstore.Client, error) {
	ports := portalloc.NewStore(db, cfg.PortRangeMin, cfg.PortRangeMax)

	runtime, err := containerrt.New()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connecting to container runtime: %w", err)
	}

	objects, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:        cfg.ObjectStoreEndpoint,
		Region:          cfg.ObjectStoreRegion,
		AccessKeyID:     cfg.ObjectStoreAccessKey,
		SecretAccessKey: cfg.ObjectStoreSecretKey,
		UsePathStyle:    true,
	})
	if err != nil {
		runtime.Close()
		return nil, nil, nil, nil, fmt.Errorf("connecting to object store: %w", err)
	}

	domain := baseDomainAdapter{domain: cfg.BaseDomain}
	instances := serviceinstance.NewService(db, ports, runtime, objects, domain, cfg.ReadinessTimeout, logger)
	meter := metering.NewService(db, logger, cfg.MeteringReconcileInterval)
	rates := serviceinstance.CapabilityRateTable{}

	envs := environment.NewService(db, instances, meter, rates, activity, cfg.ProvisioningTimeout, logger)
	return envs, meter, runtime, objects, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	activityWriter := activitylog.NewWriter(db, logger)
	activityWriter.Start(ctx)
	defer activityWriter.Close()

	userSvc := user.NewService(db, logger)
	authenticator := authctx.NewAuthenticator(userSvc)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, authenticator)

	envs, _, runtime, objects, err := buildEnvironment(ctx, cfg, db, activityWriter, logger)
	if err != nil {
		return err
	}
	defer runtime.Close()

	dnsSvc := dnsrecord.NewService(db, envs, logger)
	dnsHandler := dnsrecord.NewHandler(dnsSvc, logger)

	emulationRouter := emulation.New(db, envs, runtime, objects, dnsSvc, cfg.LambdaConcurrencyLimit, logger)
	envs.SetOnDestroyed(emulationRouter.PurgeEnvironment)

	userHandler := user.NewHandler(db, logger, activityWriter)
	envHandler := environment.NewHandler(envs, logger)

	srv.APIRouter.Mount("/users", userHandler.Routes())
	srv.APIRouter.Mount("/environments", envHandler.Routes())
	srv.APIRouter.Mount("/environments/{environmentID}/dns-records", dnsHandler.Routes())
	srv.APIRouter.Mount("/emulation", emulationRouter.Routes())

	if cfg.DNSResponderEnabled {
		port, err := dnsResponderPort(cfg.DNSResponderAddr)
		if err != nil {
			return fmt.Errorf("parsing DNS responder address: %w", err)
		}
		responder := dnsrecord.NewResponder(db, logger)
		go func() {
			if err := responder.Run(ctx, port); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("dns responder stopped", "error", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, metricsReg *prometheus.Registry) error {
	logger.Info("worker started")

	envs, meter, runtime, _, err := buildEnvironment(ctx, cfg, db, nil, logger)
	if err != nil {
		return err
	}
	defer runtime.Close()

	envStore := environment.NewStore(db)
	ports := portalloc.NewStore(db, cfg.PortRangeMin, cfg.PortRangeMax)
	serviceStore := serviceinstance.NewStore(db)

	sched := scheduler.New(envs, envStore, ports, serviceStore, runtime, logger, scheduler.Config{
		ShutdownInterval: cfg.AutoShutdownInterval,
		PortGCInterval:   cfg.PortGCInterval,
		PurgeInterval:    cfg.PurgeInterval,
	})

	go func() {
		if err := meter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("metering reconciliation loop stopped", "error", err)
		}
	}()

	return sched.Run(ctx)
}

// dnsResponderPort extracts the numeric port from a "host:port" listen
// address (e.g. ":5353") for dnsrecord.Responder.Run, which binds by port
// number rather than by address string.
func dnsResponderPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return port, nil
}
