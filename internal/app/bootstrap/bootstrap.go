package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	subscriptionledger "tollgate/contexts/billing-core/subscription-ledger"
	ledgerpostgres "tollgate/contexts/billing-core/subscription-ledger/adapters/postgres"
	subscriptionmanager "tollgate/contexts/billing-core/subscription-manager"
	"tollgate/contexts/billing-core/subscription-manager/adapters/oracle"
	managerpostgres "tollgate/contexts/billing-core/subscription-manager/adapters/postgres"
	redisadapter "tollgate/contexts/billing-core/subscription-manager/adapters/redis"
	workerapp "tollgate/contexts/billing-core/subscription-manager/application/workers"
	managerports "tollgate/contexts/billing-core/subscription-manager/ports"
	"tollgate/internal/platform/config"
	"tollgate/internal/platform/db"
	"tollgate/internal/platform/httpserver"
	"tollgate/internal/platform/messaging"
	"tollgate/internal/platform/rediscache"
	"tollgate/internal/shared/authz"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	redis    *rediscache.Redis
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	redis        *rediscache.Redis
	outboxRelay  workerapp.OutboxRelay
	sweeper      workerapp.TimeoutSweeper
	enableRelay  bool
	enableSweep  bool
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	ledger, manager, pg, rd, err := buildModules(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(ledger, manager, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		redis:    rd,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	_, manager, pg, rd, err := buildModules(cfg, logger)
	if err != nil {
		return nil, err
	}

	bus, err := messaging.NewKafka(nil, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerApp{
		postgres: pg,
		redis:    rd,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    manager.Outbox,
			Publisher: bus,
			Clock:     managerpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		sweeper: workerapp.TimeoutSweeper{
			Service:   manager.Service,
			TTL:       cfg.VerificationTTL,
			BatchSize: 100,
			Logger:    logger,
		},
		enableRelay:  cfg.EnableOutboxRelay,
		enableSweep:  cfg.EnableTimeoutSweeper,
		pollInterval: cfg.WorkerInterval,
		logger:       logger,
	}, nil
}

// buildModules wires both billing-core modules against postgres, optionally
// moving verification request state to redis, then grants the manager
// principal ledger write access and binds the ledger into the manager.
func buildModules(
	cfg config.Config,
	logger *slog.Logger,
) (subscriptionledger.Module, subscriptionmanager.Module, *db.Postgres, *rediscache.Redis, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return subscriptionledger.Module{}, subscriptionmanager.Module{}, nil, nil, errors.New("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := db.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return subscriptionledger.Module{}, subscriptionmanager.Module{}, nil, nil, err
	}

	ledger := subscriptionledger.NewModule(subscriptionledger.Dependencies{
		Repository: ledgerpostgres.NewRepository(pg.DB, logger),
		Levels:     authz.NewGormLevels(pg.DB, "billing-core/subscription-ledger"),
		Owner:      cfg.OwnerPrincipal,
		Clock:      ledgerpostgres.SystemClock{},
		Logger:     logger,
	})

	repo := managerpostgres.NewRepository(pg.DB, logger)
	var requests managerports.RequestRepository = repo
	var rd *rediscache.Redis
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rd, err = rediscache.Connect(cfg.RedisAddr)
		if err != nil {
			_ = pg.Close()
			return subscriptionledger.Module{}, subscriptionmanager.Module{}, nil, nil, err
		}
		requests = redisadapter.NewRequestStore(rd.Client, logger)
	}

	manager := subscriptionmanager.NewModule(subscriptionmanager.Dependencies{
		Requests:          requests,
		Vault:             repo,
		Settings:          repo,
		Oracle:            oracle.NewClient(cfg.OracleURL, nil, logger),
		Outbox:            repo,
		Levels:            authz.NewGormLevels(pg.DB, "billing-core/subscription-manager"),
		Owner:             cfg.OwnerPrincipal,
		Principal:         cfg.ManagerPrincipal,
		RefundOnRejection: cfg.RefundOnRejection,
		Clock:             managerpostgres.SystemClock{},
		IDGen:             managerpostgres.UUIDGenerator{},
		Logger:            logger,
	})
	manager.Outbox = repo

	if err := ledger.Service.Authorize(ctx, cfg.OwnerPrincipal, cfg.ManagerPrincipal, authz.RoleLedgerWriter); err != nil {
		closeAll(pg, rd)
		return subscriptionledger.Module{}, subscriptionmanager.Module{}, nil, nil, err
	}
	if err := manager.Service.SetStore(ctx, cfg.OwnerPrincipal, ledger.Service); err != nil {
		closeAll(pg, rd)
		return subscriptionledger.Module{}, subscriptionmanager.Module{}, nil, nil, err
	}
	if err := manager.Service.Authorize(ctx, cfg.OwnerPrincipal, cfg.OraclePrincipal, authz.RoleOracle); err != nil {
		closeAll(pg, rd)
		return subscriptionledger.Module{}, subscriptionmanager.Module{}, nil, nil, err
	}
	if endpoint := strings.TrimSpace(cfg.CallbackEndpoint); endpoint != "" {
		if err := manager.Service.Settings.SetEndpoint(ctx, endpoint); err != nil {
			closeAll(pg, rd)
			return subscriptionledger.Module{}, subscriptionmanager.Module{}, nil, nil, err
		}
	}
	return ledger, manager, pg, rd, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	closeAll(a.postgres, a.redis)
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"outbox_relay", w.enableRelay,
		"timeout_sweeper", w.enableSweep,
	)

	for {
		if w.enableSweep {
			if err := w.sweeper.RunOnce(ctx); err != nil {
				return err
			}
		}
		if w.enableRelay {
			if err := w.outboxRelay.RunOnce(ctx); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	closeAll(w.postgres, w.redis)
	return nil
}

func closeAll(pg *db.Postgres, rd *rediscache.Redis) {
	if pg != nil {
		_ = pg.Close()
	}
	if rd != nil {
		_ = rd.Close()
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
