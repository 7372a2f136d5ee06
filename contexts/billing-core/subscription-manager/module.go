package subscriptionmanager

import (
	"log/slog"

	httpadapter "tollgate/contexts/billing-core/subscription-manager/adapters/http"
	"tollgate/contexts/billing-core/subscription-manager/adapters/memory"
	"tollgate/contexts/billing-core/subscription-manager/application"
	"tollgate/contexts/billing-core/subscription-manager/ports"
	"tollgate/internal/shared/authz"
)

// Module is the subscription-manager composition root exposed to runtime
// wiring. The ledger binding is not part of Dependencies: the runtime calls
// Service.SetStore once both modules exist.
type Module struct {
	Service *application.Service
	Handler httpadapter.Handler
	Outbox  ports.OutboxRepository
	Store   *memory.Store
}

// Dependencies captures all runtime ports/config required by NewModule.
type Dependencies struct {
	Requests          ports.RequestRepository
	Vault             ports.FundsVault
	Settings          ports.SettingsStore
	Oracle            ports.OracleClient
	Outbox            ports.OutboxWriter
	Levels            authz.LevelStore
	Owner             string
	Principal         string
	RefundOnRejection bool
	Clock             ports.Clock
	IDGen             ports.IDGenerator
	Logger            *slog.Logger
}

func NewModule(deps Dependencies) Module {
	registry := authz.NewRegistry(deps.Owner, deps.Levels, "billing-core/subscription-manager", deps.Logger)
	service := &application.Service{
		Registry:          registry,
		Requests:          deps.Requests,
		Vault:             deps.Vault,
		Settings:          deps.Settings,
		Oracle:            deps.Oracle,
		Outbox:            deps.Outbox,
		Clock:             deps.Clock,
		IDGen:             deps.IDGen,
		Principal:         deps.Principal,
		RefundOnRejection: deps.RefundOnRejection,
		Logger:            deps.Logger,
	}
	return Module{
		Service: service,
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

// NewInMemoryModule builds a development/testing module with in-memory
// adapters, including a recording oracle client.
func NewInMemoryModule(owner string, principal string, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Requests:  store,
		Vault:     store,
		Settings:  store,
		Oracle:    store,
		Outbox:    store,
		Levels:    authz.NewMemoryLevels(),
		Owner:     owner,
		Principal: principal,
		Clock:     store,
		IDGen:     store,
		Logger:    logger,
	})
	module.Outbox = store
	module.Store = store
	return module
}
