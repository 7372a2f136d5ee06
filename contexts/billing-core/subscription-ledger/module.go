package subscriptionledger

import (
	"log/slog"

	httpadapter "tollgate/contexts/billing-core/subscription-ledger/adapters/http"
	"tollgate/contexts/billing-core/subscription-ledger/adapters/memory"
	"tollgate/contexts/billing-core/subscription-ledger/application"
	"tollgate/contexts/billing-core/subscription-ledger/ports"
	"tollgate/internal/shared/authz"
)

// Module is the subscription-ledger composition root exposed to runtime wiring.
type Module struct {
	Service  application.Service
	Handler  httpadapter.Handler
	Registry *authz.Registry
	Store    *memory.Store
}

// Dependencies captures all runtime ports/config required by NewModule.
type Dependencies struct {
	Repository ports.Repository
	Levels     authz.LevelStore
	Owner      string
	Clock      ports.Clock
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	registry := authz.NewRegistry(deps.Owner, deps.Levels, "billing-core/subscription-ledger", deps.Logger)
	service := application.Service{
		Repo:     deps.Repository,
		Registry: registry,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
	}
	return Module{
		Service:  service,
		Registry: registry,
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

// NewInMemoryModule builds a development/testing module with in-memory adapters.
func NewInMemoryModule(owner string, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository: store,
		Levels:     authz.NewMemoryLevels(),
		Owner:      owner,
		Clock:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
