package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	subscriptionledger "tollgate/contexts/billing-core/subscription-ledger"
	subscriptionmanager "tollgate/contexts/billing-core/subscription-manager"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "tollgate/internal/platform/httpserver/docs"
)

const principalHeader = "X-Principal-Id"

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	ledger  subscriptionledger.Module
	manager subscriptionmanager.Module
}

func New(
	ledger subscriptionledger.Module,
	manager subscriptionmanager.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		ledger:  ledger,
		manager: manager,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the route table for in-process testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /api/ledger/v1/subscriptions/{subscriber}", s.handleGetSubscription)
	s.mux.HandleFunc("POST /api/ledger/v1/authorize", s.handleLedgerAuthorize)
	s.mux.HandleFunc("GET /api/ledger/v1/principals/{principal}/role", s.handleLedgerAuthorized)

	s.mux.HandleFunc("POST /api/manager/v1/verifications", s.handleVerifySubscription)
	s.mux.HandleFunc("GET /api/manager/v1/verifications/{request_id}", s.handleGetVerification)
	s.mux.HandleFunc("POST /api/manager/v1/oracle/callback", s.handleOracleCallback)
	s.mux.HandleFunc("PUT /api/manager/v1/beneficiary", s.handleSetBeneficiary)
	s.mux.HandleFunc("POST /api/manager/v1/withdrawals", s.handleWithdraw)
	s.mux.HandleFunc("POST /api/manager/v1/subscriptions/force", s.handleForceSubscription)
	s.mux.HandleFunc("PUT /api/manager/v1/oracle/endpoint", s.handleChangeEndpoint)
	s.mux.HandleFunc("POST /api/manager/v1/authorize", s.handleManagerAuthorize)
	s.mux.HandleFunc("GET /api/manager/v1/principals/{principal}/role", s.handleManagerAuthorized)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
