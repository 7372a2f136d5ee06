package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	ledgererrors "tollgate/contexts/billing-core/subscription-ledger/domain/errors"
	ledgerhttp "tollgate/contexts/billing-core/subscription-ledger/transport/http"
	"tollgate/internal/shared/authz"
)

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	subscriber := r.PathValue("subscriber")
	resp, err := s.ledger.Handler.GetSubscriptionHandler(r.Context(), subscriber)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerAuthorize(w http.ResponseWriter, r *http.Request) {
	actor := strings.TrimSpace(r.Header.Get(principalHeader))
	if actor == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_principal", "X-Principal-Id header is required")
		return
	}

	var req ledgerhttp.AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.AuthorizeHandler(r.Context(), actor, req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedgerAuthorized(w http.ResponseWriter, r *http.Request) {
	principal := r.PathValue("principal")
	resp, err := s.ledger.Handler.AuthorizedHandler(r.Context(), principal)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeLedgerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrUnauthorized):
		writeLedgerError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, authz.ErrInvalidPrincipal),
		errors.Is(err, authz.ErrInvalidRole),
		errors.Is(err, ledgererrors.ErrInvalidSubscriber),
		errors.Is(err, ledgererrors.ErrInvalidTransactionID),
		errors.Is(err, ledgererrors.ErrInvalidTier):
		writeLedgerError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeLedgerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeLedgerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
