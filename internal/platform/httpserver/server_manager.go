package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	ledgererrors "tollgate/contexts/billing-core/subscription-ledger/domain/errors"
	managererrors "tollgate/contexts/billing-core/subscription-manager/domain/errors"
	managerhttp "tollgate/contexts/billing-core/subscription-manager/transport/http"
	"tollgate/internal/shared/authz"
)

func (s *Server) handleVerifySubscription(w http.ResponseWriter, r *http.Request) {
	var req managerhttp.VerifySubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeManagerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.manager.Handler.VerifySubscriptionHandler(r.Context(), req)
	if err != nil {
		writeManagerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")
	resp, found, err := s.manager.Handler.GetRequestHandler(r.Context(), requestID)
	if err != nil {
		writeManagerDomainError(w, err)
		return
	}
	if !found {
		writeManagerError(w, http.StatusNotFound, "request_not_found", "verification request not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOracleCallback(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req managerhttp.OracleCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeManagerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.manager.Handler.OracleCallbackHandler(r.Context(), actor, req)
	if err != nil {
		writeManagerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetBeneficiary(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req managerhttp.SetBeneficiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeManagerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.manager.Handler.SetBeneficiaryHandler(r.Context(), actor, req)
	if err != nil {
		writeManagerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	resp, err := s.manager.Handler.WithdrawHandler(r.Context(), actor)
	if err != nil {
		writeManagerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForceSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req managerhttp.ForceSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeManagerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.manager.Handler.ForceSubscriptionHandler(r.Context(), actor, req)
	if err != nil {
		writeManagerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChangeEndpoint(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req managerhttp.ChangeEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeManagerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.manager.Handler.ChangeEndpointHandler(r.Context(), actor, req)
	if err != nil {
		writeManagerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleManagerAuthorize(w http.ResponseWriter, r *http.Request) {
	actor, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req managerhttp.AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeManagerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.manager.Handler.AuthorizeHandler(r.Context(), actor, req)
	if err != nil {
		writeManagerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleManagerAuthorized(w http.ResponseWriter, r *http.Request) {
	principal := r.PathValue("principal")
	resp, err := s.manager.Handler.AuthorizedHandler(r.Context(), principal)
	if err != nil {
		writeManagerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(principalHeader))
	if actor == "" {
		writeManagerError(w, http.StatusUnauthorized, "missing_principal", "X-Principal-Id header is required")
		return "", false
	}
	return actor, true
}

func writeManagerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrUnauthorized):
		writeManagerError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, managererrors.ErrStoreNotSet):
		writeManagerError(w, http.StatusConflict, "store_not_set", err.Error())
	case errors.Is(err, managererrors.ErrInsufficientPayment):
		writeManagerError(w, http.StatusPaymentRequired, "insufficient_payment", err.Error())
	case errors.Is(err, managererrors.ErrBeneficiaryNotSet):
		writeManagerError(w, http.StatusConflict, "beneficiary_not_set", err.Error())
	case errors.Is(err, managererrors.ErrDuplicateTransaction):
		writeManagerError(w, http.StatusConflict, "duplicate_transaction", err.Error())
	case errors.Is(err, managererrors.ErrInvalidRequest),
		errors.Is(err, managererrors.ErrInvalidEndpoint),
		errors.Is(err, ledgererrors.ErrInvalidTier),
		errors.Is(err, authz.ErrInvalidPrincipal),
		errors.Is(err, authz.ErrInvalidRole):
		writeManagerError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeManagerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeManagerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, managerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
