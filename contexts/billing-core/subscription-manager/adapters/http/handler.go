package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	ledgerentities "tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	"tollgate/contexts/billing-core/subscription-manager/application"
	"tollgate/contexts/billing-core/subscription-manager/domain/entities"
	httptransport "tollgate/contexts/billing-core/subscription-manager/transport/http"
	"tollgate/internal/shared/authz"
)

type Handler struct {
	Service *application.Service
	Logger  *slog.Logger
}

func (h Handler) VerifySubscriptionHandler(
	ctx context.Context,
	req httptransport.VerifySubscriptionRequest,
) (httptransport.VerificationRequestResponse, error) {
	tier, err := ledgerentities.ParseTier(req.Tier)
	if err != nil {
		return httptransport.VerificationRequestResponse{}, err
	}
	request, err := h.Service.VerifySubscription(ctx, req.Payer, req.TransactionID, tier, req.GasPrice, req.GasLimit, req.Payment)
	if err != nil {
		return httptransport.VerificationRequestResponse{}, err
	}
	return requestResponse(request), nil
}

func (h Handler) GetRequestHandler(
	ctx context.Context,
	requestID string,
) (httptransport.VerificationRequestResponse, bool, error) {
	request, found, err := h.Service.GetRequest(ctx, requestID)
	if err != nil || !found {
		return httptransport.VerificationRequestResponse{}, found, err
	}
	return requestResponse(request), true, nil
}

// OracleCallbackHandler answers success for stale or unknown request ids so
// oracle retries settle instead of looping. The actor must hold the oracle
// role.
func (h Handler) OracleCallbackHandler(
	ctx context.Context,
	actor string,
	req httptransport.OracleCallbackRequest,
) (httptransport.OracleCallbackResponse, error) {
	if err := h.Service.HandleOracleCallback(ctx, actor, req.RequestID, req.Verified); err != nil {
		return httptransport.OracleCallbackResponse{}, err
	}
	return httptransport.OracleCallbackResponse{Status: "success"}, nil
}

func (h Handler) SetBeneficiaryHandler(
	ctx context.Context,
	actor string,
	req httptransport.SetBeneficiaryRequest,
) (httptransport.SetBeneficiaryResponse, error) {
	if err := h.Service.SetBeneficiary(ctx, actor, req.Account); err != nil {
		return httptransport.SetBeneficiaryResponse{}, err
	}
	resp := httptransport.SetBeneficiaryResponse{Status: "success"}
	resp.Data.Account = strings.TrimSpace(req.Account)
	return resp, nil
}

func (h Handler) WithdrawHandler(
	ctx context.Context,
	actor string,
) (httptransport.WithdrawResponse, error) {
	beneficiary, amount, err := h.Service.Withdraw(ctx, actor)
	if err != nil {
		return httptransport.WithdrawResponse{}, err
	}
	resp := httptransport.WithdrawResponse{Status: "success"}
	resp.Data.Beneficiary = beneficiary
	resp.Data.Amount = amount
	return resp, nil
}

func (h Handler) ForceSubscriptionHandler(
	ctx context.Context,
	actor string,
	req httptransport.ForceSubscriptionRequest,
) (httptransport.ForceSubscriptionResponse, error) {
	tier, err := ledgerentities.ParseTier(req.Tier)
	if err != nil {
		return httptransport.ForceSubscriptionResponse{}, err
	}
	if err := h.Service.ForceSubscription(ctx, actor, req.Subscriber, req.TransactionID, tier); err != nil {
		return httptransport.ForceSubscriptionResponse{}, err
	}
	resp := httptransport.ForceSubscriptionResponse{Status: "success"}
	resp.Data.Subscriber = strings.TrimSpace(req.Subscriber)
	resp.Data.TransactionID = req.TransactionID
	resp.Data.Tier = tier.String()
	return resp, nil
}

func (h Handler) ChangeEndpointHandler(
	ctx context.Context,
	actor string,
	req httptransport.ChangeEndpointRequest,
) (httptransport.ChangeEndpointResponse, error) {
	if err := h.Service.ChangeEndpoint(ctx, actor, req.Endpoint); err != nil {
		return httptransport.ChangeEndpointResponse{}, err
	}
	resp := httptransport.ChangeEndpointResponse{Status: "success"}
	resp.Data.Endpoint = strings.TrimSpace(req.Endpoint)
	return resp, nil
}

func (h Handler) AuthorizeHandler(
	ctx context.Context,
	actor string,
	req httptransport.AuthorizeRequest,
) (httptransport.AuthorizeResponse, error) {
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		return httptransport.AuthorizeResponse{}, err
	}
	if err := h.Service.Authorize(ctx, actor, req.Principal, role); err != nil {
		return httptransport.AuthorizeResponse{}, err
	}

	resp := httptransport.AuthorizeResponse{Status: "success"}
	resp.Data.Principal = strings.TrimSpace(req.Principal)
	resp.Data.Role = role.String()
	return resp, nil
}

func (h Handler) AuthorizedHandler(
	ctx context.Context,
	principal string,
) (httptransport.AuthorizedResponse, error) {
	role, err := h.Service.Authorized(ctx, principal)
	if err != nil {
		return httptransport.AuthorizedResponse{}, err
	}

	resp := httptransport.AuthorizedResponse{Status: "success"}
	resp.Data.Principal = strings.TrimSpace(principal)
	resp.Data.Role = role.String()
	return resp, nil
}

func requestResponse(request entities.VerificationRequest) httptransport.VerificationRequestResponse {
	resp := httptransport.VerificationRequestResponse{Status: "success"}
	resp.Data.RequestID = request.RequestID
	resp.Data.TransactionID = request.TransactionID
	resp.Data.Tier = request.Tier.String()
	resp.Data.Payer = request.Payer
	resp.Data.Payment = request.Payment
	resp.Data.OracleCost = request.OracleCost
	resp.Data.Retained = request.Retained
	resp.Data.State = string(request.State)
	resp.Data.RequestedAt = request.RequestedAt.UTC().Format(time.RFC3339)
	if request.CompletedAt != nil {
		resp.Data.CompletedAt = request.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
