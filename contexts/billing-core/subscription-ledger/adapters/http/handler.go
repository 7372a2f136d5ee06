package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tollgate/contexts/billing-core/subscription-ledger/application"
	httptransport "tollgate/contexts/billing-core/subscription-ledger/transport/http"
	"tollgate/internal/shared/authz"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) GetSubscriptionHandler(
	ctx context.Context,
	subscriber string,
) (httptransport.SubscriptionResponse, error) {
	record, found, err := h.Service.GetRecord(ctx, subscriber)
	if err != nil {
		return httptransport.SubscriptionResponse{}, err
	}

	resp := httptransport.SubscriptionResponse{Status: "success"}
	resp.Data.Subscriber = strings.TrimSpace(subscriber)
	if found {
		resp.Data.Tier = record.Tier.String()
		resp.Data.LastTransactionID = record.LastTransactionID
		resp.Data.ExpiresAt = record.ExpiresAt.UTC().Format(time.RFC3339)
	}
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
