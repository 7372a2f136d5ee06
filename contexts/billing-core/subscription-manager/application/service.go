package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	ledgerentities "tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	"tollgate/contexts/billing-core/subscription-manager/domain/entities"
	domainerrors "tollgate/contexts/billing-core/subscription-manager/domain/errors"
	"tollgate/contexts/billing-core/subscription-manager/ports"
	"tollgate/internal/shared/authz"
)

const (
	EventVerificationRequested = "subscription.verification_requested"
	EventVerified              = "subscription.verified"
	EventRejected              = "subscription.rejected"
	EventTimedOut              = "subscription.timed_out"

	sourceService = "billing-core/subscription-manager"
)

// Service orchestrates the verification workflow: it owns the oracle request
// lifecycle, applies results to the ledger, keeps custody of collected funds,
// and exposes the authorized administrative overrides.
//
// The ledger binding is mutable runtime state; every verification path checks
// it first and fails with ErrStoreNotSet while unbound.
type Service struct {
	Registry          *authz.Registry
	Requests          ports.RequestRepository
	Vault             ports.FundsVault
	Settings          ports.SettingsStore
	Oracle            ports.OracleClient
	Outbox            ports.OutboxWriter
	Clock             ports.Clock
	IDGen             ports.IDGenerator
	Principal         string
	RefundOnRejection bool
	Logger            *slog.Logger

	mu    sync.RWMutex
	store ports.SubscriptionStore
}

// SetStore binds the ledger the manager writes to. Owner only; rebinding is
// allowed.
func (s *Service) SetStore(ctx context.Context, caller string, store ports.SubscriptionStore) error {
	if err := s.Registry.Require(ctx, caller, authz.RoleOwner); err != nil {
		return err
	}
	if store == nil {
		return domainerrors.ErrInvalidRequest
	}

	s.mu.Lock()
	s.store = store
	s.mu.Unlock()

	ResolveLogger(s.Logger).Info("subscription store bound",
		"event", "manager_store_bound",
		"module", sourceService,
		"layer", "application",
	)
	return nil
}

func (s *Service) StoreSet() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store != nil
}

// VerifySubscription accepts a claimed payment transaction, takes custody of
// the payment, pays the oracle its execution cost, and dispatches an
// asynchronous verification job. It returns before the outcome is known; the
// result arrives later through HandleOracleCallback.
func (s *Service) VerifySubscription(
	ctx context.Context,
	payer string,
	transactionID uint64,
	tier ledgerentities.Tier,
	gasPrice uint64,
	gasLimit uint64,
	payment uint64,
) (entities.VerificationRequest, error) {
	store := s.boundStore()
	if store == nil {
		return entities.VerificationRequest{}, domainerrors.ErrStoreNotSet
	}

	payer = strings.TrimSpace(payer)
	if payer == "" || transactionID == 0 || !tier.Valid() || gasPrice == 0 || gasLimit == 0 {
		return entities.VerificationRequest{}, domainerrors.ErrInvalidRequest
	}
	cost := gasPrice * gasLimit
	if cost/gasLimit != gasPrice {
		return entities.VerificationRequest{}, domainerrors.ErrInvalidRequest
	}
	if payment < cost {
		return entities.VerificationRequest{}, domainerrors.ErrInsufficientPayment
	}

	lastID, err := store.GetLastTransactionID(ctx, payer)
	if err != nil {
		return entities.VerificationRequest{}, err
	}
	if lastID == transactionID {
		return entities.VerificationRequest{}, domainerrors.ErrDuplicateTransaction
	}

	requestID, err := s.IDGen.NewID(ctx)
	if err != nil {
		return entities.VerificationRequest{}, err
	}
	now := s.now()
	request := entities.VerificationRequest{
		RequestID:     requestID,
		TransactionID: transactionID,
		Tier:          tier,
		Payer:         payer,
		Payment:       payment,
		GasPrice:      gasPrice,
		GasLimit:      gasLimit,
		OracleCost:    cost,
		Retained:      payment - cost,
		State:         entities.StateRequested,
		RequestedAt:   now,
	}

	// Funds settle before the request row exists; a stranded Requested row
	// with no custodied funds would break the sweeper's refund.
	if err := s.Vault.Credit(ctx, payment); err != nil {
		return entities.VerificationRequest{}, err
	}
	if err := s.Vault.Debit(ctx, cost); err != nil {
		_ = s.Vault.TransferTo(ctx, payer, payment)
		return entities.VerificationRequest{}, err
	}
	if err := s.Requests.CreateRequest(ctx, request); err != nil {
		if refundErr := s.Vault.Credit(ctx, cost); refundErr == nil {
			_ = s.Vault.TransferTo(ctx, payer, payment)
		}
		return entities.VerificationRequest{}, err
	}

	endpoint, err := s.Settings.GetEndpoint(ctx)
	if err != nil {
		return entities.VerificationRequest{}, err
	}
	job := ports.VerificationJob{
		RequestID:     requestID,
		TransactionID: transactionID,
		Tier:          tier.String(),
		Payer:         payer,
		GasPrice:      gasPrice,
		GasLimit:      gasLimit,
		CallbackURL:   endpoint,
	}
	if err := s.Oracle.RequestVerification(ctx, job); err != nil {
		// Dispatch never reached the oracle: fail the attempt and return the
		// full payment so the caller sees an atomic rejection.
		completedAt := s.now()
		if _, applied, completeErr := s.Requests.CompleteRequest(ctx, requestID, entities.StateRejected, completedAt); completeErr == nil && applied {
			if refundErr := s.Vault.Credit(ctx, cost); refundErr == nil {
				_ = s.Vault.TransferTo(ctx, payer, payment)
			}
		}
		return entities.VerificationRequest{}, fmt.Errorf("dispatch verification job: %w", err)
	}

	s.appendEvent(ctx, EventVerificationRequested, request, now)

	ResolveLogger(s.Logger).Info("verification requested",
		"event", "manager_verification_requested",
		"module", sourceService,
		"layer", "application",
		"request_id", requestID,
		"payer", payer,
		"transaction_id", transactionID,
		"tier", tier.String(),
		"oracle_cost", cost,
		"retained", request.Retained,
	)
	return request, nil
}

// HandleOracleCallback applies the oracle's verdict. The caller must hold the
// oracle role; payers learn their request id from the verify response, so an
// unauthenticated callback would let them confirm their own transactions.
// Callbacks for unknown or already-terminal request ids are ignored; the
// ledger extension happens at most once per request id regardless of delivery
// order or duplication.
func (s *Service) HandleOracleCallback(ctx context.Context, caller string, requestID string, verified bool) error {
	if err := s.Registry.Require(ctx, caller, authz.RoleOracle); err != nil {
		return err
	}

	logger := ResolveLogger(s.Logger)
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil
	}

	request, found, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if found && request.State == entities.StateVerified && verified {
		// A retry after the terminal transition committed but the ledger
		// write failed. Re-apply; the transaction id comparison inside
		// keeps settled retries from extending twice.
		return s.applyVerified(ctx, request)
	}
	if !found || request.State.Terminal() {
		logger.Info("stale or unknown oracle callback ignored",
			"event", "manager_callback_ignored",
			"module", sourceService,
			"layer", "application",
			"request_id", requestID,
			"known", found,
		)
		return nil
	}

	now := s.now()
	if !verified {
		updated, applied, err := s.Requests.CompleteRequest(ctx, requestID, entities.StateRejected, now)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		if s.RefundOnRejection && updated.Retained > 0 {
			if err := s.Vault.TransferTo(ctx, updated.Payer, updated.Retained); err != nil {
				return err
			}
		}
		s.appendEvent(ctx, EventRejected, updated, now)
		logger.Info("verification rejected",
			"event", "manager_verification_rejected",
			"module", sourceService,
			"layer", "application",
			"request_id", requestID,
			"payer", updated.Payer,
			"refunded", s.RefundOnRejection,
		)
		return nil
	}

	if s.boundStore() == nil {
		return domainerrors.ErrStoreNotSet
	}
	updated, applied, err := s.Requests.CompleteRequest(ctx, requestID, entities.StateVerified, now)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	return s.applyVerified(ctx, updated)
}

// applyVerified extends the ledger for a verified request. Skips the write
// when the request's transaction id is already the subscriber's latest, so a
// callback retried past a failed write converges without double extension.
func (s *Service) applyVerified(ctx context.Context, request entities.VerificationRequest) error {
	store := s.boundStore()
	if store == nil {
		return domainerrors.ErrStoreNotSet
	}
	lastID, err := store.GetLastTransactionID(ctx, request.Payer)
	if err != nil {
		return err
	}
	if lastID == request.TransactionID {
		return nil
	}
	if _, err := store.SetSubscription(ctx, s.Principal, request.Payer, request.TransactionID, request.Tier); err != nil {
		return fmt.Errorf("apply verified subscription: %w", err)
	}
	s.appendEvent(ctx, EventVerified, request, s.now())
	ResolveLogger(s.Logger).Info("verification confirmed",
		"event", "manager_verification_confirmed",
		"module", sourceService,
		"layer", "application",
		"request_id", request.RequestID,
		"payer", request.Payer,
		"transaction_id", request.TransactionID,
		"tier", request.Tier.String(),
	)
	return nil
}

// SetBeneficiary configures the sole withdrawal recipient. Owner only,
// overwritable.
func (s *Service) SetBeneficiary(ctx context.Context, caller string, account string) error {
	if err := s.Registry.Require(ctx, caller, authz.RoleOwner); err != nil {
		return err
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return domainerrors.ErrInvalidRequest
	}
	return s.Settings.SetBeneficiary(ctx, account)
}

// Withdraw moves the entire vault balance to the configured beneficiary in one
// atomic transfer and returns the amount moved.
func (s *Service) Withdraw(ctx context.Context, caller string) (string, uint64, error) {
	if err := s.Registry.Require(ctx, caller, authz.RoleOwner); err != nil {
		return "", 0, err
	}
	beneficiary, err := s.Settings.GetBeneficiary(ctx)
	if err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(beneficiary) == "" {
		return "", 0, domainerrors.ErrBeneficiaryNotSet
	}
	amount, err := s.Vault.WithdrawAll(ctx, beneficiary)
	if err != nil {
		return "", 0, err
	}

	ResolveLogger(s.Logger).Info("vault withdrawn",
		"event", "manager_vault_withdrawn",
		"module", sourceService,
		"layer", "application",
		"beneficiary", beneficiary,
		"amount", amount,
	)
	return beneficiary, amount, nil
}

// ForceSubscription is the customer-service override: it writes the ledger
// directly, bypassing the oracle and any payment handling. Used to recover
// subscribers whose automated flow failed on external errors.
func (s *Service) ForceSubscription(
	ctx context.Context,
	caller string,
	subscriber string,
	transactionID uint64,
	tier ledgerentities.Tier,
) error {
	if err := s.Registry.Require(ctx, caller, authz.RoleCustomerService); err != nil {
		return err
	}
	store := s.boundStore()
	if store == nil {
		return domainerrors.ErrStoreNotSet
	}
	if _, err := store.SetSubscription(ctx, s.Principal, subscriber, transactionID, tier); err != nil {
		return err
	}

	ResolveLogger(s.Logger).Info("subscription forced by support",
		"event", "manager_subscription_forced",
		"module", sourceService,
		"layer", "application",
		"caller", caller,
		"subscriber", subscriber,
		"transaction_id", transactionID,
		"tier", tier.String(),
	)
	return nil
}

// ChangeEndpoint mutates the callback endpoint carried in subsequent oracle
// jobs. Developer only; reversible configuration.
func (s *Service) ChangeEndpoint(ctx context.Context, caller string, endpoint string) error {
	if err := s.Registry.Require(ctx, caller, authz.RoleDeveloper); err != nil {
		return err
	}
	endpoint = strings.TrimSpace(endpoint)
	parsed, err := url.ParseRequestURI(endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return domainerrors.ErrInvalidEndpoint
	}
	if err := s.Settings.SetEndpoint(ctx, endpoint); err != nil {
		return err
	}

	ResolveLogger(s.Logger).Info("oracle callback endpoint changed",
		"event", "manager_endpoint_changed",
		"module", sourceService,
		"layer", "application",
		"caller", caller,
		"endpoint", endpoint,
	)
	return nil
}

func (s *Service) GetRequest(ctx context.Context, requestID string) (entities.VerificationRequest, bool, error) {
	return s.Requests.GetRequest(ctx, strings.TrimSpace(requestID))
}

// ExpireStaleRequests times out requests that have been waiting on the oracle
// longer than ttl. The retained excess is returned to the payer; the oracle
// cost is already spent and stays gone. Returns the number of requests moved
// to the timed out state.
func (s *Service) ExpireStaleRequests(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	now := s.now()
	stale, err := s.Requests.ListRequestedBefore(ctx, now.Add(-ttl), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, request := range stale {
		updated, applied, err := s.Requests.CompleteRequest(ctx, request.RequestID, entities.StateTimedOut, now)
		if err != nil {
			return expired, err
		}
		if !applied {
			continue
		}
		if updated.Retained > 0 {
			if err := s.Vault.TransferTo(ctx, updated.Payer, updated.Retained); err != nil {
				return expired, err
			}
		}
		expired++
		s.appendEvent(ctx, EventTimedOut, updated, now)
		ResolveLogger(s.Logger).Info("verification timed out",
			"event", "manager_verification_timed_out",
			"module", sourceService,
			"layer", "application",
			"request_id", updated.RequestID,
			"payer", updated.Payer,
			"refunded", updated.Retained,
		)
	}
	return expired, nil
}

func (s *Service) Authorize(ctx context.Context, actor string, principal string, role authz.Role) error {
	return s.Registry.Authorize(ctx, actor, principal, role)
}

func (s *Service) Authorized(ctx context.Context, principal string) (authz.Role, error) {
	return s.Registry.Authorized(ctx, principal)
}

func (s *Service) boundStore() ports.SubscriptionStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Service) appendEvent(ctx context.Context, eventType string, request entities.VerificationRequest, occurredAt time.Time) {
	if s.Outbox == nil {
		return
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		eventID = request.RequestID
	}
	envelope := ports.EventEnvelope{
		EventID:        eventID,
		EventType:      eventType,
		SourceService:  sourceService,
		OccurredAtUTC:  occurredAt,
		CorrelationID:  request.RequestID,
		EntityType:     "verification_request",
		EntityID:       request.RequestID,
		PayloadVersion: 1,
		Payload: map[string]any{
			"request_id":     request.RequestID,
			"payer":          request.Payer,
			"transaction_id": request.TransactionID,
			"tier":           request.Tier.String(),
			"state":          string(request.State),
		},
	}
	if err := s.Outbox.AppendOutbox(ctx, envelope); err != nil {
		ResolveLogger(s.Logger).Error("outbox append failed",
			"event", "manager_outbox_append_failed",
			"module", sourceService,
			"layer", "application",
			"event_type", eventType,
			"request_id", request.RequestID,
			"error", err.Error(),
		)
	}
}
