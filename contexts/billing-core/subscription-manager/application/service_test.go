package application

import (
	"context"
	"errors"
	"testing"
	"time"

	subscriptionledger "tollgate/contexts/billing-core/subscription-ledger"
	ledgerapplication "tollgate/contexts/billing-core/subscription-ledger/application"
	ledgerentities "tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	"tollgate/contexts/billing-core/subscription-manager/adapters/memory"
	"tollgate/contexts/billing-core/subscription-manager/domain/entities"
	domainerrors "tollgate/contexts/billing-core/subscription-manager/domain/errors"
	"tollgate/contexts/billing-core/subscription-manager/ports"
	"tollgate/internal/shared/authz"
)

const (
	testOwner     = "owner-1"
	testPrincipal = "manager-svc"
	testSupport   = "support-1"
	testDeveloper = "dev-1"
	testOracle    = "oracle-1"
	testPayer     = "payer-1"

	testGasPrice = uint64(10)
	testGasLimit = uint64(50)
	testPayment  = uint64(1_000)
	testCost     = testGasPrice * testGasLimit
	testRetained = testPayment - testCost
)

// The ledger service itself is the manager's subscription store; the port has
// to keep their signatures aligned.
var _ ports.SubscriptionStore = ledgerapplication.Service{}

type failingOracle struct {
	err error
}

func (o failingOracle) RequestVerification(context.Context, ports.VerificationJob) error {
	return o.err
}

type fixture struct {
	service *Service
	store   *memory.Store
	ledger  subscriptionledger.Module
}

func newFixture(t *testing.T, refundOnRejection bool) fixture {
	t.Helper()
	ctx := context.Background()

	ledger := subscriptionledger.NewInMemoryModule(testOwner, nil)
	if err := ledger.Service.Authorize(ctx, testOwner, testPrincipal, authz.RoleLedgerWriter); err != nil {
		t.Fatalf("authorize manager principal: %v", err)
	}

	store := memory.NewStore()
	registry := authz.NewRegistry(testOwner, authz.NewMemoryLevels(), "billing-core/subscription-manager", nil)
	service := &Service{
		Registry:          registry,
		Requests:          store,
		Vault:             store,
		Settings:          store,
		Oracle:            store,
		Outbox:            store,
		Clock:             store,
		IDGen:             store,
		Principal:         testPrincipal,
		RefundOnRejection: refundOnRejection,
	}
	if err := service.SetStore(ctx, testOwner, ledger.Service); err != nil {
		t.Fatalf("bind store: %v", err)
	}
	if err := registry.Authorize(ctx, testOwner, testSupport, authz.RoleCustomerService); err != nil {
		t.Fatalf("authorize support: %v", err)
	}
	if err := registry.Authorize(ctx, testOwner, testDeveloper, authz.RoleDeveloper); err != nil {
		t.Fatalf("authorize developer: %v", err)
	}
	if err := registry.Authorize(ctx, testOwner, testOracle, authz.RoleOracle); err != nil {
		t.Fatalf("authorize oracle: %v", err)
	}
	return fixture{service: service, store: store, ledger: ledger}
}

func (f fixture) verify(t *testing.T, transactionID uint64) entities.VerificationRequest {
	t.Helper()
	request, err := f.service.VerifySubscription(
		context.Background(), testPayer, transactionID, ledgerentities.TierMonthly,
		testGasPrice, testGasLimit, testPayment,
	)
	if err != nil {
		t.Fatalf("VerifySubscription: %v", err)
	}
	return request
}

func TestVerifyRequiresBoundStore(t *testing.T) {
	ctx := context.Background()
	service := &Service{
		Registry: authz.NewRegistry(testOwner, authz.NewMemoryLevels(), "billing-core/subscription-manager", nil),
	}

	// The missing store wins even over an obviously insufficient payment.
	_, err := service.VerifySubscription(ctx, testPayer, 1001, ledgerentities.TierMonthly, testGasPrice, testGasLimit, 0)
	if !errors.Is(err, domainerrors.ErrStoreNotSet) {
		t.Fatalf("expected ErrStoreNotSet, got %v", err)
	}
}

func TestVerifyRejectsInsufficientPayment(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.service.VerifySubscription(
		context.Background(), testPayer, 1001, ledgerentities.TierMonthly,
		testGasPrice, testGasLimit, testCost-1,
	)
	if !errors.Is(err, domainerrors.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	if balance, _ := f.store.Balance(context.Background()); balance != 0 {
		t.Fatalf("expected untouched vault, got balance %d", balance)
	}
}

func TestVerifyRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	cases := []struct {
		name          string
		payer         string
		transactionID uint64
		tier          ledgerentities.Tier
		gasPrice      uint64
		gasLimit      uint64
	}{
		{"empty payer", "  ", 1001, ledgerentities.TierMonthly, testGasPrice, testGasLimit},
		{"zero transaction id", testPayer, 0, ledgerentities.TierMonthly, testGasPrice, testGasLimit},
		{"unknown tier", testPayer, 1001, ledgerentities.Tier(9), testGasPrice, testGasLimit},
		{"zero gas price", testPayer, 1001, ledgerentities.TierMonthly, 0, testGasLimit},
		{"zero gas limit", testPayer, 1001, ledgerentities.TierMonthly, testGasPrice, 0},
	}
	for _, tc := range cases {
		_, err := f.service.VerifySubscription(ctx, tc.payer, tc.transactionID, tc.tier, tc.gasPrice, tc.gasLimit, testPayment)
		if !errors.Is(err, domainerrors.ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", tc.name, err)
		}
	}
}

func TestVerifyTakesCustodyAndDispatches(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request := f.verify(t, 1001)

	if request.State != entities.StateRequested {
		t.Fatalf("expected requested state, got %s", request.State)
	}
	if request.OracleCost != testCost || request.Retained != testRetained {
		t.Fatalf("unexpected split: cost=%d retained=%d", request.OracleCost, request.Retained)
	}
	if balance, _ := f.store.Balance(ctx); balance != testRetained {
		t.Fatalf("expected vault to hold the retained excess %d, got %d", testRetained, balance)
	}

	jobs := f.store.DispatchedJobs()
	if len(jobs) != 1 {
		t.Fatalf("expected one dispatched job, got %d", len(jobs))
	}
	if jobs[0].RequestID != request.RequestID || jobs[0].Payer != testPayer || jobs[0].TransactionID != 1001 {
		t.Fatalf("unexpected job %+v", jobs[0])
	}

	pending, _ := f.store.ListPendingOutbox(ctx, 10)
	if len(pending) != 1 || pending[0].EventType != EventVerificationRequested {
		t.Fatalf("expected one requested event in outbox, got %+v", pending)
	}
}

func TestVerifiedCallbackWritesLedger(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request := f.verify(t, 1001)
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, true); err != nil {
		t.Fatalf("HandleOracleCallback: %v", err)
	}

	lastID, err := f.ledger.Service.GetLastTransactionID(ctx, testPayer)
	if err != nil {
		t.Fatalf("GetLastTransactionID: %v", err)
	}
	if lastID != 1001 {
		t.Fatalf("expected ledger transaction id 1001, got %d", lastID)
	}
	expiresAt, _ := f.ledger.Service.GetExpirationTimestamp(ctx, testPayer)
	if remaining := time.Until(expiresAt); remaining < 29*24*time.Hour || remaining > 31*24*time.Hour {
		t.Fatalf("expected roughly one month of coverage, got %v", remaining)
	}

	updated, found, _ := f.service.GetRequest(ctx, request.RequestID)
	if !found || updated.State != entities.StateVerified {
		t.Fatalf("expected verified request, got %+v found=%v", updated, found)
	}
	if balance, _ := f.store.Balance(ctx); balance != testRetained {
		t.Fatalf("expected retained excess to stay in the vault, got %d", balance)
	}
}

func TestRejectedCallbackForfeitsByDefault(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request := f.verify(t, 1001)
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, false); err != nil {
		t.Fatalf("HandleOracleCallback: %v", err)
	}

	updated, _, _ := f.service.GetRequest(ctx, request.RequestID)
	if updated.State != entities.StateRejected {
		t.Fatalf("expected rejected request, got %s", updated.State)
	}
	if lastID, _ := f.ledger.Service.GetLastTransactionID(ctx, testPayer); lastID != 0 {
		t.Fatalf("expected untouched ledger, got transaction id %d", lastID)
	}
	if refunded, _ := f.store.AccountBalance(ctx, testPayer); refunded != 0 {
		t.Fatalf("expected forfeiture, payer got %d back", refunded)
	}
	if balance, _ := f.store.Balance(ctx); balance != testRetained {
		t.Fatalf("expected vault to keep %d, got %d", testRetained, balance)
	}
}

func TestRejectedCallbackRefundsWhenConfigured(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	request := f.verify(t, 1001)
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, false); err != nil {
		t.Fatalf("HandleOracleCallback: %v", err)
	}

	if refunded, _ := f.store.AccountBalance(ctx, testPayer); refunded != testRetained {
		t.Fatalf("expected refund of %d, payer got %d", testRetained, refunded)
	}
	if balance, _ := f.store.Balance(ctx); balance != 0 {
		t.Fatalf("expected empty vault after refund, got %d", balance)
	}
}

func TestDuplicateCallbackAppliesOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request := f.verify(t, 1001)
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, true); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	expiresAt, _ := f.ledger.Service.GetExpirationTimestamp(ctx, testPayer)

	// A duplicate confirmation and a late contradictory verdict are both
	// ignored once the request is terminal.
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, true); err != nil {
		t.Fatalf("duplicate callback: %v", err)
	}
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, false); err != nil {
		t.Fatalf("late rejection: %v", err)
	}

	after, _ := f.ledger.Service.GetExpirationTimestamp(ctx, testPayer)
	if !after.Equal(expiresAt) {
		t.Fatalf("expected expiration to stay %v, got %v", expiresAt, after)
	}
	updated, _, _ := f.service.GetRequest(ctx, request.RequestID)
	if updated.State != entities.StateVerified {
		t.Fatalf("expected state to stay verified, got %s", updated.State)
	}
}

func TestUnknownCallbackIsNoOp(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if err := f.service.HandleOracleCallback(ctx, testOracle, "req_unknown", true); err != nil {
		t.Fatalf("unknown callback should be silent, got %v", err)
	}
	if err := f.service.HandleOracleCallback(ctx, testOracle, "", true); err != nil {
		t.Fatalf("empty callback should be silent, got %v", err)
	}
}

func TestDuplicateTransactionRejected(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request := f.verify(t, 1001)
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, true); err != nil {
		t.Fatalf("HandleOracleCallback: %v", err)
	}

	_, err := f.service.VerifySubscription(
		ctx, testPayer, 1001, ledgerentities.TierMonthly,
		testGasPrice, testGasLimit, testPayment,
	)
	if !errors.Is(err, domainerrors.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
}

func TestOracleDispatchFailureRefundsPayment(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.service.Oracle = failingOracle{err: errors.New("oracle unreachable")}

	_, err := f.service.VerifySubscription(
		ctx, testPayer, 1001, ledgerentities.TierMonthly,
		testGasPrice, testGasLimit, testPayment,
	)
	if err == nil {
		t.Fatal("expected dispatch error")
	}
	if balance, _ := f.store.Balance(ctx); balance != 0 {
		t.Fatalf("expected empty vault after compensation, got %d", balance)
	}
	if refunded, _ := f.store.AccountBalance(ctx, testPayer); refunded != testPayment {
		t.Fatalf("expected full refund of %d, payer got %d", testPayment, refunded)
	}
}

func TestWithdrawMovesEverythingToBeneficiary(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.verify(t, 1001)
	f.verify(t, 1002)

	if _, _, err := f.service.Withdraw(ctx, testOwner); !errors.Is(err, domainerrors.ErrBeneficiaryNotSet) {
		t.Fatalf("expected ErrBeneficiaryNotSet, got %v", err)
	}
	if err := f.service.SetBeneficiary(ctx, testOwner, "treasury-1"); err != nil {
		t.Fatalf("SetBeneficiary: %v", err)
	}

	beneficiary, amount, err := f.service.Withdraw(ctx, testOwner)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if beneficiary != "treasury-1" || amount != 2*testRetained {
		t.Fatalf("expected 2x retained to treasury-1, got %d to %s", amount, beneficiary)
	}
	if balance, _ := f.store.Balance(ctx); balance != 0 {
		t.Fatalf("expected zeroed vault, got %d", balance)
	}
	if credited, _ := f.store.AccountBalance(ctx, "treasury-1"); credited != 2*testRetained {
		t.Fatalf("expected treasury credit %d, got %d", 2*testRetained, credited)
	}

	// A second withdrawal finds nothing left.
	if _, amount, err := f.service.Withdraw(ctx, testOwner); err != nil || amount != 0 {
		t.Fatalf("expected empty second withdrawal, got amount=%d err=%v", amount, err)
	}
}

func TestForceSubscriptionBypassesOracle(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if err := f.service.ForceSubscription(ctx, testSupport, "subscriber-9", 2001, ledgerentities.TierYearly); err != nil {
		t.Fatalf("ForceSubscription: %v", err)
	}

	lastID, _ := f.ledger.Service.GetLastTransactionID(ctx, "subscriber-9")
	if lastID != 2001 {
		t.Fatalf("expected forced transaction id 2001, got %d", lastID)
	}
	expiresAt, _ := f.ledger.Service.GetExpirationTimestamp(ctx, "subscriber-9")
	if remaining := time.Until(expiresAt); remaining < 364*24*time.Hour || remaining > 366*24*time.Hour {
		t.Fatalf("expected roughly one year of coverage, got %v", remaining)
	}
	if len(f.store.DispatchedJobs()) != 0 {
		t.Fatal("manual override must not dispatch oracle jobs")
	}
}

func TestRolesAreNotInterchangeable(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if err := f.service.ForceSubscription(ctx, testDeveloper, "subscriber-9", 2001, ledgerentities.TierMonthly); !errors.Is(err, authz.ErrUnauthorized) {
		t.Fatalf("developer forcing a subscription: expected ErrUnauthorized, got %v", err)
	}
	if err := f.service.ChangeEndpoint(ctx, testSupport, "https://oracle.example.com/verify"); !errors.Is(err, authz.ErrUnauthorized) {
		t.Fatalf("support changing the endpoint: expected ErrUnauthorized, got %v", err)
	}
	if err := f.service.SetBeneficiary(ctx, testDeveloper, "treasury-1"); !errors.Is(err, authz.ErrUnauthorized) {
		t.Fatalf("developer setting beneficiary: expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := f.service.Withdraw(ctx, testSupport); !errors.Is(err, authz.ErrUnauthorized) {
		t.Fatalf("support withdrawing: expected ErrUnauthorized, got %v", err)
	}
	if err := f.service.SetStore(ctx, testDeveloper, f.ledger.Service); !errors.Is(err, authz.ErrUnauthorized) {
		t.Fatalf("developer rebinding store: expected ErrUnauthorized, got %v", err)
	}

	// The owner passes every gate.
	if err := f.service.ChangeEndpoint(ctx, testOwner, "https://oracle.example.com/verify"); err != nil {
		t.Fatalf("owner changing the endpoint: %v", err)
	}
}

func TestChangeEndpointValidatesURL(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	for _, endpoint := range []string{"", "not a url", "ftp://oracle.example.com", "https://"} {
		if err := f.service.ChangeEndpoint(ctx, testDeveloper, endpoint); !errors.Is(err, domainerrors.ErrInvalidEndpoint) {
			t.Fatalf("endpoint %q: expected ErrInvalidEndpoint, got %v", endpoint, err)
		}
	}
	if err := f.service.ChangeEndpoint(ctx, testDeveloper, "https://oracle.example.com/callback"); err != nil {
		t.Fatalf("valid endpoint rejected: %v", err)
	}

	jobsBefore := len(f.store.DispatchedJobs())
	f.verify(t, 1001)
	jobs := f.store.DispatchedJobs()
	if len(jobs) != jobsBefore+1 || jobs[len(jobs)-1].CallbackURL != "https://oracle.example.com/callback" {
		t.Fatalf("expected new endpoint on the next job, got %+v", jobs)
	}
}

type flakySubscriptionStore struct {
	ports.SubscriptionStore
	failuresLeft int
}

func (s *flakySubscriptionStore) SetSubscription(
	ctx context.Context, caller string, subscriber string, transactionID uint64, tier ledgerentities.Tier,
) (ledgerentities.SubscriberRecord, error) {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return ledgerentities.SubscriberRecord{}, errors.New("ledger unavailable")
	}
	return s.SubscriptionStore.SetSubscription(ctx, caller, subscriber, transactionID, tier)
}

type failingRequests struct {
	ports.RequestRepository
}

func (failingRequests) CreateRequest(context.Context, entities.VerificationRequest) error {
	return errors.New("request store down")
}

func TestCallbackRequiresOracleRole(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	request := f.verify(t, 1001)

	// The payer knows their own request id from the verify response; echoing
	// it back must not confirm the transaction.
	for caller, label := range map[string]string{
		testPayer:     "payer",
		testSupport:   "support",
		testDeveloper: "developer",
		"":            "anonymous",
	} {
		err := f.service.HandleOracleCallback(ctx, caller, request.RequestID, true)
		if !errors.Is(err, authz.ErrUnauthorized) {
			t.Fatalf("%s callback: expected ErrUnauthorized, got %v", label, err)
		}
	}

	if lastID, _ := f.ledger.Service.GetLastTransactionID(ctx, testPayer); lastID != 0 {
		t.Fatalf("expected untouched ledger after forged callbacks, got transaction id %d", lastID)
	}
	pending, _, _ := f.service.GetRequest(ctx, request.RequestID)
	if pending.State != entities.StateRequested {
		t.Fatalf("expected request to stay pending, got %s", pending.State)
	}

	// The real oracle still gets through.
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, true); err != nil {
		t.Fatalf("oracle callback: %v", err)
	}
}

func TestCallbackRetryRecoversFailedLedgerWrite(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	flaky := &flakySubscriptionStore{SubscriptionStore: f.ledger.Service, failuresLeft: 1}
	if err := f.service.SetStore(ctx, testOwner, flaky); err != nil {
		t.Fatalf("bind flaky store: %v", err)
	}

	request := f.verify(t, 1001)
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, true); err == nil {
		t.Fatal("expected the first callback to surface the ledger failure")
	}

	// The request is terminal but the subscriber has nothing yet.
	updated, _, _ := f.service.GetRequest(ctx, request.RequestID)
	if updated.State != entities.StateVerified {
		t.Fatalf("expected verified state after the failed write, got %s", updated.State)
	}
	if lastID, _ := f.ledger.Service.GetLastTransactionID(ctx, testPayer); lastID != 0 {
		t.Fatalf("expected no ledger write yet, got transaction id %d", lastID)
	}

	// The oracle retries on a non-2xx; the retry lands the write.
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, true); err != nil {
		t.Fatalf("retried callback: %v", err)
	}
	if lastID, _ := f.ledger.Service.GetLastTransactionID(ctx, testPayer); lastID != 1001 {
		t.Fatalf("expected transaction id 1001 after retry, got %d", lastID)
	}
	expiresAt, _ := f.ledger.Service.GetExpirationTimestamp(ctx, testPayer)

	// Further retries converge without extending again.
	if err := f.service.HandleOracleCallback(ctx, testOracle, request.RequestID, true); err != nil {
		t.Fatalf("settled retry: %v", err)
	}
	after, _ := f.ledger.Service.GetExpirationTimestamp(ctx, testPayer)
	if !after.Equal(expiresAt) {
		t.Fatalf("expected expiration to stay %v, got %v", expiresAt, after)
	}

	verifiedEvents := 0
	pending, _ := f.store.ListPendingOutbox(ctx, 10)
	for _, message := range pending {
		if message.EventType == EventVerified {
			verifiedEvents++
		}
	}
	if verifiedEvents != 1 {
		t.Fatalf("expected exactly one verified event, got %d", verifiedEvents)
	}
}

func TestRequestPersistFailureReturnsFunds(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.service.Requests = failingRequests{f.store}

	_, err := f.service.VerifySubscription(
		ctx, testPayer, 1001, ledgerentities.TierMonthly,
		testGasPrice, testGasLimit, testPayment,
	)
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if balance, _ := f.store.Balance(ctx); balance != 0 {
		t.Fatalf("expected empty vault after compensation, got %d", balance)
	}
	if refunded, _ := f.store.AccountBalance(ctx, testPayer); refunded != testPayment {
		t.Fatalf("expected full refund of %d, payer got %d", testPayment, refunded)
	}
	if len(f.store.DispatchedJobs()) != 0 {
		t.Fatal("no oracle job should dispatch for an unpersisted request")
	}
}
