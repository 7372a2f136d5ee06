package workers

import (
	"context"
	"testing"
	"time"

	subscriptionledger "tollgate/contexts/billing-core/subscription-ledger"
	ledgerentities "tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	application "tollgate/contexts/billing-core/subscription-manager/application"
	"tollgate/contexts/billing-core/subscription-manager/adapters/memory"
	"tollgate/contexts/billing-core/subscription-manager/domain/entities"
	"tollgate/contexts/billing-core/subscription-manager/ports"
	"tollgate/internal/shared/authz"
)

const (
	testOwner     = "owner-1"
	testPrincipal = "manager-svc"
	testOracle    = "oracle-1"
	testPayer     = "payer-1"
)

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time {
	return c.now
}

type recordingPublisher struct {
	topics []string
	events []ports.EventEnvelope
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func newService(t *testing.T, store *memory.Store, clock ports.Clock) *application.Service {
	t.Helper()
	ctx := context.Background()

	ledger := subscriptionledger.NewInMemoryModule(testOwner, nil)
	if err := ledger.Service.Authorize(ctx, testOwner, testPrincipal, authz.RoleLedgerWriter); err != nil {
		t.Fatalf("authorize manager principal: %v", err)
	}

	service := &application.Service{
		Registry:  authz.NewRegistry(testOwner, authz.NewMemoryLevels(), "billing-core/subscription-manager", nil),
		Requests:  store,
		Vault:     store,
		Settings:  store,
		Oracle:    store,
		Outbox:    store,
		Clock:     clock,
		IDGen:     store,
		Principal: testPrincipal,
	}
	if err := service.SetStore(ctx, testOwner, ledger.Service); err != nil {
		t.Fatalf("bind store: %v", err)
	}
	if err := service.Authorize(ctx, testOwner, testOracle, authz.RoleOracle); err != nil {
		t.Fatalf("authorize oracle: %v", err)
	}
	return service
}

func TestOutboxRelayPublishesAndDrains(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := newService(t, store, store)

	if _, err := service.VerifySubscription(ctx, testPayer, 1001, ledgerentities.TierMonthly, 10, 50, 1_000); err != nil {
		t.Fatalf("VerifySubscription: %v", err)
	}

	publisher := &recordingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.events))
	}
	if publisher.topics[0] != application.EventVerificationRequested {
		t.Fatalf("expected topic %q, got %q", application.EventVerificationRequested, publisher.topics[0])
	}
	if publisher.events[0].EntityType != "verification_request" {
		t.Fatalf("unexpected envelope %+v", publisher.events[0])
	}

	// A second cycle finds nothing pending.
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("relay republished a drained row: %d events", len(publisher.events))
	}
}

func TestTimeoutSweeperExpiresAndRefunds(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newService(t, store, clock)

	request, err := service.VerifySubscription(ctx, testPayer, 1001, ledgerentities.TierMonthly, 10, 50, 1_000)
	if err != nil {
		t.Fatalf("VerifySubscription: %v", err)
	}

	sweeper := TimeoutSweeper{Service: service, TTL: time.Hour}

	// Not stale yet.
	clock.now = clock.now.Add(30 * time.Minute)
	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if current, _, _ := service.GetRequest(ctx, request.RequestID); current.State != entities.StateRequested {
		t.Fatalf("request expired early: %s", current.State)
	}

	clock.now = clock.now.Add(2 * time.Hour)
	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	current, _, _ := service.GetRequest(ctx, request.RequestID)
	if current.State != entities.StateTimedOut {
		t.Fatalf("expected timed out request, got %s", current.State)
	}
	if refunded, _ := store.AccountBalance(ctx, testPayer); refunded != request.Retained {
		t.Fatalf("expected retained refund %d, payer got %d", request.Retained, refunded)
	}
	if balance, _ := store.Balance(ctx); balance != 0 {
		t.Fatalf("expected empty vault, got %d", balance)
	}

	// A late oracle verdict for the expired request is ignored.
	if err := service.HandleOracleCallback(ctx, testOracle, request.RequestID, true); err != nil {
		t.Fatalf("late callback: %v", err)
	}
	if current, _, _ := service.GetRequest(ctx, request.RequestID); current.State != entities.StateTimedOut {
		t.Fatalf("late callback overrode timeout: %s", current.State)
	}
}
