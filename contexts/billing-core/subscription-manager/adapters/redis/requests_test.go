package redisadapter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	ledgerentities "tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	"tollgate/contexts/billing-core/subscription-manager/domain/entities"
)

func newTestStore(t *testing.T) *RequestStore {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRequestStore(client, nil)
}

func sampleRequest(id string, requestedAt time.Time) entities.VerificationRequest {
	return entities.VerificationRequest{
		RequestID:     id,
		TransactionID: 1000,
		Tier:          ledgerentities.TierMonthly,
		Payer:         "payer-1",
		Payment:       200,
		GasPrice:      1,
		GasLimit:      120,
		OracleCost:    120,
		Retained:      80,
		State:         entities.StateRequested,
		RequestedAt:   requestedAt,
	}
}

func TestCreateAndGetRequest(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	if err := store.CreateRequest(context.Background(), sampleRequest("req-1", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	request, found, err := store.GetRequest(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatalf("expected request to exist")
	}
	if request.State != entities.StateRequested || request.Retained != 80 {
		t.Fatalf("unexpected request: %+v", request)
	}

	_, found, err = store.GetRequest(context.Background(), "ghost")
	if err != nil || found {
		t.Fatalf("expected absent request, got found=%v err=%v", found, err)
	}
}

func TestCompleteRequestAppliesOnce(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	if err := store.CreateRequest(context.Background(), sampleRequest("req-1", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, applied, err := store.CompleteRequest(context.Background(), "req-1", entities.StateVerified, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("first complete failed: %v", err)
	}
	if !applied || updated.State != entities.StateVerified || updated.CompletedAt == nil {
		t.Fatalf("expected applied verified transition, got applied=%v request=%+v", applied, updated)
	}

	_, applied, err = store.CompleteRequest(context.Background(), "req-1", entities.StateRejected, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("second complete failed: %v", err)
	}
	if applied {
		t.Fatalf("terminal request must not transition again")
	}

	request, _, err := store.GetRequest(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if request.State != entities.StateVerified {
		t.Fatalf("expected state to stay verified, got %s", request.State)
	}
}

func TestListRequestedBeforeSkipsCompletedAndRecent(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

	if err := store.CreateRequest(context.Background(), sampleRequest("req-old", base)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.CreateRequest(context.Background(), sampleRequest("req-done", base)); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.CreateRequest(context.Background(), sampleRequest("req-new", base.Add(2*time.Hour))); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, _, err := store.CompleteRequest(context.Background(), "req-done", entities.StateRejected, base.Add(time.Minute)); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	items, err := store.ListRequestedBefore(context.Background(), base.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 1 || items[0].RequestID != "req-old" {
		t.Fatalf("expected only req-old, got %+v", items)
	}
}
