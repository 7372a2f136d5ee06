package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tollgate/contexts/billing-core/subscription-manager/domain/entities"
	domainerrors "tollgate/contexts/billing-core/subscription-manager/domain/errors"
	"tollgate/contexts/billing-core/subscription-manager/ports"
)

// Store is the in-memory manager backend used in development and tests. It
// implements every manager port, including an oracle client that records
// dispatched jobs for inspection.
type Store struct {
	mu sync.RWMutex

	requests    map[string]entities.VerificationRequest
	balance     uint64
	accounts    map[string]uint64
	beneficiary string
	endpoint    string
	outbox      []ports.OutboxMessage
	jobs        []ports.VerificationJob
	sequence    uint64
}

func NewStore() *Store {
	return &Store{
		requests: make(map[string]entities.VerificationRequest),
		accounts: make(map[string]uint64),
	}
}

func (s *Store) CreateRequest(_ context.Context, request entities.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[request.RequestID] = request
	return nil
}

func (s *Store) GetRequest(_ context.Context, requestID string) (entities.VerificationRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, found := s.requests[requestID]
	return request, found, nil
}

func (s *Store) CompleteRequest(
	_ context.Context,
	requestID string,
	state entities.VerificationState,
	completedAt time.Time,
) (entities.VerificationRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, found := s.requests[requestID]
	if !found {
		return entities.VerificationRequest{}, false, nil
	}
	if request.State != entities.StateRequested {
		return request, false, nil
	}
	completedAt = completedAt.UTC()
	request.State = state
	request.CompletedAt = &completedAt
	s.requests[requestID] = request
	return request, true, nil
}

func (s *Store) ListRequestedBefore(_ context.Context, cutoff time.Time, limit int) ([]entities.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.VerificationRequest, 0)
	for _, request := range s.requests {
		if request.State == entities.StateRequested && request.RequestedAt.Before(cutoff) {
			items = append(items, request)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].RequestedAt.Before(items[j].RequestedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) Credit(_ context.Context, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balance += amount
	return nil
}

func (s *Store) Debit(_ context.Context, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balance < amount {
		return domainerrors.ErrInsufficientFunds
	}
	s.balance -= amount
	return nil
}

func (s *Store) TransferTo(_ context.Context, account string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balance < amount {
		return domainerrors.ErrInsufficientFunds
	}
	s.balance -= amount
	s.accounts[account] += amount
	return nil
}

func (s *Store) WithdrawAll(_ context.Context, account string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount := s.balance
	s.balance = 0
	s.accounts[account] += amount
	return amount, nil
}

func (s *Store) Balance(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance, nil
}

func (s *Store) AccountBalance(_ context.Context, account string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[account], nil
}

func (s *Store) GetBeneficiary(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.beneficiary, nil
}

func (s *Store) SetBeneficiary(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.beneficiary = account
	return nil
}

func (s *Store) GetEndpoint(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint, nil
}

func (s *Store) SetEndpoint(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoint = url
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.outbox = append(s.outbox, ports.OutboxMessage{
		OutboxID:     envelope.EventID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.EntityID,
		Payload:      payload,
		CreatedAt:    envelope.OccurredAtUTC,
	})
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.outbox) {
		limit = len(s.outbox)
	}
	items := make([]ports.OutboxMessage, limit)
	copy(items, s.outbox[:limit])
	return items, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.outbox[:0]
	for _, item := range s.outbox {
		if item.OutboxID != outboxID {
			filtered = append(filtered, item)
		}
	}
	s.outbox = filtered
	return nil
}

// RequestVerification records the dispatched job instead of reaching a real
// oracle.
func (s *Store) RequestVerification(_ context.Context, job ports.VerificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Store) DispatchedJobs() []ports.VerificationJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ports.VerificationJob, len(s.jobs))
	copy(items, s.jobs)
	return items
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	n := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("req_%d", n), nil
}

var _ ports.RequestRepository = (*Store)(nil)
var _ ports.FundsVault = (*Store)(nil)
var _ ports.SettingsStore = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.OracleClient = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
