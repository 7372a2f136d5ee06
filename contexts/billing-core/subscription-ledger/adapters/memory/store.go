package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	"tollgate/contexts/billing-core/subscription-ledger/ports"
)

// Store is the in-memory ledger repository used in development and tests.
type Store struct {
	mu      sync.RWMutex
	records map[string]entities.SubscriberRecord
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]entities.SubscriberRecord),
	}
}

func (s *Store) GetRecord(_ context.Context, subscriber string) (entities.SubscriberRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, found := s.records[strings.TrimSpace(subscriber)]
	return record, found, nil
}

func (s *Store) UpsertRecord(_ context.Context, record entities.SubscriberRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Subscriber] = record
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

var _ ports.Repository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
