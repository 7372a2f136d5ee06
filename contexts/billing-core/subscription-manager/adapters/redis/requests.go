package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tollgate/contexts/billing-core/subscription-manager/domain/entities"
	"tollgate/contexts/billing-core/subscription-manager/ports"
)

const (
	requestKeyPrefix = "tollgate:verification:request:"
	pendingIndexKey  = "tollgate:verification:pending"
)

// RequestStore keeps the outstanding verification requests in Redis. Pending
// request ids are indexed in a sorted set scored by request time so the
// timeout sweeper can range over them cheaply.
type RequestStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRequestStore(client *redis.Client, logger *slog.Logger) *RequestStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestStore{
		client: client,
		logger: logger,
	}
}

func (r *RequestStore) CreateRequest(ctx context.Context, request entities.VerificationRequest) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, requestKeyPrefix+request.RequestID, payload, 0)
	pipe.ZAdd(ctx, pendingIndexKey, redis.Z{
		Score:  float64(request.RequestedAt.UTC().Unix()),
		Member: request.RequestID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RequestStore) GetRequest(ctx context.Context, requestID string) (entities.VerificationRequest, bool, error) {
	raw, err := r.client.Get(ctx, requestKeyPrefix+requestID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entities.VerificationRequest{}, false, nil
		}
		return entities.VerificationRequest{}, false, err
	}
	var request entities.VerificationRequest
	if err := json.Unmarshal(raw, &request); err != nil {
		return entities.VerificationRequest{}, false, err
	}
	return request, true, nil
}

// CompleteRequest transitions Requested -> state with an optimistic WATCH
// transaction so duplicate callbacks settle to exactly one applied transition.
func (r *RequestStore) CompleteRequest(
	ctx context.Context,
	requestID string,
	state entities.VerificationState,
	completedAt time.Time,
) (entities.VerificationRequest, bool, error) {
	key := requestKeyPrefix + requestID
	var updated entities.VerificationRequest
	applied := false

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		var request entities.VerificationRequest
		if err := json.Unmarshal(raw, &request); err != nil {
			return err
		}
		if request.State != entities.StateRequested {
			updated = request
			return nil
		}

		ts := completedAt.UTC()
		request.State = state
		request.CompletedAt = &ts
		payload, err := json.Marshal(request)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZRem(ctx, pendingIndexKey, requestID)
			return nil
		})
		if err != nil {
			return err
		}
		updated = request
		applied = true
		return nil
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, applied, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return entities.VerificationRequest{}, false, err
	}
	return entities.VerificationRequest{}, false, redis.TxFailedErr
}

func (r *RequestStore) ListRequestedBefore(ctx context.Context, cutoff time.Time, limit int) ([]entities.VerificationRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := r.client.ZRangeByScore(ctx, pendingIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(cutoff.UTC().Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	items := make([]entities.VerificationRequest, 0, len(ids))
	for _, id := range ids {
		request, found, err := r.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			// Index entry without a request body; drop the orphan.
			r.client.ZRem(ctx, pendingIndexKey, id)
			continue
		}
		if request.State == entities.StateRequested {
			items = append(items, request)
		}
	}
	return items, nil
}

var _ ports.RequestRepository = (*RequestStore)(nil)
