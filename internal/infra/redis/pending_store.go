package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"course-quiz-engine/internal/app"
	"github.com/redis/go-redis/v9"
)

const pendingKey = "quiz:pending"

// PendingStore keeps queued quiz results in the Redis hash quiz:pending, one
// field per result id, so they survive a restart of the instance that graded
// them. Entries carry no TTL.
type PendingStore struct {
	client *redis.Client
}

func NewPendingStore(client *redis.Client) *PendingStore {
	return &PendingStore{client: client}
}

func (s *PendingStore) SavePending(ctx context.Context, p app.PendingResult) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending result %s: %w", p.Result.ID, err)
	}
	return s.client.HSet(ctx, pendingKey, p.Result.ID, raw).Err()
}

func (s *PendingStore) DeletePending(ctx context.Context, resultID string) error {
	return s.client.HDel(ctx, pendingKey, resultID).Err()
}

// ListPending returns the queue ordered by enqueue time.
func (s *PendingStore) ListPending(ctx context.Context) ([]app.PendingResult, error) {
	values, err := s.client.HVals(ctx, pendingKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]app.PendingResult, 0, len(values))
	for _, v := range values {
		var p app.PendingResult
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("decode pending result: %w", err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].QueuedAt.Before(out[j].QueuedAt)
		}
		return out[i].Result.ID < out[j].Result.ID
	})
	return out, nil
}
