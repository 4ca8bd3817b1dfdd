package redis

import (
	"context"
	"encoding/json"
	"time"

	"course-quiz-engine/internal/app"
	"course-quiz-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ProgressCache is a read-through cache in front of a durable app.ProgressStore.
// Records live at progress:{studentID}:{courseID}. A failed durable write
// evicts the entry so the next read reconciles with the backing store.
type ProgressCache struct {
	client  *redis.Client
	backing app.ProgressStore
	ttl     time.Duration
}

func NewProgressCache(client *redis.Client, backing app.ProgressStore, ttl time.Duration) *ProgressCache {
	return &ProgressCache{client: client, backing: backing, ttl: ttl}
}

func (c *ProgressCache) ReadProgress(ctx context.Context, studentID, courseID string) (domain.StudentProgress, error) {
	key := c.key(studentID, courseID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var p domain.StudentProgress
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return p, nil
		}
	} else if !isMiss(err) {
		// redis unavailable, serve from the backing store
		return c.backing.ReadProgress(ctx, studentID, courseID)
	}

	p, err := c.backing.ReadProgress(ctx, studentID, courseID)
	if err != nil {
		return domain.StudentProgress{}, err
	}
	c.store(ctx, p)
	return p, nil
}

func (c *ProgressCache) WriteProgress(ctx context.Context, p domain.StudentProgress) error {
	if err := c.backing.WriteProgress(ctx, p); err != nil {
		_ = c.client.Del(ctx, c.key(p.StudentID, p.CourseID)).Err()
		return err
	}
	c.store(ctx, p)
	return nil
}

func (c *ProgressCache) ListByCourse(ctx context.Context, courseID string) ([]domain.StudentProgress, error) {
	return c.backing.ListByCourse(ctx, courseID)
}

func (c *ProgressCache) store(ctx context.Context, p domain.StudentProgress) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(p.StudentID, p.CourseID), raw, c.ttl).Err()
}

func (c *ProgressCache) key(studentID, courseID string) string {
	return "progress:" + studentID + ":" + courseID
}
