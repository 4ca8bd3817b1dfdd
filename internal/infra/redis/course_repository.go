package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"course-quiz-engine/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CourseLoader fetches course documents from a backing store (e.g., Postgres).
type CourseLoader interface {
	LoadCourse(ctx context.Context, courseID string) (domain.Course, error)
	LoadCoursesByTeacher(ctx context.Context, teacherID string) ([]domain.Course, error)
}

// CourseRepository caches course documents in Redis and falls back to a loader on cache miss.
// Documents are stored as JSON: SET course:{courseID} {json} EX ttl
type CourseRepository struct {
	client *redis.Client
	loader CourseLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCourseRepository(client *redis.Client, loader CourseLoader, ttl time.Duration) *CourseRepository {
	return &CourseRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CourseRepository) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	if course, ok := r.cached(ctx, courseID); ok {
		return course, nil
	}

	result, err, _ := r.sf.Do(courseID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if course, ok := r.cached(ctx, courseID); ok {
			return course, nil
		}

		course, err := r.loader.LoadCourse(ctx, courseID)
		if err != nil {
			return domain.Course{}, err
		}

		if raw, err := json.Marshal(course); err == nil {
			// best effort; a failed SET only costs a reload
			_ = r.client.Set(ctx, r.key(courseID), raw, r.ttlWithJitter()).Err()
		}
		return course, nil
	})
	if err != nil {
		return domain.Course{}, err
	}
	return result.(domain.Course), nil
}

func (r *CourseRepository) GetLessonsByCourse(ctx context.Context, courseID string) ([]domain.Lesson, error) {
	course, err := r.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return course.AllLessons(), nil
}

func (r *CourseRepository) ListCoursesByTeacher(ctx context.Context, teacherID string) ([]domain.Course, error) {
	return r.loader.LoadCoursesByTeacher(ctx, teacherID)
}

// Invalidate drops the cached document of courseID.
func (r *CourseRepository) Invalidate(ctx context.Context, courseID string) error {
	return r.client.Del(ctx, r.key(courseID)).Err()
}

func (r *CourseRepository) cached(ctx context.Context, courseID string) (domain.Course, bool) {
	raw, err := r.client.Get(ctx, r.key(courseID)).Bytes()
	if err != nil {
		return domain.Course{}, false
	}
	var course domain.Course
	if err := json.Unmarshal(raw, &course); err != nil {
		return domain.Course{}, false
	}
	return course, true
}

func (r *CourseRepository) key(courseID string) string {
	return "course:" + courseID
}

func (r *CourseRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func isMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
