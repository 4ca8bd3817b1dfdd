package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"course-quiz-engine/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CourseLoader fetches course documents from a backing store (e.g., Postgres, YAML catalog).
type CourseLoader interface {
	LoadCourse(ctx context.Context, courseID string) (domain.Course, error)
	LoadCoursesByTeacher(ctx context.Context, teacherID string) ([]domain.Course, error)
}

// CourseRepository caches courses with TTL to avoid repeated loader hits.
// It implements app.CourseRepository.
type CourseRepository struct {
	loader CourseLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedCourse
}

type cachedCourse struct {
	course    domain.Course
	expiresAt time.Time
}

func NewCourseRepository(loader CourseLoader, ttl time.Duration) *CourseRepository {
	return &CourseRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedCourse),
	}
}

func (r *CourseRepository) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	if course, ok := r.cached(courseID); ok {
		return course, nil
	}

	result, err, _ := r.sf.Do(courseID, func() (interface{}, error) {
		if course, ok := r.cached(courseID); ok {
			return course, nil
		}

		course, err := r.loader.LoadCourse(ctx, courseID)
		if err != nil {
			return domain.Course{}, err
		}

		r.mu.Lock()
		r.cache[courseID] = cachedCourse{
			course:    course,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return course, nil
	})
	if err != nil {
		return domain.Course{}, err
	}
	return result.(domain.Course), nil
}

// GetLessonsByCourse returns the lessons of a course in module order followed
// by lessons attached directly to the course.
func (r *CourseRepository) GetLessonsByCourse(ctx context.Context, courseID string) ([]domain.Lesson, error) {
	course, err := r.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return course.AllLessons(), nil
}

// ListCoursesByTeacher is not cached; it backs reporting queries only.
func (r *CourseRepository) ListCoursesByTeacher(ctx context.Context, teacherID string) ([]domain.Course, error) {
	return r.loader.LoadCoursesByTeacher(ctx, teacherID)
}

// Invalidate drops a cached course so the next read reloads it.
func (r *CourseRepository) Invalidate(courseID string) {
	r.mu.Lock()
	delete(r.cache, courseID)
	r.mu.Unlock()
}

func (r *CourseRepository) cached(courseID string) (domain.Course, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[courseID]; ok && entry.expiresAt.After(now) {
		return entry.course, true
	}
	return domain.Course{}, false
}

func (r *CourseRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCourseLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticCourseLoader struct {
	courses map[string]domain.Course
}

func NewStaticCourseLoader(courses map[string]domain.Course) *StaticCourseLoader {
	return &StaticCourseLoader{courses: courses}
}

func (l *StaticCourseLoader) LoadCourse(_ context.Context, courseID string) (domain.Course, error) {
	if course, ok := l.courses[courseID]; ok {
		return course, nil
	}
	return domain.Course{}, domain.ErrCourseNotFound
}

func (l *StaticCourseLoader) LoadCoursesByTeacher(_ context.Context, teacherID string) ([]domain.Course, error) {
	var out []domain.Course
	for _, c := range l.courses {
		if c.TeacherID == teacherID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
