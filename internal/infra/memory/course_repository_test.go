package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-quiz-engine/internal/domain"
)

func TestCourseRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		CourseLoader: NewStaticCourseLoader(map[string]domain.Course{
			"course-1": sampleCourse(),
		}),
	}
	repo := NewCourseRepository(loader, time.Minute)

	if _, err := repo.GetCourse(context.Background(), "course-1"); err != nil {
		t.Fatalf("get course: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	lessons, err := repo.GetLessonsByCourse(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("get lessons: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if len(lessons) != 3 || lessons[0].ID != "l1" || lessons[2].ID != "l3" {
		t.Fatalf("unexpected lessons %+v", lessons)
	}

	repo.Invalidate("course-1")
	if _, err := repo.GetCourse(context.Background(), "course-1"); err != nil {
		t.Fatalf("get course after invalidate: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestCourseRepositoryUnknownCourse(t *testing.T) {
	repo := NewCourseRepository(NewStaticCourseLoader(nil), time.Minute)
	if _, err := repo.GetCourse(context.Background(), "missing"); !errors.Is(err, domain.ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}

func TestProgressStoreFailureInjection(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()
	p := domain.NewStudentProgress("p1", "s1", "course-1", "e1")

	store.FailWrites(1)
	if err := store.WriteProgress(ctx, p); !errors.Is(err, ErrInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if _, err := store.ReadProgress(ctx, "s1", "course-1"); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Fatalf("expected no record after failed write, got %v", err)
	}
	if err := store.WriteProgress(ctx, p); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.ReadProgress(ctx, "s1", "course-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got.CompletedLessons = append(got.CompletedLessons, "l1")
	again, _ := store.ReadProgress(ctx, "s1", "course-1")
	if len(again.CompletedLessons) != 0 {
		t.Fatalf("stored record must not alias caller copies")
	}
	if store.Writes() != 1 {
		t.Fatalf("expected one successful write, got %d", store.Writes())
	}
}

func TestEnrollmentStoreRejectsDuplicates(t *testing.T) {
	store := NewEnrollmentStore()
	ctx := context.Background()
	e := domain.Enrollment{ID: "e1", StudentID: "s1", CourseID: "course-1", TeacherID: "t1", Status: domain.EnrollmentActive}

	if err := store.CreateEnrollment(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateEnrollment(ctx, e); !errors.Is(err, domain.ErrAlreadyEnrolled) {
		t.Fatalf("expected ErrAlreadyEnrolled, got %v", err)
	}
	if err := store.UpdateStatus(ctx, "s1", "course-1", domain.EnrollmentCompleted); err != nil {
		t.Fatalf("update: %v", err)
	}
	list, _ := store.ListByTeacher(ctx, "t1")
	if len(list) != 1 || list[0].Status != domain.EnrollmentCompleted {
		t.Fatalf("unexpected enrollments %+v", list)
	}
	if err := store.UpdateStatus(ctx, "s2", "course-1", domain.EnrollmentCompleted); !errors.Is(err, domain.ErrEnrollmentNotFound) {
		t.Fatalf("expected ErrEnrollmentNotFound, got %v", err)
	}
}

type countingLoader struct {
	CourseLoader
	calls int
}

func (l *countingLoader) LoadCourse(ctx context.Context, courseID string) (domain.Course, error) {
	l.calls++
	return l.CourseLoader.LoadCourse(ctx, courseID)
}

func sampleCourse() domain.Course {
	return domain.Course{
		ID:        "course-1",
		Title:     "Go basics",
		TeacherID: "t1",
		Modules: []domain.Module{
			{
				ID: "m1",
				Lessons: []domain.Lesson{
					{ID: "l1", CourseID: "course-1", Type: domain.LessonText},
					{ID: "l2", CourseID: "course-1", Type: domain.LessonVideo},
				},
			},
		},
		Lessons: []domain.Lesson{{ID: "l3", CourseID: "course-1", Type: domain.LessonText}},
	}
}
