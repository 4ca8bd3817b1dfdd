package app

import (
	"context"
	"fmt"
	"math"
	"sort"

	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/domain"
	"golang.org/x/sync/errgroup"
)

// TeacherStatistics summarizes the courses of one teacher.
type TeacherStatistics struct {
	TeacherID        string `json:"teacherId"`
	TotalCourses     int    `json:"totalCourses"`
	PublishedCourses int    `json:"publishedCourses"`
	TotalLessons     int    `json:"totalLessons"`
	TotalEnrollments int    `json:"totalEnrollments"`
	TotalStudents    int    `json:"totalStudents"`
}

// QuizStats aggregates the attempts of one quiz across students.
type QuizStats struct {
	QuizID           string  `json:"quizId"`
	Students         int     `json:"students"`
	Attempts         int     `json:"attempts"`
	PassRate         float64 `json:"passRate"`
	AverageBestScore float64 `json:"averageBestScore"`
}

// StudentSummary is one row of a course analytics report.
type StudentSummary struct {
	StudentID        string `json:"studentId"`
	OverallProgress  int    `json:"overallProgress"`
	CompletedLessons int    `json:"completedLessons"`
	CourseCompleted  bool   `json:"courseCompleted"`
}

// CourseAnalytics is the teacher view of a single course.
type CourseAnalytics struct {
	CourseID        string           `json:"courseId"`
	Students        []StudentSummary `json:"students"`
	AverageProgress float64          `json:"averageProgress"`
	CompletionRate  float64          `json:"completionRate"`
	Quizzes         []QuizStats      `json:"quizzes"`
}

// StatisticsService answers teacher reporting queries.
type StatisticsService struct {
	courses     CourseRepository
	enrollments EnrollmentStore
	tracker     *ProgressTracker
}

func NewStatisticsService(courses CourseRepository, enrollments EnrollmentStore, tracker *ProgressTracker) *StatisticsService {
	return &StatisticsService{courses: courses, enrollments: enrollments, tracker: tracker}
}

func (s *StatisticsService) TeacherStatistics(ctx context.Context, id auth.Identity) (TeacherStatistics, error) {
	if !id.IsTeacher() {
		return TeacherStatistics{}, fmt.Errorf("statistics as %s: %w", id.Role, domain.ErrForbidden)
	}

	var (
		courses     []domain.Course
		enrollments []domain.Enrollment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		courses, err = s.courses.ListCoursesByTeacher(gctx, id.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		enrollments, err = s.enrollments.ListByTeacher(gctx, id.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return TeacherStatistics{}, err
	}

	stats := TeacherStatistics{
		TeacherID:        id.UserID,
		TotalCourses:     len(courses),
		TotalEnrollments: len(enrollments),
	}
	for _, c := range courses {
		if c.IsPublished {
			stats.PublishedCourses++
		}
		stats.TotalLessons += len(c.AllLessons())
	}
	students := make(map[string]struct{}, len(enrollments))
	for _, e := range enrollments {
		students[e.StudentID] = struct{}{}
	}
	stats.TotalStudents = len(students)
	return stats, nil
}

// CourseAnalytics reports per-student progress and per-quiz outcomes of a
// course owned by the calling teacher.
func (s *StatisticsService) CourseAnalytics(ctx context.Context, id auth.Identity, courseID string) (CourseAnalytics, error) {
	if !id.IsTeacher() {
		return CourseAnalytics{}, fmt.Errorf("analytics as %s: %w", id.Role, domain.ErrForbidden)
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return CourseAnalytics{}, err
	}
	if course.TeacherID != id.UserID {
		return CourseAnalytics{}, fmt.Errorf("course %s: %w", courseID, domain.ErrForbidden)
	}
	progress, err := s.tracker.CourseProgress(ctx, courseID)
	if err != nil {
		return CourseAnalytics{}, err
	}

	out := CourseAnalytics{CourseID: courseID, Students: make([]StudentSummary, 0, len(progress))}
	quizzes := map[string]*quizAccumulator{}
	totalProgress, completed := 0, 0
	for _, p := range progress {
		out.Students = append(out.Students, StudentSummary{
			StudentID:        p.StudentID,
			OverallProgress:  p.OverallProgress,
			CompletedLessons: len(p.CompletedLessons),
			CourseCompleted:  p.CourseCompleted,
		})
		totalProgress += p.OverallProgress
		if p.CourseCompleted {
			completed++
		}
		for quizID, results := range p.QuizResults {
			if len(results) == 0 {
				continue
			}
			acc := quizzes[quizID]
			if acc == nil {
				acc = &quizAccumulator{}
				quizzes[quizID] = acc
			}
			best, _ := p.BestResult(quizID)
			acc.students++
			acc.attempts += len(results)
			acc.bestScores += best.Score
			if p.PassedQuiz(quizID) {
				acc.passed++
			}
		}
	}
	if n := len(progress); n > 0 {
		out.AverageProgress = round2(float64(totalProgress) / float64(n))
		out.CompletionRate = round2(float64(completed) / float64(n) * 100)
	}
	for quizID, acc := range quizzes {
		out.Quizzes = append(out.Quizzes, QuizStats{
			QuizID:           quizID,
			Students:         acc.students,
			Attempts:         acc.attempts,
			PassRate:         round2(float64(acc.passed) / float64(acc.students) * 100),
			AverageBestScore: round2(float64(acc.bestScores) / float64(acc.students)),
		})
	}
	sort.Slice(out.Students, func(i, j int) bool { return out.Students[i].StudentID < out.Students[j].StudentID })
	sort.Slice(out.Quizzes, func(i, j int) bool { return out.Quizzes[i].QuizID < out.Quizzes[j].QuizID })
	return out, nil
}

type quizAccumulator struct {
	students, attempts, passed, bestScores int
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
