package postgres

import (
	"context"
	"errors"
	"fmt"

	"course-quiz-engine/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// EnrollmentStore persists enrollments in the enrollments table.
type EnrollmentStore struct {
	pool *pgxpool.Pool
}

func NewEnrollmentStore(pool *pgxpool.Pool) *EnrollmentStore {
	return &EnrollmentStore{pool: pool}
}

func (s *EnrollmentStore) CreateEnrollment(ctx context.Context, e domain.Enrollment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrollments (id, student_id, course_id, teacher_id, enrolled_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.StudentID, e.CourseID, e.TeacherID, e.EnrolledAt, string(e.Status))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrAlreadyEnrolled
	}
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (s *EnrollmentStore) ListEnrollments(ctx context.Context, studentID string) ([]domain.Enrollment, error) {
	return s.list(ctx, `WHERE student_id=$1`, studentID)
}

func (s *EnrollmentStore) ListByTeacher(ctx context.Context, teacherID string) ([]domain.Enrollment, error) {
	return s.list(ctx, `WHERE teacher_id=$1`, teacherID)
}

func (s *EnrollmentStore) UpdateStatus(ctx context.Context, studentID, courseID string, status domain.EnrollmentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE enrollments SET status=$3 WHERE student_id=$1 AND course_id=$2`,
		studentID, courseID, string(status))
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEnrollmentNotFound
	}
	return nil
}

func (s *EnrollmentStore) list(ctx context.Context, where string, arg string) ([]domain.Enrollment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, course_id, teacher_id, enrolled_at, status
		FROM enrollments `+where+` ORDER BY enrolled_at, id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		var (
			e      domain.Enrollment
			status string
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &e.CourseID, &e.TeacherID, &e.EnrolledAt, &status); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		e.Status = domain.EnrollmentStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
