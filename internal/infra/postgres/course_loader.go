package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"course-quiz-engine/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CourseLoader loads course JSONB documents from Postgres.
type CourseLoader struct {
	pool *pgxpool.Pool
}

func NewCourseLoader(pool *pgxpool.Pool) *CourseLoader {
	return &CourseLoader{pool: pool}
}

func (l *CourseLoader) LoadCourse(ctx context.Context, courseID string) (domain.Course, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM courses WHERE id=$1`, courseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Course{}, fmt.Errorf("load course %s: %w", courseID, domain.ErrCourseNotFound)
	}
	if err != nil {
		return domain.Course{}, fmt.Errorf("load course: %w", err)
	}
	return decodeCourse(raw)
}

func (l *CourseLoader) LoadCoursesByTeacher(ctx context.Context, teacherID string) ([]domain.Course, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM courses WHERE teacher_id=$1 ORDER BY id`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var out []domain.Course
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		course, err := decodeCourse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, course)
	}
	return out, rows.Err()
}

// SaveCourse upserts a course document.
func (l *CourseLoader) SaveCourse(ctx context.Context, course domain.Course) error {
	raw, err := json.Marshal(course)
	if err != nil {
		return fmt.Errorf("marshal course: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO courses (id, teacher_id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET teacher_id = EXCLUDED.teacher_id, data = EXCLUDED.data, updated_at = now()`,
		course.ID, course.TeacherID, raw)
	if err != nil {
		return fmt.Errorf("save course: %w", err)
	}
	return nil
}

func decodeCourse(raw []byte) (domain.Course, error) {
	var course domain.Course
	if err := json.Unmarshal(raw, &course); err != nil {
		return domain.Course{}, fmt.Errorf("unmarshal course: %w", err)
	}
	return course, nil
}
