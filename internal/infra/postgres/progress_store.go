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

// ProgressStore persists StudentProgress as one JSONB document per
// (student, course) pair. Writes are last-write-wins.
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

func (s *ProgressStore) ReadProgress(ctx context.Context, studentID, courseID string) (domain.StudentProgress, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM student_progress WHERE student_id=$1 AND course_id=$2`,
		studentID, courseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StudentProgress{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.StudentProgress{}, fmt.Errorf("read progress: %w", err)
	}
	return decodeProgress(raw)
}

func (s *ProgressStore) WriteProgress(ctx context.Context, p domain.StudentProgress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO student_progress (id, student_id, course_id, overall_progress, course_completed, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id, course_id) DO UPDATE SET
			overall_progress = EXCLUDED.overall_progress,
			course_completed = EXCLUDED.course_completed,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.StudentID, p.CourseID, p.OverallProgress, p.CourseCompleted, raw, p.LastUpdated)
	if err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

func (s *ProgressStore) ListByCourse(ctx context.Context, courseID string) ([]domain.StudentProgress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM student_progress WHERE course_id=$1 ORDER BY student_id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []domain.StudentProgress
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		p, err := decodeProgress(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decodeProgress(raw []byte) (domain.StudentProgress, error) {
	var p domain.StudentProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.StudentProgress{}, fmt.Errorf("unmarshal progress: %w", err)
	}
	if p.QuizResults == nil {
		p.QuizResults = map[string][]domain.QuizResult{}
	}
	if p.CompletedLessons == nil {
		p.CompletedLessons = []string{}
	}
	return p, nil
}
