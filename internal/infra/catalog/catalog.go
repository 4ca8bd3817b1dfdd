// Package catalog loads course documents from a YAML file.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"

	"course-quiz-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

type file struct {
	Courses []domain.Course `yaml:"courses"`
}

// Catalog is an immutable set of courses. It implements memory.CourseLoader.
type Catalog struct {
	courses map[string]domain.Course
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Every embedded quiz must be valid and quiz ids
// must be unique within a course.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{courses: make(map[string]domain.Course, len(f.Courses))}
	for _, course := range f.Courses {
		if course.ID == "" {
			return nil, fmt.Errorf("catalog: course without id")
		}
		if _, dup := c.courses[course.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate course %s", course.ID)
		}
		if err := validate(&course); err != nil {
			return nil, fmt.Errorf("catalog: course %s: %w", course.ID, err)
		}
		c.courses[course.ID] = course
	}
	return c, nil
}

func (c *Catalog) LoadCourse(_ context.Context, courseID string) (domain.Course, error) {
	course, ok := c.courses[courseID]
	if !ok {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	return course, nil
}

func (c *Catalog) LoadCoursesByTeacher(_ context.Context, teacherID string) ([]domain.Course, error) {
	var out []domain.Course
	for _, course := range c.courses {
		if course.TeacherID == teacherID {
			out = append(out, course)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Courses returns every course sorted by id.
func (c *Catalog) Courses() []domain.Course {
	out := make([]domain.Course, 0, len(c.courses))
	for _, course := range c.courses {
		out = append(out, course)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func validate(course *domain.Course) error {
	seen := map[string]bool{}
	check := func(q *domain.Quiz) error {
		if q == nil {
			return nil
		}
		if seen[q.ID] {
			return fmt.Errorf("quiz id %s used twice", q.ID)
		}
		seen[q.ID] = true
		valid, err := domain.NewQuiz(*q)
		if err != nil {
			return err
		}
		*q = valid
		return nil
	}

	for mi := range course.Modules {
		m := &course.Modules[mi]
		if err := check(m.Quiz); err != nil {
			return err
		}
		for li := range m.Lessons {
			m.Lessons[li].CourseID = course.ID
			if err := check(m.Lessons[li].Quiz); err != nil {
				return err
			}
		}
	}
	for li := range course.Lessons {
		course.Lessons[li].CourseID = course.ID
		if err := check(course.Lessons[li].Quiz); err != nil {
			return err
		}
	}
	return check(course.FinalQuiz)
}
