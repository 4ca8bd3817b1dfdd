package domain

import "time"

// Unanswered marks an empty slot in an answer buffer.
const Unanswered = -1

// Role distinguishes the two kinds of platform users.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// LessonType is the kind of content a lesson carries.
type LessonType string

const (
	LessonVideo    LessonType = "video"
	LessonText     LessonType = "text"
	LessonDocument LessonType = "document"
	LessonQuiz     LessonType = "quiz"
)

// Lesson is a single unit of course content.
type Lesson struct {
	ID          string     `json:"id" yaml:"id"`
	CourseID    string     `json:"courseId,omitempty" yaml:"courseId,omitempty"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Type        LessonType `json:"type" yaml:"type"`
	Duration    int        `json:"duration" yaml:"duration"` // minutes
	Order       int        `json:"order" yaml:"order"`
	VideoURL    string     `json:"videoUrl,omitempty" yaml:"videoUrl,omitempty"`
	DocumentURL string     `json:"documentUrl,omitempty" yaml:"documentUrl,omitempty"`
	Quiz        *Quiz      `json:"quiz,omitempty" yaml:"quiz,omitempty"`
}

// Module groups lessons and optionally a quiz gated on those lessons.
type Module struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Order   int      `json:"order" yaml:"order"`
	Lessons []Lesson `json:"lessons,omitempty" yaml:"lessons,omitempty"`
	Quiz    *Quiz    `json:"quiz,omitempty" yaml:"quiz,omitempty"`
}

// Course is the document a student enrolls in.
type Course struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	TeacherID   string   `json:"teacherId" yaml:"teacherId"`
	IsPublished bool     `json:"isPublished" yaml:"isPublished"`
	Modules     []Module `json:"modules,omitempty" yaml:"modules,omitempty"`
	// Lessons holds lessons attached directly to the course, outside any module.
	Lessons   []Lesson `json:"lessons,omitempty" yaml:"lessons,omitempty"`
	FinalQuiz *Quiz    `json:"finalQuiz,omitempty" yaml:"finalQuiz,omitempty"`
}

// QuizResult records one graded attempt.
type QuizResult struct {
	ID             string        `json:"id"`
	QuizID         string        `json:"quizId"`
	Score          int           `json:"score"`
	Passed         bool          `json:"passed"`
	TotalQuestions int           `json:"totalQuestions"`
	CorrectAnswers int           `json:"correctAnswers"`
	EarnedPoints   int           `json:"earnedPoints"`
	TotalPoints    int           `json:"totalPoints"`
	AttemptNumber  int           `json:"attemptNumber"`
	CompletedAt    time.Time     `json:"completedAt"`
	TimeTaken      time.Duration `json:"timeTaken"`
	Answers        []int         `json:"answers"`
	Reason         string        `json:"reason"`
}

// StudentProgress is the completion state of one student within one course.
type StudentProgress struct {
	ID               string                  `json:"id"`
	StudentID        string                  `json:"studentId"`
	CourseID         string                  `json:"courseId"`
	EnrollmentID     string                  `json:"enrollmentId"`
	CompletedLessons []string                `json:"completedLessons"`
	QuizResults      map[string][]QuizResult `json:"quizResults"`
	CurrentModule    string                  `json:"currentModule,omitempty"`
	CurrentLesson    string                  `json:"currentLesson,omitempty"`
	OverallProgress  int                     `json:"overallProgress"`
	TimeSpent        int                     `json:"timeSpent"` // seconds
	CourseCompleted  bool                    `json:"courseCompleted"`
	LastUpdated      time.Time               `json:"lastUpdated"`
}

// EnrollmentStatus is the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Enrollment links a student to a course and owns its progress record.
type Enrollment struct {
	ID         string           `json:"id"`
	StudentID  string           `json:"studentId"`
	CourseID   string           `json:"courseId"`
	TeacherID  string           `json:"teacherId"`
	EnrolledAt time.Time        `json:"enrolledAt"`
	Status     EnrollmentStatus `json:"status"`
}
