package domain

// QuizOwnerKind tells which part of a course owns a quiz.
type QuizOwnerKind string

const (
	OwnerUnknown QuizOwnerKind = ""
	OwnerModule  QuizOwnerKind = "module"
	OwnerLesson  QuizOwnerKind = "lesson"
	OwnerCourse  QuizOwnerKind = "course" // final quiz
)

// QuizOwner locates a quiz inside its course.
type QuizOwner struct {
	Kind     QuizOwnerKind
	ModuleID string
	LessonID string
}

// AllLessons returns module lessons in module order followed by course-level lessons.
func (c Course) AllLessons() []Lesson {
	var out []Lesson
	for _, m := range c.Modules {
		out = append(out, m.Lessons...)
	}
	return append(out, c.Lessons...)
}

// LessonIDs returns the set of lesson ids of the course.
func (c Course) LessonIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, l := range c.AllLessons() {
		ids[l.ID] = struct{}{}
	}
	return ids
}

// Module returns the module with the given id.
func (c Course) Module(id string) (Module, bool) {
	for _, m := range c.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// IsFinalQuiz reports whether quizID is the course's final quiz.
func (c Course) IsFinalQuiz(quizID string) bool {
	return c.FinalQuiz != nil && c.FinalQuiz.ID == quizID
}

// LocateQuiz finds quizID in the course. A quiz id owned by more than one
// part of the course is reported with OwnerUnknown and ok == false.
func (c Course) LocateQuiz(quizID string) (Quiz, QuizOwner, bool) {
	var (
		found Quiz
		owner QuizOwner
		hits  int
	)
	match := func(q *Quiz, o QuizOwner) {
		if q != nil && q.ID == quizID {
			found, owner = *q, o
			hits++
		}
	}

	for _, m := range c.Modules {
		match(m.Quiz, QuizOwner{Kind: OwnerModule, ModuleID: m.ID})
		for _, l := range m.Lessons {
			match(l.Quiz, QuizOwner{Kind: OwnerLesson, ModuleID: m.ID, LessonID: l.ID})
		}
	}
	for _, l := range c.Lessons {
		match(l.Quiz, QuizOwner{Kind: OwnerLesson, LessonID: l.ID})
	}
	match(c.FinalQuiz, QuizOwner{Kind: OwnerCourse})

	if hits != 1 {
		return Quiz{}, QuizOwner{}, false
	}
	return found, owner, true
}
