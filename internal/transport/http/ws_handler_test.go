package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"course-quiz-engine/internal/app"
	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/domain"
	"course-quiz-engine/internal/infra/memory"
	"course-quiz-engine/internal/timer"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	studentUser = auth.Identity{UserID: "s1", Role: domain.RoleStudent}
	teacherUser = auth.Identity{UserID: "t1", Role: domain.RoleTeacher}
)

func TestWebSocketSubmitFlow(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, studentUser)

	conn := env.dial(t, studentUser, "lq")
	defer conn.Close()

	typ, payload := readNext(conn, t, "started")
	if typ != "started" {
		t.Fatalf("expected started, got %s", typ)
	}
	if payload["questionCount"] != float64(2) || payload["timeRemaining"] != float64(60) {
		t.Fatalf("unexpected start snapshot %v", payload)
	}

	send(t, conn, "select", map[string]any{"questionIndex": 0, "optionIndex": 0})
	typ, payload = readNext(conn, t, "state")
	if typ != "state" || payload["unanswered"] != float64(1) {
		t.Fatalf("expected state with one unanswered, got %s %v", typ, payload)
	}

	send(t, conn, "next", nil)
	typ, payload = readNext(conn, t, "state")
	if typ != "state" || payload["currentQuestion"] != float64(1) {
		t.Fatalf("expected cursor on second question, got %s %v", typ, payload)
	}

	send(t, conn, "submit", map[string]any{"confirm": false})
	typ, payload = readNext(conn, t, "confirmRequired")
	if typ != "confirmRequired" || payload["unanswered"] != float64(1) {
		t.Fatalf("expected confirmRequired, got %s %v", typ, payload)
	}

	send(t, conn, "submit", map[string]any{"confirm": true})
	_, payload = readUntil(conn, t, "completed")
	if payload["recorded"] != true {
		t.Fatalf("expected recorded result, got %v", payload)
	}
	result, _ := payload["result"].(map[string]any)
	if result["score"] != float64(50) || result["reason"] != string(app.ReasonSubmitted) {
		t.Fatalf("unexpected result %v", result)
	}

	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close after completion, got %v", err)
	}

	progress, err := env.tracker.GetProgress(context.Background(), studentUser.UserID, "c1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(progress.QuizResults["lq"]) != 1 {
		t.Fatalf("expected one recorded attempt, got %d", len(progress.QuizResults["lq"]))
	}
}

func TestWebSocketTimeoutCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, studentUser)

	conn := env.dial(t, studentUser, "lq")
	defer conn.Close()
	if typ, _ := readNext(conn, t, "started"); typ != "started" {
		t.Fatalf("expected started, got %s", typ)
	}

	env.clock.Advance(time.Minute)

	_, payload := readUntil(conn, t, "completed")
	result, _ := payload["result"].(map[string]any)
	if result["reason"] != string(app.ReasonTimedOut) || result["score"] != float64(0) {
		t.Fatalf("unexpected timeout result %v", result)
	}
}

func TestWebSocketDisconnectAbandons(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, studentUser)

	conn := env.dial(t, studentUser, "lq")
	if typ, _ := readNext(conn, t, "started"); typ != "started" {
		t.Fatalf("expected started, got %s", typ)
	}
	send(t, conn, "select", map[string]any{"questionIndex": 0, "optionIndex": 0})
	readNext(conn, t, "state")
	_ = conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := env.svc.Snapshot(studentUser.UserID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session still active after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	progress, err := env.tracker.GetProgress(context.Background(), studentUser.UserID, "c1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(progress.QuizResults["lq"]) != 0 {
		t.Fatalf("abandoned attempt must not be recorded")
	}
}

func TestWebSocketRejectsStart(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, studentUser)

	conn := env.dial(t, studentUser, "mq")
	typ, payload := readNext(conn, t, "error")
	if typ != "error" || payload["code"] != "not_eligible" {
		t.Fatalf("expected not_eligible, got %s %v", typ, payload)
	}
	_ = conn.Close()

	conn = env.dial(t, teacherUser, "lq")
	typ, payload = readNext(conn, t, "error")
	if typ != "error" || payload["code"] != "forbidden" {
		t.Fatalf("expected forbidden, got %s %v", typ, payload)
	}
	_ = conn.Close()
}

func TestWebSocketRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?courseId=c1&quizId=lq"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

type testEnv struct {
	server    *httptest.Server
	router    *gin.Engine
	tokens    *auth.Tokens
	clock     *timer.Manual
	svc       *app.QuizService
	tracker   *app.ProgressTracker
	enrollSvc *app.EnrollmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := timer.NewManual(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	courses := memory.NewCourseRepository(memory.NewStaticCourseLoader(map[string]domain.Course{
		"c1": sampleCourse(),
	}), time.Minute)
	enrollments := memory.NewEnrollmentStore()
	logger := zap.NewNop()

	tracker := app.NewProgressTracker(memory.NewProgressStore(), courses, logger)
	svc := app.NewQuizService(app.QuizServiceDeps{
		Sessions:  memory.NewSessionStore(),
		Courses:   courses,
		Tracker:   tracker,
		Resolver:  app.NewEligibilityResolver(),
		Scheduler: clock,
		Queue:     app.NewReconciler(tracker, memory.NewPendingStore(), logger),
		Logger:    logger,
	})
	enrollSvc := app.NewEnrollmentService(enrollments, courses, tracker, logger)
	tokens := auth.NewTokens("test-secret", "course-quiz-engine")

	router := NewRouter(Services{
		Quizzes:     svc,
		Tracker:     tracker,
		Enrollments: enrollSvc,
		Statistics:  app.NewStatisticsService(courses, enrollments, tracker),
		Tokens:      tokens,
		Logger:      logger,
	})
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		svc.Wait()
		enrollSvc.Close()
	})

	return &testEnv{
		server:    server,
		router:    router,
		tokens:    tokens,
		clock:     clock,
		svc:       svc,
		tracker:   tracker,
		enrollSvc: enrollSvc,
	}
}

func (e *testEnv) token(t *testing.T, id auth.Identity) string {
	t.Helper()
	raw, err := e.tokens.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return raw
}

func (e *testEnv) enroll(t *testing.T, id auth.Identity) {
	t.Helper()
	if _, err := e.enrollSvc.Enroll(context.Background(), id, "c1"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
}

func (e *testEnv) dial(t *testing.T, id auth.Identity, quizID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?courseId=c1&quizId=" + quizID + "&token=" + e.token(t, id)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

// sampleCourse has module m1 with a text lesson L1 and a quiz lesson L2.
// The module owns quiz mq and lesson L2 owns quiz lq (two questions, one
// minute).
func sampleCourse() domain.Course {
	lq := domain.Quiz{ID: "lq", Title: "Lesson check", PassingScore: 50, TimeLimit: 1, Questions: []domain.QuizQuestion{
		{ID: "lq-1", Question: "first", Options: []string{"a", "b"}, CorrectAnswer: 0, Points: 1},
		{ID: "lq-2", Question: "second", Options: []string{"a", "b"}, CorrectAnswer: 1, Points: 1},
	}}
	mq := domain.Quiz{ID: "mq", Title: "Module check", PassingScore: 70, Questions: []domain.QuizQuestion{
		{ID: "mq-1", Question: "only", Options: []string{"a", "b"}, CorrectAnswer: 0, Points: 1},
	}}
	return domain.Course{
		ID:          "c1",
		Title:       "Go basics",
		TeacherID:   "t1",
		IsPublished: true,
		Modules: []domain.Module{{
			ID: "m1", Order: 1, Quiz: &mq,
			Lessons: []domain.Lesson{
				{ID: "L1", CourseID: "c1", Type: domain.LessonText, Order: 1},
				{ID: "L2", CourseID: "c1", Type: domain.LessonQuiz, Order: 2, Quiz: &lq},
			},
		}},
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read %s: %v", expect, err)
	}
	return msg.Type, msg.Payload
}

// readUntil skips messages, such as countdown ticks, until one of type expect
// arrives.
func readUntil(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	for i := 0; i < 200; i++ {
		typ, payload := readNext(conn, t, expect)
		if typ == expect {
			return typ, payload
		}
	}
	t.Fatalf("no %s message received", expect)
	return "", nil
}
