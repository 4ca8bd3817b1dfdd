package http

import (
	"net/http"

	"course-quiz-engine/internal/app"
	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Quizzes     *app.QuizService
	Tracker     *app.ProgressTracker
	Enrollments *app.EnrollmentService
	Statistics  *app.StatisticsService
	Tokens      TokenVerifier
	Logger      *zap.Logger
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type enrollRequest struct {
	CourseID string `json:"courseId" binding:"required"`
}

// NewRouter mounts the REST API under /api/v1, the quiz websocket at /ws and
// a health check at /healthz.
func NewRouter(s Services) *gin.Engine {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.Logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ws := NewWSHandler(s.Quizzes, s.Tokens, s.Logger)
	router.GET("/ws", gin.WrapF(ws.ServeWS))

	h := &api{Services: s}
	v1 := router.Group("/api/v1", Authenticate(s.Tokens))
	{
		v1.POST("/enrollments", RequireRole(domain.RoleStudent), h.enroll)
		v1.GET("/enrollments", h.listEnrollments)
		v1.GET("/courses/:courseId/progress", h.progress)
		v1.POST("/courses/:courseId/lessons/:lessonId/complete", RequireRole(domain.RoleStudent), h.completeLesson)
		v1.GET("/courses/:courseId/quizzes/:quizId/eligibility", RequireRole(domain.RoleStudent), h.eligibility)

		teacher := v1.Group("/teacher", RequireRole(domain.RoleTeacher))
		teacher.GET("/statistics", h.teacherStatistics)
		teacher.GET("/courses/:courseId/analytics", h.courseAnalytics)
	}
	return router
}

type api struct {
	Services
}

func (a *api) enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: "bad_request", Error: "courseId is required"})
		return
	}
	enrollment, err := a.Enrollments.Enroll(c.Request.Context(), identity(c), req.CourseID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, enrollment)
}

func (a *api) listEnrollments(c *gin.Context) {
	list, err := a.Enrollments.ListEnrollments(c.Request.Context(), identity(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	if list == nil {
		list = []domain.Enrollment{}
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": list})
}

func (a *api) progress(c *gin.Context) {
	progress, err := a.Tracker.GetProgress(c.Request.Context(), identity(c).UserID, c.Param("courseId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (a *api) completeLesson(c *gin.Context) {
	progress, err := a.Tracker.MarkLessonCompleted(c.Request.Context(), identity(c).UserID, c.Param("courseId"), c.Param("lessonId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (a *api) eligibility(c *gin.Context) {
	decision, err := a.Quizzes.Eligibility(c.Request.Context(), identity(c), c.Param("courseId"), c.Param("quizId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (a *api) teacherStatistics(c *gin.Context) {
	stats, err := a.Statistics.TeacherStatistics(c.Request.Context(), identity(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *api) courseAnalytics(c *gin.Context) {
	report, err := a.Statistics.CourseAnalytics(c.Request.Context(), identity(c), c.Param("courseId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *api) fail(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, errorBody{Code: errorCode(err), Error: msg})
}

// identity is safe to call behind Authenticate.
func identity(c *gin.Context) auth.Identity {
	id, _ := auth.FromContext(c.Request.Context())
	return id
}
