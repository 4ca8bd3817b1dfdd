package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-quiz-engine/internal/app"
	"course-quiz-engine/internal/auth"
	"course-quiz-engine/internal/config"
	"course-quiz-engine/internal/infra/catalog"
	"course-quiz-engine/internal/infra/memory"
	pgstore "course-quiz-engine/internal/infra/postgres"
	redisstore "course-quiz-engine/internal/infra/redis"
	"course-quiz-engine/internal/logger"
	"course-quiz-engine/internal/timer"
	transport "course-quiz-engine/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores groups the backends selected by configuration.
type stores struct {
	courses     app.CourseRepository
	progress    app.ProgressStore
	enrollments app.EnrollmentStore
	sessions    app.SessionRepository
	pending     app.PendingStore
	close       func()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	secret, err := cfg.RequireSecret()
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := app.NewProgressTracker(st.progress, st.courses, log)
	reconciler := app.NewReconciler(tracker, st.pending, log)
	if err := reconciler.Start(ctx, cfg.Reconcile.Schedule); err != nil {
		return err
	}
	quizzes := app.NewQuizService(app.QuizServiceDeps{
		Sessions:    st.sessions,
		Courses:     st.courses,
		Tracker:     tracker,
		Resolver:    app.NewEligibilityResolver(),
		Scheduler:   timer.NewReal(),
		Queue:       reconciler,
		Logger:      log,
		SaveRetries: cfg.Reconcile.SaveRetries,
	})
	enrollments := app.NewEnrollmentService(st.enrollments, st.courses, tracker, log)
	defer enrollments.Close()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(transport.Services{
		Quizzes:     quizzes,
		Tracker:     tracker,
		Enrollments: enrollments,
		Statistics:  app.NewStatisticsService(st.courses, st.enrollments, tracker),
		Tokens:      auth.NewTokens(secret, cfg.Auth.Issuer),
		Logger:      log,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting course quiz engine", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	err = server.Shutdown(shutdownCtx)

	// timed out attempts may still be writing their results
	quizzes.Wait()
	cancel()
	if n := len(reconciler.Pending()); n > 0 {
		recorded := reconciler.RetryPending(shutdownCtx)
		log.Warn("pending quiz results at shutdown", zap.Int("queued", n), zap.Int("recorded", recorded))
	}
	return err
}

// openStores picks Postgres over the YAML catalog for course content and
// durable state, and Redis over process memory for caches and sessions.
func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, error) {
	var closers []func()
	st := stores{close: func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	courseTTL := config.TTLDuration(cfg.Cache.CourseTTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			st.close()
			return stores{}, err
		}
		closers = append(closers, pool.Close)
	}

	var loader memory.CourseLoader
	switch {
	case pool != nil:
		loader = pgstore.NewCourseLoader(pool)
	case cfg.Catalog.Path != "":
		c, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			st.close()
			return stores{}, err
		}
		log.Info("course catalog loaded", zap.String("path", cfg.Catalog.Path), zap.Int("courses", len(c.Courses())))
		loader = c
	default:
		log.Warn("no course source configured, serving an empty catalog")
		loader = memory.NewStaticCourseLoader(nil)
	}

	if redisClient != nil {
		st.courses = redisstore.NewCourseRepository(redisClient, loader, courseTTL)
		st.sessions = redisstore.NewSessionStore(redisClient, redisTTL, log)
		st.pending = redisstore.NewPendingStore(redisClient)
	} else {
		st.courses = memory.NewCourseRepository(loader, courseTTL)
		st.sessions = memory.NewSessionStore()
		log.Warn("redis not configured, unrecorded quiz results are queued in memory")
		st.pending = memory.NewPendingStore()
	}

	if pool != nil {
		st.progress = pgstore.NewProgressStore(pool)
		st.enrollments = pgstore.NewEnrollmentStore(pool)
	} else {
		log.Warn("postgres not configured, progress and enrollments are kept in memory")
		st.progress = memory.NewProgressStore()
		st.enrollments = memory.NewEnrollmentStore()
	}
	if redisClient != nil {
		st.progress = redisstore.NewProgressCache(redisClient, st.progress, redisTTL)
	}
	return st, nil
}
