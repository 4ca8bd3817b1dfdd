package cli

import (
	"context"
	"database/sql"
	"fmt"

	"course-quiz-engine/internal/config"
	"course-quiz-engine/internal/infra/catalog"
	pgstore "course-quiz-engine/internal/infra/postgres"
	pgmigrations "course-quiz-engine/internal/infra/postgres/migrations"
	"course-quiz-engine/internal/logger"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// NewMigrateCmd applies database migrations and optionally seeds courses from
// the YAML catalog.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "upsert the courses of catalog.path after migrating")
	return cmd
}

func runMigrations(ctx context.Context, configPath string, seed bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return err
	}
	if seed {
		return seedCatalog(ctx, cfg, log)
	}
	return nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("database schema up to date")
		return nil
	}
	log.Info("migrations applied", zap.String("group", group.String()))
	return nil
}

func seedCatalog(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	c, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := pgstore.NewCourseLoader(pool)
	for _, course := range c.Courses() {
		if err := loader.SaveCourse(ctx, course); err != nil {
			return fmt.Errorf("seed course %s: %w", course.ID, err)
		}
	}
	log.Info("catalog seeded", zap.String("path", cfg.Catalog.Path), zap.Int("courses", len(c.Courses())))
	return nil
}
