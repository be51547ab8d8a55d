package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fortunemagnet/internal/logging"
)

type migrationStep struct {
	Name string
	SQL  string
}

// The fortunes and subscriptions tables are owned by the main application;
// they are created here only when missing so a fresh database can serve the
// photo functions on its own.
var steps = []migrationStep{
	{
		Name: "create_table_fortunes",
		SQL: `CREATE TABLE IF NOT EXISTS fortunes (
  id         UUID        PRIMARY KEY,
  user_id    UUID        NOT NULL,
  category   TEXT        NOT NULL DEFAULT 'wealth',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_fortunes_user_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_fortunes_user_id ON fortunes (user_id);`,
	},
	{
		Name: "create_table_subscriptions",
		SQL: `CREATE TABLE IF NOT EXISTS subscriptions (
  user_id         UUID        PRIMARY KEY,
  status          TEXT        NOT NULL DEFAULT 'inactive',
  lifetime_active BOOLEAN     NOT NULL DEFAULT false,
  trial_ends_at   TIMESTAMPTZ NULL,
  updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_fortune_media",
		SQL: `CREATE TABLE IF NOT EXISTS fortune_media (
  fortune_id UUID        PRIMARY KEY REFERENCES fortunes (id) ON DELETE CASCADE,
  bucket     TEXT        NOT NULL,
  path       TEXT        NOT NULL,
  mime_type  TEXT        NOT NULL,
  width      INTEGER     NULL CHECK (width IS NULL OR width > 0),
  height     INTEGER     NULL CHECK (height IS NULL OR height > 0),
  size_bytes BIGINT      NULL CHECK (size_bytes IS NULL OR size_bytes >= 0),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
}

// EnsureMigrated checks if the 'fortune_media' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *logging.Logger, dbHost string) error {
	log = log.With("database")
	start := time.Now()

	log.Log(map[string]any{
		"event":   "db_migration_check",
		"status":  "starting",
		"db_host": dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.fortune_media') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed", fmt.Errorf("failed to check sentinel table: %w", err), map[string]any{
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip", map[string]any{
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed", err, map[string]any{
				"migration_step":   step.Name,
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step", map[string]any{
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	log.Info("db_migration_success", map[string]any{
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}
