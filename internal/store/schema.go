package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is portable between PostgreSQL and SQLite. Production databases are
// migrated by the activity service; this is for local development and tests.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		id                 BIGINT PRIMARY KEY,
		athlete_id         BIGINT NOT NULL,
		strava_activity_id BIGINT NOT NULL DEFAULT 0,
		name               TEXT NOT NULL DEFAULT '',
		start_date         TIMESTAMP NOT NULL,
		polyline           TEXT,
		distance           DOUBLE PRECISION NOT NULL DEFAULT 0,
		moving_time        BIGINT NOT NULL DEFAULT 0,
		distance_on_trail  DOUBLE PRECISION,
		time_on_trail      BIGINT,
		last_matched       TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_unmatched
		ON activities (start_date DESC) WHERE last_matched IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_activities_athlete ON activities (athlete_id)`,
}

// EnsureSchema creates the activities table and indexes if missing
func EnsureSchema(ctx context.Context, db sqlx.ExecerContext) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
