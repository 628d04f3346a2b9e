package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// Database drivers
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/dpup/rabbitmiles/server/internal/config"
)

const activityColumns = `id, athlete_id, strava_activity_id, name, start_date, polyline,
	distance, moving_time, distance_on_trail, time_on_trail, last_matched`

func init() {
	// modernc registers as "sqlite", which sqlx does not know by name
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLStore implements ActivityStore with portable SQL over sqlx
type SQLStore struct {
	db sqlx.ExtContext
}

// NewSQLStore wraps a database connection or transaction
func NewSQLStore(db sqlx.ExtContext) *SQLStore {
	return &SQLStore{db: db}
}

// Open connects to the configured database and optionally ensures the schema
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	if cfg.EnsureSchema {
		if err := EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// GetActivity loads a single activity by id
func (s *SQLStore) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	var a Activity
	query := s.db.Rebind(`SELECT ` + activityColumns + ` FROM activities WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.db, &a, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get activity %d: %w", id, err)
	}
	return &a, nil
}

// UpdateActivityMatch persists match values and last_matched together
func (s *SQLStore) UpdateActivityMatch(ctx context.Context, id int64, distanceOnTrail float64, timeOnTrail int64, matchedAt time.Time) error {
	query := s.db.Rebind(`UPDATE activities
		SET distance_on_trail = ?, time_on_trail = ?, last_matched = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, distanceOnTrail, timeOnTrail, matchedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update activity %d: %w", id, err)
	}
	return requireRow(res, id)
}

// MarkMatched sets last_matched without touching match values
func (s *SQLStore) MarkMatched(ctx context.Context, id int64, matchedAt time.Time) error {
	query := s.db.Rebind(`UPDATE activities SET last_matched = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, matchedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark activity %d matched: %w", id, err)
	}
	return requireRow(res, id)
}

// ListUnmatched returns the newest unmatched activities first
func (s *SQLStore) ListUnmatched(ctx context.Context, limit int) ([]ActivityRef, error) {
	query := s.db.Rebind(`SELECT id, strava_activity_id, name, start_date
		FROM activities
		WHERE last_matched IS NULL
		ORDER BY start_date DESC
		LIMIT ?`)

	refs := []ActivityRef{}
	if err := sqlx.SelectContext(ctx, s.db, &refs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list unmatched activities: %w", err)
	}
	return refs, nil
}

// ResetLastMatched clears last_matched for all of an athlete's activities
func (s *SQLStore) ResetLastMatched(ctx context.Context, athleteID int64) (int64, error) {
	query := s.db.Rebind(`UPDATE activities SET last_matched = NULL WHERE athlete_id = ?`)
	res, err := s.db.ExecContext(ctx, query, athleteID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset matching for athlete %d: %w", athleteID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// UpsertActivity inserts or replaces an activity row. Used to seed local
// databases; production rows are written by the activity sync.
func (s *SQLStore) UpsertActivity(ctx context.Context, a Activity) error {
	query := `INSERT INTO activities (` + activityColumns + `)
		VALUES (:id, :athlete_id, :strava_activity_id, :name, :start_date, :polyline,
			:distance, :moving_time, :distance_on_trail, :time_on_trail, :last_matched)
		ON CONFLICT (id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			strava_activity_id = excluded.strava_activity_id,
			name = excluded.name,
			start_date = excluded.start_date,
			polyline = excluded.polyline,
			distance = excluded.distance,
			moving_time = excluded.moving_time,
			distance_on_trail = excluded.distance_on_trail,
			time_on_trail = excluded.time_on_trail,
			last_matched = excluded.last_matched`

	a.StartDate = a.StartDate.UTC()
	if a.LastMatched != nil {
		t := a.LastMatched.UTC()
		a.LastMatched = &t
	}

	if _, err := sqlx.NamedExecContext(ctx, s.db, query, a); err != nil {
		return fmt.Errorf("failed to upsert activity %d: %w", a.ID, err)
	}
	return nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}
