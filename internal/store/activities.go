// Package store reads activities and persists trail match results.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an activity does not exist.
var ErrNotFound = errors.New("activity not found")

// Activity is a recorded workout as stored in the activities table
type Activity struct {
	ID               int64      `db:"id"`
	AthleteID        int64      `db:"athlete_id"`
	StravaActivityID int64      `db:"strava_activity_id"`
	Name             string     `db:"name"`
	StartDate        time.Time  `db:"start_date"`
	Polyline         *string    `db:"polyline"`
	Distance         float64    `db:"distance"`    // meters
	MovingTime       int64      `db:"moving_time"` // seconds
	DistanceOnTrail  *float64   `db:"distance_on_trail"`
	TimeOnTrail      *int64     `db:"time_on_trail"`
	LastMatched      *time.Time `db:"last_matched"`
}

// HasPolyline reports whether the activity has a non-empty path
func (a *Activity) HasPolyline() bool {
	return a.Polyline != nil && *a.Polyline != ""
}

// ActivityRef identifies an activity in the matching backlog
type ActivityRef struct {
	ID               int64     `db:"id"`
	StravaActivityID int64     `db:"strava_activity_id"`
	Name             string    `db:"name"`
	StartDate        time.Time `db:"start_date"`
}

// ActivityStore is the storage collaborator used by matching. Every method is
// a single statement; there are no cross-call transactions.
type ActivityStore interface {
	// GetActivity returns ErrNotFound when the row does not exist.
	GetActivity(ctx context.Context, id int64) (*Activity, error)

	// UpdateActivityMatch writes both match values and last_matched in one row
	// update. Returns ErrNotFound when the row no longer exists.
	UpdateActivityMatch(ctx context.Context, id int64, distanceOnTrail float64, timeOnTrail int64, matchedAt time.Time) error

	// MarkMatched sets only last_matched, leaving match values untouched.
	MarkMatched(ctx context.Context, id int64, matchedAt time.Time) error

	// ListUnmatched returns up to limit activities with last_matched unset,
	// newest start_date first.
	ListUnmatched(ctx context.Context, limit int) ([]ActivityRef, error)

	// ResetLastMatched clears last_matched for every activity of an athlete and
	// returns the number of rows affected.
	ResetLastMatched(ctx context.Context, athleteID int64) (int64, error)
}
