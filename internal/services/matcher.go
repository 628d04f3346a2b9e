package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/coder/quartz"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
	"github.com/dpup/rabbitmiles/server/internal/lib/trail"
	"github.com/dpup/rabbitmiles/server/internal/metrics"
	"github.com/dpup/rabbitmiles/server/internal/store"
)

// Match statuses
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// ErrStorageWrite is returned when a computed match could not be persisted
var ErrStorageWrite = errors.New("failed to store match result")

// GeometryLoader provides the trail network
type GeometryLoader interface {
	Load(ctx context.Context) (*trail.Network, error)
}

// MatchOutcome is the result of one matching attempt
type MatchOutcome struct {
	ActivityID      int64
	Status          string
	DistanceOnTrail float64    // meters, set on success
	TimeOnTrail     int64      // seconds, set on success
	LastMatched     *time.Time // nil when the attempt failed
	Reason          string     // why the attempt was skipped or failed
}

// MatchService matches single activities against the trail network
type MatchService struct {
	activities store.ActivityStore
	geometry   GeometryLoader
	calculator *trail.Calculator
	clock      quartz.Clock
	metrics    *metrics.Metrics
}

// MatchOption customizes a MatchService
type MatchOption func(*MatchService)

// WithClock sets the clock used for last_matched timestamps
func WithClock(clock quartz.Clock) MatchOption {
	return func(s *MatchService) {
		s.clock = clock
	}
}

// WithMatchMetrics records match outcomes and durations
func WithMatchMetrics(m *metrics.Metrics) MatchOption {
	return func(s *MatchService) {
		s.metrics = m
	}
}

// NewMatchService creates a MatchService with the given on-trail tolerance
func NewMatchService(activities store.ActivityStore, geometry GeometryLoader, toleranceMeters float64, opts ...MatchOption) *MatchService {
	s := &MatchService{
		activities: activities,
		geometry:   geometry,
		calculator: trail.NewCalculator(toleranceMeters),
		clock:      quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MatchActivity computes and persists the on-trail distance and time for one
// activity. A missing activity returns store.ErrNotFound and no outcome.
// Geometry and storage failures return a failed outcome alongside the error;
// last_matched is left unset so the activity stays in the backlog.
func (s *MatchService) MatchActivity(ctx context.Context, activityID int64) (MatchOutcome, error) {
	start := s.clock.Now()
	outcome, err := s.matchActivity(ctx, activityID)
	if outcome.Status != "" {
		s.metrics.ObserveMatch(outcome.Status, s.clock.Since(start))
	}
	return outcome, err
}

func (s *MatchService) matchActivity(ctx context.Context, activityID int64) (MatchOutcome, error) {
	activity, err := s.activities.GetActivity(ctx, activityID)
	if err != nil {
		return MatchOutcome{}, fmt.Errorf("activity %d: %w", activityID, err)
	}

	var path geo.Path
	if activity.HasPolyline() {
		path = geo.DecodePath(*activity.Polyline)
	}
	if path.Empty() {
		return s.skip(ctx, activity)
	}

	network, err := s.geometry.Load(ctx)
	if err != nil {
		return s.fail(ctx, activityID, err)
	}

	result := s.calculator.Compute(path, activity.Distance, activity.MovingTime, network)
	timeOnTrail := int64(math.Round(result.TimeOnTrailSeconds))
	if timeOnTrail > activity.MovingTime {
		timeOnTrail = activity.MovingTime
	}

	now := s.clock.Now().UTC()
	if err := s.activities.UpdateActivityMatch(ctx, activityID, result.DistanceOnTrailMeters, timeOnTrail, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return MatchOutcome{}, fmt.Errorf("activity %d: %w", activityID, err)
		}
		return s.fail(ctx, activityID, fmt.Errorf("%w: %w", ErrStorageWrite, err))
	}

	logging.Infow(ctx, "Matched activity",
		"activity_id", activityID,
		"points", len(path),
		"points_on_trail", result.PointsOnTrail,
		"distance_on_trail", result.DistanceOnTrailMeters,
		"time_on_trail", timeOnTrail)

	return MatchOutcome{
		ActivityID:      activityID,
		Status:          StatusSuccess,
		DistanceOnTrail: result.DistanceOnTrailMeters,
		TimeOnTrail:     timeOnTrail,
		LastMatched:     &now,
	}, nil
}

// skip records a completed no-op match for an activity without a usable path
func (s *MatchService) skip(ctx context.Context, activity *store.Activity) (MatchOutcome, error) {
	now := s.clock.Now().UTC()
	if err := s.activities.MarkMatched(ctx, activity.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return MatchOutcome{}, fmt.Errorf("activity %d: %w", activity.ID, err)
		}
		return s.fail(ctx, activity.ID, fmt.Errorf("%w: %w", ErrStorageWrite, err))
	}

	logging.Infow(ctx, "Skipped activity without polyline", "activity_id", activity.ID)

	return MatchOutcome{
		ActivityID:  activity.ID,
		Status:      StatusSkipped,
		LastMatched: &now,
		Reason:      "no polyline",
	}, nil
}

func (s *MatchService) fail(ctx context.Context, activityID int64, err error) (MatchOutcome, error) {
	logging.Errorw(ctx, "Failed to match activity", "activity_id", activityID, "error", err)
	return MatchOutcome{
		ActivityID: activityID,
		Status:     StatusFailed,
		Reason:     err.Error(),
	}, err
}
