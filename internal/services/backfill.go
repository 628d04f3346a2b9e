package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"

	"github.com/dpup/rabbitmiles/server/internal/dispatch"
	"github.com/dpup/rabbitmiles/server/internal/metrics"
	"github.com/dpup/rabbitmiles/server/internal/store"
)

// DefaultBackfillLimit caps a backfill run when no limit is given
const DefaultBackfillLimit = 75

// MatchTarget is the dispatch target that runs MatchService.MatchActivity
const MatchTarget = "match"

// MatchRequest is the payload sent to the match target
type MatchRequest struct {
	ActivityID int64 `json:"activity_id"`
}

// BackfillSummary reports how much of the backlog a run handed off. Queued
// counts accepted invocations, not completed matches.
type BackfillSummary struct {
	RunID         string `json:"-"`
	TotalFound    int    `json:"total_found"`
	Queued        int    `json:"queued"`
	FailedToQueue int    `json:"failed_to_queue"`
}

// BackfillService queues matching for activities that have never been matched
type BackfillService struct {
	activities   store.ActivityStore
	invoker      dispatch.Invoker
	defaultLimit int
	metrics      *metrics.Metrics
}

// NewBackfillService creates a BackfillService. A non-positive defaultLimit
// selects DefaultBackfillLimit.
func NewBackfillService(activities store.ActivityStore, invoker dispatch.Invoker, defaultLimit int, m *metrics.Metrics) *BackfillService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultBackfillLimit
	}
	return &BackfillService{
		activities:   activities,
		invoker:      invoker,
		defaultLimit: defaultLimit,
		metrics:      m,
	}
}

// RunBackfill dispatches one fire-and-forget match per backlog activity, newest
// first. Dispatch failures are counted and never stop the run; only a failed
// backlog query fails it.
func (s *BackfillService) RunBackfill(ctx context.Context, limit int) (BackfillSummary, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}

	summary := BackfillSummary{RunID: uuid.NewString()}

	refs, err := s.activities.ListUnmatched(ctx, limit)
	if err != nil {
		logging.Errorw(ctx, "Backfill: failed to list unmatched activities",
			"run_id", summary.RunID, "error", err)
		return summary, fmt.Errorf("failed to list unmatched activities: %w", err)
	}
	summary.TotalFound = len(refs)

	for _, ref := range refs {
		payload, err := json.Marshal(MatchRequest{ActivityID: ref.ID})
		if err != nil {
			summary.FailedToQueue++
			continue
		}

		if err := s.invoker.InvokeAsync(ctx, MatchTarget, payload); err != nil {
			summary.FailedToQueue++
			if errors.Is(err, dispatch.ErrRejected) {
				logging.Warnw(ctx, "Backfill: dispatch rejected",
					"run_id", summary.RunID, "activity_id", ref.ID, "error", err)
			} else {
				logging.Errorw(ctx, "Backfill: dispatch failed",
					"run_id", summary.RunID, "activity_id", ref.ID, "error", err)
			}
			continue
		}
		summary.Queued++
	}

	s.metrics.ObserveBackfill(summary.TotalFound, summary.Queued, summary.FailedToQueue)

	logging.Infow(ctx, "Backfill complete",
		"run_id", summary.RunID,
		"limit", limit,
		"total_found", summary.TotalFound,
		"queued", summary.Queued,
		"failed_to_queue", summary.FailedToQueue)

	return summary, nil
}

// ResetMatching returns every activity of an athlete to the backlog so the
// next run re-matches them
func (s *BackfillService) ResetMatching(ctx context.Context, athleteID int64) (int64, error) {
	n, err := s.activities.ResetLastMatched(ctx, athleteID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset matching for athlete %d: %w", athleteID, err)
	}
	logging.Infow(ctx, "Reset matching", "athlete_id", athleteID, "activities", n)
	return n, nil
}
