package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/rabbitmiles/server/internal/services"
	"github.com/dpup/rabbitmiles/server/internal/store"
)

// Matcher matches a single activity
type Matcher interface {
	MatchActivity(ctx context.Context, activityID int64) (services.MatchOutcome, error)
}

// Backfiller queues the matching backlog and resets athletes into it
type Backfiller interface {
	RunBackfill(ctx context.Context, limit int) (services.BackfillSummary, error)
	ResetMatching(ctx context.Context, athleteID int64) (int64, error)
}

// Refresher refreshes the stored trail documents
type Refresher interface {
	RefreshTrails(ctx context.Context) services.RefreshSummary
}

// MatchResponse is the result payload of a match invocation
type MatchResponse struct {
	ActivityID      int64      `json:"activity_id"`
	Status          string     `json:"status"`
	DistanceOnTrail *float64   `json:"distance_on_trail,omitempty"`
	TimeOnTrail     *int64     `json:"time_on_trail,omitempty"`
	LastMatched     *time.Time `json:"last_matched,omitempty"`
	Message         string     `json:"message,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// BatchResponse is the result payload of an SQS batch
type BatchResponse struct {
	Processed int             `json:"processed"`
	Failed    int             `json:"failed"`
	Results   []MatchResponse `json:"results"`
}

// RefreshResponse is the result payload of a trail refresh
type RefreshResponse struct {
	Status  string                             `json:"status"`
	Message string                             `json:"message"`
	Results map[string]services.DocumentResult `json:"results"`
}

// ResetResponse is the result payload of a reset invocation
type ResetResponse struct {
	AthleteID int64 `json:"athlete_id"`
	Reset     int64 `json:"reset"`
}

// MatchHandler runs the matcher for single-activity payloads and SQS batches
type MatchHandler struct {
	matcher Matcher
}

// NewMatchHandler creates a new MatchHandler
func NewMatchHandler(matcher Matcher) *MatchHandler {
	return &MatchHandler{matcher: matcher}
}

// Handle matches the activity named by payload. A failed match returns both an
// error payload and the error. SQS batches always succeed as a whole; per
// record failures are reported in the results.
func (h *MatchHandler) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	if IsBatch(payload) {
		return json.Marshal(h.handleBatch(ctx, payload))
	}

	activityID, err := ParseActivityID(payload)
	if err != nil {
		return errorPayload(0, err), err
	}

	resp, err := h.match(ctx, activityID)
	if err != nil {
		return errorPayload(activityID, err), err
	}
	return json.Marshal(resp)
}

// Run is a dispatch.Handler for the in-process invoker
func (h *MatchHandler) Run(ctx context.Context, payload []byte) error {
	_, err := h.Handle(ctx, payload)
	return err
}

func (h *MatchHandler) match(ctx context.Context, activityID int64) (MatchResponse, error) {
	outcome, err := h.matcher.MatchActivity(ctx, activityID)
	if err != nil {
		return MatchResponse{}, err
	}

	resp := MatchResponse{
		ActivityID:  outcome.ActivityID,
		Status:      outcome.Status,
		LastMatched: outcome.LastMatched,
		Message:     outcome.Reason,
	}
	if outcome.Status == services.StatusSuccess {
		resp.DistanceOnTrail = &outcome.DistanceOnTrail
		resp.TimeOnTrail = &outcome.TimeOnTrail
	}
	return resp, nil
}

func (h *MatchHandler) handleBatch(ctx context.Context, payload []byte) BatchResponse {
	records := ParseBatch(payload)
	resp := BatchResponse{Results: make([]MatchResponse, 0, len(records))}

	for _, record := range records {
		if record.Err != nil {
			logging.Warnw(ctx, "Skipping SQS record", "message_id", record.MessageID, "error", record.Err)
			resp.Failed++
			continue
		}

		result, err := h.match(ctx, record.ActivityID)
		if err != nil {
			result = MatchResponse{ActivityID: record.ActivityID, Status: services.StatusFailed, Error: err.Error()}
			resp.Failed++
		} else {
			resp.Processed++
		}
		resp.Results = append(resp.Results, result)
	}

	logging.Infow(ctx, "Processed SQS batch", "records", len(records), "processed", resp.Processed, "failed", resp.Failed)
	return resp
}

// BackfillHandler runs the backfill scheduler
type BackfillHandler struct {
	backfill Backfiller
}

// NewBackfillHandler creates a new BackfillHandler
func NewBackfillHandler(backfill Backfiller) *BackfillHandler {
	return &BackfillHandler{backfill: backfill}
}

// Handle accepts an optional {"limit": n} and returns the run summary
func (h *BackfillHandler) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	limit, err := ParseLimit(payload)
	if err != nil {
		return nil, err
	}

	summary, err := h.backfill.RunBackfill(ctx, limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(summary)
}

// RefreshHandler refreshes the trail documents
type RefreshHandler struct {
	refresher Refresher
}

// NewRefreshHandler creates a new RefreshHandler
func NewRefreshHandler(refresher Refresher) *RefreshHandler {
	return &RefreshHandler{refresher: refresher}
}

// Handle returns the overall status and the per-document results keyed by
// document name. When no document could be written the payload is returned
// along with services.ErrRefreshFailed.
func (h *RefreshHandler) Handle(ctx context.Context, _ []byte) ([]byte, error) {
	summary := h.refresher.RefreshTrails(ctx)

	resp := RefreshResponse{
		Status:  summary.Status(),
		Message: summary.Message(),
		Results: make(map[string]services.DocumentResult, len(summary.Documents)),
	}
	for _, doc := range summary.Documents {
		resp.Results[doc.Name] = doc
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return data, summary.Err()
}

// ResetHandler returns an athlete's activities to the matching backlog
type ResetHandler struct {
	backfill Backfiller
}

// NewResetHandler creates a new ResetHandler
func NewResetHandler(backfill Backfiller) *ResetHandler {
	return &ResetHandler{backfill: backfill}
}

// Handle accepts {"athlete_id": n} and returns the number of activities reset
func (h *ResetHandler) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	athleteID, err := ParseAthleteID(payload)
	if err != nil {
		return nil, err
	}

	n, err := h.backfill.ResetMatching(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ResetResponse{AthleteID: athleteID, Reset: n})
}

// errorPayload renders a failed match. Marshalling a flat struct cannot fail.
func errorPayload(activityID int64, err error) []byte {
	msg := err.Error()
	if !errors.Is(err, ErrBadRequest) && !errors.Is(err, store.ErrNotFound) && !isMatchFailure(err) {
		msg = "internal server error"
	}
	data, _ := json.Marshal(MatchResponse{ActivityID: activityID, Status: services.StatusFailed, Error: msg})
	return data
}
