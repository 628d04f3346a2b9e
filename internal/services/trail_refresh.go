package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dpup/prefab/logging"
	"github.com/dustin/go-humanize"

	"github.com/dpup/rabbitmiles/server/internal/config"
	"github.com/dpup/rabbitmiles/server/internal/lib/trail"
	"github.com/dpup/rabbitmiles/server/internal/objectstore"
)

// Refresh statuses
const (
	RefreshSuccess = "success"
	RefreshError   = "error"
	RefreshSkipped = "skipped"
)

// Overall refresh statuses
const (
	RefreshPartial = "partial"
	RefreshFailed  = "failed"
)

// ErrRefreshFailed is returned when a refresh wrote no document and at least
// one failed
var ErrRefreshFailed = errors.New("failed to update trail data")

// Trail document names used in refresh results
const (
	DocumentMain  = "main_trail"
	DocumentSpurs = "spurs_trail"
)

const geoJSONContentType = "application/geo+json"

// DocumentFetcher downloads an upstream document
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// GeometryInvalidator drops cached trail geometry
type GeometryInvalidator interface {
	Invalidate()
}

// DocumentResult reports the refresh of one trail document
type DocumentResult struct {
	Name      string `json:"-"`
	Status    string `json:"status"`
	Key       string `json:"key"`
	SizeBytes int    `json:"size_bytes,omitempty"`
	Segments  int    `json:"segments,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RefreshSummary holds per-document refresh results
type RefreshSummary struct {
	Documents []DocumentResult
}

// Succeeded reports whether every document was refreshed or skipped
func (s RefreshSummary) Succeeded() bool {
	return s.Status() == RefreshSuccess
}

// Status derives the overall outcome: success when no document failed,
// partial when some failed and some were written, failed otherwise
func (s RefreshSummary) Status() string {
	var written, failed int
	for _, d := range s.Documents {
		switch d.Status {
		case RefreshSuccess:
			written++
		case RefreshError:
			failed++
		}
	}

	switch {
	case failed == 0:
		return RefreshSuccess
	case written > 0:
		return RefreshPartial
	default:
		return RefreshFailed
	}
}

// Message describes the overall outcome
func (s RefreshSummary) Message() string {
	switch s.Status() {
	case RefreshSuccess:
		return "All trail data updated successfully"
	case RefreshPartial:
		return "Trail data partially updated"
	default:
		return "Failed to update trail data"
	}
}

// Err returns ErrRefreshFailed when nothing was written and a document failed
func (s RefreshSummary) Err() error {
	if s.Status() == RefreshFailed {
		return ErrRefreshFailed
	}
	return nil
}

// TrailRefreshService copies trail GeoJSON from upstream publishers into
// object storage
type TrailRefreshService struct {
	fetcher  DocumentFetcher
	objects  objectstore.Store
	geometry GeometryInvalidator
	cfg      config.TrailsConfig
}

// NewTrailRefreshService creates a new TrailRefreshService
func NewTrailRefreshService(fetcher DocumentFetcher, objects objectstore.Store, geometry GeometryInvalidator, cfg config.TrailsConfig) *TrailRefreshService {
	return &TrailRefreshService{
		fetcher:  fetcher,
		objects:  objects,
		geometry: geometry,
		cfg:      cfg,
	}
}

// RefreshTrails downloads the main and spur documents, checks that each parses
// into at least one segment, and overwrites the stored copy. A document that
// fails keeps its previous stored version. The geometry cache is invalidated
// when anything was written.
func (s *TrailRefreshService) RefreshTrails(ctx context.Context) RefreshSummary {
	docs := []struct {
		name, url, key string
	}{
		{DocumentMain, s.cfg.MainURL, s.cfg.MainKey},
		{DocumentSpurs, s.cfg.SpursURL, s.cfg.SpursKey},
	}

	var summary RefreshSummary
	written := false
	for _, doc := range docs {
		result := s.refreshDocument(ctx, doc.name, doc.url, doc.key)
		if result.Status == RefreshSuccess {
			written = true
		}
		summary.Documents = append(summary.Documents, result)
	}

	if written && s.geometry != nil {
		s.geometry.Invalidate()
	}
	return summary
}

func (s *TrailRefreshService) refreshDocument(ctx context.Context, name, url, key string) DocumentResult {
	result := DocumentResult{Name: name, Key: key}

	if url == "" {
		result.Status = RefreshSkipped
		logging.Infow(ctx, "Trail refresh: no upstream configured", "document", name)
		return result
	}

	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return s.failed(ctx, result, err)
	}
	result.SizeBytes = len(data)

	segments, err := trail.ParseFeatureCollection(data)
	if err != nil {
		return s.failed(ctx, result, err)
	}
	if len(segments) == 0 {
		return s.failed(ctx, result, fmt.Errorf("no line segments in %s", url))
	}
	result.Segments = len(segments)

	if err := s.objects.PutObject(ctx, s.cfg.Bucket, key, data, geoJSONContentType); err != nil {
		return s.failed(ctx, result, err)
	}

	result.Status = RefreshSuccess
	logging.Infow(ctx, "Trail refresh: stored document",
		"document", name,
		"key", key,
		"size", humanize.Bytes(uint64(len(data))),
		"segments", len(segments))
	return result
}

func (s *TrailRefreshService) failed(ctx context.Context, result DocumentResult, err error) DocumentResult {
	result.Status = RefreshError
	result.Error = err.Error()
	logging.Errorw(ctx, "Trail refresh: document failed", "document", result.Name, "key", result.Key, "error", err)
	return result
}
