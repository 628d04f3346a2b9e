package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/require"

	"github.com/dpup/rabbitmiles/server/internal/config"
	"github.com/dpup/rabbitmiles/server/internal/dispatch"
	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
	"github.com/dpup/rabbitmiles/server/internal/lib/trail"
	"github.com/dpup/rabbitmiles/server/internal/store"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testContext() context.Context {
	return logging.With(context.Background(), logging.NewDevLogger())
}

func ptr[T any](v T) *T {
	return &v
}

func newActivityStore(t *testing.T) *store.SQLStore {
	t.Helper()

	db, err := store.Open(testContext(), config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		EnsureSchema: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return store.NewSQLStore(db)
}

func seed(t *testing.T, s *store.SQLStore, activities ...store.Activity) {
	t.Helper()
	for _, a := range activities {
		require.NoError(t, s.UpsertActivity(testContext(), a))
	}
}

// failingWrites wraps an ActivityStore and fails every write
type failingWrites struct {
	store.ActivityStore
}

func (f failingWrites) UpdateActivityMatch(context.Context, int64, float64, int64, time.Time) error {
	return errors.New("database is locked")
}

func (f failingWrites) MarkMatched(context.Context, int64, time.Time) error {
	return errors.New("database is locked")
}

// staticGeometry returns a fixed network or error
type staticGeometry struct {
	network *trail.Network
	err     error
	loads   int
}

func (g *staticGeometry) Load(ctx context.Context) (*trail.Network, error) {
	g.loads++
	return g.network, g.err
}

// equatorNetwork is a single ~1.1km segment along the equator.
func equatorNetwork() *trail.Network {
	return trail.NewNetwork([]trail.Segment{
		{Start: geo.Point{Latitude: 0, Longitude: 0}, End: geo.Point{Latitude: 0, Longitude: 0.01}},
	})
}

// recordingInvoker accepts invocations and rejects every nth one when
// rejectEvery is set
type recordingInvoker struct {
	mu          sync.Mutex
	rejectEvery int
	calls       int
	targets     []string
	payloads    []string
}

func (r *recordingInvoker) InvokeAsync(ctx context.Context, target string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.rejectEvery > 0 && r.calls%r.rejectEvery == 0 {
		return dispatch.ErrRejected
	}
	r.targets = append(r.targets, target)
	r.payloads = append(r.payloads, string(payload))
	return nil
}
