package invoke

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dpup/rabbitmiles/server/internal/config"
	"github.com/dpup/rabbitmiles/server/internal/dispatch"
	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
	"github.com/dpup/rabbitmiles/server/internal/metrics"
	"github.com/dpup/rabbitmiles/server/internal/services"
	"github.com/dpup/rabbitmiles/server/internal/store"
)

// Backfill runs hand the backlog to the in-process invoker under the default
// admission settings, and every queued activity ends up matched.
func TestBackfillPipeline_DefaultAdmission(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())
	ctx := testContext()

	db, err := store.Open(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", EnsureSchema: true})
	require.NoError(t, err)
	defer db.Close()
	activities := store.NewSQLStore(db)

	m := metrics.New(prometheus.NewRegistry())
	matcher := services.NewMatchService(activities, staticGeometry{network: equatorNetwork()}, cfg.Trails.ToleranceMeters, services.WithMatchMetrics(m))

	invoker := dispatch.NewLocalInvoker(cfg.Dispatch, dispatch.WithMetrics(m))
	defer invoker.Close()
	invoker.Register(services.MatchTarget, NewMatchHandler(matcher).Run)

	backfill := services.NewBackfillService(activities, invoker, cfg.Backfill.Limit, m)

	onTrail := geo.EncodePath(geo.Path{{Latitude: 0, Longitude: 0.001}, {Latitude: 0, Longitude: 0.004}})
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedRange := func(from, to int) {
		for id := from; id <= to; id++ {
			require.NoError(t, activities.UpsertActivity(ctx, store.Activity{
				ID: int64(id), AthleteID: 7, StartDate: start.Add(time.Duration(id) * time.Minute),
				Polyline: &onTrail, Distance: 330, MovingTime: 60,
			}))
		}
	}

	tests := []struct {
		name     string
		from, to int
	}{
		{"small backlog", 1, 10},
		{"full run", 11, 85},
	}

	for _, tt := range tests {
		seedRange(tt.from, tt.to)
		want := tt.to - tt.from + 1

		summary, err := backfill.RunBackfill(ctx, 0)
		require.NoError(t, err, tt.name)
		assert.Equal(t, want, summary.TotalFound, tt.name)
		assert.Equal(t, want, summary.Queued, "%s: every activity should be accepted", tt.name)
		assert.Zero(t, summary.FailedToQueue, tt.name)

		invoker.Wait()

		backlog, err := activities.ListUnmatched(ctx, 1000)
		require.NoError(t, err)
		assert.Empty(t, backlog, "%s: queued activities should all be matched", tt.name)
	}

	assert.Equal(t, 85.0, testutil.ToFloat64(m.Matches.WithLabelValues(services.StatusSuccess)))
	assert.Zero(t, testutil.ToFloat64(m.Dispatches.WithLabelValues(services.MatchTarget, metrics.ResultRejected)))

	stored, err := activities.GetActivity(ctx, 85)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMatched)
}
