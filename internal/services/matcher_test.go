package services

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
	"github.com/dpup/rabbitmiles/server/internal/lib/trail"
	"github.com/dpup/rabbitmiles/server/internal/metrics"
	"github.com/dpup/rabbitmiles/server/internal/store"
)

func newMatchService(t *testing.T, activities store.ActivityStore, geometry GeometryLoader) (*MatchService, *quartz.Mock, *metrics.Metrics) {
	t.Helper()
	clock := quartz.NewMock(t)
	m := metrics.New(prometheus.NewRegistry())
	return NewMatchService(activities, geometry, trail.DefaultToleranceMeters, WithClock(clock), WithMatchMetrics(m)), clock, m
}

func TestMatchActivity_FullyOnTrail(t *testing.T) {
	activities := newActivityStore(t)
	path := geo.Path{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0.005}, {Latitude: 0, Longitude: 0.01}}
	seed(t, activities, store.Activity{
		ID: 1, AthleteID: 7, StartDate: base, Polyline: ptr(geo.EncodePath(path)),
		Distance: geo.PathLength(path), MovingTime: 3600,
	})

	svc, clock, m := newMatchService(t, activities, &staticGeometry{network: equatorNetwork()})

	outcome, err := svc.MatchActivity(testContext(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.InDelta(t, geo.PathLength(path), outcome.DistanceOnTrail, 1e-6)
	assert.Equal(t, int64(3600), outcome.TimeOnTrail)
	require.NotNil(t, outcome.LastMatched)
	assert.True(t, clock.Now().Equal(*outcome.LastMatched))

	stored, err := activities.GetActivity(testContext(), 1)
	require.NoError(t, err)
	require.NotNil(t, stored.DistanceOnTrail)
	assert.InDelta(t, outcome.DistanceOnTrail, *stored.DistanceOnTrail, 1e-6)
	assert.Equal(t, int64(3600), *stored.TimeOnTrail)
	require.NotNil(t, stored.LastMatched)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Matches.WithLabelValues(StatusSuccess)))
}

func TestMatchActivity_ScenarioTenKilometers(t *testing.T) {
	activities := newActivityStore(t)

	// A 10km segment with the activity riding along it
	end := 10000 / (geo.EarthRadiusMeters * math.Pi / 180)
	network := trail.NewNetwork([]trail.Segment{
		{Start: geo.Point{Latitude: 0, Longitude: 0}, End: geo.Point{Latitude: 0, Longitude: end}},
	})
	var path geo.Path
	for i := 0; i <= 20; i++ {
		path = append(path, geo.Point{Latitude: 0.0001, Longitude: end * float64(i) / 20})
	}
	seed(t, activities, store.Activity{
		ID: 1, StartDate: base, Polyline: ptr(geo.EncodePath(path)), Distance: 10000, MovingTime: 3600,
	})

	svc, _, _ := newMatchService(t, activities, &staticGeometry{network: network})

	outcome, err := svc.MatchActivity(testContext(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 10000, outcome.DistanceOnTrail, 10)
	assert.InDelta(t, 3600, outcome.TimeOnTrail, 4)
	assert.LessOrEqual(t, outcome.DistanceOnTrail, 10000.0)
	assert.LessOrEqual(t, outcome.TimeOnTrail, int64(3600))
}

func TestMatchActivity_OffTrail(t *testing.T) {
	activities := newActivityStore(t)
	path := geo.Path{{Latitude: 0.01, Longitude: 0}, {Latitude: 0.01, Longitude: 0.01}}
	seed(t, activities, store.Activity{
		ID: 1, StartDate: base, Polyline: ptr(geo.EncodePath(path)), Distance: 1200, MovingTime: 300,
	})

	svc, _, _ := newMatchService(t, activities, &staticGeometry{network: equatorNetwork()})

	outcome, err := svc.MatchActivity(testContext(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Zero(t, outcome.DistanceOnTrail)
	assert.Zero(t, outcome.TimeOnTrail)

	stored, err := activities.GetActivity(testContext(), 1)
	require.NoError(t, err)
	require.NotNil(t, stored.DistanceOnTrail)
	assert.Zero(t, *stored.DistanceOnTrail)
	assert.NotNil(t, stored.LastMatched, "A zero match still leaves the backlog")
}

func TestMatchActivity_NoPolylineIsSkipped(t *testing.T) {
	activities := newActivityStore(t)
	seed(t, activities,
		store.Activity{ID: 1, StartDate: base, Distance: 5000, MovingTime: 900,
			DistanceOnTrail: ptr(1234.5), TimeOnTrail: ptr(int64(222))},
		store.Activity{ID: 2, StartDate: base, Polyline: ptr(""), Distance: 5000, MovingTime: 900},
		store.Activity{ID: 3, StartDate: base, Polyline: ptr("_p~iF~ps|U_"), Distance: 5000, MovingTime: 900},
	)

	geometry := &staticGeometry{network: equatorNetwork()}
	svc, _, m := newMatchService(t, activities, geometry)

	for _, id := range []int64{1, 2, 3} {
		outcome, err := svc.MatchActivity(testContext(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, outcome.Status, "activity %d", id)
		assert.NotNil(t, outcome.LastMatched)

		stored, err := activities.GetActivity(testContext(), id)
		require.NoError(t, err)
		assert.NotNil(t, stored.LastMatched, "activity %d should leave the backlog", id)
	}

	// Prior values are left untouched
	stored, err := activities.GetActivity(testContext(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1234.5, *stored.DistanceOnTrail)
	assert.Equal(t, int64(222), *stored.TimeOnTrail)

	assert.Zero(t, geometry.loads, "Geometry is not needed without a path")
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Matches.WithLabelValues(StatusSkipped)))
}

func TestMatchActivity_NotFound(t *testing.T) {
	svc, _, m := newMatchService(t, newActivityStore(t), &staticGeometry{network: equatorNetwork()})

	_, err := svc.MatchActivity(testContext(), 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Matches.WithLabelValues(StatusFailed)))
}

func TestMatchActivity_GeometryFailure(t *testing.T) {
	activities := newActivityStore(t)
	path := geo.Path{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0.01}}
	seed(t, activities, store.Activity{
		ID: 1, StartDate: base, Polyline: ptr(geo.EncodePath(path)), Distance: 1100, MovingTime: 300,
	})

	geometry := &staticGeometry{err: fmt.Errorf("%w: trails/main.geojson: object not found", trail.ErrGeometryLoad)}
	svc, _, m := newMatchService(t, activities, geometry)

	outcome, err := svc.MatchActivity(testContext(), 1)
	assert.ErrorIs(t, err, trail.ErrGeometryLoad)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Reason, "trails/main.geojson")
	assert.Nil(t, outcome.LastMatched)

	stored, err := activities.GetActivity(testContext(), 1)
	require.NoError(t, err)
	assert.Nil(t, stored.LastMatched, "Failed attempts stay in the backlog")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Matches.WithLabelValues(StatusFailed)))
}

func TestMatchActivity_StorageWriteFailure(t *testing.T) {
	activities := newActivityStore(t)
	path := geo.Path{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0.01}}
	seed(t, activities,
		store.Activity{ID: 1, StartDate: base, Polyline: ptr(geo.EncodePath(path)), Distance: 1100, MovingTime: 300},
		store.Activity{ID: 2, StartDate: base, Distance: 1100, MovingTime: 300},
	)

	svc, _, _ := newMatchService(t, failingWrites{activities}, &staticGeometry{network: equatorNetwork()})

	for _, id := range []int64{1, 2} {
		outcome, err := svc.MatchActivity(testContext(), id)
		assert.ErrorIs(t, err, ErrStorageWrite)
		assert.Equal(t, StatusFailed, outcome.Status)
		assert.Contains(t, outcome.Reason, "database is locked")

		stored, err := activities.GetActivity(testContext(), id)
		require.NoError(t, err)
		assert.Nil(t, stored.LastMatched)
	}
}

func TestMatchActivity_Idempotent(t *testing.T) {
	activities := newActivityStore(t)
	path := geo.Path{
		{Latitude: 0.002, Longitude: -0.002},
		{Latitude: 0.0002, Longitude: 0.001},
		{Latitude: 0.0001, Longitude: 0.004},
		{Latitude: 0.003, Longitude: 0.006},
		{Latitude: 0.004, Longitude: 0.008},
	}
	seed(t, activities, store.Activity{
		ID: 1, StartDate: base, Polyline: ptr(geo.EncodePath(path)), Distance: geo.PathLength(path), MovingTime: 700,
	})

	svc, clock, _ := newMatchService(t, activities, &staticGeometry{network: equatorNetwork()})

	first, err := svc.MatchActivity(testContext(), 1)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	second, err := svc.MatchActivity(testContext(), 1)
	require.NoError(t, err)

	assert.Equal(t, first.DistanceOnTrail, second.DistanceOnTrail)
	assert.Equal(t, first.TimeOnTrail, second.TimeOnTrail)
	assert.True(t, second.LastMatched.After(*first.LastMatched))
	assert.Greater(t, first.DistanceOnTrail, 0.0)
	assert.Less(t, first.DistanceOnTrail, geo.PathLength(path))
}
