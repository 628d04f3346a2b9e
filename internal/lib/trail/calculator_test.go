package trail

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
)

// metersToLat converts a north-south offset to degrees of latitude.
func metersToLat(m float64) float64 {
	return m / (geo.EarthRadiusMeters * math.Pi / 180)
}

// equatorNetwork is a single ~1.1km segment along the equator.
func equatorNetwork() *Network {
	return NewNetwork([]Segment{
		{Start: geo.Point{Latitude: 0, Longitude: 0}, End: geo.Point{Latitude: 0, Longitude: 0.01}},
	})
}

func TestNetwork_PointOnTrail(t *testing.T) {
	network := equatorNetwork()

	onTrail, d := network.PointOnTrail(geo.Point{Latitude: metersToLat(50), Longitude: 0.005}, DefaultToleranceMeters)
	assert.True(t, onTrail, "Point exactly at tolerance should be on trail")
	assert.InDelta(t, 50.0, d, 1e-6)

	onTrail, d = network.PointOnTrail(geo.Point{Latitude: metersToLat(50.01), Longitude: 0.005}, DefaultToleranceMeters)
	assert.False(t, onTrail, "Point just beyond tolerance should be off trail")
	assert.InDelta(t, 50.01, d, 1e-6)

	// South of the trail behaves the same
	onTrail, _ = network.PointOnTrail(geo.Point{Latitude: -metersToLat(49), Longitude: 0.002}, DefaultToleranceMeters)
	assert.True(t, onTrail)

	// Past the end of the trail the endpoint distance applies
	onTrail, d = network.PointOnTrail(geo.Point{Latitude: 0, Longitude: 0.0105}, DefaultToleranceMeters)
	assert.False(t, onTrail)
	assert.InDelta(t, geo.Haversine(geo.Point{Latitude: 0, Longitude: 0.0105}, geo.Point{Latitude: 0, Longitude: 0.01}), d, 1e-6)
}

func TestNetwork_Empty(t *testing.T) {
	network := NewNetwork(nil)

	assert.True(t, math.IsInf(network.NearestDistance(geo.Point{}), 1), "Empty network should be infinitely far away")
	onTrail, _ := network.PointOnTrail(geo.Point{}, DefaultToleranceMeters)
	assert.False(t, onTrail)
}

func TestCalculator_FullyOnTrail(t *testing.T) {
	network := equatorNetwork()
	calc := NewCalculator(DefaultToleranceMeters)

	path := geo.Path{
		{Latitude: 0, Longitude: 0.001},
		{Latitude: metersToLat(10), Longitude: 0.004},
		{Latitude: 0, Longitude: 0.008},
	}
	length := geo.PathLength(path)

	result := calc.Compute(path, 2*length, 600, network)
	assert.InDelta(t, length, result.DistanceOnTrailMeters, 1e-6)
	assert.InDelta(t, 300, result.TimeOnTrailSeconds, 1e-6, "Half the recorded distance should get half the moving time")
	assert.Equal(t, 3, result.PointsOnTrail)
}

func TestCalculator_EitherEndpointCounts(t *testing.T) {
	network := equatorNetwork()
	calc := NewCalculator(DefaultToleranceMeters)

	onA := geo.Point{Latitude: 0, Longitude: 0.001}
	off1 := geo.Point{Latitude: metersToLat(500), Longitude: 0.002}
	off2 := geo.Point{Latitude: metersToLat(500), Longitude: 0.006}
	onB := geo.Point{Latitude: 0, Longitude: 0.007}

	path := geo.Path{onA, off1, off2, onB}
	expected := geo.Haversine(onA, off1) + geo.Haversine(off2, onB)

	result := calc.Compute(path, 10000, 3600, network)
	assert.InDelta(t, expected, result.DistanceOnTrailMeters, 1e-6,
		"Pairs touching the trail count, the off-trail middle pair does not")
	assert.InDelta(t, 3600*expected/10000, result.TimeOnTrailSeconds, 1e-6)
	assert.Equal(t, 2, result.PointsOnTrail)

	// Reversing the path gives the same answer
	reversed := geo.Path{onB, off2, off1, onA}
	assert.InDelta(t, expected, calc.Compute(reversed, 10000, 3600, network).DistanceOnTrailMeters, 1e-6)
}

func TestCalculator_ClampsToRecordedDistance(t *testing.T) {
	network := equatorNetwork()
	calc := NewCalculator(DefaultToleranceMeters)

	path := geo.Path{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0.01}}
	require.Greater(t, geo.PathLength(path), 1000.0)

	result := calc.Compute(path, 1000, 240, network)
	assert.Equal(t, 1000.0, result.DistanceOnTrailMeters, "Distance on trail should never exceed the recorded distance")
	assert.Equal(t, 240.0, result.TimeOnTrailSeconds, "Time on trail should never exceed moving time")
}

func TestCalculator_ZeroTotalDistance(t *testing.T) {
	network := equatorNetwork()
	calc := NewCalculator(DefaultToleranceMeters)

	path := geo.Path{{Latitude: 0, Longitude: 0.001}, {Latitude: 0, Longitude: 0.002}}
	result := calc.Compute(path, 0, 100, network)
	assert.Equal(t, 0.0, result.DistanceOnTrailMeters)
	assert.Equal(t, 0.0, result.TimeOnTrailSeconds)
}

func TestCalculator_EmptyAndSinglePoint(t *testing.T) {
	network := equatorNetwork()
	calc := NewCalculator(DefaultToleranceMeters)

	result := calc.Compute(geo.Path{}, 5000, 1200, network)
	assert.Equal(t, Result{}, result)

	result = calc.Compute(geo.Path{{Latitude: 0, Longitude: 0.005}}, 5000, 1200, network)
	assert.Equal(t, 0.0, result.DistanceOnTrailMeters)
	assert.Equal(t, 0.0, result.TimeOnTrailSeconds)
	assert.Equal(t, 1, result.PointsOnTrail)
}

func TestCalculator_QuickRejection(t *testing.T) {
	network := equatorNetwork()
	calc := NewCalculator(DefaultToleranceMeters)

	// Greenville, SC is nowhere near the equator
	path := geo.Path{
		{Latitude: 34.8447, Longitude: -82.4010},
		{Latitude: 34.8501, Longitude: -82.4033},
	}

	flags := calc.Classify(path, network)
	assert.Equal(t, []bool{false, false}, flags)
	assert.Equal(t, Result{}, calc.Compute(path, 700, 300, network))
}

func TestCalculator_NearBoundaryNotRejected(t *testing.T) {
	network := equatorNetwork()
	calc := NewCalculator(DefaultToleranceMeters)

	// Outside the raw network bound but within tolerance of its edge
	path := geo.Path{
		{Latitude: metersToLat(40), Longitude: 0.003},
		{Latitude: metersToLat(45), Longitude: 0.004},
	}
	flags := calc.Classify(path, network)
	assert.Equal(t, []bool{true, true}, flags)
}

func TestNewCalculator_DefaultTolerance(t *testing.T) {
	assert.Equal(t, DefaultToleranceMeters, NewCalculator(0).Tolerance)
	assert.Equal(t, 25.0, NewCalculator(25).Tolerance)
}

func TestOnTrailRuns(t *testing.T) {
	path := geo.Path{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 1},
		{Latitude: 0, Longitude: 2},
		{Latitude: 0, Longitude: 3},
		{Latitude: 0, Longitude: 4},
		{Latitude: 0, Longitude: 5},
	}
	flags := []bool{true, false, false, false, true, true}

	runs := OnTrailRuns(path, flags)
	require.Len(t, runs, 2)
	assert.Equal(t, geo.Path{path[0], path[1]}, runs[0])
	assert.Equal(t, geo.Path{path[3], path[4], path[5]}, runs[1])

	assert.Empty(t, OnTrailRuns(path, make([]bool, len(path))))
	assert.Empty(t, OnTrailRuns(geo.Path{}, nil))
}
