package trail

import (
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
)

// Calculator computes on-trail distance and time for activity paths
type Calculator struct {
	Tolerance float64 // meters
}

// NewCalculator creates a calculator; a non-positive tolerance selects
// DefaultToleranceMeters.
func NewCalculator(tolerance float64) *Calculator {
	if tolerance <= 0 {
		tolerance = DefaultToleranceMeters
	}
	return &Calculator{Tolerance: tolerance}
}

// Classify returns, for every path point, whether it is on-trail. Each point
// is evaluated exactly once.
func (c *Calculator) Classify(path geo.Path, network *Network) []bool {
	flags := make([]bool, len(path))
	if path.Empty() || network == nil || network.Len() == 0 {
		return flags
	}

	// Paths nowhere near the network skip per-point evaluation entirely
	if c.outsideNetwork(path, network) {
		return flags
	}

	for i, p := range path {
		flags[i], _ = network.PointOnTrail(p, c.Tolerance)
	}
	return flags
}

// Compute returns the on-trail distance and proportional moving time. A pair
// of consecutive points counts when at least one endpoint is on-trail. The
// distance never exceeds totalDistance; time is movingTime scaled by the
// on-trail share of totalDistance.
func (c *Calculator) Compute(path geo.Path, totalDistance float64, movingTime int64, network *Network) Result {
	flags := c.Classify(path, network)

	var result Result
	for i, onTrail := range flags {
		if onTrail {
			result.PointsOnTrail++
		}
		if i == 0 {
			continue
		}
		if onTrail || flags[i-1] {
			result.DistanceOnTrailMeters += geo.Haversine(path[i-1], path[i])
		}
	}

	// The recorded distance can differ slightly from the polyline length
	if result.DistanceOnTrailMeters > totalDistance {
		result.DistanceOnTrailMeters = totalDistance
	}
	if result.DistanceOnTrailMeters < 0 {
		result.DistanceOnTrailMeters = 0
	}

	if totalDistance > 0 {
		result.TimeOnTrailSeconds = float64(movingTime) * result.DistanceOnTrailMeters / totalDistance
	}

	return result
}

// outsideNetwork reports whether the path bounding box, padded by twice the
// tolerance, misses the network bounding box.
func (c *Calculator) outsideNetwork(path geo.Path, network *Network) bool {
	padded := orbgeo.BoundPad(geo.Bound(path), 2*c.Tolerance)
	return !padded.Intersects(network.Bound())
}

// OnTrailRuns splits a classified path into contiguous runs joined by
// on-trail pairs. Every run has at least two points.
func OnTrailRuns(path geo.Path, flags []bool) []geo.Path {
	var runs []geo.Path
	var current geo.Path

	for i := 1; i < len(path) && i < len(flags); i++ {
		if flags[i-1] || flags[i] {
			if current == nil {
				current = geo.Path{path[i-1]}
			}
			current = append(current, path[i])
			continue
		}
		if current != nil {
			runs = append(runs, current)
			current = nil
		}
	}
	if current != nil {
		runs = append(runs, current)
	}

	return runs
}
