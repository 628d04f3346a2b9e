// Package trail holds the trail network geometry and the calculation of how
// much of an activity path lies on it.
package trail

import (
	"errors"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
)

// DefaultToleranceMeters is the maximum distance from the nearest trail
// segment for a point to count as on-trail.
const DefaultToleranceMeters = 50.0

// toleranceEpsilon absorbs floating point noise in the inclusive comparison.
const toleranceEpsilon = 1e-6

// ErrGeometryLoad is returned when the trail network cannot be loaded.
var ErrGeometryLoad = errors.New("trail geometry unavailable")

// Segment is a straight segment between two consecutive trail coordinates
type Segment struct {
	Start geo.Point `json:"start"`
	End   geo.Point `json:"end"`
}

// Result is the outcome of matching one activity path against the network
type Result struct {
	DistanceOnTrailMeters float64 `json:"distance_on_trail"`
	TimeOnTrailSeconds    float64 `json:"time_on_trail"`
	PointsOnTrail         int     `json:"points_on_trail"`
}
