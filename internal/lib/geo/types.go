// Package geo provides the geodesic primitives used by trail matching:
// coordinates, haversine distances, point-to-segment projection and the
// encoded polyline codec.
package geo

// EarthRadiusMeters is the mean Earth radius used for all great-circle math.
const EarthRadiusMeters = 6371000.0

// Point represents a geographic coordinate in WGS84 degrees
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Path is an ordered sequence of points decoded from an activity polyline.
// An empty Path means there is nothing to match.
type Path []Point

// Empty reports whether the path has no points.
func (p Path) Empty() bool {
	return len(p) == 0
}
