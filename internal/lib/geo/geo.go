package geo

import (
	"errors"
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// Haversine calculates great-circle distance between two points in meters
func Haversine(p1, p2 Point) float64 {
	if p1 == p2 {
		return 0
	}

	lat1 := p1.Latitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	dlat := lat2 - lat1
	dlon := (p2.Longitude - p1.Longitude) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// PointToSegment returns the shortest distance in meters from point to the
// segment between start and end. The point is projected onto the great circle
// through the endpoints, the projection is clamped to the segment, and the
// haversine distance to the clamped point is returned.
func PointToSegment(point, start, end Point) float64 {
	if start == end {
		return Haversine(point, start)
	}

	closest := s2.Project(toS2(point), toS2(start), toS2(end))
	return Haversine(point, fromS2(closest))
}

// PathLength returns the summed haversine length of a path in meters
func PathLength(path Path) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += Haversine(path[i-1], path[i])
	}
	return total
}

// emptyBound contains nothing and intersects nothing.
var emptyBound = orb.Bound{
	Min: orb.Point{math.Inf(1), math.Inf(1)},
	Max: orb.Point{math.Inf(-1), math.Inf(-1)},
}

// Bound returns the bounding box of the given points. Longitude is X and
// latitude is Y, matching GeoJSON order.
func Bound(points []Point) orb.Bound {
	if len(points) == 0 {
		return emptyBound
	}

	b := orb.Bound{Min: ToOrb(points[0]), Max: ToOrb(points[0])}
	for _, p := range points[1:] {
		b = b.Extend(ToOrb(p))
	}
	return b
}

// ToOrb converts a Point to an orb.Point ([lon, lat])
func ToOrb(p Point) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// FromOrb converts an orb.Point ([lon, lat]) to a Point
func FromOrb(p orb.Point) Point {
	return Point{Latitude: p.Lat(), Longitude: p.Lon()}
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValid(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// IsValid validates latitude and longitude ranges
func IsValid(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}

func toS2(p Point) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(p.Latitude, p.Longitude))
}

func fromS2(p s2.Point) Point {
	ll := s2.LatLngFromPoint(p)
	return Point{Latitude: ll.Lat.Degrees(), Longitude: ll.Lng.Degrees()}
}
