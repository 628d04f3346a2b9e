package trail

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
)

// Network is the union of the main trail and spur segments. It is immutable
// once built and safe to share between goroutines.
type Network struct {
	segments []Segment
	bound    orb.Bound
}

// NewNetwork builds a network from segments
func NewNetwork(segments []Segment) *Network {
	points := make([]geo.Point, 0, len(segments)*2)
	for _, s := range segments {
		points = append(points, s.Start, s.End)
	}

	return &Network{
		segments: segments,
		bound:    geo.Bound(points),
	}
}

// Segments returns the network segments. Callers must not modify the slice.
func (n *Network) Segments() []Segment {
	return n.segments
}

// Len returns the number of segments
func (n *Network) Len() int {
	return len(n.segments)
}

// Bound returns the bounding box of all segment endpoints
func (n *Network) Bound() orb.Bound {
	return n.bound
}

// NearestDistance returns the distance in meters from p to the closest
// segment, or +Inf for an empty network.
func (n *Network) NearestDistance(p geo.Point) float64 {
	minDistance := math.Inf(1)
	for _, s := range n.segments {
		if d := geo.PointToSegment(p, s.Start, s.End); d < minDistance {
			minDistance = d
		}
	}
	return minDistance
}

// PointOnTrail reports whether p is within tolerance meters of the network,
// along with the nearest distance. The comparison is inclusive.
func (n *Network) PointOnTrail(p geo.Point, tolerance float64) (bool, float64) {
	d := n.NearestDistance(p)
	return d <= tolerance+toleranceEpsilon, d
}
