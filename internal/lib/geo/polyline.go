package geo

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-polyline"
)

// ErrInvalidPolyline is returned when an encoded polyline cannot be decoded.
var ErrInvalidPolyline = errors.New("invalid polyline")

// DecodePolyline decodes a Google encoded polyline (1e-5 precision) into points
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty polyline string", ErrInvalidPolyline)
	}

	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolyline, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidPolyline, len(rest))
	}

	points := make([]Point, 0, len(coords))
	for i, coord := range coords {
		if len(coord) != 2 {
			return nil, fmt.Errorf("%w: coordinate %d has %d dimensions", ErrInvalidPolyline, i, len(coord))
		}

		point := Point{Latitude: coord[0], Longitude: coord[1]}
		if !IsValid(point) {
			return nil, fmt.Errorf("%w: coordinate %d out of range (%f, %f)", ErrInvalidPolyline, i, coord[0], coord[1])
		}
		points = append(points, point)
	}

	return points, nil
}

// DecodePath decodes an activity polyline. It never fails: empty or malformed
// input yields an empty path, which callers treat as "nothing to match".
func DecodePath(encoded string) Path {
	points, err := DecodePolyline(encoded)
	if err != nil {
		return Path{}
	}
	return Path(points)
}

// EncodePath encodes a path as a Google polyline string
func EncodePath(path Path) string {
	coords := make([][]float64, len(path))
	for i, p := range path {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}
