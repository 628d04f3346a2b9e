package trail

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
)

// ParseFeatureCollection extracts segments from a GeoJSON feature collection.
// Every consecutive coordinate pair of every LineString, and of every line in
// a MultiLineString, becomes one segment. Other geometry types are ignored.
func ParseFeatureCollection(data []byte) ([]Segment, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	var segments []Segment
	for _, feature := range fc.Features {
		if feature == nil {
			continue
		}

		switch g := feature.Geometry.(type) {
		case orb.LineString:
			segments = appendLine(segments, g)
		case orb.MultiLineString:
			for _, line := range g {
				segments = appendLine(segments, line)
			}
		}
	}

	return segments, nil
}

// appendLine adds one segment per consecutive coordinate pair. GeoJSON
// coordinates are [lon, lat].
func appendLine(segments []Segment, line orb.LineString) []Segment {
	for i := 1; i < len(line); i++ {
		segments = append(segments, Segment{
			Start: geo.FromOrb(line[i-1]),
			End:   geo.FromOrb(line[i]),
		})
	}
	return segments
}
