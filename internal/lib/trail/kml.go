package trail

import (
	"fmt"
	"image/color"
	"io"

	"github.com/twpayne/go-kml"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
)

var (
	trailStyle   = kml.SharedStyle("trail", kml.LineStyle(kml.Color(color.RGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff}), kml.Width(4)))
	onTrailStyle = kml.SharedStyle("on-trail", kml.LineStyle(kml.Color(color.RGBA{R: 0xff, G: 0x6f, B: 0x00, A: 0xff}), kml.Width(5)))
	pathStyle    = kml.SharedStyle("activity", kml.LineStyle(kml.Color(color.RGBA{R: 0x75, G: 0x75, B: 0x75, A: 0xc0}), kml.Width(2)))
)

// WriteNetworkKML writes the trail network as a KML document. Segments that
// share endpoints are joined into polylines.
func WriteNetworkKML(w io.Writer, network *Network) error {
	folder := kml.Folder(kml.Name("Trail network"))
	for i, line := range chainSegments(network.Segments()) {
		folder.Add(kml.Placemark(
			kml.Name(fmt.Sprintf("Trail %d", i+1)),
			kml.StyleURL(trailStyle.URL()),
			lineString(line),
		))
	}

	return kml.KML(kml.Document(
		kml.Name("Trail network"),
		trailStyle,
		folder,
	)).WriteIndent(w, "", "  ")
}

// WriteActivityKML writes an activity path with its on-trail runs highlighted
func WriteActivityKML(w io.Writer, name string, path geo.Path, flags []bool) error {
	doc := kml.Document(kml.Name(name), pathStyle, onTrailStyle)

	if len(path) > 1 {
		doc.Add(kml.Placemark(
			kml.Name("Activity"),
			kml.StyleURL(pathStyle.URL()),
			lineString(path),
		))
	}

	runs := kml.Folder(kml.Name("On trail"))
	for i, run := range OnTrailRuns(path, flags) {
		runs.Add(kml.Placemark(
			kml.Name(fmt.Sprintf("On trail %d (%.0fm)", i+1, geo.PathLength(run))),
			kml.StyleURL(onTrailStyle.URL()),
			lineString(run),
		))
	}
	doc.Add(runs)

	return kml.KML(doc).WriteIndent(w, "", "  ")
}

func lineString(points []geo.Point) kml.Element {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}
	return kml.LineString(kml.Tessellate(true), kml.Coordinates(coords...))
}

// chainSegments joins consecutive segments where one ends at the next start
func chainSegments(segments []Segment) []geo.Path {
	var lines []geo.Path
	var current geo.Path

	for _, s := range segments {
		if len(current) > 0 && current[len(current)-1] == s.Start {
			current = append(current, s.End)
			continue
		}
		if len(current) > 0 {
			lines = append(lines, current)
		}
		current = geo.Path{s.Start, s.End}
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}

	return lines
}
