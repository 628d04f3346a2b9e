package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/dpup/rabbitmiles/server/internal/lib/geo"
	"github.com/dpup/rabbitmiles/server/internal/lib/trail"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "match":
		handleMatch()
	case "distance":
		handleDistance()
	case "decode":
		handleDecode()
	case "export-kml":
		handleExportKML()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleMatch() {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	polyline := fs.String("polyline", "", "Encoded activity polyline")
	distance := fs.Float64("distance", 0, "Recorded activity distance in meters (defaults to the polyline length)")
	movingTime := fs.Int64("moving-time", 0, "Recorded moving time in seconds")
	tolerance := fs.Float64("tolerance", trail.DefaultToleranceMeters, "On-trail tolerance in meters")
	mainFile := fs.String("main", "trails/main.geojson", "Main trail GeoJSON file")
	spursFile := fs.String("spurs", "", "Spur trails GeoJSON file")
	verbose := fs.Bool("verbose", false, "Print every point with its distance to the trail")

	fs.Parse(os.Args[2:])

	if *polyline == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-trail-matcher match --polyline '_p~iF~ps|U_ulLnnqC' --moving-time 1800 --main main.geojson --spurs spurs.geojson")
		os.Exit(1)
	}

	network := loadNetwork(*mainFile, *spursFile)

	path, err := geo.DecodePolyline(*polyline)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	total := *distance
	if total == 0 {
		total = geo.PathLength(path)
	}

	calculator := trail.NewCalculator(*tolerance)
	result := calculator.Compute(path, total, *movingTime, network)

	if *verbose {
		fmt.Printf("POINTS:\n")
		for i, p := range path {
			onTrail, d := network.PointOnTrail(p, calculator.Tolerance)
			marker := " "
			if onTrail {
				marker = "*"
			}
			fmt.Printf("  %s %4d (%.5f, %.5f) %8.1fm\n", marker, i, p.Latitude, p.Longitude, d)
		}
		fmt.Printf("\n")
	}

	fmt.Printf("MATCH RESULT:\n")
	fmt.Printf("  Points: %d (%d on trail)\n", len(path), result.PointsOnTrail)
	fmt.Printf("  Path length: %.1f meters\n", geo.PathLength(path))
	fmt.Printf("  Recorded distance: %.1f meters\n", total)
	fmt.Printf("  Distance on trail: %.1f meters (%.2f miles)\n",
		result.DistanceOnTrailMeters, result.DistanceOnTrailMeters*0.000621371)
	fmt.Printf("  Time on trail: %.0f seconds\n", result.TimeOnTrailSeconds)
	if total > 0 {
		fmt.Printf("  Share on trail: %.1f%%\n", 100*result.DistanceOnTrailMeters/total)
	}
}

func handleDistance() {
	fs := flag.NewFlagSet("distance", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of test point")
	lng := fs.Float64("lng", 0, "Longitude of test point")
	tolerance := fs.Float64("tolerance", trail.DefaultToleranceMeters, "On-trail tolerance in meters")
	mainFile := fs.String("main", "trails/main.geojson", "Main trail GeoJSON file")
	spursFile := fs.String("spurs", "", "Spur trails GeoJSON file")

	fs.Parse(os.Args[2:])

	if *lat == 0 && *lng == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-trail-matcher distance --lat 34.8526 --lng -82.3940 --main main.geojson")
		os.Exit(1)
	}

	p, err := geo.NewPoint(*lat, *lng)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	network := loadNetwork(*mainFile, *spursFile)
	onTrail, d := network.PointOnTrail(p, *tolerance)

	fmt.Printf("Distance test results:\n\n")
	fmt.Printf("  Coordinates: (%.6f, %.6f)\n", p.Latitude, p.Longitude)
	fmt.Printf("  Nearest trail: %.2f meters (%.2f miles)\n", d, d*0.000621371)
	fmt.Printf("  On trail (%.0fm tolerance): %t\n", *tolerance, onTrail)
}

func handleDecode() {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	polyline := fs.String("polyline", "", "Encoded polyline")

	fs.Parse(os.Args[2:])

	if *polyline == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-trail-matcher decode --polyline '_p~iF~ps|U_ulLnnqC_mqNvxq`@'")
		os.Exit(1)
	}

	path, err := geo.DecodePolyline(*polyline)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	fmt.Printf("Decoded %d points (%.1f meters):\n", len(path), geo.PathLength(path))
	for i, p := range path {
		fmt.Printf("  %4d  %.5f, %.5f\n", i, p.Latitude, p.Longitude)
	}
}

func handleExportKML() {
	fs := flag.NewFlagSet("export-kml", flag.ExitOnError)
	polyline := fs.String("polyline", "", "Encoded activity polyline (omit to export only the network)")
	name := fs.String("name", "Activity", "Document name")
	tolerance := fs.Float64("tolerance", trail.DefaultToleranceMeters, "On-trail tolerance in meters")
	mainFile := fs.String("main", "trails/main.geojson", "Main trail GeoJSON file")
	spursFile := fs.String("spurs", "", "Spur trails GeoJSON file")
	output := fs.String("out", "", "Output file (default stdout)")

	fs.Parse(os.Args[2:])

	network := loadNetwork(*mainFile, *spursFile)

	w := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Error creating %s: %v", *output, err)
		}
		defer f.Close()
		w = f
	}

	var err error
	if *polyline == "" {
		err = trail.WriteNetworkKML(w, network)
	} else {
		path, decodeErr := geo.DecodePolyline(*polyline)
		if decodeErr != nil {
			log.Fatalf("Error decoding polyline: %v", decodeErr)
		}
		flags := trail.NewCalculator(*tolerance).Classify(path, network)
		err = trail.WriteActivityKML(w, *name, path, flags)
	}
	if err != nil {
		log.Fatalf("Error writing KML: %v", err)
	}

	if *output != "" {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
	}
}

// loadNetwork parses the main and optional spur documents from disk
func loadNetwork(mainFile, spursFile string) *trail.Network {
	var segments []trail.Segment
	for _, file := range []string{mainFile, spursFile} {
		if file == "" {
			continue
		}
		data, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("Error reading %s: %v", file, err)
		}
		parsed, err := trail.ParseFeatureCollection(data)
		if err != nil {
			log.Fatalf("Error parsing %s: %v", file, err)
		}
		fmt.Fprintf(os.Stderr, "Loaded %d segments from %s (%s)\n", len(parsed), file, humanize.Bytes(uint64(len(data))))
		segments = append(segments, parsed...)
	}

	if len(segments) == 0 {
		log.Fatalf("No trail segments loaded")
	}
	return trail.NewNetwork(segments)
}

func printUsage() {
	fmt.Println("test-trail-matcher - Trail matching developer tool")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  test-trail-matcher <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  match        Compute on-trail distance and time for an encoded polyline")
	fmt.Println("  distance     Distance from a point to the nearest trail segment")
	fmt.Println("  decode       Decode an encoded polyline")
	fmt.Println("  export-kml   Write the trail network or a classified activity as KML")
	fmt.Println("  help         Show this help message")
	fmt.Println("")
	fmt.Println("Run 'test-trail-matcher <command>' without options to see example usage.")
}
