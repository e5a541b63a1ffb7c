package session

import (
	"fmt"
	"io"
	"time"

	"backend-territory/internal/geodesy"
	"backend-territory/internal/xp"

	"github.com/twpayne/go-kml/v3"
)

// ExportKML writes the session path as a LineString and each loop as a
// Polygon placemark. With masked set, coordinates are displaced by the
// session mask.
func ExportKML(w io.Writer, s WalkSession, masked bool) error {
	var mask *Mask
	if masked {
		mask = s.Mask
	}

	started := time.UnixMilli(s.StartedAtMs).UTC().Format(time.RFC3339)
	docElements := []kml.Element{
		kml.Name(fmt.Sprintf("Walk %s", started)),
	}

	if len(s.Points) >= 2 {
		path := make([]geodesy.LatLng, len(s.Points))
		for i, p := range s.Points {
			path[i] = p.LatLng()
		}
		docElements = append(docElements, kml.Folder(
			kml.Name("Path"),
			kml.Placemark(
				kml.Name("Path"),
				kml.Description(fmt.Sprintf("%d points, %.0f m", len(s.Points), s.DistanceMeters())),
				kml.LineString(
					kml.Coordinates(toCoordinates(mask.ApplyRing(path))...),
				),
			),
		))
	}

	if len(s.Loops) > 0 {
		loopElements := []kml.Element{kml.Name("Loops")}
		for i, l := range s.Loops {
			description := fmt.Sprintf("Area: %.0f m²\nXP: %d", l.AreaSqMeters, xp.AreaToXp(l.AreaSqMeters, xp.DefaultPerSqMile))
			if l.Submitted() {
				description += "\nTerritory: " + l.TerritoryID
			}
			loopElements = append(loopElements, kml.Placemark(
				kml.Name(fmt.Sprintf("Loop %d", i+1)),
				kml.Description(description),
				kml.Polygon(
					kml.OuterBoundaryIs(
						kml.LinearRing(
							kml.Coordinates(toCoordinates(mask.ApplyRing(l.Ring))...),
						),
					),
				),
			))
		}
		docElements = append(docElements, kml.Folder(loopElements...))
	}

	doc := kml.KML(
		kml.Document(docElements...),
	)
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

func toCoordinates(ring []geodesy.LatLng) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(ring))
	for i, p := range ring {
		coords[i] = kml.Coordinate{Lon: p.Lng, Lat: p.Lat}
	}
	return coords
}
