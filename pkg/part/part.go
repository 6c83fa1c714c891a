// Package part classifies analyzed geometry into the functional part
// categories the compatibility rules are written against.
//
// Classification is deterministic: a filename hint wins outright, and
// the geometric fallback uses only ordered comparisons on the
// signature, so identical input always yields the identical category.
package part

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/partforge/partforge/pkg/analysis"
	"github.com/partforge/partforge/pkg/geom"
)

// Category is the functional classification of a part.
type Category string

// Part categories.
const (
	CategoryChassis Category = "Chassis"
	CategoryWheel   Category = "Wheel"
	CategoryBody    Category = "Body"
	CategoryUnknown Category = "Unknown"
)

// Chassis plate heuristic bounds, in mm.
const (
	chassisMinLength = 100
	chassisMaxLength = 200
	chassisMinWidth  = 60
	chassisMaxWidth  = 130

	// A chassis reads as a flat plate: height no more than 30% of the
	// smaller footprint dimension.
	chassisFlatnessRatio = 0.3

	// A wheel reads as a squat disc: height no more than 60% of its
	// diameter, with a near-circular silhouette.
	wheelHeightRatio = 0.6

	// minCircularity accepts silhouettes whose bounding-disc fill
	// ratio is at least this close to a perfect circle. A circle
	// scores 1.0, a square 0.5.
	minCircularity = 0.8

	// maxOvality rejects silhouettes whose two in-plane extents differ
	// by more than 10%.
	maxOvality = 0.1
)

// filename tokens checked in precedence order. The first matching
// token decides the category.
var filenameTokens = []struct {
	token    string
	category Category
}{
	{"chassis", CategoryChassis},
	{"frame", CategoryChassis},
	{"wheel", CategoryWheel},
	{"tire", CategoryWheel},
	{"body", CategoryBody},
	{"shell", CategoryBody},
}

// Classify maps a filename hint and geometric signature to a category.
// The mesh is needed for the wheel silhouette check; it may be nil, in
// which case only the filename and box heuristics apply.
func Classify(filename string, sig *analysis.Signature, m *geom.Mesh) Category {
	lower := strings.ToLower(filename)
	for _, ft := range filenameTokens {
		if strings.Contains(lower, ft.token) {
			return ft.category
		}
	}
	if sig == nil {
		return CategoryUnknown
	}

	if isFlatPlate(sig) {
		return CategoryChassis
	}
	if m != nil && isDisc(sig, m) {
		return CategoryWheel
	}
	return CategoryUnknown
}

func isFlatPlate(sig *analysis.Signature) bool {
	if sig.Height > chassisFlatnessRatio*math.Min(sig.Length, sig.Width) {
		return false
	}
	return sig.Length >= chassisMinLength && sig.Length <= chassisMaxLength &&
		sig.Width >= chassisMinWidth && sig.Width <= chassisMaxWidth
}

// isDisc checks the silhouette perpendicular to the shortest axis:
// the two in-plane extents must match within maxOvality, the projected
// vertices must fill the bounding disc (circularity), and the part
// must be squat relative to its diameter.
func isDisc(sig *analysis.Signature, m *geom.Mesh) bool {
	if sig.Length <= 0 || sig.Height > wheelHeightRatio*sig.Length {
		return false
	}
	if math.Abs(sig.Length-sig.Width) > maxOvality*sig.Length {
		return false
	}
	return silhouetteCircularity(m, sig.Bounds) >= minCircularity
}

// silhouetteCircularity projects all vertices onto the plane
// perpendicular to the shortest bounding-box axis and compares the
// nominal silhouette radius (half the mean in-plane extent) to the
// farthest projected vertex. A circular silhouette scores 1.0; corners
// sticking past the nominal radius pull the score down (a square
// scores 0.5).
func silhouetteCircularity(m *geom.Mesh, b geom.BoundingBox) float64 {
	axis := b.ShortestAxis()
	center := b.Center()

	var ext1, ext2 float64
	x, y, z := b.Extents()
	switch axis {
	case 0:
		ext1, ext2 = y, z
	case 1:
		ext1, ext2 = x, z
	default:
		ext1, ext2 = x, y
	}
	nominal := (ext1 + ext2) / 4 // mean radius
	if nominal <= 0 {
		return 0
	}

	var maxR2 float64
	for _, v := range m.Vertices {
		d := r3.Sub(v, center)
		var u, w float64
		switch axis {
		case 0:
			u, w = d.Y, d.Z
		case 1:
			u, w = d.X, d.Z
		default:
			u, w = d.X, d.Y
		}
		if r2 := u*u + w*w; r2 > maxR2 {
			maxR2 = r2
		}
	}
	if maxR2 == 0 {
		return 0
	}
	return nominal * nominal / maxR2
}
