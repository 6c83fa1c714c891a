// Package plate generates flat FRP-style plates: a rectangular outline
// extruded to a standard thickness with screw holes punched through.
//
// The subtraction is realized by triangulating the rectangle-minus-
// circles region directly and extruding it, which is an exact boolean
// for this profile class (the only one supported: rectangular outlines
// with circular holes). The triangulator is isolated in this package so
// a general mesh-boolean routine could replace it without touching the
// analyzer or validator.
package plate

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/geom"
)

// Standard plate thicknesses, in mm.
const (
	ThicknessThin  = 1.5
	ThicknessThick = 3.0
)

// Screw hole bounds, in mm. The default matches the nominal clearance
// bore for the standard 2mm screws.
const (
	DefaultScrewHoleDiameter = 2.05
	MinScrewHoleDiameter     = 1.0
	MaxScrewHoleDiameter     = 5.0
)

// holeSegments is the tessellation of each punched hole. 32 segments
// keep a 2mm bore within a few microns of round.
const holeSegments = 32

// rectAreaTolerance accepts an outline as rectangular when its polygon
// area fills at least this fraction of its bounding box.
const rectAreaTolerance = 0.98

// planarRatio is the maximum thickness-to-footprint ratio for a mesh
// to count as a planar profile source.
const planarRatio = 0.25

// Spec describes the plate to generate. HolePositions are relative to
// the outline's min corner.
type Spec struct {
	ThicknessMM         float64  `json:"thickness_mm"`
	ScrewHoleDiameterMM float64  `json:"screw_hole_diameter_mm"`
	HolePositions       []r2.Vec `json:"hole_positions"`
}

// ValidateAndSetDefaults checks the spec and fills the default screw
// hole diameter. It is idempotent.
func (s *Spec) ValidateAndSetDefaults() error {
	if s.ThicknessMM != ThicknessThin && s.ThicknessMM != ThicknessThick {
		return errors.New(errors.ErrCodeInvalidInput,
			"plate thickness must be %.1fmm or %.1fmm, got %gmm", ThicknessThin, ThicknessThick, s.ThicknessMM)
	}
	if s.ScrewHoleDiameterMM == 0 {
		s.ScrewHoleDiameterMM = DefaultScrewHoleDiameter
	}
	if s.ScrewHoleDiameterMM < MinScrewHoleDiameter || s.ScrewHoleDiameterMM > MaxScrewHoleDiameter {
		return errors.New(errors.ErrCodeInvalidInput,
			"screw hole diameter must be in [%g, %g]mm, got %gmm",
			MinScrewHoleDiameter, MaxScrewHoleDiameter, s.ScrewHoleDiameterMM)
	}
	return nil
}

// outline is the resolved rectangular profile in the XY plane.
type outline struct {
	min  r2.Vec
	size r2.Vec
}

// FromPath generates a plate from a 2D path. The path must contain a
// closed polyline whose shape is rectangular within tolerance; the
// largest closed polyline is taken as the outline.
func FromPath(spec Spec, p *geom.Path2D) (*geom.Mesh, error) {
	if err := spec.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	var best *geom.Polyline
	var bestArea float64
	for i := range p.Polylines {
		pl := &p.Polylines[i]
		if !pl.Closed {
			continue
		}
		if a := math.Abs(pl.Area()); a > bestArea {
			best, bestArea = pl, a
		}
	}
	if best == nil {
		return nil, errors.New(errors.ErrCodeGeometry, "non-planar profile: path has no closed outline")
	}

	lo, hi := boundsOf(best.Points)
	boxArea := (hi.X - lo.X) * (hi.Y - lo.Y)
	if boxArea <= 0 || bestArea < rectAreaTolerance*boxArea {
		return nil, errors.New(errors.ErrCodeGeometry, "unsupported profile: outline is not rectangular")
	}
	return build(spec, outline{min: lo, size: r2.Sub(hi, lo)})
}

// FromMesh generates a plate from an existing mesh by projecting its
// silhouette onto its dominant plane. The mesh must be near-planar: its
// extent along the shortest bounding-box axis no more than a quarter of
// the next extent.
func FromMesh(spec Spec, m *geom.Mesh) (*geom.Mesh, error) {
	if err := spec.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	bb := m.Bounds()
	length, width, height := bb.Dimensions()
	if length <= 0 || height > planarRatio*width {
		return nil, errors.New(errors.ErrCodeGeometry, "non-planar profile")
	}

	// Project onto the plane perpendicular to the shortest axis; the
	// silhouette's bounding rectangle becomes the outline.
	axis := bb.ShortestAxis()
	lo := r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi := r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, v := range m.Vertices {
		var p r2.Vec
		switch axis {
		case 0:
			p = r2.Vec{X: v.Y, Y: v.Z}
		case 1:
			p = r2.Vec{X: v.X, Y: v.Z}
		default:
			p = r2.Vec{X: v.X, Y: v.Y}
		}
		lo.X, lo.Y = min(lo.X, p.X), min(lo.Y, p.Y)
		hi.X, hi.Y = max(hi.X, p.X), max(hi.Y, p.Y)
	}
	return build(spec, outline{min: lo, size: r2.Sub(hi, lo)})
}

// build extrudes the outline to the spec thickness with holes punched
// at each position.
func build(spec Spec, o outline) (*geom.Mesh, error) {
	if o.size.X <= 0 || o.size.Y <= 0 {
		return nil, errors.New(errors.ErrCodeGeometry, "outline has zero area")
	}
	r := spec.ScrewHoleDiameterMM / 2
	centers := make([]r2.Vec, len(spec.HolePositions))
	for i, pos := range spec.HolePositions {
		c := r2.Add(o.min, pos)
		if c.X-r <= o.min.X || c.X+r >= o.min.X+o.size.X ||
			c.Y-r <= o.min.Y || c.Y+r >= o.min.Y+o.size.Y {
			return nil, errors.New(errors.ErrCodeGeometry,
				"hole at (%g, %g) does not fit inside the %gx%gmm outline", pos.X, pos.Y, o.size.X, o.size.Y)
		}
		for _, prev := range centers[:i] {
			d := r2.Sub(c, prev)
			if math.Hypot(d.X, d.Y) <= 2*r {
				return nil, errors.New(errors.ErrCodeGeometry, "holes at (%g, %g) overlap a previous hole", pos.X, pos.Y)
			}
		}
		centers[i] = c
	}

	// Outer ring counter-clockwise, hole rings clockwise: the
	// orientation convention the triangulator expects for a region
	// with holes.
	outer := []r2.Vec{
		o.min,
		{X: o.min.X + o.size.X, Y: o.min.Y},
		{X: o.min.X + o.size.X, Y: o.min.Y + o.size.Y},
		{X: o.min.X, Y: o.min.Y + o.size.Y},
	}
	holes := make([][]r2.Vec, len(centers))
	for i, c := range centers {
		ring := make([]r2.Vec, holeSegments)
		for k := 0; k < holeSegments; k++ {
			a := -2 * math.Pi * float64(k) / holeSegments // clockwise
			ring[k] = r2.Vec{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)}
		}
		holes[i] = ring
	}

	points, tris, err := triangulate(outer, holes)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "plate subtraction failed")
	}
	return extrude(points, tris, outer, holes, spec.ThicknessMM), nil
}

// extrude lifts the triangulated profile into a closed solid of the
// given thickness: bottom cap at z=0, top cap at z=thickness, and wall
// quads along the outer ring and each hole ring.
func extrude(points []r2.Vec, tris [][3]int, outer []r2.Vec, holes [][]r2.Vec, thickness float64) *geom.Mesh {
	m := geom.NewMesh(2*len(points), 4*len(tris))
	// Vertex 2i is the bottom copy of point i, 2i+1 the top copy.
	for _, p := range points {
		m.AddVertex(r3.Vec{X: p.X, Y: p.Y})
		m.AddVertex(r3.Vec{X: p.X, Y: p.Y, Z: thickness})
	}
	for _, t := range tris {
		// Top cap keeps the CCW profile winding (+Z normal); bottom
		// cap reverses it (-Z normal).
		m.AddFace(2*t[0]+1, 2*t[1]+1, 2*t[2]+1)
		m.AddFace(2*t[0], 2*t[2], 2*t[1])
	}

	wall := func(start, n int) {
		for i := 0; i < n; i++ {
			a := start + i
			b := start + (i+1)%n
			// Quad (bottom a, bottom b, top b, top a); the ring
			// orientation makes the normal face away from the solid.
			m.AddFace(2*a, 2*b, 2*b+1)
			m.AddFace(2*a, 2*b+1, 2*a+1)
		}
	}
	wall(0, len(outer))
	start := len(outer)
	for _, h := range holes {
		wall(start, len(h))
		start += len(h)
	}
	return m
}

func boundsOf(pts []r2.Vec) (lo, hi r2.Vec) {
	lo = r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi = r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range pts {
		lo.X, lo.Y = min(lo.X, p.X), min(lo.Y, p.Y)
		hi.X, hi.Y = max(hi.X, p.X), max(hi.Y, p.Y)
	}
	return lo, hi
}
