package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Polyline is an ordered run of 2D points, optionally closed. A closed
// polyline implicitly connects its last point back to its first; the
// closing point is not duplicated in Points.
type Polyline struct {
	Points []r2.Vec
	Closed bool
}

// Area returns the signed area enclosed by a closed polyline (positive
// for counter-clockwise winding). Open polylines have zero area.
func (p Polyline) Area() float64 {
	if !p.Closed || len(p.Points) < 3 {
		return 0
	}
	var sum float64
	n := len(p.Points)
	for i := 0; i < n; i++ {
		a, b := p.Points[i], p.Points[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// Path2D is the 2D counterpart of Mesh: an ordered sequence of
// polylines decoded from vector input. A Path2D is never promoted to a
// Mesh; the plate generator consumes it directly when extrusion is
// requested.
type Path2D struct {
	Polylines []Polyline
}

// Validate checks that the path contains at least one polyline with at
// least two points.
func (p *Path2D) Validate() error {
	if len(p.Polylines) == 0 {
		return fmt.Errorf("path has no polylines")
	}
	for i, pl := range p.Polylines {
		if len(pl.Points) < 2 {
			return fmt.Errorf("polyline %d has %d points (need at least 2)", i, len(pl.Points))
		}
	}
	return nil
}

// Bounds2D returns the min and max corners over all polyline points.
func (p *Path2D) Bounds2D() (lo, hi r2.Vec) {
	lo = r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi = r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, pl := range p.Polylines {
		for _, pt := range pl.Points {
			lo.X = min(lo.X, pt.X)
			lo.Y = min(lo.Y, pt.Y)
			hi.X = max(hi.X, pt.X)
			hi.Y = max(hi.Y, pt.Y)
		}
	}
	return lo, hi
}
