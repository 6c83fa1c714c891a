package geom

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// BoundingBox is an axis-aligned box given by its min and max corners.
type BoundingBox struct {
	Min r3.Vec
	Max r3.Vec
}

// Extents returns the per-axis sizes (max - min) in X, Y, Z order.
func (b BoundingBox) Extents() (x, y, z float64) {
	return b.Max.X - b.Min.X, b.Max.Y - b.Min.Y, b.Max.Z - b.Min.Z
}

// Dimensions returns the canonical (length, width, height) of the box:
// the three extents sorted so that length is the largest and height the
// smallest. This ordering is what the part rules are written against,
// so a wheel lying flat and a wheel standing on its rim report the same
// dimensions.
func (b BoundingBox) Dimensions() (length, width, height float64) {
	x, y, z := b.Extents()
	d := []float64{x, y, z}
	sort.Sort(sort.Reverse(sort.Float64Slice(d)))
	return d[0], d[1], d[2]
}

// Center returns the box center point.
func (b BoundingBox) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// ShortestAxis returns the index (0=X, 1=Y, 2=Z) of the axis with the
// smallest extent. Ties resolve to the lowest index so the result is
// stable for identical geometry.
func (b BoundingBox) ShortestAxis() int {
	x, y, z := b.Extents()
	axis := 0
	best := x
	if y < best {
		axis, best = 1, y
	}
	if z < best {
		axis = 2
	}
	return axis
}
