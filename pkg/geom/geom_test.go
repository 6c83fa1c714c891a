package geom

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestBoxBounds(t *testing.T) {
	m := Box(10, 20, 5)

	if got := m.VertexCount(); got != 8 {
		t.Errorf("VertexCount() = %d, want 8", got)
	}
	if got := m.FaceCount(); got != 12 {
		t.Errorf("FaceCount() = %d, want 12", got)
	}

	b := m.Bounds()
	if b.Min != (r3.Vec{}) {
		t.Errorf("Bounds().Min = %v, want origin", b.Min)
	}
	if b.Max != (r3.Vec{X: 10, Y: 20, Z: 5}) {
		t.Errorf("Bounds().Max = %v, want {10 20 5}", b.Max)
	}
}

func TestDimensionsCanonicalOrder(t *testing.T) {
	tests := []struct {
		name    string
		sx, sy, sz float64
		length, width, height float64
	}{
		{"already ordered", 30, 20, 10, 30, 20, 10},
		{"height largest", 10, 20, 30, 30, 20, 10},
		{"width largest", 20, 30, 10, 30, 20, 10},
		{"cube", 15, 15, 15, 15, 15, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Box(tt.sx, tt.sy, tt.sz).Bounds()
			l, w, h := b.Dimensions()
			if l != tt.length || w != tt.width || h != tt.height {
				t.Errorf("Dimensions() = %g, %g, %g, want %g, %g, %g", l, w, h, tt.length, tt.width, tt.height)
			}
		})
	}
}

func TestShortestAxis(t *testing.T) {
	tests := []struct {
		name       string
		sx, sy, sz float64
		want       int
	}{
		{"x shortest", 1, 5, 5, 0},
		{"y shortest", 5, 1, 5, 1},
		{"z shortest", 5, 5, 1, 2},
		{"tie goes to lowest index", 5, 5, 5, 0},
		{"xy tie", 2, 2, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Box(tt.sx, tt.sy, tt.sz).Bounds()
			if got := b.ShortestAxis(); got != tt.want {
				t.Errorf("ShortestAxis() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshValidate(t *testing.T) {
	m := NewMesh(3, 1)
	m.AddVertex(r3.Vec{})
	m.AddVertex(r3.Vec{X: 1})
	m.AddVertex(r3.Vec{Y: 1})
	m.AddFace(0, 1, 2)
	if err := m.Validate(); err != nil {
		t.Errorf("Validate() on well-formed mesh: %v", err)
	}

	m.AddFace(0, 1, 3)
	if err := m.Validate(); err == nil {
		t.Error("Validate() accepted out-of-range face index")
	}
}

func TestFaceNormal(t *testing.T) {
	m := NewMesh(3, 1)
	m.AddVertex(r3.Vec{})
	m.AddVertex(r3.Vec{X: 2})
	m.AddVertex(r3.Vec{Y: 2})
	m.AddFace(0, 1, 2)

	n := m.FaceNormal(0)
	if math.Abs(n.X) > 1e-12 || math.Abs(n.Y) > 1e-12 || math.Abs(n.Z-1) > 1e-12 {
		t.Errorf("FaceNormal(0) = %v, want +Z", n)
	}
	if got, want := m.FaceArea(0), 2.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("FaceArea(0) = %g, want %g", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := Box(1, 1, 1)
	c := m.Clone()
	c.Vertices[0].X = 99
	if m.Vertices[0].X == 99 {
		t.Error("Clone() shares vertex storage with the original")
	}
}

func TestCylinderClosed(t *testing.T) {
	m := Cylinder(24, 10, 16)
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	b := m.Bounds()
	l, w, h := b.Dimensions()
	if math.Abs(l-24) > 1e-9 || math.Abs(h-10) > 1e-9 {
		t.Errorf("Dimensions() = %g, %g, %g", l, w, h)
	}
}

func TestTubeHasBore(t *testing.T) {
	m := Tube(24, 2, 10, 32)
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate(): %v", err)
	}
	if got, want := m.VertexCount(), 4*32; got != want {
		t.Errorf("VertexCount() = %d, want %d", got, want)
	}
	if got, want := m.FaceCount(), 8*32; got != want {
		t.Errorf("FaceCount() = %d, want %d", got, want)
	}
}

func TestPolylineArea(t *testing.T) {
	ccw := Polyline{
		Points: []r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
		Closed: true,
	}
	if got := ccw.Area(); math.Abs(got-100) > 1e-12 {
		t.Errorf("Area() = %g, want 100", got)
	}

	cw := Polyline{
		Points: []r2.Vec{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}},
		Closed: true,
	}
	if got := cw.Area(); math.Abs(got+100) > 1e-12 {
		t.Errorf("Area() = %g, want -100 for clockwise winding", got)
	}
}

func TestPath2DBounds(t *testing.T) {
	p := &Path2D{Polylines: []Polyline{
		{Points: []r2.Vec{{X: -5, Y: 2}, {X: 3, Y: 8}}},
		{Points: []r2.Vec{{X: 0, Y: -1}}},
	}}
	lo, hi := p.Bounds2D()
	if lo != (r2.Vec{X: -5, Y: -1}) || hi != (r2.Vec{X: 3, Y: 8}) {
		t.Errorf("Bounds2D() = %v, %v", lo, hi)
	}
}
