package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box returns a closed axis-aligned box mesh spanning [0,sx]×[0,sy]×[0,sz]
// with outward counter-clockwise winding (8 vertices, 12 triangles).
func Box(sx, sy, sz float64) *Mesh {
	m := NewMesh(8, 12)
	for _, z := range []float64{0, sz} {
		for _, y := range []float64{0, sy} {
			for _, x := range []float64{0, sx} {
				m.AddVertex(r3.Vec{X: x, Y: y, Z: z})
			}
		}
	}
	// Vertex index = x + 2*y + 4*z with x,y,z in {0,1}.
	quads := [][4]int{
		{0, 2, 3, 1}, // bottom (z=0), normal -Z
		{4, 5, 7, 6}, // top (z=sz), normal +Z
		{0, 1, 5, 4}, // front (y=0), normal -Y
		{2, 6, 7, 3}, // back (y=sy), normal +Y
		{0, 4, 6, 2}, // left (x=0), normal -X
		{1, 3, 7, 5}, // right (x=sx), normal +X
	}
	for _, q := range quads {
		m.AddFace(q[0], q[1], q[2])
		m.AddFace(q[0], q[2], q[3])
	}
	return m
}

// Cylinder returns a closed cylinder mesh of the given diameter and
// height, centered on the Z axis with its base at z=0. segments controls
// the ring tessellation and must be at least 3.
func Cylinder(diameter, height float64, segments int) *Mesh {
	if segments < 3 {
		segments = 3
	}
	r := diameter / 2
	m := NewMesh(2*segments+2, 4*segments)

	bottomCenter := m.AddVertex(r3.Vec{})
	topCenter := m.AddVertex(r3.Vec{Z: height})

	bottom := make([]int, segments)
	top := make([]int, segments)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		x, y := r*math.Cos(a), r*math.Sin(a)
		bottom[i] = m.AddVertex(r3.Vec{X: x, Y: y})
		top[i] = m.AddVertex(r3.Vec{X: x, Y: y, Z: height})
	}
	for i := 0; i < segments; i++ {
		j := (i + 1) % segments
		m.AddFace(bottomCenter, bottom[j], bottom[i])
		m.AddFace(topCenter, top[i], top[j])
		m.AddFace(bottom[i], bottom[j], top[j])
		m.AddFace(bottom[i], top[j], top[i])
	}
	return m
}

// Tube returns a closed hollow cylinder (a wheel blank with an axle
// bore): outer diameter, inner bore diameter, and height, centered on
// the Z axis with its base at z=0.
func Tube(outerDiameter, innerDiameter, height float64, segments int) *Mesh {
	if segments < 3 {
		segments = 3
	}
	ro, ri := outerDiameter/2, innerDiameter/2
	m := NewMesh(4*segments, 8*segments)

	outB := make([]int, segments)
	outT := make([]int, segments)
	inB := make([]int, segments)
	inT := make([]int, segments)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		c, s := math.Cos(a), math.Sin(a)
		outB[i] = m.AddVertex(r3.Vec{X: ro * c, Y: ro * s})
		outT[i] = m.AddVertex(r3.Vec{X: ro * c, Y: ro * s, Z: height})
		inB[i] = m.AddVertex(r3.Vec{X: ri * c, Y: ri * s})
		inT[i] = m.AddVertex(r3.Vec{X: ri * c, Y: ri * s, Z: height})
	}
	for i := 0; i < segments; i++ {
		j := (i + 1) % segments
		// Outer wall, outward normals.
		m.AddFace(outB[i], outB[j], outT[j])
		m.AddFace(outB[i], outT[j], outT[i])
		// Inner wall, normals point into the bore.
		m.AddFace(inB[i], inT[j], inB[j])
		m.AddFace(inB[i], inT[i], inT[j])
		// Bottom annulus, normal -Z.
		m.AddFace(outB[i], inB[j], outB[j])
		m.AddFace(outB[i], inB[i], inB[j])
		// Top annulus, normal +Z.
		m.AddFace(outT[i], outT[j], inT[j])
		m.AddFace(outT[i], inT[j], inT[i])
	}
	return m
}
