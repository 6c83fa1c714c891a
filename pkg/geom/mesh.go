// Package geom defines the in-memory geometry model shared by every
// pipeline stage: triangle meshes for 3D input and polyline paths for
// 2D (SVG) input.
//
// The model is deliberately small. A Mesh is an indexed triangle soup
// with an invariant checked by Validate: every face references three
// distinct vertex indices, all in range. Faces are wound
// counter-clockwise when viewed from outside the surface. Vertices are
// not deduplicated on construction; codecs that need welding (STL) do
// it themselves before handing the mesh downstream.
//
// All positions are in millimeters.
package geom

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is an indexed triangle mesh.
//
// Normals are optional per-vertex normals; when present, len(Normals)
// equals len(Vertices). Encoders that need face normals (STL) derive
// them from winding instead.
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]int
	Normals  []r3.Vec
}

// NewMesh creates an empty mesh with capacity hints.
func NewMesh(vertexHint, faceHint int) *Mesh {
	return &Mesh{
		Vertices: make([]r3.Vec, 0, vertexHint),
		Faces:    make([][3]int, 0, faceHint),
	}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) }

// FaceCount returns the number of triangle faces.
func (m *Mesh) FaceCount() int { return len(m.Faces) }

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(v r3.Vec) int {
	m.Vertices = append(m.Vertices, v)
	return len(m.Vertices) - 1
}

// AddFace appends a triangle face referencing existing vertex indices.
func (m *Mesh) AddFace(a, b, c int) {
	m.Faces = append(m.Faces, [3]int{a, b, c})
}

// Validate checks the mesh invariants: at least one vertex, and every
// face referencing three distinct in-range vertex indices.
func (m *Mesh) Validate() error {
	if len(m.Vertices) == 0 {
		return fmt.Errorf("mesh has no vertices")
	}
	if m.Normals != nil && len(m.Normals) != len(m.Vertices) {
		return fmt.Errorf("normal count %d does not match vertex count %d", len(m.Normals), len(m.Vertices))
	}
	n := len(m.Vertices)
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("face %d references vertex %d (mesh has %d vertices)", i, idx, n)
			}
		}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			return fmt.Errorf("face %d is degenerate: repeated vertex index", i)
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box over all vertices.
// The zero BoundingBox is returned for an empty mesh.
func (m *Mesh) Bounds() BoundingBox {
	if len(m.Vertices) == 0 {
		return BoundingBox{}
	}
	bb := BoundingBox{Min: m.Vertices[0], Max: m.Vertices[0]}
	for _, v := range m.Vertices[1:] {
		bb.Min.X = min(bb.Min.X, v.X)
		bb.Min.Y = min(bb.Min.Y, v.Y)
		bb.Min.Z = min(bb.Min.Z, v.Z)
		bb.Max.X = max(bb.Max.X, v.X)
		bb.Max.Y = max(bb.Max.Y, v.Y)
		bb.Max.Z = max(bb.Max.Z, v.Z)
	}
	return bb
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices: make([]r3.Vec, len(m.Vertices)),
		Faces:    make([][3]int, len(m.Faces)),
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Faces, m.Faces)
	if m.Normals != nil {
		out.Normals = make([]r3.Vec, len(m.Normals))
		copy(out.Normals, m.Normals)
	}
	return out
}

// FaceNormal returns the (unnormalized when degenerate) unit normal of
// face i from its counter-clockwise winding.
func (m *Mesh) FaceNormal(i int) r3.Vec {
	f := m.Faces[i]
	a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if r3.Norm(n) == 0 {
		return n
	}
	return r3.Unit(n)
}

// FaceCentroid returns the centroid of face i.
func (m *Mesh) FaceCentroid(i int) r3.Vec {
	f := m.Faces[i]
	s := r3.Add(r3.Add(m.Vertices[f[0]], m.Vertices[f[1]]), m.Vertices[f[2]])
	return r3.Scale(1.0/3.0, s)
}

// FaceArea returns the area of face i.
func (m *Mesh) FaceArea(i int) float64 {
	f := m.Faces[i]
	a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

// Centroid returns the area-weighted surface centroid of the mesh.
// For an empty mesh the zero vector is returned.
func (m *Mesh) Centroid() r3.Vec {
	var acc r3.Vec
	var total float64
	for i := range m.Faces {
		a := m.FaceArea(i)
		acc = r3.Add(acc, r3.Scale(a, m.FaceCentroid(i)))
		total += a
	}
	if total == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/total, acc)
}
