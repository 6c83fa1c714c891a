// Package analysis derives geometric properties from a triangle mesh:
// bounding box, watertightness, volume, surface area, an approximate
// minimum wall thickness, and candidate axle holes.
//
// Analyze is a pure function of the mesh. Everything that samples
// (wall-thickness rays) uses fixed, reproducible sample points, so
// identical geometry always yields an identical Signature. Bad
// geometry never produces an error from this package; it produces
// issues in the Signature instead. The only error Analyze can return
// is a context cancellation.
package analysis

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/partforge/partforge/pkg/geom"
)

// Signature is the geometric fingerprint the classifier and validator
// work from. Dimensions are canonical (length ≥ width ≥ height).
type Signature struct {
	Bounds geom.BoundingBox

	Length float64
	Width  float64
	Height float64

	// Volume is the signed-tetrahedron volume in mm³, only meaningful
	// for a closed surface; nil when the mesh is not watertight.
	Volume *float64

	SurfaceArea float64
	Watertight  bool

	VertexCount int
	FaceCount   int

	// WallThickness is the minimum over the ray samples, in mm. It is
	// an approximation: rays are cast from a fixed subset of faces, so
	// the true minimum over the whole surface may be thinner. Nil when
	// no ray found a back face.
	WallThickness *float64

	// Holes lists detected near-circular loops consistent with an
	// axle bore.
	Holes []Hole

	// Issues collects analysis findings about mesh quality (open
	// edges, degenerate faces). These become mesh-quality issues in
	// the report; they are not errors.
	Issues []string
}

// Hole is a candidate axle bore: a near-planar, near-circular loop.
type Hole struct {
	Center   r3.Vec
	Diameter float64
}

// Analyze computes the Signature of a mesh. The context is checked
// between wall-thickness samples; the only possible error is
// ctx.Err().
func Analyze(ctx context.Context, m *geom.Mesh) (*Signature, error) {
	sig := &Signature{
		Bounds:      m.Bounds(),
		VertexCount: m.VertexCount(),
		FaceCount:   m.FaceCount(),
	}
	sig.Length, sig.Width, sig.Height = sig.Bounds.Dimensions()

	edges := buildEdgeMap(m)
	sig.Watertight = edges.watertight()
	if !sig.Watertight {
		if n := edges.boundaryEdgeCount(); n > 0 {
			sig.Issues = append(sig.Issues, "mesh has open boundary edges")
		} else {
			sig.Issues = append(sig.Issues, "mesh has non-manifold or inconsistently wound edges")
		}
	}

	for i := range m.Faces {
		sig.SurfaceArea += m.FaceArea(i)
	}
	if degenerate := countDegenerateFaces(m); degenerate > 0 {
		sig.Issues = append(sig.Issues, "mesh contains zero-area faces")
	}

	// Volume is reported only for a closed surface. For an open mesh
	// the signed-tetrahedron sum is origin-dependent and meaningless.
	if sig.Watertight {
		v := signedVolume(m)
		sig.Volume = &v
	}

	wt, err := wallThickness(ctx, m)
	if err != nil {
		return nil, err
	}
	sig.WallThickness = wt

	sig.Holes = detectHoles(m, edges, sig.Bounds)
	return sig, nil
}

// signedVolume sums dot(v0, cross(v1, v2))/6 over all faces. For a
// closed, consistently wound surface this is the enclosed volume
// regardless of where the origin sits.
func signedVolume(m *geom.Mesh) float64 {
	var sum float64
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		sum += r3.Dot(a, r3.Cross(b, c))
	}
	v := sum / 6
	if v < 0 {
		v = -v
	}
	return v
}

func countDegenerateFaces(m *geom.Mesh) int {
	n := 0
	for i := range m.Faces {
		if m.FaceArea(i) == 0 {
			n++
		}
	}
	return n
}

// edgeKey is an undirected edge with lo < hi.
type edgeKey struct {
	lo, hi int
}

func newEdgeKey(a, b int) edgeKey {
	if a < b {
		return edgeKey{a, b}
	}
	return edgeKey{b, a}
}

// edgeInfo counts how often an undirected edge occurs in each
// direction, and remembers up to two adjacent faces.
type edgeInfo struct {
	forward  int // occurrences as (lo → hi)
	backward int // occurrences as (hi → lo)
	faces    [2]int
	nfaces   int
}

type edgeMap map[edgeKey]*edgeInfo

func buildEdgeMap(m *geom.Mesh) edgeMap {
	em := make(edgeMap, len(m.Faces)*3/2)
	for fi, f := range m.Faces {
		for e := 0; e < 3; e++ {
			a, b := f[e], f[(e+1)%3]
			k := newEdgeKey(a, b)
			info := em[k]
			if info == nil {
				info = &edgeInfo{}
				em[k] = info
			}
			if a == k.lo {
				info.forward++
			} else {
				info.backward++
			}
			if info.nfaces < 2 {
				info.faces[info.nfaces] = fi
			}
			info.nfaces++
		}
	}
	return em
}

// watertight reports whether every undirected edge is shared by exactly
// two faces with opposite winding.
func (em edgeMap) watertight() bool {
	for _, info := range em {
		if info.forward != 1 || info.backward != 1 {
			return false
		}
	}
	return true
}

func (em edgeMap) boundaryEdgeCount() int {
	n := 0
	for _, info := range em {
		if info.forward+info.backward == 1 {
			n++
		}
	}
	return n
}
