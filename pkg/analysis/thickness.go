package analysis

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/partforge/partforge/pkg/geom"
)

const (
	// wallSamples is the fixed number of surface points probed for the
	// wall-thickness estimate. Sample faces are picked by a constant
	// stride over the face list, never randomly, so the estimate is
	// reproducible for identical geometry.
	wallSamples = 64

	// rayOffset nudges the ray origin off the sampled face so the ray
	// does not immediately re-hit it.
	rayOffset = 1e-6
)

// wallThickness estimates the minimum wall thickness by casting a ray
// from each sampled face centroid along the inverse face normal and
// recording the distance to the first back-face hit. The result is the
// minimum over samples, an approximation of (never thinner than) the
// sampled walls, not a guaranteed global minimum. Returns nil when no
// sample hits a back face, for example on a flat open sheet.
func wallThickness(ctx context.Context, m *geom.Mesh) (*float64, error) {
	if len(m.Faces) == 0 {
		return nil, nil
	}
	stride := len(m.Faces) / wallSamples
	if stride < 1 {
		stride = 1
	}

	best := math.Inf(1)
	for fi := 0; fi < len(m.Faces); fi += stride {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := m.FaceNormal(fi)
		if r3.Norm(n) == 0 {
			continue
		}
		dir := r3.Scale(-1, n)
		origin := r3.Add(m.FaceCentroid(fi), r3.Scale(rayOffset, dir))
		if t, ok := nearestBackFaceHit(m, origin, dir, fi); ok && t < best {
			best = t
		}
	}
	if math.IsInf(best, 1) {
		return nil, nil
	}
	return &best, nil
}

// nearestBackFaceHit casts a ray and returns the distance to the
// closest intersected face whose normal faces away from the ray (the
// inside of the opposite wall). The source face is skipped.
func nearestBackFaceHit(m *geom.Mesh, origin, dir r3.Vec, skip int) (float64, bool) {
	best := math.Inf(1)
	found := false
	for fi := range m.Faces {
		if fi == skip {
			continue
		}
		t, ok := rayTriangle(origin, dir, m, fi)
		if !ok || t >= best {
			continue
		}
		// A back face is one the ray exits through: its outward normal
		// points along the ray direction.
		if r3.Dot(m.FaceNormal(fi), dir) <= 0 {
			continue
		}
		best = t
		found = true
	}
	return best, found
}

// rayTriangle is the Möller–Trumbore intersection test. It returns the
// ray parameter t for a hit strictly in front of the origin.
func rayTriangle(origin, dir r3.Vec, m *geom.Mesh, fi int) (float64, bool) {
	const eps = 1e-12
	f := m.Faces[fi]
	v0, v1, v2 := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]

	e1 := r3.Sub(v1, v0)
	e2 := r3.Sub(v2, v0)
	p := r3.Cross(dir, e2)
	det := r3.Dot(e1, p)
	if det > -eps && det < eps {
		return 0, false
	}
	inv := 1 / det
	s := r3.Sub(origin, v0)
	u := r3.Dot(s, p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := r3.Cross(s, e1)
	v := r3.Dot(dir, q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := r3.Dot(e2, q) * inv
	if t <= rayOffset {
		return 0, false
	}
	return t, true
}
