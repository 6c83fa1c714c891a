package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/partforge/partforge/pkg/geom"
)

const (
	// Axle bores on the hobby parts are nominally 2mm; anything in
	// this diameter window is worth reporting as a candidate.
	minHoleDiameter = 1.5
	maxHoleDiameter = 3.0

	// circleFitTolerance is the maximum radial deviation, in mm, for a
	// loop to count as circular.
	circleFitTolerance = 0.15

	// planarTolerance is the maximum out-of-plane deviation, in mm,
	// for a loop to count as planar.
	planarTolerance = 0.2

	// creaseAngleCos marks an edge as a feature crease when its two
	// face normals differ by more than 45 degrees. A bore meeting a
	// flat cap produces exactly such a crease ring.
	creaseAngleCos = 0.7071067811865476

	minLoopPoints = 6
)

// detectHoles finds candidate axle bores: near-planar, near-circular
// loops built from boundary edges (open meshes) and crease edges
// (closed meshes, where the bore rim is a sharp feature ring). Only
// loops whose center lies in the lower half of the bounding box along
// its shortest axis are kept; a through-hole produces rims on both
// faces of a plate, and the filter also collapses that pair to one
// candidate.
func detectHoles(m *geom.Mesh, edges edgeMap, bounds geom.BoundingBox) []Hole {
	var loopEdges []edgeKey
	for k, info := range edges {
		switch {
		case info.forward+info.backward == 1:
			loopEdges = append(loopEdges, k)
		case info.nfaces == 2:
			n1 := m.FaceNormal(info.faces[0])
			n2 := m.FaceNormal(info.faces[1])
			if r3.Dot(n1, n2) < creaseAngleCos {
				loopEdges = append(loopEdges, k)
			}
		}
	}
	if len(loopEdges) == 0 {
		return nil
	}

	var holes []Hole
	for _, loop := range chainLoops(loopEdges) {
		if len(loop) < minLoopPoints {
			continue
		}
		h, ok := fitCircle(m, loop)
		if !ok {
			continue
		}
		if h.Diameter < minHoleDiameter || h.Diameter > maxHoleDiameter {
			continue
		}
		if !inLowerHalf(h.Center, bounds) {
			continue
		}
		holes = append(holes, h)
	}
	sort.Slice(holes, func(i, j int) bool {
		if holes[i].Diameter != holes[j].Diameter {
			return holes[i].Diameter < holes[j].Diameter
		}
		a, b := holes[i].Center, holes[j].Center
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return holes
}

// chainLoops walks edge adjacency to assemble closed vertex loops.
// Edges are visited in sorted order so the result is stable for
// identical geometry.
func chainLoops(edges []edgeKey) [][]int {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].lo != edges[j].lo {
			return edges[i].lo < edges[j].lo
		}
		return edges[i].hi < edges[j].hi
	})

	adj := make(map[int][]int)
	for _, e := range edges {
		adj[e.lo] = append(adj[e.lo], e.hi)
		adj[e.hi] = append(adj[e.hi], e.lo)
	}
	for v := range adj {
		sort.Ints(adj[v])
	}

	used := make(map[edgeKey]bool, len(edges))
	var loops [][]int
	for _, start := range edges {
		if used[start] {
			continue
		}
		loop := []int{start.lo}
		prev, cur := start.lo, start.hi
		used[start] = true
		closed := false
		for {
			loop = append(loop, cur)
			next := -1
			for _, cand := range adj[cur] {
				if cand == prev || used[newEdgeKey(cur, cand)] {
					continue
				}
				next = cand
				break
			}
			if next < 0 {
				break
			}
			used[newEdgeKey(cur, next)] = true
			prev, cur = cur, next
			if cur == start.lo {
				closed = true
				break
			}
		}
		if closed {
			loops = append(loops, loop)
		}
	}
	return loops
}

// fitCircle checks a loop for planarity and circularity. The plane
// normal comes from Newell's method; the circle is the centroid plus
// mean radius, accepted when every point stays within
// circleFitTolerance of that radius.
func fitCircle(m *geom.Mesh, loop []int) (Hole, bool) {
	n := len(loop)
	pts := make([]r3.Vec, n)
	var centroid r3.Vec
	for i, vi := range loop {
		pts[i] = m.Vertices[vi]
		centroid = r3.Add(centroid, pts[i])
	}
	centroid = r3.Scale(1/float64(n), centroid)

	var normal r3.Vec
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		normal.X += (a.Y - b.Y) * (a.Z + b.Z)
		normal.Y += (a.Z - b.Z) * (a.X + b.X)
		normal.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	if r3.Norm(normal) == 0 {
		return Hole{}, false
	}
	normal = r3.Unit(normal)

	var meanR float64
	for _, p := range pts {
		d := r3.Sub(p, centroid)
		if math.Abs(r3.Dot(d, normal)) > planarTolerance {
			return Hole{}, false
		}
		inPlane := r3.Sub(d, r3.Scale(r3.Dot(d, normal), normal))
		meanR += r3.Norm(inPlane)
	}
	meanR /= float64(n)

	for _, p := range pts {
		d := r3.Sub(p, centroid)
		inPlane := r3.Sub(d, r3.Scale(r3.Dot(d, normal), normal))
		if math.Abs(r3.Norm(inPlane)-meanR) > circleFitTolerance {
			return Hole{}, false
		}
	}
	return Hole{Center: centroid, Diameter: 2 * meanR}, true
}

func inLowerHalf(p r3.Vec, b geom.BoundingBox) bool {
	switch b.ShortestAxis() {
	case 0:
		return p.X <= (b.Min.X+b.Max.X)/2
	case 1:
		return p.Y <= (b.Min.Y+b.Max.Y)/2
	default:
		return p.Z <= (b.Min.Z+b.Max.Z)/2
	}
}
