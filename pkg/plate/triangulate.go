package plate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

// triangulate tessellates a region bounded by a counter-clockwise
// outer ring and clockwise hole rings. Holes are merged into the outer
// ring via bridge edges, then the resulting simple polygon is
// ear-clipped. The returned triangles index into the returned point
// slice (outer points first, then each hole ring in order) and are
// wound counter-clockwise.
func triangulate(outer []r2.Vec, holes [][]r2.Vec) ([]r2.Vec, [][3]int, error) {
	points := make([]r2.Vec, 0, len(outer)+len(holes)*holeSegments)
	points = append(points, outer...)

	ring := make([]int, len(outer))
	for i := range outer {
		ring[i] = i
	}

	holeStarts := make([]int, len(holes))
	for i, h := range holes {
		holeStarts[i] = len(points)
		points = append(points, h...)
	}

	// Merge holes right to left so earlier bridges never block a later
	// hole's line of sight to its right.
	order := make([]int, len(holes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return rightmost(holes[order[a]]) > rightmost(holes[order[b]])
	})

	for _, hi := range order {
		var err error
		ring, err = mergeHole(points, ring, holeStarts[hi], len(holes[hi]))
		if err != nil {
			return nil, nil, err
		}
	}

	tris, err := earClip(points, ring)
	if err != nil {
		return nil, nil, err
	}
	return points, tris, nil
}

func rightmost(ring []r2.Vec) float64 {
	m := math.Inf(-1)
	for _, p := range ring {
		m = math.Max(m, p.X)
	}
	return m
}

// mergeHole splices a hole ring into the polygon through a bridge edge
// between a hole vertex and a mutually visible polygon vertex. The
// bridge is traversed twice (once in each direction), turning the
// region with a hole into a simple polygon.
func mergeHole(points []r2.Vec, ring []int, holeStart, holeLen int) ([]int, error) {
	// Candidate bridges, nearest first.
	type bridge struct {
		holeIdx int // offset within the hole ring
		ringPos int // position within the current polygon
		dist2   float64
	}
	var cands []bridge
	for h := 0; h < holeLen; h++ {
		hp := points[holeStart+h]
		for rp, ri := range ring {
			d := r2.Sub(points[ri], hp)
			cands = append(cands, bridge{holeIdx: h, ringPos: rp, dist2: d.X*d.X + d.Y*d.Y})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist2 != cands[j].dist2 {
			return cands[i].dist2 < cands[j].dist2
		}
		if cands[i].holeIdx != cands[j].holeIdx {
			return cands[i].holeIdx < cands[j].holeIdx
		}
		return cands[i].ringPos < cands[j].ringPos
	})

	for _, c := range cands {
		a := points[holeStart+c.holeIdx]
		b := points[ring[c.ringPos]]
		if !segmentClear(points, ring, holeStart, holeLen, a, b) {
			continue
		}
		// Splice: ... ring[pos], hole[h], hole[h+1], ..., hole[h-1],
		// hole[h], ring[pos], ring[pos+1] ...
		merged := make([]int, 0, len(ring)+holeLen+2)
		merged = append(merged, ring[:c.ringPos+1]...)
		for k := 0; k <= holeLen; k++ {
			merged = append(merged, holeStart+(c.holeIdx+k)%holeLen)
		}
		merged = append(merged, ring[c.ringPos:]...)
		return merged, nil
	}
	return nil, fmt.Errorf("no visible bridge for hole")
}

// segmentClear reports whether segment a-b crosses no polygon edge and
// no edge of the hole being merged. Edges sharing an endpoint with the
// segment do not count as crossings.
func segmentClear(points []r2.Vec, ring []int, holeStart, holeLen int, a, b r2.Vec) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		p := points[ring[i]]
		q := points[ring[(i+1)%n]]
		if segmentsCross(a, b, p, q) {
			return false
		}
	}
	for i := 0; i < holeLen; i++ {
		p := points[holeStart+i]
		q := points[holeStart+(i+1)%holeLen]
		if segmentsCross(a, b, p, q) {
			return false
		}
	}
	return true
}

const geomEps = 1e-9

func cross2(o, a, b r2.Vec) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// segmentsCross reports proper intersection of the open segments a-b
// and p-q; shared endpoints are not crossings.
func segmentsCross(a, b, p, q r2.Vec) bool {
	if samePoint(a, p) || samePoint(a, q) || samePoint(b, p) || samePoint(b, q) {
		return false
	}
	d1 := cross2(p, q, a)
	d2 := cross2(p, q, b)
	d3 := cross2(a, b, p)
	d4 := cross2(a, b, q)
	return ((d1 > geomEps && d2 < -geomEps) || (d1 < -geomEps && d2 > geomEps)) &&
		((d3 > geomEps && d4 < -geomEps) || (d3 < -geomEps && d4 > geomEps))
}

func samePoint(a, b r2.Vec) bool {
	return math.Abs(a.X-b.X) <= geomEps && math.Abs(a.Y-b.Y) <= geomEps
}

// earClip triangulates a simple counter-clockwise polygon given as
// point indices. Bridge vertices may repeat; repeats refer to the same
// point index so the triangulation welds back together.
func earClip(points []r2.Vec, ring []int) ([][3]int, error) {
	work := make([]int, len(ring))
	copy(work, ring)

	tris := make([][3]int, 0, len(work)-2)
	guard := 0
	for len(work) > 3 {
		guard++
		if guard > len(ring)*len(ring) {
			return nil, fmt.Errorf("ear clipping did not converge with %d vertices left", len(work))
		}
		clipped := false
		n := len(work)
		for i := 0; i < n; i++ {
			prev := work[(i-1+n)%n]
			cur := work[i]
			next := work[(i+1)%n]
			if !isEar(points, work, prev, cur, next) {
				continue
			}
			tris = append(tris, [3]int{prev, cur, next})
			work = append(work[:i], work[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return nil, fmt.Errorf("no ear found with %d vertices left", len(work))
		}
	}
	a, b, c := work[0], work[1], work[2]
	if cross2(points[a], points[b], points[c]) > geomEps {
		tris = append(tris, [3]int{a, b, c})
	}
	return tris, nil
}

// isEar checks that the corner prev-cur-next is convex and that no
// other polygon vertex lies inside the candidate triangle.
func isEar(points []r2.Vec, work []int, prev, cur, next int) bool {
	a, b, c := points[prev], points[cur], points[next]
	if cross2(a, b, c) <= geomEps {
		return false
	}
	for _, vi := range work {
		if vi == prev || vi == cur || vi == next {
			continue
		}
		if pointInTriangle(points[vi], a, b, c) {
			return false
		}
	}
	return true
}

func pointInTriangle(p, a, b, c r2.Vec) bool {
	d1 := cross2(a, b, p)
	d2 := cross2(b, c, p)
	d3 := cross2(c, a, p)
	return d1 >= -geomEps && d2 >= -geomEps && d3 >= -geomEps
}
