package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/geom"
)

// CurveFlattenTolerance is the maximum chord deviation, in millimeters,
// allowed when flattening Bézier curves and arcs to polylines. It is a
// fixed constant so the same SVG input always flattens to the same
// polyline, keeping downstream reports deterministic.
const CurveFlattenTolerance = 0.05

// circleSegments is the tessellation used for circle elements. 64 keeps
// the chord error of a 30mm wheel circle well under the flatten
// tolerance.
const circleSegments = 64

// DecodeSVG parses path, rect, circle, polygon and polyline elements
// into a Path2D, ignoring styling, transforms and all other elements.
func DecodeSVG(data []byte) (*geom.Path2D, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	out := &geom.Path2D{}
	sawSVG := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeParse, err, "malformed SVG")
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "svg":
			sawSVG = true
		case "path":
			polys, err := parsePathData(attr(start, "d"))
			if err != nil {
				return nil, err
			}
			out.Polylines = append(out.Polylines, polys...)
		case "rect":
			pl, err := parseRect(start)
			if err != nil {
				return nil, err
			}
			out.Polylines = append(out.Polylines, pl)
		case "circle":
			pl, err := parseCircle(start)
			if err != nil {
				return nil, err
			}
			out.Polylines = append(out.Polylines, pl)
		case "polygon", "polyline":
			pts, err := parsePoints(attr(start, "points"))
			if err != nil {
				return nil, err
			}
			out.Polylines = append(out.Polylines, geom.Polyline{
				Points: pts,
				Closed: start.Name.Local == "polygon",
			})
		}
	}
	if !sawSVG {
		return nil, errors.New(errors.ErrCodeParse, "not an SVG document: missing svg root element")
	}
	if len(out.Polylines) == 0 {
		return nil, errors.New(errors.ErrCodeParse, "SVG contains no drawable geometry")
	}
	return out, nil
}

func attr(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func parseLength(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "mm")
	s = strings.TrimSuffix(s, "px")
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeParse, "bad SVG length %q", s)
	}
	return f, nil
}

func parseRect(e xml.StartElement) (geom.Polyline, error) {
	x, err := parseLength(attr(e, "x"))
	if err != nil {
		return geom.Polyline{}, err
	}
	y, err := parseLength(attr(e, "y"))
	if err != nil {
		return geom.Polyline{}, err
	}
	w, err := parseLength(attr(e, "width"))
	if err != nil {
		return geom.Polyline{}, err
	}
	h, err := parseLength(attr(e, "height"))
	if err != nil {
		return geom.Polyline{}, err
	}
	if w <= 0 || h <= 0 {
		return geom.Polyline{}, errors.New(errors.ErrCodeParse, "SVG rect has non-positive size %gx%g", w, h)
	}
	return geom.Polyline{
		Points: []r2.Vec{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}},
		Closed: true,
	}, nil
}

func parseCircle(e xml.StartElement) (geom.Polyline, error) {
	cx, err := parseLength(attr(e, "cx"))
	if err != nil {
		return geom.Polyline{}, err
	}
	cy, err := parseLength(attr(e, "cy"))
	if err != nil {
		return geom.Polyline{}, err
	}
	r, err := parseLength(attr(e, "r"))
	if err != nil {
		return geom.Polyline{}, err
	}
	if r <= 0 {
		return geom.Polyline{}, errors.New(errors.ErrCodeParse, "SVG circle has non-positive radius %g", r)
	}
	pts := make([]r2.Vec, circleSegments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / circleSegments
		pts[i] = r2.Vec{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)}
	}
	return geom.Polyline{Points: pts, Closed: true}, nil
}

func parsePoints(s string) ([]r2.Vec, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) < 4 || len(fields)%2 != 0 {
		return nil, errors.New(errors.ErrCodeParse, "SVG points list needs an even number of at least 4 coordinates")
	}
	pts := make([]r2.Vec, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		x, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, errors.New(errors.ErrCodeParse, "bad SVG coordinate %q", fields[i])
		}
		y, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, errors.New(errors.ErrCodeParse, "bad SVG coordinate %q", fields[i+1])
		}
		pts = append(pts, r2.Vec{X: x, Y: y})
	}
	return pts, nil
}

// pathScanner tokenizes SVG path data: single-letter commands followed
// by runs of numbers separated by whitespace or commas.
type pathScanner struct {
	data string
	pos  int
}

func (s *pathScanner) skipSeparators() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c == ',' || c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			s.pos++
			continue
		}
		return
	}
}

func (s *pathScanner) peekCommand() (byte, bool) {
	s.skipSeparators()
	if s.pos >= len(s.data) {
		return 0, false
	}
	c := s.data[s.pos]
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return c, true
	}
	return 0, false
}

func (s *pathScanner) nextCommand() (byte, bool) {
	if c, ok := s.peekCommand(); ok {
		s.pos++
		return c, true
	}
	return 0, false
}

func (s *pathScanner) done() bool {
	s.skipSeparators()
	return s.pos >= len(s.data)
}

func (s *pathScanner) number() (float64, error) {
	s.skipSeparators()
	start := s.pos
	if s.pos < len(s.data) && (s.data[s.pos] == '+' || s.data[s.pos] == '-') {
		s.pos++
	}
	seenDot := false
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c >= '0' && c <= '9' {
			s.pos++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			s.pos++
			continue
		}
		if c == 'e' || c == 'E' {
			s.pos++
			if s.pos < len(s.data) && (s.data[s.pos] == '+' || s.data[s.pos] == '-') {
				s.pos++
			}
			continue
		}
		break
	}
	if start == s.pos {
		return 0, errors.New(errors.ErrCodeParse, "SVG path: expected number at offset %d", start)
	}
	f, err := strconv.ParseFloat(s.data[start:s.pos], 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeParse, "SVG path: bad number %q", s.data[start:s.pos])
	}
	return f, nil
}

func (s *pathScanner) pair() (r2.Vec, error) {
	x, err := s.number()
	if err != nil {
		return r2.Vec{}, err
	}
	y, err := s.number()
	if err != nil {
		return r2.Vec{}, err
	}
	return r2.Vec{X: x, Y: y}, nil
}

// parsePathData flattens SVG path data to polylines. Supported
// commands: M/m, L/l, H/h, V/v, C/c, Q/q, A/a, Z/z. Curves flatten to
// chords within CurveFlattenTolerance.
func parsePathData(d string) ([]geom.Polyline, error) {
	if strings.TrimSpace(d) == "" {
		return nil, errors.New(errors.ErrCodeParse, "SVG path has no data")
	}
	s := &pathScanner{data: d}

	var out []geom.Polyline
	var cur []r2.Vec
	var pos, start r2.Vec
	cmd := byte(0)

	flush := func(closed bool) {
		if len(cur) >= 2 {
			out = append(out, geom.Polyline{Points: cur, Closed: closed})
		}
		cur = nil
	}

	for !s.done() {
		if c, ok := s.nextCommand(); ok {
			cmd = c
		} else if cmd == 0 {
			return nil, errors.New(errors.ErrCodeParse, "SVG path must start with a command")
		}
		// A command letter followed by extra coordinate sets repeats
		// implicitly; M/m repeats as L/l.
		rel := cmd >= 'a'
		switch cmd {
		case 'M', 'm':
			p, err := s.pair()
			if err != nil {
				return nil, err
			}
			if rel {
				p = r2.Add(pos, p)
			}
			flush(false)
			pos, start = p, p
			cur = append(cur, p)
			if rel {
				cmd = 'l'
			} else {
				cmd = 'L'
			}
		case 'L', 'l':
			p, err := s.pair()
			if err != nil {
				return nil, err
			}
			if rel {
				p = r2.Add(pos, p)
			}
			pos = p
			cur = append(cur, p)
		case 'H', 'h':
			x, err := s.number()
			if err != nil {
				return nil, err
			}
			if rel {
				x += pos.X
			}
			pos = r2.Vec{X: x, Y: pos.Y}
			cur = append(cur, pos)
		case 'V', 'v':
			y, err := s.number()
			if err != nil {
				return nil, err
			}
			if rel {
				y += pos.Y
			}
			pos = r2.Vec{X: pos.X, Y: y}
			cur = append(cur, pos)
		case 'C', 'c':
			c1, err := s.pair()
			if err != nil {
				return nil, err
			}
			c2, err := s.pair()
			if err != nil {
				return nil, err
			}
			end, err := s.pair()
			if err != nil {
				return nil, err
			}
			if rel {
				c1, c2, end = r2.Add(pos, c1), r2.Add(pos, c2), r2.Add(pos, end)
			}
			cur = append(cur, flattenCubic(pos, c1, c2, end)...)
			pos = end
		case 'Q', 'q':
			c1, err := s.pair()
			if err != nil {
				return nil, err
			}
			end, err := s.pair()
			if err != nil {
				return nil, err
			}
			if rel {
				c1, end = r2.Add(pos, c1), r2.Add(pos, end)
			}
			// Promote to cubic and reuse the cubic flattener.
			cc1 := r2.Add(pos, r2.Scale(2.0/3.0, r2.Sub(c1, pos)))
			cc2 := r2.Add(end, r2.Scale(2.0/3.0, r2.Sub(c1, end)))
			cur = append(cur, flattenCubic(pos, cc1, cc2, end)...)
			pos = end
		case 'A', 'a':
			seg, end, err := s.arcArgs(pos, rel)
			if err != nil {
				return nil, err
			}
			cur = append(cur, seg...)
			pos = end
		case 'Z', 'z':
			flush(true)
			pos = start
		default:
			return nil, errors.New(errors.ErrCodeParse, "SVG path: unsupported command %q", string(cmd))
		}
	}
	flush(false)
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeParse, "SVG path produced no segments")
	}
	return out, nil
}

// flattenCubic subdivides a cubic Bézier into chords within
// CurveFlattenTolerance. The segment count is a pure function of the
// control polygon, so identical input always yields identical output.
// The start point is not included in the returned slice.
func flattenCubic(p0, p1, p2, p3 r2.Vec) []r2.Vec {
	n := segmentsFor(polyLen(p0, p1, p2, p3))
	pts := make([]r2.Vec, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		u := 1 - t
		pts[i-1] = r2.Add(
			r2.Add(r2.Scale(u*u*u, p0), r2.Scale(3*u*u*t, p1)),
			r2.Add(r2.Scale(3*u*t*t, p2), r2.Scale(t*t*t, p3)),
		)
	}
	return pts
}

func polyLen(pts ...r2.Vec) float64 {
	var l float64
	for i := 1; i < len(pts); i++ {
		l += math.Hypot(pts[i].X-pts[i-1].X, pts[i].Y-pts[i-1].Y)
	}
	return l
}

// segmentsFor derives a chord count from an arc length so the maximum
// deviation stays near CurveFlattenTolerance, clamped to [4, 256].
func segmentsFor(length float64) int {
	n := int(math.Ceil(math.Sqrt(length / (8 * CurveFlattenTolerance) * 3)))
	if n < 4 {
		n = 4
	}
	if n > 256 {
		n = 256
	}
	return n
}

// arcArgs consumes the seven arc parameters and returns the flattened
// chord points (excluding the start point) and the end position,
// following the SVG endpoint-to-center conversion.
func (s *pathScanner) arcArgs(pos r2.Vec, rel bool) ([]r2.Vec, r2.Vec, error) {
	rx, err := s.number()
	if err != nil {
		return nil, r2.Vec{}, err
	}
	ry, err := s.number()
	if err != nil {
		return nil, r2.Vec{}, err
	}
	rot, err := s.number()
	if err != nil {
		return nil, r2.Vec{}, err
	}
	largeArc, err := s.number()
	if err != nil {
		return nil, r2.Vec{}, err
	}
	sweep, err := s.number()
	if err != nil {
		return nil, r2.Vec{}, err
	}
	end, err := s.pair()
	if err != nil {
		return nil, r2.Vec{}, err
	}
	if rel {
		end = r2.Add(pos, end)
	}
	seg := flattenArc(pos, end, math.Abs(rx), math.Abs(ry), rot*math.Pi/180, largeArc != 0, sweep != 0)
	return seg, end, nil
}

func flattenArc(from, to r2.Vec, rx, ry, phi float64, largeArc, sweep bool) []r2.Vec {
	if rx == 0 || ry == 0 {
		return []r2.Vec{to}
	}
	cosPhi, sinPhi := math.Cos(phi), math.Sin(phi)
	// Step 1: transform to the ellipse frame.
	dx, dy := (from.X-to.X)/2, (from.Y-to.Y)/2
	x1 := cosPhi*dx + sinPhi*dy
	y1 := -sinPhi*dx + cosPhi*dy
	// Scale radii up if the endpoints cannot be joined.
	lambda := x1*x1/(rx*rx) + y1*y1/(ry*ry)
	if lambda > 1 {
		s := math.Sqrt(lambda)
		rx, ry = rx*s, ry*s
	}
	// Step 2: center in the ellipse frame.
	num := rx*rx*ry*ry - rx*rx*y1*y1 - ry*ry*x1*x1
	den := rx*rx*y1*y1 + ry*ry*x1*x1
	co := 0.0
	if den != 0 && num > 0 {
		co = math.Sqrt(num / den)
	}
	if largeArc == sweep {
		co = -co
	}
	cx1 := co * rx * y1 / ry
	cy1 := -co * ry * x1 / rx
	// Step 3: back to user space.
	cx := cosPhi*cx1 - sinPhi*cy1 + (from.X+to.X)/2
	cy := sinPhi*cx1 + cosPhi*cy1 + (from.Y+to.Y)/2

	angle := func(ux, uy, vx, vy float64) float64 {
		a := math.Atan2(uy, ux)
		b := math.Atan2(vy, vx)
		d := b - a
		for d > math.Pi {
			d -= 2 * math.Pi
		}
		for d < -math.Pi {
			d += 2 * math.Pi
		}
		return d
	}
	theta1 := math.Atan2((y1-cy1)/ry, (x1-cx1)/rx)
	dTheta := angle((x1-cx1)/rx, (y1-cy1)/ry, (-x1-cx1)/rx, (-y1-cy1)/ry)
	if !sweep && dTheta > 0 {
		dTheta -= 2 * math.Pi
	}
	if sweep && dTheta < 0 {
		dTheta += 2 * math.Pi
	}

	n := segmentsFor(math.Abs(dTheta) * math.Max(rx, ry))
	pts := make([]r2.Vec, n)
	for i := 1; i <= n; i++ {
		t := theta1 + dTheta*float64(i)/float64(n)
		ex := rx * math.Cos(t)
		ey := ry * math.Sin(t)
		pts[i-1] = r2.Vec{
			X: cosPhi*ex - sinPhi*ey + cx,
			Y: sinPhi*ex + cosPhi*ey + cy,
		}
	}
	// Snap the final point to the exact endpoint.
	pts[n-1] = to
	return pts
}

// EncodeSVG serializes a Path2D as a standalone SVG document in
// millimeter units, one polyline or polygon element per path.
func EncodeSVG(p *geom.Path2D) []byte {
	lo, hi := p.Bounds2D()
	w, h := hi.X-lo.X, hi.Y-lo.Y
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&buf,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%gmm" height="%gmm" viewBox="%g %g %g %g">`+"\n",
		w, h, lo.X, lo.Y, w, h)
	for _, pl := range p.Polylines {
		tag := "polyline"
		if pl.Closed {
			tag = "polygon"
		}
		fmt.Fprintf(&buf, `  <%s fill="none" stroke="black" points="`, tag)
		for i, pt := range pl.Points {
			if i > 0 {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(&buf, "%s,%s", fmtCoord(pt.X), fmtCoord(pt.Y))
		}
		buf.WriteString(`"/>` + "\n")
	}
	buf.WriteString("</svg>\n")
	return buf.Bytes()
}
