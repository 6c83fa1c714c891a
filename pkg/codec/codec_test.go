package codec

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/geom"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"stl", FormatSTL, false},
		{"STL", FormatSTL, false},
		{".stl", FormatSTL, false},
		{"obj", FormatOBJ, false},
		{"ply", FormatPLY, false},
		{"svg", FormatSVG, false},
		{"step", FormatSTEP, false},
		{"stp", FormatSTEP, false},
		{"iges", FormatIGES, false},
		{"igs", FormatIGES, false},
		{"dxf", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %t", tt.input, err, tt.wantErr)
			continue
		}
		if err != nil {
			if !errors.Is(err, errors.ErrCodeUnsupportedFormat) {
				t.Errorf("ParseFormat(%q) code = %q, want UNSUPPORTED_FORMAT", tt.input, errors.GetCode(err))
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"chassis.stl", FormatSTL, false},
		{"wheel.v2.OBJ", FormatOBJ, false},
		{"design.svg", FormatSVG, false},
		{"part.stp", FormatSTEP, false},
		{"noextension", "", true},
		{"trailingdot.", "", true},
		{"part.dxf", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromFilename(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatFromFilename(%q) error = %v, wantErr %t", tt.name, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("FormatFromFilename(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	for _, f := range InputFormats {
		if _, err := Decode(nil, f); !errors.Is(err, errors.ErrCodeParse) {
			t.Errorf("Decode(nil, %s) error = %v, want PARSE_ERROR", f, err)
		}
	}
}

func TestDecodeOpaquePassThrough(t *testing.T) {
	raw := []byte("ISO-10303-21;\nHEADER;\nENDSEC;\nEND-ISO-10303-21;\n")
	g, err := Decode(raw, FormatSTEP)
	if err != nil {
		t.Fatalf("Decode(STEP) error = %v", err)
	}
	if g.Kind != KindOpaque {
		t.Fatalf("Kind = %v, want KindOpaque", g.Kind)
	}
	if string(g.Raw) != string(raw) {
		t.Error("Raw payload should match the input bytes")
	}
	// Decoding must copy, not alias, the caller's buffer.
	raw[0] = 'X'
	if g.Raw[0] == 'X' {
		t.Error("Raw payload aliases the input buffer")
	}
}

func TestEncodeKindMismatch(t *testing.T) {
	mesh := Geometry{Kind: KindMesh, Mesh: geom.Box(1, 1, 1)}
	if _, err := Encode(mesh, FormatSVG); !errors.Is(err, errors.ErrCodeUnsupportedFormat) {
		t.Errorf("Encode(mesh, svg) error = %v, want UNSUPPORTED_FORMAT", err)
	}

	path := Geometry{Kind: KindPath, Path: squarePath()}
	if _, err := Encode(path, FormatSTL); !errors.Is(err, errors.ErrCodeUnsupportedFormat) {
		t.Errorf("Encode(path, stl) error = %v, want UNSUPPORTED_FORMAT", err)
	}

	opaque := Geometry{Kind: KindOpaque, Raw: []byte("data")}
	if _, err := Encode(opaque, FormatSTEP); !errors.Is(err, errors.ErrCodeUnsupportedFormat) {
		t.Errorf("Encode(opaque, step) error = %v, want UNSUPPORTED_FORMAT", err)
	}
}

// faceCorners expands each face to its corner positions so meshes can be
// compared across decoders that renumber vertex indices.
func faceCorners(m *geom.Mesh) [][3]r3.Vec {
	out := make([][3]r3.Vec, len(m.Faces))
	for i, f := range m.Faces {
		out[i] = [3]r3.Vec{m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]}
	}
	return out
}

// ===========================================================================
// STL
// ===========================================================================

func TestSTLBinaryRoundTrip(t *testing.T) {
	box := geom.Box(10, 20, 30)
	got, err := DecodeSTL(EncodeSTL(box))
	if err != nil {
		t.Fatalf("DecodeSTL error = %v", err)
	}
	if got.VertexCount() != box.VertexCount() {
		t.Errorf("vertex count = %d, want %d (welding should restore connectivity)", got.VertexCount(), box.VertexCount())
	}
	if diff := cmp.Diff(faceCorners(box), faceCorners(got)); diff != "" {
		t.Errorf("face corners mismatch (-want +got):\n%s", diff)
	}
}

func TestSTLDecodeASCII(t *testing.T) {
	// Two triangles sharing an edge; welding should yield 4 vertices.
	src := `solid square
facet normal 0 0 1
  outer loop
    vertex 0 0 0
    vertex 1 0 0
    vertex 1 1 0
  endloop
endfacet
facet normal 0 0 1
  outer loop
    vertex 0 0 0
    vertex 1 1 0
    vertex 0 1 0
  endloop
endfacet
endsolid square
`
	m, err := DecodeSTL([]byte(src))
	if err != nil {
		t.Fatalf("DecodeSTL error = %v", err)
	}
	if m.VertexCount() != 4 {
		t.Errorf("vertex count = %d, want 4", m.VertexCount())
	}
	if m.FaceCount() != 2 {
		t.Errorf("face count = %d, want 2", m.FaceCount())
	}
}

func TestSTLDecodeASCIIErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing solid header", "facet normal 0 0 1\n"},
		{"unexpected token", "solid x\nbogus 1 2 3\n"},
		{"short loop", "solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 0 0\nvertex 1 0 0\nendloop\n"},
		{"bad coordinate", "solid x\nfacet normal 0 0 1\nouter loop\nvertex a b c\n"},
		{"no triangles", "solid x\nendsolid x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSTL([]byte(tt.src)); !errors.Is(err, errors.ErrCodeParse) {
				t.Errorf("DecodeSTL error = %v, want PARSE_ERROR", err)
			}
		})
	}
}

func TestSTLBinarySniffingSolidHeader(t *testing.T) {
	// Some exporters write binary STL whose 80-byte header begins with
	// "solid". The length check must win over the prefix check.
	buf := make([]byte, stlHeaderSize+4+stlTriangleSize)
	copy(buf, "solid exported-binary")
	binary.LittleEndian.PutUint32(buf[stlHeaderSize:], 1)
	off := stlHeaderSize + 4 + 12
	for v := 0; v < 3; v++ {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(float32(v*v)))
		off += 12
	}
	m, err := DecodeSTL(buf)
	if err != nil {
		t.Fatalf("DecodeSTL error = %v", err)
	}
	if m.FaceCount() != 1 {
		t.Errorf("face count = %d, want 1", m.FaceCount())
	}
}

func TestSTLBinaryTruncated(t *testing.T) {
	buf := make([]byte, stlHeaderSize+4+stlTriangleSize)
	binary.LittleEndian.PutUint32(buf[stlHeaderSize:], 5) // declares 5, carries 1
	_, err := DecodeSTL(buf)
	if !errors.Is(err, errors.ErrCodeParse) {
		t.Fatalf("DecodeSTL error = %v, want PARSE_ERROR", err)
	}
	if !strings.Contains(err.Error(), "truncated") {
		t.Errorf("error %q should mention truncation", err.Error())
	}
}

func TestSTLDegenerateTrianglesDropped(t *testing.T) {
	src := `solid x
facet normal 0 0 1
  outer loop
    vertex 0 0 0
    vertex 0 0 0
    vertex 1 1 0
  endloop
endfacet
facet normal 0 0 1
  outer loop
    vertex 0 0 0
    vertex 1 0 0
    vertex 1 1 0
  endloop
endfacet
endsolid x
`
	m, err := DecodeSTL([]byte(src))
	if err != nil {
		t.Fatalf("DecodeSTL error = %v", err)
	}
	if m.FaceCount() != 1 {
		t.Errorf("face count = %d, want 1 (degenerate triangle should be dropped)", m.FaceCount())
	}
}

// ===========================================================================
// OBJ
// ===========================================================================

func TestOBJDecode(t *testing.T) {
	src := `# exported quad
mtllib materials.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
usemtl plastic
f 1/1 2/1 3/1 4/1
f -4 -2 -3
`
	m, err := DecodeOBJ([]byte(src))
	if err != nil {
		t.Fatalf("DecodeOBJ error = %v", err)
	}
	if m.VertexCount() != 4 {
		t.Errorf("vertex count = %d, want 4", m.VertexCount())
	}
	// A quad fan-triangulates to 2 faces, plus the explicit triangle.
	if m.FaceCount() != 3 {
		t.Errorf("face count = %d, want 3", m.FaceCount())
	}
	// Negative indices resolve against the vertices seen so far.
	if got := m.Faces[2]; got != [3]int{0, 2, 1} {
		t.Errorf("relative-index face = %v, want [0 2 1]", got)
	}
}

func TestOBJDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no vertices", "# empty\n"},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 1 1 0\nf 0 1 2\n"},
		{"index out of range", "v 0 0 0\nf 1 2 3\n"},
		{"repeated index", "v 0 0 0\nv 1 0 0\nv 1 1 0\nf 1 1 2\n"},
		{"bad coordinate", "v a b c\n"},
		{"short face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeOBJ([]byte(tt.src)); !errors.Is(err, errors.ErrCodeParse) {
				t.Errorf("DecodeOBJ error = %v, want PARSE_ERROR", err)
			}
		})
	}
}

func TestOBJRoundTrip(t *testing.T) {
	box := geom.Box(12.5, 60, 3)
	got, err := DecodeOBJ(EncodeOBJ(box))
	if err != nil {
		t.Fatalf("DecodeOBJ error = %v", err)
	}
	if diff := cmp.Diff(box.Vertices, got.Vertices); diff != "" {
		t.Errorf("vertices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(box.Faces, got.Faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}
}

// ===========================================================================
// PLY
// ===========================================================================

func TestPLYDecodeASCII(t *testing.T) {
	src := `ply
format ascii 1.0
comment made by hand
element vertex 4
property float x
property float y
property float z
property uchar red
element face 1
property list uchar int vertex_indices
end_header
0 0 0 255
1 0 0 255
1 1 0 255
0 1 0 255
4 0 1 2 3
`
	m, err := DecodePLY([]byte(src))
	if err != nil {
		t.Fatalf("DecodePLY error = %v", err)
	}
	if m.VertexCount() != 4 {
		t.Errorf("vertex count = %d, want 4", m.VertexCount())
	}
	if m.FaceCount() != 2 {
		t.Errorf("face count = %d, want 2 (quad fan-triangulates)", m.FaceCount())
	}
	if m.Normals != nil {
		t.Error("mesh should have no normals when the file carries none")
	}
}

func TestPLYDecodeBinary(t *testing.T) {
	header := "ply\nformat binary_little_endian 1.0\n" +
		"element vertex 3\nproperty float x\nproperty float y\nproperty float z\n" +
		"element face 1\nproperty list uchar int vertex_indices\nend_header\n"
	var body []byte
	coords := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	for _, c := range coords {
		body = binary.LittleEndian.AppendUint32(body, math.Float32bits(c))
	}
	body = append(body, 3)
	for _, i := range []int32{0, 1, 2} {
		body = binary.LittleEndian.AppendUint32(body, uint32(i))
	}

	m, err := DecodePLY(append([]byte(header), body...))
	if err != nil {
		t.Fatalf("DecodePLY error = %v", err)
	}
	if m.VertexCount() != 3 || m.FaceCount() != 1 {
		t.Errorf("got %d vertices / %d faces, want 3 / 1", m.VertexCount(), m.FaceCount())
	}
	if m.Vertices[1] != (r3.Vec{X: 1}) {
		t.Errorf("vertex 1 = %v, want {1 0 0}", m.Vertices[1])
	}
}

func TestPLYDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing end_header", "ply\nformat ascii 1.0\nelement vertex 1\n"},
		{"big endian unsupported", "ply\nformat binary_big_endian 1.0\nend_header\n"},
		{"missing format", "ply\nelement vertex 0\nend_header\n"},
		{"truncated body", "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n"},
		{"face index out of range", "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n3 0 1 9\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePLY([]byte(tt.src)); !errors.Is(err, errors.ErrCodeParse) {
				t.Errorf("DecodePLY error = %v, want PARSE_ERROR", err)
			}
		})
	}
}

func TestPLYRoundTrip(t *testing.T) {
	box := geom.Box(24, 24, 8.2)
	got, err := DecodePLY(EncodePLY(box))
	if err != nil {
		t.Fatalf("DecodePLY error = %v", err)
	}
	if diff := cmp.Diff(box.Vertices, got.Vertices); diff != "" {
		t.Errorf("vertices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(box.Faces, got.Faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}
}

// ===========================================================================
// SVG
// ===========================================================================

func squarePath() *geom.Path2D {
	p, err := DecodeSVG([]byte(`<svg xmlns="http://www.w3.org/2000/svg"><rect x="0" y="0" width="100" height="60"/></svg>`))
	if err != nil {
		panic(err)
	}
	return p
}

func TestSVGDecodeElements(t *testing.T) {
	src := `<?xml version="1.0"?>
<svg xmlns="http://www.w3.org/2000/svg" width="200mm" height="100mm">
  <rect x="10" y="10" width="150" height="60"/>
  <circle cx="40" cy="40" r="1.025"/>
  <polygon points="0,0 10,0 10,10"/>
  <path d="M 0 0 L 20 0 L 20 20 Z"/>
</svg>`
	p, err := DecodeSVG([]byte(src))
	if err != nil {
		t.Fatalf("DecodeSVG error = %v", err)
	}
	if len(p.Polylines) != 4 {
		t.Fatalf("polyline count = %d, want 4", len(p.Polylines))
	}

	rect := p.Polylines[0]
	if !rect.Closed || len(rect.Points) != 4 {
		t.Errorf("rect: closed=%t points=%d, want closed with 4 points", rect.Closed, len(rect.Points))
	}
	circle := p.Polylines[1]
	if !circle.Closed || len(circle.Points) != circleSegments {
		t.Errorf("circle: closed=%t points=%d, want closed with %d points", circle.Closed, len(circle.Points), circleSegments)
	}
	tri := p.Polylines[3]
	if !tri.Closed || len(tri.Points) != 3 {
		t.Errorf("path: closed=%t points=%d, want closed with 3 points", tri.Closed, len(tri.Points))
	}
}

func TestSVGDecodePathCommands(t *testing.T) {
	// Implicit command repetition, relative moves and H/V shorthands.
	src := `<svg xmlns="http://www.w3.org/2000/svg"><path d="m 1 1 l 4 0 2 0 H 10 V 5 Z"/></svg>`
	p, err := DecodeSVG([]byte(src))
	if err != nil {
		t.Fatalf("DecodeSVG error = %v", err)
	}
	if len(p.Polylines) != 1 {
		t.Fatalf("polyline count = %d, want 1", len(p.Polylines))
	}
	pl := p.Polylines[0]
	if !pl.Closed {
		t.Error("Z should close the subpath")
	}
	want := []struct{ x, y float64 }{{1, 1}, {5, 1}, {7, 1}, {10, 1}, {10, 5}}
	if len(pl.Points) != len(want) {
		t.Fatalf("point count = %d, want %d", len(pl.Points), len(want))
	}
	for i, w := range want {
		if math.Abs(pl.Points[i].X-w.x) > 1e-9 || math.Abs(pl.Points[i].Y-w.y) > 1e-9 {
			t.Errorf("point %d = %v, want (%g, %g)", i, pl.Points[i], w.x, w.y)
		}
	}
}

func TestSVGDecodeCurvesFlatten(t *testing.T) {
	src := `<svg xmlns="http://www.w3.org/2000/svg"><path d="M 0 0 C 0 10 20 10 20 0"/></svg>`
	p, err := DecodeSVG([]byte(src))
	if err != nil {
		t.Fatalf("DecodeSVG error = %v", err)
	}
	pl := p.Polylines[0]
	if len(pl.Points) < 5 {
		t.Errorf("curve flattened to %d points, want several chords", len(pl.Points))
	}
	end := pl.Points[len(pl.Points)-1]
	if math.Abs(end.X-20) > 1e-9 || math.Abs(end.Y) > 1e-9 {
		t.Errorf("curve endpoint = %v, want (20, 0)", end)
	}
}

func TestSVGDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"not svg", `<html><p>hello</p></html>`},
		{"empty svg", `<svg xmlns="http://www.w3.org/2000/svg"></svg>`},
		{"malformed xml", `<svg><rect`},
		{"zero-size rect", `<svg><rect width="0" height="10"/></svg>`},
		{"negative radius", `<svg><circle cx="0" cy="0" r="-4"/></svg>`},
		{"odd points list", `<svg><polygon points="0,0 10,0 10"/></svg>`},
		{"empty path data", `<svg><path d=""/></svg>`},
		{"unknown path command", `<svg><path d="M 0 0 X 1 1"/></svg>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSVG([]byte(tt.src)); !errors.Is(err, errors.ErrCodeParse) {
				t.Errorf("DecodeSVG error = %v, want PARSE_ERROR", err)
			}
		})
	}
}

func TestSVGRoundTrip(t *testing.T) {
	orig := squarePath()
	got, err := DecodeSVG(EncodeSVG(orig))
	if err != nil {
		t.Fatalf("DecodeSVG(EncodeSVG) error = %v", err)
	}
	if diff := cmp.Diff(orig.Polylines, got.Polylines); diff != "" {
		t.Errorf("polylines mismatch (-want +got):\n%s", diff)
	}
}
