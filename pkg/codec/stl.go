package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/geom"
)

// Binary STL layout: 80-byte header, uint32 triangle count, then 50-byte
// records of normal (3×float32), three vertices (9×float32) and a
// 2-byte attribute word.
const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

// DecodeSTL parses binary or ASCII STL, auto-detected by header
// sniffing. Identical vertex positions are welded into shared indices so
// the resulting mesh has real connectivity instead of a triangle soup.
func DecodeSTL(data []byte) (*geom.Mesh, error) {
	if isBinarySTL(data) {
		return decodeBinarySTL(data)
	}
	return decodeASCIISTL(data)
}

// isBinarySTL sniffs the layout. A well-formed binary file's length
// matches its declared triangle count exactly, which is a stronger
// signal than the "solid" prefix: some exporters write binary files
// whose header text begins with "solid".
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	if int64(len(data)) == int64(stlHeaderSize+4)+int64(count)*stlTriangleSize {
		return true
	}
	return !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid"))
}

func decodeBinarySTL(data []byte) (*geom.Mesh, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, errors.New(errors.ErrCodeParse, "binary STL too short: %d bytes", len(data))
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	want := int64(stlHeaderSize+4) + int64(count)*stlTriangleSize
	if int64(len(data)) < want {
		return nil, errors.New(errors.ErrCodeParse, "truncated binary STL: header declares %d triangles (%d bytes), got %d bytes", count, want, len(data))
	}

	w := newVertexWelder(int(count) * 3)
	m := geom.NewMesh(int(count)*2, int(count))
	off := stlHeaderSize + 4
	for i := uint32(0); i < count; i++ {
		rec := data[off : off+stlTriangleSize]
		var tri [3]r3.Vec
		for v := 0; v < 3; v++ {
			base := 12 + v*12 // skip the 12-byte normal
			tri[v] = r3.Vec{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[base:]))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[base+4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[base+8:]))),
			}
		}
		addWeldedTriangle(m, w, tri)
		off += stlTriangleSize
	}
	return m, nil
}

func decodeASCIISTL(data []byte) (*geom.Mesh, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	w := newVertexWelder(64)
	m := geom.NewMesh(64, 64)

	var tri []r3.Vec
	sawSolid := false
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "solid":
			sawSolid = true
		case "vertex":
			if len(fields) < 4 {
				return nil, errors.New(errors.ErrCodeParse, "ASCII STL line %d: vertex needs 3 coordinates", line)
			}
			v, err := parseVec3(fields[1], fields[2], fields[3])
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeParse, err, "ASCII STL line %d", line)
			}
			tri = append(tri, v)
		case "endloop":
			if len(tri) != 3 {
				return nil, errors.New(errors.ErrCodeParse, "ASCII STL line %d: loop has %d vertices, want 3", line, len(tri))
			}
			addWeldedTriangle(m, w, [3]r3.Vec{tri[0], tri[1], tri[2]})
			tri = tri[:0]
		case "facet", "outer", "endfacet", "endsolid":
			// Normals are recomputed from winding; facet structure is
			// validated through the vertex/endloop pairing above.
		default:
			return nil, errors.New(errors.ErrCodeParse, "ASCII STL line %d: unexpected token %q", line, fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "reading ASCII STL")
	}
	if !sawSolid {
		return nil, errors.New(errors.ErrCodeParse, "ASCII STL missing solid header")
	}
	if len(m.Faces) == 0 {
		return nil, errors.New(errors.ErrCodeParse, "STL contains no triangles")
	}
	return m, nil
}

// EncodeSTL serializes a mesh as binary STL with normals derived from
// face winding.
func EncodeSTL(m *geom.Mesh) []byte {
	buf := make([]byte, stlHeaderSize+4+len(m.Faces)*stlTriangleSize)
	copy(buf, "partforge binary STL")
	binary.LittleEndian.PutUint32(buf[stlHeaderSize:], uint32(len(m.Faces)))

	off := stlHeaderSize + 4
	for i, f := range m.Faces {
		n := m.FaceNormal(i)
		putVec3f(buf[off:], n)
		putVec3f(buf[off+12:], m.Vertices[f[0]])
		putVec3f(buf[off+24:], m.Vertices[f[1]])
		putVec3f(buf[off+36:], m.Vertices[f[2]])
		// Attribute byte count stays zero.
		off += stlTriangleSize
	}
	return buf
}

func putVec3f(b []byte, v r3.Vec) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(float32(v.Z)))
}

func parseVec3(xs, ys, zs string) (r3.Vec, error) {
	x, err := strconv.ParseFloat(xs, 64)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("bad coordinate %q", xs)
	}
	y, err := strconv.ParseFloat(ys, 64)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("bad coordinate %q", ys)
	}
	z, err := strconv.ParseFloat(zs, 64)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("bad coordinate %q", zs)
	}
	return r3.Vec{X: x, Y: y, Z: z}, nil
}

// vertexWelder maps exact vertex positions to indices so repeated
// corners share one vertex.
type vertexWelder struct {
	index map[r3.Vec]int
}

func newVertexWelder(hint int) *vertexWelder {
	return &vertexWelder{index: make(map[r3.Vec]int, hint)}
}

func (w *vertexWelder) add(m *geom.Mesh, v r3.Vec) int {
	if i, ok := w.index[v]; ok {
		return i
	}
	i := m.AddVertex(v)
	w.index[v] = i
	return i
}

// addWeldedTriangle appends a triangle, welding shared corners and
// dropping degenerate triangles whose corners collapse to fewer than
// three distinct vertices.
func addWeldedTriangle(m *geom.Mesh, w *vertexWelder, tri [3]r3.Vec) {
	a := w.add(m, tri[0])
	b := w.add(m, tri[1])
	c := w.add(m, tri[2])
	if a == b || b == c || a == c {
		return
	}
	m.AddFace(a, b, c)
}
