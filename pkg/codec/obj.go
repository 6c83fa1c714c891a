package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/geom"
)

// DecodeOBJ parses Wavefront OBJ geometry. Only v, vn and f records are
// interpreted; texture, material, group and smoothing directives are
// skipped without error. Faces with more than three corners are
// fan-triangulated. Negative (relative) indices are resolved against
// the vertices seen so far, per the OBJ specification.
func DecodeOBJ(data []byte) (*geom.Mesh, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	m := geom.NewMesh(64, 64)
	var normals []r3.Vec
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, errors.New(errors.ErrCodeParse, "OBJ line %d: vertex needs 3 coordinates", line)
			}
			v, err := parseVec3(fields[1], fields[2], fields[3])
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeParse, err, "OBJ line %d", line)
			}
			m.AddVertex(v)
		case "vn":
			if len(fields) < 4 {
				return nil, errors.New(errors.ErrCodeParse, "OBJ line %d: normal needs 3 coordinates", line)
			}
			n, err := parseVec3(fields[1], fields[2], fields[3])
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeParse, err, "OBJ line %d", line)
			}
			normals = append(normals, n)
		case "f":
			if len(fields) < 4 {
				return nil, errors.New(errors.ErrCodeParse, "OBJ line %d: face needs at least 3 vertices", line)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				i, err := parseOBJIndex(ref, m.VertexCount())
				if err != nil {
					return nil, errors.Wrap(errors.ErrCodeParse, err, "OBJ line %d", line)
				}
				idx = append(idx, i)
			}
			for i := 1; i+1 < len(idx); i++ {
				if idx[0] == idx[i] || idx[i] == idx[i+1] || idx[0] == idx[i+1] {
					return nil, errors.New(errors.ErrCodeParse, "OBJ line %d: face repeats vertex index", line)
				}
				m.AddFace(idx[0], idx[i], idx[i+1])
			}
		default:
			// vt, mtllib, usemtl, o, g, s and friends are ignored.
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "reading OBJ")
	}
	if m.VertexCount() == 0 {
		return nil, errors.New(errors.ErrCodeParse, "OBJ contains no vertices")
	}
	if len(normals) == m.VertexCount() {
		m.Normals = normals
	}
	return m, nil
}

// parseOBJIndex resolves a face vertex reference ("7", "7/1", "7/1/3",
// "7//3", "-1") to a zero-based vertex index.
func parseOBJIndex(ref string, vertexCount int) (int, error) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("bad face index %q", ref)
	}
	switch {
	case n > 0:
		n--
	case n < 0:
		n = vertexCount + n
	default:
		return 0, fmt.Errorf("face index cannot be zero")
	}
	if n < 0 || n >= vertexCount {
		return 0, fmt.Errorf("face index %d out of range (%d vertices)", n+1, vertexCount)
	}
	return n, nil
}

// EncodeOBJ serializes a mesh as ASCII OBJ with 1-based face indices.
func EncodeOBJ(m *geom.Mesh) []byte {
	var buf bytes.Buffer
	buf.WriteString("# partforge OBJ export\n")
	for _, v := range m.Vertices {
		fmt.Fprintf(&buf, "v %s %s %s\n", fmtCoord(v.X), fmtCoord(v.Y), fmtCoord(v.Z))
	}
	for _, n := range m.Normals {
		fmt.Fprintf(&buf, "vn %s %s %s\n", fmtCoord(n.X), fmtCoord(n.Y), fmtCoord(n.Z))
	}
	for _, f := range m.Faces {
		fmt.Fprintf(&buf, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}
	return buf.Bytes()
}

// fmtCoord formats a coordinate with enough digits to survive a decode
// round-trip well inside the 1e-6 tolerance.
func fmtCoord(f float64) string {
	return strconv.FormatFloat(f, 'g', 17, 64)
}
