package codec

import (
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

// plyProperty describes one property of a PLY element. List properties
// record both the count type and the value type.
type plyProperty struct {
	name      string
	typ       string
	list      bool
	countType string
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyHeader struct {
	ascii    bool
	elements []plyElement
}

var plyTypeSize = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4, "float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// DecodePLY parses the ascii and binary_little_endian PLY variants with
// vertex and face elements. Vertex properties beyond x/y/z (and
// nx/ny/nz, which become per-vertex normals) are skipped; other
// elements are skipped whole.
func DecodePLY(data []byte) (*geom.Mesh, error) {
	hdr, body, err := parsePLYHeader(data)
	if err != nil {
		return nil, err
	}
	if hdr.ascii {
		return decodePLYASCII(hdr, body)
	}
	return decodePLYBinary(hdr, body)
}

func parsePLYHeader(data []byte) (*plyHeader, []byte, error) {
	end := bytes.Index(data, []byte("end_header"))
	if end < 0 {
		return nil, nil, errors.New(errors.ErrCodeParse, "PLY missing end_header")
	}
	headerText := string(data[:end])
	// Body starts after the end_header line's newline.
	nl := bytes.IndexByte(data[end:], '\n')
	if nl < 0 {
		return nil, nil, errors.New(errors.ErrCodeParse, "PLY truncated after end_header")
	}
	body := data[end+nl+1:]

	hdr := &plyHeader{}
	sawFormat := false
	for i, line := range strings.Split(headerText, "\n") {
		fields := strings.Fields(strings.TrimSuffix(line, "\r"))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "ply":
			if i != 0 {
				return nil, nil, errors.New(errors.ErrCodeParse, "PLY magic not on first line")
			}
		case "format":
			if len(fields) < 2 {
				return nil, nil, errors.New(errors.ErrCodeParse, "PLY format line incomplete")
			}
			switch fields[1] {
			case "ascii":
				hdr.ascii = true
			case "binary_little_endian":
				hdr.ascii = false
			default:
				return nil, nil, errors.New(errors.ErrCodeParse, "unsupported PLY format %q", fields[1])
			}
			sawFormat = true
		case "element":
			if len(fields) < 3 {
				return nil, nil, errors.New(errors.ErrCodeParse, "PLY element line incomplete")
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, nil, errors.New(errors.ErrCodeParse, "bad PLY element count %q", fields[2])
			}
			hdr.elements = append(hdr.elements, plyElement{name: fields[1], count: n})
		case "property":
			if len(hdr.elements) == 0 {
				return nil, nil, errors.New(errors.ErrCodeParse, "PLY property before any element")
			}
			el := &hdr.elements[len(hdr.elements)-1]
			switch {
			case len(fields) >= 5 && fields[1] == "list":
				el.props = append(el.props, plyProperty{name: fields[4], typ: fields[3], list: true, countType: fields[2]})
			case len(fields) >= 3:
				el.props = append(el.props, plyProperty{name: fields[2], typ: fields[1]})
			default:
				return nil, nil, errors.New(errors.ErrCodeParse, "PLY property line incomplete")
			}
		case "comment", "obj_info":
			// Ignored.
		}
	}
	if !sawFormat {
		return nil, nil, errors.New(errors.ErrCodeParse, "PLY missing format line")
	}
	return hdr, body, nil
}

func decodePLYASCII(hdr *plyHeader, body []byte) (*geom.Mesh, error) {
	tokens := strings.Fields(string(body))
	pos := 0
	next := func() (string, error) {
		if pos >= len(tokens) {
			return "", errors.New(errors.ErrCodeParse, "truncated PLY body")
		}
		t := tokens[pos]
		pos++
		return t, nil
	}

	m := geom.NewMesh(64, 64)
	var normals []r3.Vec
	haveNormals := false
	for _, el := range hdr.elements {
		for i := 0; i < el.count; i++ {
			switch el.name {
			case "vertex":
				var v, n r3.Vec
				rowHasNormal := false
				for _, p := range el.props {
					tok, err := next()
					if err != nil {
						return nil, err
					}
					f, err2 := strconv.ParseFloat(tok, 64)
					if err2 != nil {
						return nil, errors.New(errors.ErrCodeParse, "bad PLY vertex value %q", tok)
					}
					switch p.name {
					case "x":
						v.X = f
					case "y":
						v.Y = f
					case "z":
						v.Z = f
					case "nx":
						n.X, rowHasNormal = f, true
					case "ny":
						n.Y = f
					case "nz":
						n.Z = f
					}
				}
				m.AddVertex(v)
				normals = append(normals, n)
				haveNormals = haveNormals || rowHasNormal
			case "face":
				for _, p := range el.props {
					if !p.list {
						if _, err := next(); err != nil {
							return nil, err
						}
						continue
					}
					tok, err := next()
					if err != nil {
						return nil, err
					}
					n, err2 := strconv.Atoi(tok)
					if err2 != nil || n < 3 {
						return nil, errors.New(errors.ErrCodeParse, "bad PLY face vertex count %q", tok)
					}
					idx := make([]int, n)
					for k := 0; k < n; k++ {
						tok, err := next()
						if err != nil {
							return nil, err
						}
						idx[k], err2 = strconv.Atoi(tok)
						if err2 != nil {
							return nil, errors.New(errors.ErrCodeParse, "bad PLY face index %q", tok)
						}
					}
					if err := addPLYFace(m, idx); err != nil {
						return nil, err
					}
				}
			default:
				// Skip unknown elements token by token.
				for _, p := range el.props {
					if p.list {
						tok, err := next()
						if err != nil {
							return nil, err
						}
						n, err2 := strconv.Atoi(tok)
						if err2 != nil || n < 0 {
							return nil, errors.New(errors.ErrCodeParse, "bad PLY list count %q", tok)
						}
						for k := 0; k < n; k++ {
							if _, err := next(); err != nil {
								return nil, err
							}
						}
					} else if _, err := next(); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return finishPLYMesh(m, normals, haveNormals)
}

func decodePLYBinary(hdr *plyHeader, body []byte) (*geom.Mesh, error) {
	pos := 0
	readScalar := func(typ string) (float64, error) {
		size, ok := plyTypeSize[typ]
		if !ok {
			return 0, errors.New(errors.ErrCodeParse, "unknown PLY type %q", typ)
		}
		if pos+size > len(body) {
			return 0, errors.New(errors.ErrCodeParse, "truncated PLY body")
		}
		b := body[pos:]
		pos += size
		switch typ {
		case "char", "int8":
			return float64(int8(b[0])), nil
		case "uchar", "uint8":
			return float64(b[0]), nil
		case "short", "int16":
			return float64(int16(binary.LittleEndian.Uint16(b))), nil
		case "ushort", "uint16":
			return float64(binary.LittleEndian.Uint16(b)), nil
		case "int", "int32":
			return float64(int32(binary.LittleEndian.Uint32(b))), nil
		case "uint", "uint32":
			return float64(binary.LittleEndian.Uint32(b)), nil
		case "float", "float32":
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
		case "double", "float64":
			return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
		}
		return 0, errors.New(errors.ErrCodeParse, "unknown PLY type %q", typ)
	}

	m := geom.NewMesh(64, 64)
	var normals []r3.Vec
	haveNormals := false
	for _, el := range hdr.elements {
		for i := 0; i < el.count; i++ {
			switch el.name {
			case "vertex":
				var v, n r3.Vec
				for _, p := range el.props {
					f, err := readScalar(p.typ)
					if err != nil {
						return nil, err
					}
					switch p.name {
					case "x":
						v.X = f
					case "y":
						v.Y = f
					case "z":
						v.Z = f
					case "nx":
						n.X, haveNormals = f, true
					case "ny":
						n.Y = f
					case "nz":
						n.Z = f
					}
				}
				m.AddVertex(v)
				normals = append(normals, n)
			case "face":
				for _, p := range el.props {
					if !p.list {
						if _, err := readScalar(p.typ); err != nil {
							return nil, err
						}
						continue
					}
					cf, err := readScalar(p.countType)
					if err != nil {
						return nil, err
					}
					n := int(cf)
					if n < 3 {
						return nil, errors.New(errors.ErrCodeParse, "PLY face has %d vertices", n)
					}
					idx := make([]int, n)
					for k := 0; k < n; k++ {
						f, err := readScalar(p.typ)
						if err != nil {
							return nil, err
						}
						idx[k] = int(f)
					}
					if err := addPLYFace(m, idx); err != nil {
						return nil, err
					}
				}
			default:
				for _, p := range el.props {
					if p.list {
						cf, err := readScalar(p.countType)
						if err != nil {
							return nil, err
						}
						for k := 0; k < int(cf); k++ {
							if _, err := readScalar(p.typ); err != nil {
								return nil, err
							}
						}
					} else if _, err := readScalar(p.typ); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return finishPLYMesh(m, normals, haveNormals)
}

// addPLYFace fan-triangulates a face after range-checking its indices.
func addPLYFace(m *geom.Mesh, idx []int) error {
	for _, i := range idx {
		if i < 0 || i >= m.VertexCount() {
			return errors.New(errors.ErrCodeParse, "PLY face index %d out of range (%d vertices)", i, m.VertexCount())
		}
	}
	for i := 1; i+1 < len(idx); i++ {
		if idx[0] == idx[i] || idx[i] == idx[i+1] || idx[0] == idx[i+1] {
			return errors.New(errors.ErrCodeParse, "PLY face repeats vertex index %d", idx[i])
		}
		m.AddFace(idx[0], idx[i], idx[i+1])
	}
	return nil
}

func finishPLYMesh(m *geom.Mesh, normals []r3.Vec, haveNormals bool) (*geom.Mesh, error) {
	if m.VertexCount() == 0 {
		return nil, errors.New(errors.ErrCodeParse, "PLY contains no vertices")
	}
	if haveNormals {
		m.Normals = normals
	}
	return m, nil
}

// EncodePLY serializes a mesh as ASCII PLY with vertex and face
// elements.
func EncodePLY(m *geom.Mesh) []byte {
	var buf bytes.Buffer
	buf.WriteString("ply\nformat ascii 1.0\ncomment partforge PLY export\n")
	fmt.Fprintf(&buf, "element vertex %d\n", m.VertexCount())
	buf.WriteString("property double x\nproperty double y\nproperty double z\n")
	if m.Normals != nil {
		buf.WriteString("property double nx\nproperty double ny\nproperty double nz\n")
	}
	fmt.Fprintf(&buf, "element face %d\n", m.FaceCount())
	buf.WriteString("property list uchar int vertex_indices\nend_header\n")
	for i, v := range m.Vertices {
		if m.Normals != nil {
			n := m.Normals[i]
			fmt.Fprintf(&buf, "%s %s %s %s %s %s\n",
				fmtCoord(v.X), fmtCoord(v.Y), fmtCoord(v.Z),
				fmtCoord(n.X), fmtCoord(n.Y), fmtCoord(n.Z))
		} else {
			fmt.Fprintf(&buf, "%s %s %s\n", fmtCoord(v.X), fmtCoord(v.Y), fmtCoord(v.Z))
		}
	}
	for _, f := range m.Faces {
		fmt.Fprintf(&buf, "3 %d %d %d\n", f[0], f[1], f[2])
	}
	return buf.Bytes()
}
