// Package codec decodes and encodes interchange formats into and out of
// the geometry model.
//
// Supported formats:
//   - STL: binary and ASCII, auto-detected by header sniffing
//   - OBJ: v/f records; texture and material directives are ignored
//   - PLY: ascii and binary_little_endian variants
//   - SVG: path, rect, circle and polygon elements, decoded to polylines
//   - STEP/IGES: accepted as opaque pass-through bytes, never parsed
//
// Decoding never mutates its input and always returns either a fully
// valid Geometry or a PARSE_ERROR. Encoding fails with
// UNSUPPORTED_FORMAT when the geometry kind does not match the target
// format (for example a 2D path to STL).
//
// # Round-trip guarantee
//
// Decoding a mesh format and re-encoding to the same format reproduces
// vertex positions within 1e-6 and preserves face incidence exactly;
// vertex indices may be renumbered.
package codec

import (
	"strings"

	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/geom"
)

// Format identifies an interchange format.
type Format string

// Supported formats.
const (
	FormatSTL  Format = "stl"
	FormatOBJ  Format = "obj"
	FormatPLY  Format = "ply"
	FormatSVG  Format = "svg"
	FormatSTEP Format = "step"
	FormatIGES Format = "iges"
)

// InputFormats lists every format Decode accepts, in stable order.
var InputFormats = []Format{FormatSTL, FormatOBJ, FormatPLY, FormatSVG, FormatSTEP, FormatIGES}

// OutputFormats lists every format Encode can produce, in stable order.
// STEP and IGES are input-only pass-through formats.
var OutputFormats = []Format{FormatSTL, FormatOBJ, FormatPLY, FormatSVG}

// ParseFormat normalizes a format string ("STL", ".stl", "stp") to a
// Format, or fails with UNSUPPORTED_FORMAT.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "stl":
		return FormatSTL, nil
	case "obj":
		return FormatOBJ, nil
	case "ply":
		return FormatPLY, nil
	case "svg":
		return FormatSVG, nil
	case "step", "stp":
		return FormatSTEP, nil
	case "iges", "igs":
		return FormatIGES, nil
	}
	return "", errors.New(errors.ErrCodeUnsupportedFormat, "unknown format %q", s)
}

// FormatFromFilename derives the format from a filename extension, or
// fails with UNSUPPORTED_FORMAT when the extension is missing or unknown.
func FormatFromFilename(name string) (Format, error) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "", errors.New(errors.ErrCodeUnsupportedFormat, "cannot detect format of %q", name)
	}
	return ParseFormat(name[idx+1:])
}

// Kind distinguishes the three geometry payloads a decode can produce.
type Kind int

const (
	// KindMesh is a 3D triangle mesh.
	KindMesh Kind = iota
	// KindPath is a 2D polyline path.
	KindPath
	// KindOpaque is an unparsed CAD payload (STEP/IGES pass-through).
	KindOpaque
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindPath:
		return "path"
	case KindOpaque:
		return "opaque"
	}
	return "unknown"
}

// Geometry is the decode result: exactly one of Mesh, Path or Raw is
// set, according to Kind.
type Geometry struct {
	Kind Kind
	Mesh *geom.Mesh   // set when Kind == KindMesh
	Path *geom.Path2D // set when Kind == KindPath
	Raw  []byte       // set when Kind == KindOpaque
}

// Decode parses raw bytes in the given format into a Geometry.
// Empty input is rejected before any format-specific parsing.
func Decode(data []byte, format Format) (Geometry, error) {
	if len(data) == 0 {
		return Geometry{}, errors.New(errors.ErrCodeParse, "input is empty")
	}
	switch format {
	case FormatSTL:
		m, err := DecodeSTL(data)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Kind: KindMesh, Mesh: m}, nil
	case FormatOBJ:
		m, err := DecodeOBJ(data)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Kind: KindMesh, Mesh: m}, nil
	case FormatPLY:
		m, err := DecodePLY(data)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Kind: KindMesh, Mesh: m}, nil
	case FormatSVG:
		p, err := DecodeSVG(data)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Kind: KindPath, Path: p}, nil
	case FormatSTEP, FormatIGES:
		raw := make([]byte, len(data))
		copy(raw, data)
		return Geometry{Kind: KindOpaque, Raw: raw}, nil
	}
	return Geometry{}, errors.New(errors.ErrCodeUnsupportedFormat, "cannot decode format %q", format)
}

// Encode serializes a Geometry to the given format.
// Opaque geometry can only be re-emitted in its source format, which
// the orchestrator handles before calling Encode.
func Encode(g Geometry, format Format) ([]byte, error) {
	switch g.Kind {
	case KindMesh:
		switch format {
		case FormatSTL:
			return EncodeSTL(g.Mesh), nil
		case FormatOBJ:
			return EncodeOBJ(g.Mesh), nil
		case FormatPLY:
			return EncodePLY(g.Mesh), nil
		case FormatSVG:
			return nil, errors.New(errors.ErrCodeUnsupportedFormat, "cannot encode a 3D mesh to SVG")
		}
	case KindPath:
		if format == FormatSVG {
			return EncodeSVG(g.Path), nil
		}
		return nil, errors.New(errors.ErrCodeUnsupportedFormat, "cannot encode a 2D path to %s", format)
	case KindOpaque:
		return nil, errors.New(errors.ErrCodeUnsupportedFormat, "CAD pass-through cannot be re-encoded to %s", format)
	}
	return nil, errors.New(errors.ErrCodeUnsupportedFormat, "cannot encode to format %q", format)
}
