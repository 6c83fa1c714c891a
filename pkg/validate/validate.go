// Package validate applies the fixed Mini 4WD compatibility rules to an
// analyzed geometry signature and produces a structured report.
//
// The rule constants are part of the contract: every client (CLI, HTTP
// API, batch) must reach identical verdicts for identical geometry, so
// there is no configuration surface here. Geometrically "bad" input is
// never an error from this package; it becomes report content. A
// report with valid=false is a normal result, not a failure.
package validate

import (
	"fmt"
	"math"

	"github.com/partforge/partforge/pkg/analysis"
	"github.com/partforge/partforge/pkg/part"
)

// Rule thresholds, in mm. These mirror the Tamiya part envelope and
// never change at runtime.
const (
	ChassisMaxLength = 165.0
	ChassisMaxWidth  = 105.0
	ChassisMaxHeight = 40.0
	ChassisMinWall   = 1.5

	// Advisory minimums: a chassis smaller than this still passes but
	// is probably not usable on the track.
	chassisAdvisoryMinLength = 140.0
	chassisAdvisoryMinWidth  = 90.0

	WheelDiameterSmall  = 24.0
	WheelDiameterLarge  = 30.0
	WheelDiameterTol    = 0.5
	WheelMinThickness   = 2.0
	WheelMaxThickness   = 15.0
	AxleHoleDiameter    = 2.0
	AxleHoleDiameterTol = 0.2

	// axleCandidateTol is the looser window for counting chassis axle
	// hole candidates "near" the nominal bore.
	axleCandidateTol = 0.5

	// Body shells get only advisory checks.
	bodyMaxLength = 165.0
	bodyMaxWidth  = 105.0
	bodyMaxHeight = 50.0
	bodyMinWall   = 0.8
)

// Mesh-quality advisory thresholds.
const (
	highFaceCount = 100000
	lowFaceCount  = 10
)

// Dimensions are the canonical part dimensions in mm.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MeshQuality summarizes mesh statistics and advisory findings.
type MeshQuality struct {
	VertexCount int      `json:"vertex_count"`
	FaceCount   int      `json:"face_count"`
	Issues      []string `json:"issues"`
}

// Report is the structured validation result. Errors are hard
// threshold violations; Warnings are advisory findings; Suggestions
// are actionable remediation text. Valid is false iff Errors is
// non-empty.
type Report struct {
	Valid        bool        `json:"valid"`
	PartType     string      `json:"part_type"`
	Dimensions   Dimensions  `json:"dimensions"`
	Volume       *float64    `json:"volume"`
	IsWatertight bool        `json:"is_watertight"`
	Errors       []string    `json:"errors"`
	Warnings     []string    `json:"warnings"`
	Suggestions  []string    `json:"suggestions"`
	MeshQuality  MeshQuality `json:"mesh_quality"`
}

// finish derives Valid from Errors and normalizes nil slices so the
// serialized report always carries arrays.
func (r *Report) finish() *Report {
	r.Valid = len(r.Errors) == 0
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	if r.MeshQuality.Issues == nil {
		r.MeshQuality.Issues = []string{}
	}
	return r
}

// Validate applies the category's rule set to the signature. When
// excludeWheels is set and the category is Wheel, every numeric check
// is skipped and the report is valid with an informational warning.
func Validate(sig *analysis.Signature, category part.Category, excludeWheels bool) *Report {
	r := &Report{
		PartType: string(category),
		Dimensions: Dimensions{
			Length: sig.Length,
			Width:  sig.Width,
			Height: sig.Height,
		},
		Volume:       sig.Volume,
		IsWatertight: sig.Watertight,
		MeshQuality:  meshQuality(sig),
	}

	if excludeWheels && category == part.CategoryWheel {
		r.Warnings = append(r.Warnings, "Wheel validation skipped (exclude_wheels enabled)")
		return r.finish()
	}

	switch category {
	case part.CategoryChassis:
		validateChassis(sig, r)
	case part.CategoryWheel:
		validateWheel(sig, r)
	case part.CategoryBody:
		validateBody(sig, r)
	default:
		r.Warnings = append(r.Warnings, "Unrecognized part type - basic validation only")
	}

	if !sig.Watertight {
		r.Warnings = append(r.Warnings, "Mesh is not watertight - may cause 3D printing issues")
		r.Suggestions = append(r.Suggestions, "Fix mesh holes and ensure watertight geometry")
	}

	return r.finish()
}

// Validate2D is the fixed report for SVG input: 2D files carry no
// volume to check, so they always pass with a single warning.
func Validate2D() *Report {
	r := &Report{
		PartType: "2D Design",
		Warnings: []string{"2D files cannot be validated for part compatibility"},
	}
	return r.finish()
}

// ValidateOpaque is the fixed report for STEP/IGES pass-through
// input, which is never tessellated and therefore never measured.
func ValidateOpaque() *Report {
	r := &Report{
		PartType: string(part.CategoryUnknown),
		Warnings: []string{"CAD pass-through: not geometrically validated"},
	}
	return r.finish()
}

func validateChassis(sig *analysis.Signature, r *Report) {
	if sig.Length > ChassisMaxLength {
		r.Errors = append(r.Errors, fmt.Sprintf("Length %.2fmm exceeds maximum %.0fmm", sig.Length, ChassisMaxLength))
		r.Suggestions = append(r.Suggestions, fmt.Sprintf("Reduce length to ≤%.0fmm", ChassisMaxLength))
	}
	if sig.Width > ChassisMaxWidth {
		r.Errors = append(r.Errors, fmt.Sprintf("Width %.2fmm exceeds maximum %.0fmm", sig.Width, ChassisMaxWidth))
		r.Suggestions = append(r.Suggestions, fmt.Sprintf("Reduce width to ≤%.0fmm", ChassisMaxWidth))
	}
	if sig.Height > ChassisMaxHeight {
		r.Errors = append(r.Errors, fmt.Sprintf("Height %.2fmm exceeds maximum %.0fmm", sig.Height, ChassisMaxHeight))
		r.Suggestions = append(r.Suggestions, fmt.Sprintf("Reduce height to ≤%.0fmm", ChassisMaxHeight))
	}

	if sig.Length < chassisAdvisoryMinLength {
		r.Warnings = append(r.Warnings, "Chassis length might be too short for a standard track")
	}
	if sig.Width < chassisAdvisoryMinWidth {
		r.Warnings = append(r.Warnings, "Chassis width might be too narrow")
	}

	switch {
	case sig.WallThickness == nil:
		r.Warnings = append(r.Warnings, "Could not estimate wall thickness")
	case *sig.WallThickness < ChassisMinWall:
		r.Errors = append(r.Errors, fmt.Sprintf("Wall thickness %.2fmm is below minimum %.1fmm", *sig.WallThickness, ChassisMinWall))
		r.Suggestions = append(r.Suggestions, fmt.Sprintf("Thicken walls to at least %.1fmm", ChassisMinWall))
	}

	if countAxleHoles(sig) < 2 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Fewer than 2 axle hole candidates (~%.0fmm) detected", AxleHoleDiameter))
		r.Suggestions = append(r.Suggestions, "Ensure front and rear axle holes are present and properly positioned")
	}
}

func validateWheel(sig *analysis.Signature, r *Report) {
	diameter := sig.Length
	if math.Abs(diameter-WheelDiameterSmall) > WheelDiameterTol &&
		math.Abs(diameter-WheelDiameterLarge) > WheelDiameterTol {
		r.Errors = append(r.Errors, fmt.Sprintf(
			"Wheel diameter %.2fmm is not a standard size (%.0fmm or %.0fmm ±%.1fmm)",
			diameter, WheelDiameterSmall, WheelDiameterLarge, WheelDiameterTol))
		r.Suggestions = append(r.Suggestions, fmt.Sprintf(
			"Use a standard wheel diameter: %.0fmm or %.0fmm", WheelDiameterSmall, WheelDiameterLarge))
	}

	thickness := sig.Height
	if thickness < WheelMinThickness {
		r.Errors = append(r.Errors, fmt.Sprintf("Wheel thickness %.2fmm is below minimum %.0fmm", thickness, WheelMinThickness))
	}
	if thickness > WheelMaxThickness {
		r.Errors = append(r.Errors, fmt.Sprintf("Wheel thickness %.2fmm exceeds maximum %.0fmm", thickness, WheelMaxThickness))
	}

	if !hasAxleHole(sig) {
		r.Warnings = append(r.Warnings, fmt.Sprintf("No ~%.0fmm axle hole detected - wheel may be solid", AxleHoleDiameter))
		r.Suggestions = append(r.Suggestions, fmt.Sprintf("Create a %.0fmm diameter hole for the axle", AxleHoleDiameter))
	}
}

func validateBody(sig *analysis.Signature, r *Report) {
	if sig.Length > bodyMaxLength {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Body length %.2fmm might be too long", sig.Length))
	}
	if sig.Width > bodyMaxWidth {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Body width %.2fmm might be too wide", sig.Width))
	}
	if sig.Height > bodyMaxHeight {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Body height %.2fmm might be too tall", sig.Height))
	}
	r.Suggestions = append(r.Suggestions, fmt.Sprintf("Ensure minimum %.1fmm wall thickness for 3D printing", bodyMinWall))
	r.Suggestions = append(r.Suggestions, "Add mounting holes for chassis attachment")
}

// countAxleHoles counts detected holes within the axle tolerance
// window around the nominal 2mm bore.
func countAxleHoles(sig *analysis.Signature) int {
	n := 0
	for _, h := range sig.Holes {
		if math.Abs(h.Diameter-AxleHoleDiameter) <= axleCandidateTol {
			n++
		}
	}
	return n
}

func hasAxleHole(sig *analysis.Signature) bool {
	for _, h := range sig.Holes {
		if math.Abs(h.Diameter-AxleHoleDiameter) <= AxleHoleDiameterTol {
			return true
		}
	}
	return false
}

func meshQuality(sig *analysis.Signature) MeshQuality {
	q := MeshQuality{
		VertexCount: sig.VertexCount,
		FaceCount:   sig.FaceCount,
	}
	if sig.FaceCount > highFaceCount {
		q.Issues = append(q.Issues, "Very high polygon count - consider simplifying mesh")
	} else if sig.FaceCount < lowFaceCount {
		q.Issues = append(q.Issues, "Very low polygon count - mesh might be too simple")
	}
	q.Issues = append(q.Issues, sig.Issues...)
	return q
}
