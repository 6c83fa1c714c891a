package plate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/partforge/partforge/pkg/analysis"
	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/geom"
)

func rectPath(w, h float64) *geom.Path2D {
	return &geom.Path2D{Polylines: []geom.Polyline{{
		Points: []r2.Vec{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}},
		Closed: true,
	}}}
}

// ringArea is the exact area of the inscribed polygon a punched hole
// tessellates to.
func ringArea(r float64) float64 {
	return float64(holeSegments) / 2 * r * r * math.Sin(2*math.Pi/holeSegments)
}

func TestSpecValidateAndSetDefaults(t *testing.T) {
	s := Spec{ThicknessMM: ThicknessThick}
	require.NoError(t, s.ValidateAndSetDefaults())
	assert.Equal(t, DefaultScrewHoleDiameter, s.ScrewHoleDiameterMM)

	// Idempotent: validating again must not change anything.
	require.NoError(t, s.ValidateAndSetDefaults())
	assert.Equal(t, DefaultScrewHoleDiameter, s.ScrewHoleDiameterMM)

	thin := Spec{ThicknessMM: ThicknessThin}
	require.NoError(t, thin.ValidateAndSetDefaults())
}

func TestSpecRejectsNonStandardThickness(t *testing.T) {
	for _, th := range []float64{0, 2.0, 4.5, -1.5} {
		s := Spec{ThicknessMM: th}
		err := s.ValidateAndSetDefaults()
		require.Error(t, err, "thickness %g", th)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	}
}

func TestSpecRejectsScrewHoleOutOfRange(t *testing.T) {
	for _, d := range []float64{0.5, 6.0} {
		s := Spec{ThicknessMM: ThicknessThick, ScrewHoleDiameterMM: d}
		err := s.ValidateAndSetDefaults()
		require.Error(t, err, "diameter %g", d)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	}
}

func TestFromPathSolidPlate(t *testing.T) {
	m, err := FromPath(Spec{ThicknessMM: ThicknessThick}, rectPath(100, 60))
	require.NoError(t, err)

	sig, err := analysis.Analyze(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, sig.Watertight)
	require.NotNil(t, sig.Volume)
	assert.InDelta(t, 100*60*3.0, *sig.Volume, 1e-6)

	bb := m.Bounds()
	assert.InDelta(t, 3.0, bb.Max.Z-bb.Min.Z, 1e-9)
}

func TestFromPathPunchesHoles(t *testing.T) {
	spec := Spec{
		ThicknessMM: ThicknessThin,
		HolePositions: []r2.Vec{
			{X: 10, Y: 30},
			{X: 90, Y: 30},
		},
	}
	m, err := FromPath(spec, rectPath(100, 60))
	require.NoError(t, err)

	sig, err := analysis.Analyze(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, sig.Watertight)

	r := DefaultScrewHoleDiameter / 2
	want := (100*60 - 2*ringArea(r)) * ThicknessThin
	require.NotNil(t, sig.Volume)
	assert.InDelta(t, want, *sig.Volume, 1e-6)
}

func TestFromPathHoleOutsideOutline(t *testing.T) {
	spec := Spec{
		ThicknessMM:   ThicknessThick,
		HolePositions: []r2.Vec{{X: 100, Y: 30}},
	}
	_, err := FromPath(spec, rectPath(100, 60))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGeometry))
}

func TestFromPathOverlappingHoles(t *testing.T) {
	spec := Spec{
		ThicknessMM: ThicknessThick,
		HolePositions: []r2.Vec{
			{X: 50, Y: 30},
			{X: 51, Y: 30},
		},
	}
	_, err := FromPath(spec, rectPath(100, 60))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGeometry))
}

func TestFromPathRejectsNonRectangularOutline(t *testing.T) {
	tri := &geom.Path2D{Polylines: []geom.Polyline{{
		Points: []r2.Vec{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 50, Y: 60}},
		Closed: true,
	}}}
	_, err := FromPath(Spec{ThicknessMM: ThicknessThick}, tri)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGeometry))
}

func TestFromPathRequiresClosedOutline(t *testing.T) {
	open := &geom.Path2D{Polylines: []geom.Polyline{{
		Points: []r2.Vec{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 60}},
		Closed: false,
	}}}
	_, err := FromPath(Spec{ThicknessMM: ThicknessThick}, open)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGeometry))
}

func TestFromPathPicksLargestOutline(t *testing.T) {
	p := rectPath(100, 60)
	p.Polylines = append(p.Polylines, geom.Polyline{
		Points: []r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
		Closed: true,
	})
	m, err := FromPath(Spec{ThicknessMM: ThicknessThick}, p)
	require.NoError(t, err)

	bb := m.Bounds()
	assert.InDelta(t, 100.0, bb.Max.X-bb.Min.X, 1e-9)
	assert.InDelta(t, 60.0, bb.Max.Y-bb.Min.Y, 1e-9)
}

func TestFromMeshPlanarSource(t *testing.T) {
	m, err := FromMesh(Spec{ThicknessMM: ThicknessThick}, geom.Box(100, 60, 3))
	require.NoError(t, err)

	bb := m.Bounds()
	assert.InDelta(t, 100.0, bb.Max.X-bb.Min.X, 1e-9)
	assert.InDelta(t, 60.0, bb.Max.Y-bb.Min.Y, 1e-9)
	assert.InDelta(t, 3.0, bb.Max.Z-bb.Min.Z, 1e-9)

	sig, err := analysis.Analyze(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, sig.Watertight)
}

func TestFromMeshRejectsNonPlanarSource(t *testing.T) {
	_, err := FromMesh(Spec{ThicknessMM: ThicknessThick}, geom.Box(50, 50, 50))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeGeometry))
}
