package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partforge/partforge/pkg/cache"
	"github.com/partforge/partforge/pkg/codec"
	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/geom"
	"github.com/partforge/partforge/pkg/plate"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return NewRunner(c, nil, log.NewWithOptions(io.Discard, log.Options{}))
}

// chassisSTL is a 150x100x3mm plate, comfortably inside the chassis
// envelope.
func chassisSTL() []byte {
	return codec.EncodeSTL(geom.Box(150, 100, 3))
}

// longChassisSTL is 170mm long, past the 165mm chassis limit.
func longChassisSTL() []byte {
	return codec.EncodeSTL(geom.Box(170, 100, 3))
}

const rectSVG = `<svg xmlns="http://www.w3.org/2000/svg"><rect x="0" y="0" width="100" height="60"/></svg>`

func TestConvertSTLToOBJ(t *testing.T) {
	r := newTestRunner(t)
	opts := Options{
		SourceFormat: "stl",
		OutputFormat: "obj",
		Filename:     "chassis.stl",
		Validate:     true,
	}

	result, err := r.Convert(context.Background(), chassisSTL(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateEncoded, result.State)
	assert.Equal(t, codec.FormatOBJ, result.OutputFormat)
	assert.False(t, result.CacheInfo.ArtifactHit)

	m, err := codec.DecodeOBJ(result.OutputBytes)
	require.NoError(t, err)
	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 12, m.FaceCount())

	require.NotNil(t, result.Report)
	assert.True(t, result.Report.Valid)
	assert.Equal(t, "Chassis", result.Report.PartType)
	assert.Equal(t, 8, result.Stats.VertexCount)
	assert.Equal(t, 12, result.Stats.FaceCount)
}

func TestConvertCacheHit(t *testing.T) {
	r := newTestRunner(t)
	opts := Options{
		SourceFormat: "stl",
		OutputFormat: "obj",
		Filename:     "chassis.stl",
		Validate:     true,
	}
	raw := chassisSTL()

	first, err := r.Convert(context.Background(), raw, opts)
	require.NoError(t, err)
	require.False(t, first.CacheInfo.ArtifactHit)

	second, err := r.Convert(context.Background(), raw, opts)
	require.NoError(t, err)
	assert.True(t, second.CacheInfo.ArtifactHit)
	assert.True(t, second.CacheInfo.ReportHit)
	assert.Equal(t, first.OutputBytes, second.OutputBytes)
	require.NotNil(t, second.Report)
	assert.Equal(t, first.Report.Valid, second.Report.Valid)

	// Refresh bypasses the cache.
	third, err := r.Convert(context.Background(), raw, Options{
		SourceFormat: "stl",
		OutputFormat: "obj",
		Filename:     "chassis.stl",
		Validate:     true,
		Refresh:      true,
	})
	require.NoError(t, err)
	assert.False(t, third.CacheInfo.ArtifactHit)
}

func TestConvertAnalysisCacheHit(t *testing.T) {
	r := newTestRunner(t)
	raw := chassisSTL()

	first, err := r.Convert(context.Background(), raw, Options{
		SourceFormat: "stl",
		OutputFormat: "obj",
		Validate:     true,
	})
	require.NoError(t, err)
	assert.False(t, first.CacheInfo.AnalysisHit)

	// Different output format misses the artifact but the analysis
	// depends only on the input geometry, so the signature is reused.
	second, err := r.Convert(context.Background(), raw, Options{
		SourceFormat: "stl",
		OutputFormat: "ply",
		Validate:     true,
	})
	require.NoError(t, err)
	assert.False(t, second.CacheInfo.ArtifactHit)
	assert.True(t, second.CacheInfo.AnalysisHit)
	require.NotNil(t, second.Report)
	assert.Equal(t, first.Report.Valid, second.Report.Valid)
	assert.Equal(t, first.Report.PartType, second.Report.PartType)
	assert.Equal(t, first.Report.Dimensions, second.Report.Dimensions)

	// A plate job analyzes the generated plate, not the input mesh,
	// and must not reuse the plain signature.
	plated, err := r.Convert(context.Background(), raw, Options{
		SourceFormat: "stl",
		OutputFormat: "stl",
		Validate:     true,
		Plate:        &plate.Spec{ThicknessMM: plate.ThicknessThick},
	})
	require.NoError(t, err)
	assert.False(t, plated.CacheInfo.AnalysisHit)

	// Refresh recomputes the analysis.
	refreshed, err := r.Convert(context.Background(), raw, Options{
		SourceFormat: "stl",
		OutputFormat: "ply",
		Validate:     true,
		Refresh:      true,
	})
	require.NoError(t, err)
	assert.False(t, refreshed.CacheInfo.AnalysisHit)
}

func TestConvertDifferentOptionsMissCache(t *testing.T) {
	r := newTestRunner(t)
	raw := chassisSTL()

	_, err := r.Convert(context.Background(), raw, Options{SourceFormat: "stl", OutputFormat: "obj"})
	require.NoError(t, err)

	// Same input, different output format: must not hit the OBJ artifact.
	result, err := r.Convert(context.Background(), raw, Options{SourceFormat: "stl", OutputFormat: "ply"})
	require.NoError(t, err)
	assert.False(t, result.CacheInfo.ArtifactHit)
}

func TestConvertEmptyInput(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Convert(context.Background(), nil, Options{SourceFormat: "stl", OutputFormat: "obj"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestConvertByteCap(t *testing.T) {
	r := newTestRunner(t)
	raw := make([]byte, MaxInputBytes+1)
	_, err := r.Convert(context.Background(), raw, Options{SourceFormat: "stl", OutputFormat: "obj"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSizeLimit))
}

func TestConvertInvalidOptions(t *testing.T) {
	r := newTestRunner(t)

	_, err := r.Convert(context.Background(), chassisSTL(), Options{SourceFormat: "stl"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "missing output format: %v", err)

	_, err = r.Convert(context.Background(), chassisSTL(), Options{Filename: "part.xyz", OutputFormat: "obj"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "unknown extension: %v", err)
}

func TestConvertMalformedInput(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Convert(context.Background(), []byte("not an stl"), Options{SourceFormat: "stl", OutputFormat: "obj"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestConvertBlockOnInvalid(t *testing.T) {
	r := newTestRunner(t)
	opts := Options{
		SourceFormat:   "stl",
		OutputFormat:   "obj",
		Filename:       "chassis.stl",
		Validate:       true,
		BlockOnInvalid: true,
	}

	result, err := r.Convert(context.Background(), longChassisSTL(), opts)
	require.NoError(t, err, "a failed validation is a result, not an error")
	assert.Nil(t, result.OutputBytes)
	assert.Equal(t, StateValidated, result.State)
	require.NotNil(t, result.Report)
	assert.False(t, result.Report.Valid)
}

func TestConvertInvalidStillEncodesByDefault(t *testing.T) {
	r := newTestRunner(t)
	opts := Options{
		SourceFormat: "stl",
		OutputFormat: "obj",
		Filename:     "chassis.stl",
		Validate:     true,
	}

	result, err := r.Convert(context.Background(), longChassisSTL(), opts)
	require.NoError(t, err)
	assert.NotNil(t, result.OutputBytes)
	assert.Equal(t, StateEncoded, result.State)
	require.NotNil(t, result.Report)
	assert.False(t, result.Report.Valid)
}

func TestConvertSVG(t *testing.T) {
	r := newTestRunner(t)
	opts := Options{
		SourceFormat: "svg",
		OutputFormat: "svg",
		Filename:     "design.svg",
		Validate:     true,
	}

	result, err := r.Convert(context.Background(), []byte(rectSVG), opts)
	require.NoError(t, err)
	assert.Equal(t, StateEncoded, result.State)
	require.NotNil(t, result.Report)
	assert.True(t, result.Report.Valid)
	assert.Equal(t, "2D Design", result.Report.PartType)

	_, err = codec.DecodeSVG(result.OutputBytes)
	require.NoError(t, err)
}

func TestConvertSVGToMeshFormatFails(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Convert(context.Background(), []byte(rectSVG), Options{SourceFormat: "svg", OutputFormat: "stl"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnsupportedFormat))
}

func TestConvertSVGWithPlate(t *testing.T) {
	r := newTestRunner(t)
	opts := Options{
		SourceFormat: "svg",
		OutputFormat: "stl",
		Filename:     "design.svg",
		Validate:     true,
		Plate:        &plate.Spec{ThicknessMM: plate.ThicknessThick},
	}

	result, err := r.Convert(context.Background(), []byte(rectSVG), opts)
	require.NoError(t, err)
	assert.Equal(t, StateEncoded, result.State)

	m, err := codec.DecodeSTL(result.OutputBytes)
	require.NoError(t, err)
	bb := m.Bounds()
	assert.InDelta(t, 100.0, bb.Max.X-bb.Min.X, 1e-6)
	assert.InDelta(t, 60.0, bb.Max.Y-bb.Min.Y, 1e-6)
	assert.InDelta(t, 3.0, bb.Max.Z-bb.Min.Z, 1e-6)

	require.NotNil(t, result.Report)
	assert.Equal(t, "Chassis", result.Report.PartType)
}

func TestConvertOpaquePassThrough(t *testing.T) {
	r := newTestRunner(t)
	raw := []byte("ISO-10303-21;\nHEADER;\nENDSEC;\nEND-ISO-10303-21;\n")

	result, err := r.Convert(context.Background(), raw, Options{
		SourceFormat: "step",
		OutputFormat: "step",
		Validate:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateEncoded, result.State)
	assert.Equal(t, raw, result.OutputBytes)
	require.NotNil(t, result.Report)
	assert.Equal(t, "Unknown", result.Report.PartType)
	assert.True(t, result.Report.Valid)
}

func TestConvertOpaqueCannotChangeFormat(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Convert(context.Background(), []byte("ISO-10303-21;"), Options{
		SourceFormat: "step",
		OutputFormat: "obj",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnsupportedFormat))
}

func TestOptionsValidateAndSetDefaults(t *testing.T) {
	o := Options{OutputFormat: "obj", Filename: "part.stl"}
	require.NoError(t, o.ValidateAndSetDefaults())
	assert.Equal(t, "stl", o.SourceFormat)
	assert.NotNil(t, o.Logger)

	// Idempotent.
	require.NoError(t, o.ValidateAndSetDefaults())
}

func TestPoolDefaults(t *testing.T) {
	p := NewPool(newTestRunner(t), 0, 0)
	assert.Equal(t, DefaultWorkers, p.Workers())
	assert.Equal(t, DefaultJobTimeout, p.Timeout())
}

func TestPoolConvert(t *testing.T) {
	p := NewPool(newTestRunner(t), 2, time.Minute)
	result, err := p.Convert(context.Background(), chassisSTL(), Options{
		SourceFormat: "stl",
		OutputFormat: "ply",
	})
	require.NoError(t, err)
	assert.Equal(t, StateEncoded, result.State)
}

func TestPoolConvertTimeout(t *testing.T) {
	p := NewPool(newTestRunner(t), 1, time.Nanosecond)
	_, err := p.Convert(context.Background(), chassisSTL(), Options{
		SourceFormat: "stl",
		OutputFormat: "obj",
		Validate:     true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeTimeout), "got %v", err)
}

func TestPoolConvertAll(t *testing.T) {
	p := NewPool(newTestRunner(t), 2, time.Minute)
	jobs := []Job{
		{ID: "a", Raw: chassisSTL(), Opts: Options{SourceFormat: "stl", OutputFormat: "obj"}},
		{Raw: nil, Opts: Options{SourceFormat: "stl", OutputFormat: "obj"}},
		{ID: "c", Raw: []byte(rectSVG), Opts: Options{SourceFormat: "svg", OutputFormat: "svg"}},
	}

	results, err := p.ConvertAll(context.Background(), jobs)
	require.NoError(t, err, "per-job failures must not fail the batch")
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].ID)
	require.NoError(t, results[0].Err)
	assert.Equal(t, StateEncoded, results[0].Result.State)

	assert.NotEmpty(t, results[1].ID, "empty job IDs are assigned")
	require.Error(t, results[1].Err)
	assert.True(t, errors.Is(results[1].Err, errors.ErrCodeParse))

	assert.Equal(t, "c", results[2].ID)
	require.NoError(t, results[2].Err)
}

func TestPoolConvertAllCancelled(t *testing.T) {
	p := NewPool(newTestRunner(t), 2, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ConvertAll(ctx, []Job{
		{Raw: chassisSTL(), Opts: Options{SourceFormat: "stl", OutputFormat: "obj"}},
	})
	require.Error(t, err)
}
