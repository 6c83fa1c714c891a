package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	"github.com/partforge/partforge/pkg/analysis"
	"github.com/partforge/partforge/pkg/cache"
	"github.com/partforge/partforge/pkg/codec"
	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/geom"
	"github.com/partforge/partforge/pkg/observability"
	"github.com/partforge/partforge/pkg/part"
	"github.com/partforge/partforge/pkg/plate"
	"github.com/partforge/partforge/pkg/validate"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API can use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store job results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Convert runs the complete decode → analyze → validate → encode
// pipeline for one job.
//
// Decode and plate-generation failures abort immediately. Analysis and
// validation never fail for geometrically bad input; bad geometry
// becomes report content. The converted output is returned even when
// validation fails, unless opts.BlockOnInvalid is set.
func (r *Runner) Convert(ctx context.Context, raw []byte, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid options")
	}
	r.applyLogger(&opts)

	start := time.Now()
	result := &Result{
		OutputFormat: opts.outputFormat(),
		State:        StateReceived,
	}

	// Byte cap applies before any parsing.
	if len(raw) > MaxInputBytes {
		result.State = StateFailed
		return nil, errors.New(errors.ErrCodeSizeLimit,
			"input size %d bytes exceeds maximum %d bytes", len(raw), MaxInputBytes)
	}
	if len(raw) == 0 {
		result.State = StateFailed
		return nil, errors.New(errors.ErrCodeParse, "empty input")
	}

	inputHash := cache.Hash(raw)

	// Fast path: both cached artifact and (if requested) cached report.
	if !opts.Refresh {
		if cached, ok := r.lookupCached(ctx, inputHash, opts); ok {
			cached.Stats.TotalTime = time.Since(start)
			return cached, nil
		}
	}

	// Stage 1: Decode
	srcFormat := opts.sourceFormat()
	decodeStart := time.Now()
	observability.Conversion().OnDecodeStart(ctx, string(srcFormat), len(raw))
	g, err := codec.Decode(raw, srcFormat)
	result.Stats.DecodeTime = time.Since(decodeStart)
	if err != nil {
		observability.Conversion().OnDecodeComplete(ctx, string(srcFormat), 0, result.Stats.DecodeTime, err)
		result.State = StateFailed
		return nil, err
	}
	result.State = StateDecoded

	vertexCount := 0
	if g.Kind == codec.KindMesh {
		vertexCount = len(g.Mesh.Vertices)
	}
	observability.Conversion().OnDecodeComplete(ctx, string(srcFormat), vertexCount, result.Stats.DecodeTime, nil)
	opts.Logger.Debug("decoded input",
		"format", srcFormat,
		"kind", g.Kind,
		"bytes", len(raw),
		"duration", result.Stats.DecodeTime)

	switch g.Kind {
	case codec.KindOpaque:
		return r.convertOpaque(ctx, raw, opts, result, start)
	case codec.KindPath:
		return r.convertPath(ctx, inputHash, g, opts, result, start)
	default:
		return r.convertMesh(ctx, inputHash, g.Mesh, opts, result, start)
	}
}

// convertOpaque handles STEP/IGES pass-through. The payload is never
// parsed, so the only permitted output format is the source format and
// validation reports a fixed pass-through note.
func (r *Runner) convertOpaque(ctx context.Context, raw []byte, opts Options, result *Result, start time.Time) (*Result, error) {
	if opts.outputFormat() != opts.sourceFormat() {
		result.State = StateFailed
		return nil, errors.New(errors.ErrCodeUnsupportedFormat,
			"%s is a pass-through format and cannot be converted to %s", opts.SourceFormat, opts.OutputFormat)
	}

	if opts.Validate {
		result.Report = validate.ValidateOpaque()
		result.State = StateValidated
		observability.Conversion().OnValidateComplete(ctx, result.Report.PartType, result.Report.Valid)
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	result.OutputBytes = out
	result.State = StateEncoded
	result.Stats.TotalTime = time.Since(start)
	return result, nil
}

// convertPath handles 2D inputs. Without a plate spec the path stays
// two-dimensional: it can only be re-encoded to SVG and validation
// reports the fixed 2D note. With a plate spec the path becomes the
// plate outline and the job continues as a mesh job.
func (r *Runner) convertPath(ctx context.Context, inputHash string, g codec.Geometry, opts Options, result *Result, start time.Time) (*Result, error) {
	if opts.Plate != nil {
		plateStart := time.Now()
		m, err := plate.FromPath(*opts.Plate, g.Path)
		result.Stats.PlateTime = time.Since(plateStart)
		if err != nil {
			result.State = StateFailed
			return nil, err
		}
		result.State = StatePlateGenerated
		opts.Logger.Debug("generated plate from path",
			"vertices", len(m.Vertices),
			"faces", len(m.Faces),
			"duration", result.Stats.PlateTime)
		return r.convertMesh(ctx, inputHash, m, opts, result, start)
	}

	if opts.outputFormat() != codec.FormatSVG {
		result.State = StateFailed
		return nil, errors.New(errors.ErrCodeUnsupportedFormat,
			"cannot encode a 2D design to %s", opts.OutputFormat)
	}

	if opts.Validate {
		validateStart := time.Now()
		result.Report = validate.Validate2D()
		result.Stats.ValidateTime = time.Since(validateStart)
		result.State = StateValidated
		observability.Conversion().OnValidateComplete(ctx, result.Report.PartType, result.Report.Valid)
		r.storeReport(ctx, inputHash, opts, result.Report)
	}

	encodeStart := time.Now()
	out, err := codec.Encode(g, codec.FormatSVG)
	result.Stats.EncodeTime = time.Since(encodeStart)
	observability.Conversion().OnEncodeComplete(ctx, string(codec.FormatSVG), len(out), result.Stats.EncodeTime, err)
	if err != nil {
		result.State = StateFailed
		return nil, err
	}
	result.OutputBytes = out
	result.State = StateEncoded
	r.storeArtifact(ctx, inputHash, opts, out)
	result.Stats.TotalTime = time.Since(start)
	return result, nil
}

// convertMesh runs the 3D stages: optional plate generation, size caps,
// analysis, classification, validation, and encoding.
func (r *Runner) convertMesh(ctx context.Context, inputHash string, m *geom.Mesh, opts Options, result *Result, start time.Time) (*Result, error) {
	if opts.Plate != nil && result.State != StatePlateGenerated {
		plateStart := time.Now()
		generated, err := plate.FromMesh(*opts.Plate, m)
		result.Stats.PlateTime = time.Since(plateStart)
		if err != nil {
			result.State = StateFailed
			return nil, err
		}
		m = generated
		result.State = StatePlateGenerated
		opts.Logger.Debug("generated plate from mesh silhouette",
			"vertices", len(m.Vertices),
			"faces", len(m.Faces),
			"duration", result.Stats.PlateTime)
	}

	result.Stats.VertexCount = len(m.Vertices)
	result.Stats.FaceCount = len(m.Faces)

	// Vertex and face caps apply before any O(V·F) analysis.
	if len(m.Vertices) > MaxVertices {
		result.State = StateFailed
		return nil, errors.New(errors.ErrCodeSizeLimit,
			"vertex count %d exceeds maximum %d", len(m.Vertices), MaxVertices)
	}
	if len(m.Faces) > MaxFaces {
		result.State = StateFailed
		return nil, errors.New(errors.ErrCodeSizeLimit,
			"face count %d exceeds maximum %d", len(m.Faces), MaxFaces)
	}

	if opts.Validate {
		// The analyzed mesh is the generated plate when a plate spec is
		// set, so plate jobs get their own analysis cache line.
		analysisHash := inputHash
		if pk := opts.plateKey(); pk != "" {
			analysisHash = cache.Hash([]byte(inputHash + pk))
		}
		report, err := r.validateMesh(ctx, m, analysisHash, opts, result)
		if err != nil {
			result.State = StateFailed
			return nil, err
		}
		result.Report = report
		result.State = StateValidated
		r.storeReport(ctx, inputHash, opts, report)

		if opts.BlockOnInvalid && !report.Valid {
			result.Stats.TotalTime = time.Since(start)
			opts.Logger.Info("conversion blocked by validation",
				"part_type", report.PartType,
				"errors", len(report.Errors))
			return result, nil
		}
	}

	encodeStart := time.Now()
	out, err := codec.Encode(codec.Geometry{Kind: codec.KindMesh, Mesh: m}, opts.outputFormat())
	result.Stats.EncodeTime = time.Since(encodeStart)
	observability.Conversion().OnEncodeComplete(ctx, opts.OutputFormat, len(out), result.Stats.EncodeTime, err)
	if err != nil {
		result.State = StateFailed
		return nil, err
	}
	result.OutputBytes = out
	result.State = StateEncoded
	r.storeArtifact(ctx, inputHash, opts, out)

	result.Stats.TotalTime = time.Since(start)
	opts.Logger.Info("conversion complete",
		"output_format", opts.OutputFormat,
		"bytes", len(out),
		"duration", result.Stats.TotalTime)
	return result, nil
}

// validateMesh runs analysis, classification, and the rule set,
// caching the analysis signature and the resulting report. Only
// cancellation can fail here; bad geometry becomes report content.
func (r *Runner) validateMesh(ctx context.Context, m *geom.Mesh, analysisHash string, opts Options, result *Result) (*validate.Report, error) {
	analyzeStart := time.Now()
	observability.Conversion().OnAnalyzeStart(ctx, len(m.Faces))
	sig, hit := r.lookupSignature(ctx, analysisHash, opts)
	if !hit {
		var err error
		sig, err = analysis.Analyze(ctx, m)
		if err != nil {
			result.Stats.AnalyzeTime = time.Since(analyzeStart)
			observability.Conversion().OnAnalyzeComplete(ctx, false, result.Stats.AnalyzeTime, err)
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.Wrap(errors.ErrCodeTimeout, err, "analysis exceeded the job time budget")
			}
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "analysis aborted")
		}
		r.storeSignature(ctx, analysisHash, sig)
	}
	result.CacheInfo.AnalysisHit = hit
	result.Stats.AnalyzeTime = time.Since(analyzeStart)
	observability.Conversion().OnAnalyzeComplete(ctx, sig.Watertight, result.Stats.AnalyzeTime, nil)
	result.State = StateAnalyzed
	opts.Logger.Debug("analyzed geometry",
		"watertight", sig.Watertight,
		"faces", sig.FaceCount,
		"cached", hit,
		"duration", result.Stats.AnalyzeTime)

	category := part.Classify(opts.Filename, sig, m)
	result.State = StateClassified

	validateStart := time.Now()
	report := validate.Validate(sig, category, opts.ExcludeWheels)
	result.Stats.ValidateTime = time.Since(validateStart)
	observability.Conversion().OnValidateComplete(ctx, report.PartType, report.Valid)
	opts.Logger.Debug("validated part",
		"part_type", report.PartType,
		"valid", report.Valid,
		"errors", len(report.Errors),
		"warnings", len(report.Warnings))

	return report, nil
}

// lookupCached attempts to serve the whole job from cache. Both the
// artifact and, when validation is requested, the report must hit.
func (r *Runner) lookupCached(ctx context.Context, inputHash string, opts Options) (*Result, bool) {
	artifactKey := r.Keyer.ArtifactKey(inputHash, opts.ArtifactKeyOpts())
	data, hit, err := r.Cache.Get(ctx, artifactKey)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "artifact")
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, "artifact")

	result := &Result{
		OutputBytes:  data,
		OutputFormat: opts.outputFormat(),
		State:        StateEncoded,
		CacheInfo:    CacheInfo{ArtifactHit: true},
	}

	if opts.Validate {
		reportKey := r.Keyer.ReportKey(inputHash, opts.ReportKeyOpts())
		reportData, hit, err := r.Cache.Get(ctx, reportKey)
		if err != nil || !hit {
			observability.Cache().OnCacheMiss(ctx, "report")
			return nil, false
		}
		var report validate.Report
		if err := json.Unmarshal(reportData, &report); err != nil {
			return nil, false
		}
		observability.Cache().OnCacheHit(ctx, "report")
		result.Report = &report
		result.CacheInfo.ReportHit = true
	}

	return result, true
}

// lookupSignature reads a cached analysis signature. Refresh bypasses
// the read so the analysis is recomputed and re-stored.
func (r *Runner) lookupSignature(ctx context.Context, analysisHash string, opts Options) (*analysis.Signature, bool) {
	if opts.Refresh {
		return nil, false
	}
	key := r.Keyer.AnalysisKey(analysisHash)
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "analysis")
		return nil, false
	}
	var sig analysis.Signature
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, "analysis")
	return &sig, true
}

// storeSignature caches an analysis signature. Cache failures are
// silent; caching is best-effort.
func (r *Runner) storeSignature(ctx context.Context, analysisHash string, sig *analysis.Signature) {
	data, err := json.Marshal(sig)
	if err != nil {
		return
	}
	key := r.Keyer.AnalysisKey(analysisHash)
	if err := r.Cache.Set(ctx, key, data, cache.TTLAnalysis); err == nil {
		observability.Cache().OnCacheSet(ctx, "analysis", len(data))
	}
}

// storeArtifact caches the converted output and, when present, the
// validation report. Cache failures are silent; caching is best-effort.
func (r *Runner) storeArtifact(ctx context.Context, inputHash string, opts Options, out []byte) {
	artifactKey := r.Keyer.ArtifactKey(inputHash, opts.ArtifactKeyOpts())
	if err := r.Cache.Set(ctx, artifactKey, out, cache.TTLArtifact); err == nil {
		observability.Cache().OnCacheSet(ctx, "artifact", len(out))
	}
}

// storeReport caches a validation report keyed by input hash.
func (r *Runner) storeReport(ctx context.Context, inputHash string, opts Options, report *validate.Report) {
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	reportKey := r.Keyer.ReportKey(inputHash, opts.ReportKeyOpts())
	if err := r.Cache.Set(ctx, reportKey, data, cache.TTLReport); err == nil {
		observability.Cache().OnCacheSet(ctx, "report", len(data))
	}
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
