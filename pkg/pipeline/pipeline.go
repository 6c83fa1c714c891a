// Package pipeline provides the core conversion pipeline for PartForge.
//
// This package implements the complete decode → analyze → classify →
// validate → encode pipeline that can be used by CLI, API, and worker
// components. By centralizing this logic, we ensure consistent behavior
// across all entry points and avoid code duplication.
//
// # Architecture
//
// The pipeline consists of up to five stages:
//
//  1. Decode: Parse raw bytes into a mesh, a 2D path, or an opaque CAD payload
//  2. Plate: Optionally replace the geometry with a generated mounting plate
//  3. Analyze: Compute the geometry signature (bounds, watertightness, volume, ...)
//  4. Validate: Classify the part and apply the compatibility rule set
//  5. Encode: Serialize the geometry to the requested output format
//
// Each job is processed synchronously with no shared mutable state; the
// pipeline is safe to run from many goroutines at once. For bounded
// parallelism with per-job timeouts, wrap a Runner in a Pool.
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{
//	    OutputFormat: "stl",
//	    Filename:     "chassis_v2.obj",
//	    Validate:     true,
//	}
//	result, err := runner.Convert(ctx, raw, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out := result.OutputBytes
package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/partforge/partforge/pkg/cache"
	"github.com/partforge/partforge/pkg/codec"
	"github.com/partforge/partforge/pkg/plate"
	"github.com/partforge/partforge/pkg/validate"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, API, and Worker
// =============================================================================

const (
	// MaxInputBytes is the hard cap on raw input size.
	MaxInputBytes = 50 << 20 // 50MB

	// MaxVertices is the hard cap on decoded vertex count. Inputs above
	// it are rejected before analysis to bound worst-case runtime.
	MaxVertices = 2_000_000

	// MaxFaces is the hard cap on decoded face count.
	MaxFaces = 4_000_000

	// DefaultWorkers is the default worker pool size.
	DefaultWorkers = 4

	// DefaultJobTimeout is the default per-job time budget. A job that
	// exceeds it is cancelled and fails with a timeout error.
	DefaultJobTimeout = 60 * time.Second
)

// =============================================================================
// Job States
// =============================================================================

// State identifies how far a job progressed through the pipeline.
type State string

const (
	StateReceived       State = "received"
	StateDecoded        State = "decoded"
	StatePlateGenerated State = "plate_generated"
	StateAnalyzed       State = "analyzed"
	StateClassified     State = "classified"
	StateValidated      State = "validated"
	StateEncoded        State = "encoded"
	StateFailed         State = "failed"
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a conversion job.
// This struct supports JSON serialization for API requests.
type Options struct {
	// SourceFormat names the input format. When empty it is derived
	// from the Filename extension.
	SourceFormat string `json:"source_format,omitempty"`

	// OutputFormat names the requested output format. Required.
	OutputFormat string `json:"output_format"`

	// Filename is the original upload name, used for format detection
	// and part classification.
	Filename string `json:"filename,omitempty"`

	// Validate requests a compatibility report alongside the output.
	Validate bool `json:"validate,omitempty"`

	// ExcludeWheels skips numeric checks for parts classified as wheels.
	ExcludeWheels bool `json:"exclude_wheels,omitempty"`

	// BlockOnInvalid withholds the converted output when validation
	// fails. By default the converted file is returned alongside the
	// report even when valid=false.
	BlockOnInvalid bool `json:"block_on_invalid,omitempty"`

	// Plate, when set, replaces the decoded geometry with a generated
	// mounting plate before analysis.
	Plate *plate.Spec `json:"plate,omitempty"`

	// Refresh bypasses the cache and recomputes everything.
	Refresh bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// Result contains the outputs of a conversion job.
type Result struct {
	// OutputBytes is the encoded output. Nil when BlockOnInvalid is set
	// and validation failed.
	OutputBytes []byte

	// OutputFormat is the format of OutputBytes.
	OutputFormat codec.Format

	// Report is the validation report, present when Options.Validate
	// was set.
	Report *validate.Report

	// State is the final pipeline state reached.
	State State

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks which artifacts came from cache.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	VertexCount  int
	FaceCount    int
	DecodeTime   time.Duration
	PlateTime    time.Duration
	AnalyzeTime  time.Duration
	ValidateTime time.Duration
	EncodeTime   time.Duration
	TotalTime    time.Duration
}

// CacheInfo tracks cache hits for the cacheable artifacts.
type CacheInfo struct {
	ArtifactHit bool // Whether the converted output came from cache
	ReportHit   bool // Whether the validation report came from cache
	AnalysisHit bool // Whether the analysis signature came from cache
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same
// effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}

	if o.OutputFormat == "" {
		return fmt.Errorf("output_format is required")
	}
	if _, err := codec.ParseFormat(o.OutputFormat); err != nil {
		return err
	}

	if o.SourceFormat == "" {
		if o.Filename == "" {
			return fmt.Errorf("source_format or filename is required")
		}
		f, err := codec.FormatFromFilename(o.Filename)
		if err != nil {
			return err
		}
		o.SourceFormat = string(f)
	} else if _, err := codec.ParseFormat(o.SourceFormat); err != nil {
		return err
	}

	if o.Plate != nil {
		if err := o.Plate.ValidateAndSetDefaults(); err != nil {
			return err
		}
	}

	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	o.validated = true
	return nil
}

// sourceFormat returns the parsed source format. Only valid after
// ValidateAndSetDefaults.
func (o *Options) sourceFormat() codec.Format {
	f, _ := codec.ParseFormat(o.SourceFormat)
	return f
}

// outputFormat returns the parsed output format. Only valid after
// ValidateAndSetDefaults.
func (o *Options) outputFormat() codec.Format {
	f, _ := codec.ParseFormat(o.OutputFormat)
	return f
}

// plateKey serializes the plate parameters for cache keying.
// Empty when no plate is requested.
func (o *Options) plateKey() string {
	if o.Plate == nil {
		return ""
	}
	data, _ := json.Marshal(o.Plate)
	return string(data)
}

// ReportKeyOpts returns cache key options for report caching.
func (o *Options) ReportKeyOpts() cache.ReportKeyOpts {
	return cache.ReportKeyOpts{
		Filename:      o.Filename,
		ExcludeWheels: o.ExcludeWheels,
	}
}

// ArtifactKeyOpts returns cache key options for artifact caching.
func (o *Options) ArtifactKeyOpts() cache.ArtifactKeyOpts {
	return cache.ArtifactKeyOpts{
		SourceFormat: o.SourceFormat,
		OutputFormat: o.OutputFormat,
		PlateSpec:    o.plateKey(),
	}
}
