package cache

// Keyer generates cache keys for the different artifact types produced
// by the conversion pipeline.
type Keyer interface {
	// AnalysisKey generates a key for cached geometry analysis results.
	// inputHash is the content hash of the raw input bytes.
	AnalysisKey(inputHash string) string

	// ReportKey generates a key for cached validation reports.
	ReportKey(inputHash string, opts ReportKeyOpts) string

	// ArtifactKey generates a key for cached converted output bytes.
	ArtifactKey(inputHash string, opts ArtifactKeyOpts) string
}

// ReportKeyOpts captures the job options that affect a validation report.
type ReportKeyOpts struct {
	Filename      string
	ExcludeWheels bool
}

// ArtifactKeyOpts captures the job options that affect converted output.
type ArtifactKeyOpts struct {
	SourceFormat string
	OutputFormat string
	PlateSpec    string // serialized plate parameters, empty when no plate is generated
}

// DefaultKeyer is the standard key generator.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard key generator.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// AnalysisKey generates a key for cached geometry analysis results.
func (k *DefaultKeyer) AnalysisKey(inputHash string) string {
	return hashKey("analysis", inputHash)
}

// ReportKey generates a key for cached validation reports.
func (k *DefaultKeyer) ReportKey(inputHash string, opts ReportKeyOpts) string {
	return hashKey("report", inputHash, opts.Filename, opts.ExcludeWheels)
}

// ArtifactKey generates a key for cached converted output bytes.
func (k *DefaultKeyer) ArtifactKey(inputHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", inputHash, opts.SourceFormat, opts.OutputFormat, opts.PlateSpec)
}

// ScopedKeyer wraps a Keyer with a prefix for multi-tenant isolation,
// giving different users or deployments separate cache namespaces.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// AnalysisKey generates a prefixed key for analysis caching.
func (k *ScopedKeyer) AnalysisKey(inputHash string) string {
	return k.prefix + k.inner.AnalysisKey(inputHash)
}

// ReportKey generates a prefixed key for report caching.
func (k *ScopedKeyer) ReportKey(inputHash string, opts ReportKeyOpts) string {
	return k.prefix + k.inner.ReportKey(inputHash, opts)
}

// ArtifactKey generates a prefixed key for artifact caching.
func (k *ScopedKeyer) ArtifactKey(inputHash string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(inputHash, opts)
}
