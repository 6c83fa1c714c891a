package cache

import "time"

// Cache TTLs per artifact type. Analysis results and reports are cheap
// to recompute, converted artifacts less so.
const (
	// TTLAnalysis is the lifetime of cached geometry analysis results.
	TTLAnalysis = 24 * time.Hour

	// TTLReport is the lifetime of cached validation reports.
	TTLReport = 24 * time.Hour

	// TTLArtifact is the lifetime of cached converted output bytes.
	TTLArtifact = 7 * 24 * time.Hour
)
