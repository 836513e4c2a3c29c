// Package metrics provides constants used across metric definitions.
package metrics

// Pipeline stage names used as the "stage" label.
const (
	// StageTemplates is template waveform retrieval.
	StageTemplates = "templates"
	// StageCluster is template clustering.
	StageCluster = "cluster"
	// StageBuild is subspace and singleton construction.
	StageBuild = "build"
	// StageScan is continuous data scanning.
	StageScan = "scan"
	// StageAssociate is trigger association.
	StageAssociate = "associate"
)

// Operation status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart100ms is the starting bucket for 100ms histograms.
	BucketStart100ms = 0.1
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
	// BucketCount20 defines 20 exponential buckets.
	BucketCount20 = 20
)
