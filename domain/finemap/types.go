package finemap

import (
	"time"

	"corrcov/domain/core"
)

// VariantStat is the per-variant summary statistic record. Either Z (with MAF)
// or Bhat (with Varbeta) must be populated; both entry families funnel into the
// same internal (Z, variance) representation before reaching the engine.
type VariantStat struct {
	ID      core.VariantID `json:"id"`
	Z       float64        `json:"z,omitempty"`
	Bhat    float64        `json:"bhat,omitempty"`
	Varbeta float64        `json:"varbeta,omitempty"`
	MAF     float64        `json:"maf,omitempty"`
}

// Region bundles the immutable inputs of one fine-mapping region: the ordered
// variant records, case/control sample sizes and the pairwise LD matrix.
type Region struct {
	Variants []VariantStat `json:"variants"`
	N0       int           `json:"n0"` // controls
	N1       int           `json:"n1"` // cases
	LD       [][]float64   `json:"ld"` // nsnps x nsnps correlation matrix, never mutated
}

// NSnps returns the number of variants in the region
func (r *Region) NSnps() int {
	return len(r.Variants)
}

// CredibleSet is the minimal descending-posterior prefix whose cumulative
// probability exceeds a threshold. Indices refer to the original variant order.
type CredibleSet struct {
	Indices         []int            `json:"indices"`
	VariantIDs      []core.VariantID `json:"variant_ids,omitempty"`
	ClaimedCoverage float64          `json:"claimed_coverage"`
	Size            int              `json:"size"`
	ContainsCausal  bool             `json:"contains_causal,omitempty"`
	CausalKnown     bool             `json:"causal_known,omitempty"`
}

// CoverageEstimate is the outcome of a single-threshold corrected-coverage run
type CoverageEstimate struct {
	Threshold         float64 `json:"threshold"`
	ClaimedCoverage   float64 `json:"claimed_coverage"`
	CorrectedCoverage float64 `json:"corrected_coverage"`
	NRep              int     `json:"nrep"`
	NHypotheses       int     `json:"n_hypotheses"`
}

// CoverageInterval is the streamed confidence interval over repeated corrections
type CoverageInterval struct {
	Median  float64 `json:"median"`
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	Level   float64 `json:"level"`
	Repeats int     `json:"repeats"`
}

// CorrectionResult is the outcome of the threshold search: the credible set at
// the solved threshold plus convergence diagnostics. Converged=false means the
// iteration bound ran out and the accuracy tolerance may not be met; the result
// is still the best available.
type CorrectionResult struct {
	CredibleSet       CredibleSet `json:"credible_set"`
	RequiredThreshold float64     `json:"required_threshold"`
	CorrectedCoverage float64     `json:"corrected_coverage"`
	Size              int         `json:"size"`
	Converged         bool        `json:"converged"`
	Iterations        int         `json:"iterations"`
}

// RunKind distinguishes the two correction entry points
type RunKind string

const (
	RunCoverage    RunKind = "coverage"
	RunCredibleSet RunKind = "credible_set"
)

// CorrectionRun is the persisted journal record of one correction invocation
type CorrectionRun struct {
	ID                core.RunID `json:"id" db:"id"`
	Kind              RunKind    `json:"kind" db:"kind"`
	NSnps             int        `json:"nsnps" db:"nsnps"`
	NRep              int        `json:"nrep" db:"nrep"`
	Seed              uint64     `json:"seed" db:"seed"`
	Threshold         float64    `json:"threshold" db:"threshold"`
	DesiredCoverage   float64    `json:"desired_coverage" db:"desired_coverage"`
	CorrectedCoverage float64    `json:"corrected_coverage" db:"corrected_coverage"`
	RequiredThreshold float64    `json:"required_threshold" db:"required_threshold"`
	SetSize           int        `json:"set_size" db:"set_size"`
	Converged         bool       `json:"converged" db:"converged"`
	RuntimeMs         int64      `json:"runtime_ms" db:"runtime_ms"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}
