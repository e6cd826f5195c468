// Package app wires the coverage-correction engine behind a single service:
// posterior conversion, credible-set construction, corrected coverage at a
// fixed threshold, the threshold search for a desired corrected coverage, and
// the repeated-correction confidence interval.
package app

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/montanaflynn/stats"

	"corrcov/domain/core"
	"corrcov/domain/finemap"
	"corrcov/internal"
	"corrcov/internal/bayes"
	"corrcov/internal/config"
	"corrcov/internal/credset"
	"corrcov/internal/errors"
	"corrcov/internal/simulate"
	"corrcov/ports"
)

// pcgStream is the fixed PCG stream constant; the caller-supplied seed selects
// the sequence. Repeats of the interval estimator advance the stream instead.
const pcgStream uint64 = 0xda3e39cb94b95bdb

// CorrectionService exposes the coverage-correction engine. The run repository
// is optional: with nil runs the service computes without journaling.
type CorrectionService struct {
	cfg    config.CorrectionConfig
	runs   ports.RunRepository
	logger *internal.Logger
}

// NewCorrectionService creates a correction service
func NewCorrectionService(cfg config.CorrectionConfig, runs ports.RunRepository, logger *internal.Logger) *CorrectionService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &CorrectionService{cfg: cfg, runs: runs, logger: logger}
}

// Inputs is the normalized internal representation both entry families funnel
// into: a Z-score and an effect-size variance per variant.
type Inputs struct {
	IDs      []core.VariantID
	Z        []float64
	Variance []float64
}

// NormalizeRegion converts a region into the internal (Z, variance)
// representation. Regions carrying effect estimates use (bhat, varbeta)
// directly; regions carrying Z-scores derive the variance from allele
// frequency and the case/control split.
func NormalizeRegion(region *finemap.Region) (*Inputs, error) {
	if region == nil || region.NSnps() == 0 {
		return nil, errors.InvalidInput("region has no variants")
	}

	in := &Inputs{
		IDs:      make([]core.VariantID, region.NSnps()),
		Z:        make([]float64, region.NSnps()),
		Variance: make([]float64, region.NSnps()),
	}
	for i := range region.Variants {
		in.IDs[i] = region.Variants[i].ID
	}

	// Decide the entry family from the first record and hold the whole region
	// to it: mixing families within one region is a caller mistake.
	useBeta := region.Variants[0].Varbeta > 0
	if useBeta {
		for i, v := range region.Variants {
			if v.Varbeta <= 0 {
				return nil, errors.Newf(errors.CodeInvalidInput,
					"variant %s: varbeta must be positive in the effect-estimate entry family", v.ID)
			}
			in.Z[i] = v.Bhat / math.Sqrt(v.Varbeta)
			in.Variance[i] = v.Varbeta
		}
		return in, nil
	}

	totalN := region.N0 + region.N1
	if totalN <= 0 || region.N1 <= 0 || region.N0 <= 0 {
		return nil, errors.InvalidInput("case and control sample sizes are required with the Z-score entry family")
	}
	caseFraction := float64(region.N1) / float64(totalN)
	for i, v := range region.Variants {
		variance, err := bayes.EffectSizeVariance(v.MAF, totalN, caseFraction)
		if err != nil {
			return nil, errors.Wrapf(err, "variant %s", v.ID)
		}
		in.Z[i] = v.Z
		in.Variance[i] = variance
	}
	return in, nil
}

// CoverageRequest asks for the corrected coverage of the credible set built at
// a fixed threshold. Zero-valued tunables fall back to the configured defaults.
type CoverageRequest struct {
	Region    *finemap.Region
	Threshold float64
	PriorW    float64
	NRep      int
	PP0Min    float64
	Seed      uint64
}

// CredibleSetRequest asks for the smallest credible set whose corrected
// coverage matches DesiredCoverage within Accuracy.
type CredibleSetRequest struct {
	Region          *finemap.Region
	DesiredCoverage float64
	Lower           float64
	Upper           float64
	Accuracy        float64
	MaxIter         int
	PriorW          float64
	NRep            int
	PP0Min          float64
	Seed            uint64
}

// PosteriorProbabilities converts a region's summary statistics into
// normalized posterior causality probabilities.
func (s *CorrectionService) PosteriorProbabilities(region *finemap.Region, priorW float64) ([]float64, error) {
	in, err := NormalizeRegion(region)
	if err != nil {
		return nil, err
	}
	if priorW == 0 {
		priorW = s.cfg.PriorW
	}
	return bayes.PosteriorProbs(in.Z, in.Variance, priorW)
}

// BuildCredibleSet builds the credible set at a threshold from a posterior
// vector. causalID may be empty when the causal variant is unknown.
func (s *CorrectionService) BuildCredibleSet(region *finemap.Region, pp []float64, threshold float64, causalID core.VariantID) (*finemap.CredibleSet, error) {
	if len(pp) != region.NSnps() {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"posterior vector has %d entries for %d variants", len(pp), region.NSnps())
	}
	causal := credset.NoCausal
	if causalID != "" {
		for i := range region.Variants {
			if region.Variants[i].ID == causalID {
				causal = i
				break
			}
		}
		if causal == credset.NoCausal {
			return nil, errors.Newf(errors.CodeInvalidInput, "causal variant %s not in region", causalID)
		}
	}
	set := credset.Build(pp, threshold, causal)
	return s.toDomainSet(region, set), nil
}

// CorrectedCoverage estimates the true coverage probability of the credible
// set built at the requested threshold, debiased by simulation.
func (s *CorrectionService) CorrectedCoverage(ctx context.Context, req CoverageRequest) (*finemap.CoverageEstimate, error) {
	start := time.Now()
	in, err := NormalizeRegion(req.Region)
	if err != nil {
		return nil, err
	}
	params := s.simulateParams(req.PriorW, req.NRep, req.PP0Min)
	seed := s.seedOrDefault(req.Seed)

	session, err := simulate.NewSession(ctx, in.Z, in.Variance, req.Region.LD, params, rand.NewPCG(seed, pcgStream), s.logger)
	if err != nil {
		return nil, err
	}

	claimed := credset.Build(session.BasePP(), req.Threshold, credset.NoCausal).ClaimedCoverage
	corrected := session.CoverageAt(req.Threshold)

	estimate := &finemap.CoverageEstimate{
		Threshold:         req.Threshold,
		ClaimedCoverage:   claimed,
		CorrectedCoverage: corrected,
		NRep:              session.NRep(),
		NHypotheses:       len(session.Eligible()),
	}
	s.journal(ctx, &finemap.CorrectionRun{
		ID:                core.RunID(core.NewID()),
		Kind:              finemap.RunCoverage,
		NSnps:             req.Region.NSnps(),
		NRep:              session.NRep(),
		Seed:              seed,
		Threshold:         req.Threshold,
		CorrectedCoverage: corrected,
		Converged:         true,
		RuntimeMs:         time.Since(start).Milliseconds(),
		CreatedAt:         time.Now().UTC(),
	})
	return estimate, nil
}

// CorrectedCredibleSet searches for the threshold whose corrected coverage
// matches the desired coverage and returns the explicit credible set at that
// threshold. A result with Converged=false means the iteration bound ran out;
// it is still the best threshold found and usable at reduced accuracy.
func (s *CorrectionService) CorrectedCredibleSet(ctx context.Context, req CredibleSetRequest) (*finemap.CorrectionResult, error) {
	start := time.Now()
	in, err := NormalizeRegion(req.Region)
	if err != nil {
		return nil, err
	}
	params := s.simulateParams(req.PriorW, req.NRep, req.PP0Min)
	seed := s.seedOrDefault(req.Seed)

	session, err := simulate.NewSession(ctx, in.Z, in.Variance, req.Region.LD, params, rand.NewPCG(seed, pcgStream), s.logger)
	if err != nil {
		return nil, err
	}

	opts := simulate.SolveOptions{
		Lower:    req.Lower,
		Upper:    req.Upper,
		Accuracy: req.Accuracy,
		MaxIter:  req.MaxIter,
	}
	if opts.Accuracy == 0 {
		opts.Accuracy = s.cfg.Accuracy
	}
	if opts.MaxIter == 0 {
		opts.MaxIter = s.cfg.MaxIter
	}

	pp0 := session.BasePP()
	sol, err := simulate.SolveThreshold(ctx, session.CoverageAt, pp0, req.DesiredCoverage, opts)
	if err != nil {
		return nil, err
	}
	if !sol.Converged {
		s.logger.Warn("[Correction] threshold search hit the iteration bound (%d); |corrected-desired| may exceed %.4g",
			sol.Iterations, opts.Accuracy)
	}

	set := credset.Build(pp0, sol.Threshold, credset.NoCausal)
	result := &finemap.CorrectionResult{
		CredibleSet:       *s.toDomainSet(req.Region, set),
		RequiredThreshold: sol.Threshold,
		CorrectedCoverage: sol.CorrectedCoverage,
		Size:              set.Size,
		Converged:         sol.Converged,
		Iterations:        sol.Iterations,
	}
	s.journal(ctx, &finemap.CorrectionRun{
		ID:                core.RunID(core.NewID()),
		Kind:              finemap.RunCredibleSet,
		NSnps:             req.Region.NSnps(),
		NRep:              session.NRep(),
		Seed:              seed,
		DesiredCoverage:   req.DesiredCoverage,
		CorrectedCoverage: sol.CorrectedCoverage,
		RequiredThreshold: sol.Threshold,
		SetSize:           set.Size,
		Converged:         sol.Converged,
		RuntimeMs:         time.Since(start).Milliseconds(),
		CreatedAt:         time.Now().UTC(),
	})
	return result, nil
}

// CorrectedCoverageInterval repeats the whole correction with independent
// ensembles and reports the median plus a percentile interval. Each repeat's
// session is dropped as soon as its estimate is folded in, so peak memory stays
// at one ensemble regardless of the repeat count. Cancellation is honored
// between repeats; partial repeats are simply discarded.
func (s *CorrectionService) CorrectedCoverageInterval(ctx context.Context, req CoverageRequest, repeats int) (*finemap.CoverageInterval, error) {
	if repeats == 0 {
		repeats = s.cfg.CIRepeats
	}
	if repeats < 2 {
		return nil, errors.InvalidInput("interval estimation needs at least 2 repeats")
	}
	in, err := NormalizeRegion(req.Region)
	if err != nil {
		return nil, err
	}
	params := s.simulateParams(req.PriorW, req.NRep, req.PP0Min)
	seed := s.seedOrDefault(req.Seed)

	estimates := make([]float64, 0, repeats)
	for rep := 0; rep < repeats; rep++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "interval estimation cancelled")
		}
		// Advance the PCG stream per repeat so repeats are independent but the
		// whole interval stays reproducible from one seed.
		src := rand.NewPCG(seed, pcgStream+uint64(rep)+1)
		session, err := simulate.NewSession(ctx, in.Z, in.Variance, req.Region.LD, params, src, s.logger)
		if err != nil {
			return nil, errors.Wrapf(err, "repeat %d", rep)
		}
		estimates = append(estimates, session.CoverageAt(req.Threshold))
	}

	median, err := stats.Median(estimates)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating repeat estimates")
	}
	alpha := (1 - s.cfg.CILevel) / 2
	lower, err := stats.Percentile(estimates, 100*alpha)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating repeat estimates")
	}
	upper, err := stats.Percentile(estimates, 100*(1-alpha))
	if err != nil {
		return nil, errors.Wrap(err, "aggregating repeat estimates")
	}

	return &finemap.CoverageInterval{
		Median:  median,
		Lower:   lower,
		Upper:   upper,
		Level:   s.cfg.CILevel,
		Repeats: repeats,
	}, nil
}

// EffectSizeVariance exposes the derived-variance formula to callers
func (s *CorrectionService) EffectSizeVariance(maf float64, totalN int, caseFraction float64) (float64, error) {
	return bayes.EffectSizeVariance(maf, totalN, caseFraction)
}

func (s *CorrectionService) toDomainSet(region *finemap.Region, set credset.Set) *finemap.CredibleSet {
	ids := make([]core.VariantID, len(set.Indices))
	for i, idx := range set.Indices {
		ids[i] = region.Variants[idx].ID
	}
	return &finemap.CredibleSet{
		Indices:         set.Indices,
		VariantIDs:      ids,
		ClaimedCoverage: set.ClaimedCoverage,
		Size:            set.Size,
		ContainsCausal:  set.ContainsCausal,
		CausalKnown:     set.CausalKnown,
	}
}

func (s *CorrectionService) simulateParams(priorW float64, nrep int, pp0min float64) simulate.Params {
	p := simulate.Params{
		PriorW:  s.cfg.PriorW,
		NRep:    s.cfg.NRep,
		PP0Min:  s.cfg.PP0Min,
		Workers: s.cfg.Workers,
	}
	if priorW != 0 {
		p.PriorW = priorW
	}
	if nrep != 0 {
		p.NRep = nrep
	}
	if pp0min != 0 {
		p.PP0Min = pp0min
	}
	return p
}

func (s *CorrectionService) seedOrDefault(seed uint64) uint64 {
	if seed != 0 {
		return seed
	}
	return s.cfg.DefaultSeed
}

// journal records a run when a repository is configured. Persistence failures
// are logged, never propagated: the computed result is already correct.
func (s *CorrectionService) journal(ctx context.Context, run *finemap.CorrectionRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		s.logger.Warn("[Correction] failed to journal run %s: %v", run.ID, err)
	}
}
