// Package simulate implements the simulation side of the coverage correction:
// conditional resampling of marginal Z-scores under each plausible causal
// hypothesis, aggregation into a corrected coverage estimate, and the bisection
// search for the threshold achieving a desired corrected coverage.
package simulate

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"corrcov/internal"
	"corrcov/internal/bayes"
	"corrcov/internal/errors"
)

const symmetryTol = 1e-8

// Params tunes one simulation session
type Params struct {
	PriorW  float64 // prior effect-size standard deviation
	NRep    int     // Monte-Carlo replicates per hypothesis
	PP0Min  float64 // hypotheses below this prior posterior probability are skipped
	Workers int64   // concurrent hypothesis workers
}

func (p Params) withDefaults() Params {
	if p.PriorW == 0 {
		p.PriorW = bayes.DefaultPriorW
	}
	if p.NRep == 0 {
		p.NRep = 1000
	}
	if p.PP0Min == 0 {
		p.PP0Min = 0.001
	}
	if p.Workers <= 0 {
		p.Workers = 4
	}
	return p
}

// Session holds the simulation state of one coverage-estimation call: the base
// posterior vector, the eligible causal hypotheses and one simulated posterior
// ensemble per hypothesis. Ensembles are drawn once at construction and reused
// for every threshold query, so repeated evaluations within a session see the
// same noise and the session stays reproducible under a fixed random source.
type Session struct {
	pp0       []float64
	eligible  []int
	weights   []float64     // pp0 restricted to eligible hypotheses
	ensembles [][][]float64 // [hypothesis][replicate][snp] simulated posterior rows
	nsnps     int
	params    Params
	logger    *internal.Logger
}

// ValidateSigma checks that the LD matrix is square, matches the variant count
// and is symmetric within tolerance, and converts it to a dense symmetric
// matrix. Positive definiteness is verified by the sampler itself.
func ValidateSigma(ld [][]float64, nsnps int) (*mat.SymDense, error) {
	if len(ld) != nsnps {
		return nil, errors.Newf(errors.CodeInvalidCorrelation,
			"LD matrix has %d rows for %d variants", len(ld), nsnps)
	}
	for i, row := range ld {
		if len(row) != nsnps {
			return nil, errors.Newf(errors.CodeInvalidCorrelation,
				"LD matrix row %d has %d columns for %d variants", i, len(row), nsnps)
		}
	}
	sigma := mat.NewSymDense(nsnps, nil)
	for i := 0; i < nsnps; i++ {
		for j := i; j < nsnps; j++ {
			if math.Abs(ld[i][j]-ld[j][i]) > symmetryTol {
				return nil, errors.Newf(errors.CodeInvalidCorrelation,
					"LD matrix not symmetric at (%d,%d): %v vs %v", i, j, ld[i][j], ld[j][i])
			}
			sigma.SetSym(i, j, ld[i][j])
		}
	}
	return sigma, nil
}

// NewSession validates Sigma, draws the shared noise ensemble and simulates the
// per-hypothesis posterior ensembles. The noise ensemble is drawn sequentially
// from src before any parallel work, so the worker pool cannot perturb the draw
// order: identical seeds yield identical ensembles.
func NewSession(ctx context.Context, z, variance []float64, ld [][]float64, params Params, src rand.Source, logger *internal.Logger) (*Session, error) {
	params = params.withDefaults()
	if logger == nil {
		logger = internal.DefaultLogger
	}
	nsnps := len(z)

	// Fail fast on a bad Sigma before any simulation work.
	sigma, err := ValidateSigma(ld, nsnps)
	if err != nil {
		return nil, err
	}

	pp0, err := bayes.PosteriorProbs(z, variance, params.PriorW)
	if err != nil {
		return nil, err
	}

	// Estimated true effect magnitude under the base posterior.
	muHat := 0.0
	for i := range z {
		muHat += math.Abs(z[i]) * pp0[i]
	}
	shrink := bayes.Shrinkage(params.PriorW, variance)

	// Hypotheses with negligible prior weight contribute negligibly to the
	// weighted average; skipping them is a performance trade-off, tuned by PP0Min.
	var eligible []int
	for j, p := range pp0 {
		if p > params.PP0Min {
			eligible = append(eligible, j)
		}
	}
	if len(eligible) == 0 {
		logger.Warn("[Resampler] no variant exceeds pp0min=%.4g, simulating all %d hypotheses", params.PP0Min, nsnps)
		eligible = make([]int, nsnps)
		for j := range eligible {
			eligible[j] = j
		}
	}

	mvn, ok := distmv.NewNormal(make([]float64, nsnps), sigma, src)
	if !ok {
		return nil, errors.InvalidCorrelation("LD matrix is not positive definite; cannot draw multivariate-normal samples")
	}

	// One shared noise ensemble across all hypotheses. Sharing keeps the
	// simulation noise correlated across hypotheses, lowering the variance of
	// the weighted estimate, and is required for reproducibility.
	noise := make([][]float64, params.NRep)
	for rep := 0; rep < params.NRep; rep++ {
		noise[rep] = mvn.Rand(nil)
	}

	s := &Session{
		pp0:       pp0,
		eligible:  eligible,
		weights:   make([]float64, len(eligible)),
		ensembles: make([][][]float64, len(eligible)),
		nsnps:     nsnps,
		params:    params,
		logger:    logger,
	}
	for h, j := range eligible {
		s.weights[h] = pp0[j]
	}

	logger.Debug("[Resampler] simulating %d hypotheses, nrep=%d, nsnps=%d, muHat=%.4f",
		len(eligible), params.NRep, nsnps, muHat)

	// Simulate hypotheses in parallel. Workers only read Sigma, the shrinkage
	// vector and their noise rows, so no locking is needed.
	sem := semaphore.NewWeighted(params.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for h, j := range eligible {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "coverage simulation cancelled")
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Wrap(err, "coverage simulation cancelled")
		}
		wg.Add(1)
		go func(h, j int) {
			defer wg.Done()
			defer sem.Release(1)

			rows, err := simulateHypothesis(j, muHat, sigma, shrink, variance, noise, params)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "hypothesis %d", j)
				}
				mu.Unlock()
				return
			}
			s.ensembles[h] = rows
		}(h, j)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "coverage simulation cancelled")
	}
	return s, nil
}

// simulateHypothesis builds the expected marginal profile for causal variant j
// and converts every noisy replicate into a simulated posterior row. The joint
// effect (muHat at j, zero elsewhere) spreads through the correlation structure
// and is shrunk toward zero by the prior before the shared noise is added.
func simulateHypothesis(j int, muHat float64, sigma *mat.SymDense, shrink, variance []float64, noise [][]float64, params Params) ([][]float64, error) {
	nsnps := len(variance)

	expected := make([]float64, nsnps)
	for i := 0; i < nsnps; i++ {
		expected[i] = muHat * sigma.At(j, i) * shrink[i]
	}

	rows := make([][]float64, len(noise))
	zsim := make([]float64, nsnps)
	for rep := range noise {
		for i := 0; i < nsnps; i++ {
			zsim[i] = expected[i] + noise[rep][i]
		}
		pp, err := bayes.PosteriorProbs(zsim, variance, params.PriorW)
		if err != nil {
			return nil, err
		}
		rows[rep] = pp
	}
	return rows, nil
}

// BasePP returns a copy of the base posterior probability vector
func (s *Session) BasePP() []float64 {
	out := make([]float64, len(s.pp0))
	copy(out, s.pp0)
	return out
}

// Eligible returns the indices of the simulated causal hypotheses
func (s *Session) Eligible() []int {
	out := make([]int, len(s.eligible))
	copy(out, s.eligible)
	return out
}

// NRep returns the number of Monte-Carlo replicates per hypothesis
func (s *Session) NRep() int {
	return s.params.NRep
}
