package simulate

import (
	"context"
	"math"

	"corrcov/internal/credset"
	"corrcov/internal/errors"
)

// CoverageFunc evaluates corrected coverage at a threshold
type CoverageFunc func(threshold float64) float64

// SolveOptions bounds the bisection over the threshold domain
type SolveOptions struct {
	Lower    float64 // bracket lower bound (default 0)
	Upper    float64 // bracket upper bound (default 1)
	Accuracy float64 // stop once coverage overshoot falls within [0, Accuracy]
	MaxIter  int     // iteration bound
}

func (o SolveOptions) withDefaults() SolveOptions {
	if o.Upper == 0 {
		o.Upper = 1
	}
	if o.Accuracy == 0 {
		o.Accuracy = 0.005
	}
	if o.MaxIter == 0 {
		o.MaxIter = 20
	}
	return o
}

// Solution is the outcome of one threshold search. Converged=false means the
// iteration bound ran out; Threshold is still the best midpoint found and the
// caller decides how loudly to warn.
type Solution struct {
	Threshold         float64
	CorrectedCoverage float64
	Converged         bool
	Iterations        int
}

// SolveThreshold bisects over [Lower, Upper] for the threshold whose corrected
// coverage matches the desired coverage within Accuracy. Standard bisection
// with memoized endpoint signs: each iteration evaluates the coverage function
// once at the midpoint and narrows toward the half-interval bracketing the
// sign change.
func SolveThreshold(ctx context.Context, cov CoverageFunc, pp0 []float64, desired float64, opts SolveOptions) (*Solution, error) {
	opts = opts.withDefaults()
	if desired <= 0 || desired >= 1 {
		return nil, errors.Newf(errors.CodeInvalidInput, "desired coverage must be in (0,1), got %v", desired)
	}
	if opts.Lower >= opts.Upper {
		return nil, errors.Newf(errors.CodeInvalidInput, "invalid bracket [%v, %v]", opts.Lower, opts.Upper)
	}

	f := func(thr float64) float64 { return cov(thr) - desired }

	// If the naive set at the desired threshold is already a single variant and
	// its corrected coverage overshoots the target, no smaller set exists.
	naive := credset.Build(pp0, desired, credset.NoCausal)
	if naive.Size == 1 && f(desired) > 0 {
		return nil, errors.CannotShrinkFurther(desired)
	}

	fa := f(opts.Lower)
	fb := f(opts.Upper)
	if fa*fb > 0 {
		return nil, errors.NoRootInRange(opts.Lower, opts.Upper, fa+desired, fb+desired, desired)
	}

	lo, hi := opts.Lower, opts.Upper
	best := &Solution{Threshold: hi, CorrectedCoverage: desired + fb}
	bestScore := score(fb, opts.Accuracy)

	for i := 0; i < opts.MaxIter; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "threshold search cancelled")
		}

		c := (lo + hi) / 2
		fc := f(c)

		if s := score(fc, opts.Accuracy); s < bestScore {
			bestScore = s
			best = &Solution{Threshold: c, CorrectedCoverage: desired + fc}
		}

		if fc >= 0 && fc <= opts.Accuracy {
			return &Solution{
				Threshold:         c,
				CorrectedCoverage: desired + fc,
				Converged:         true,
				Iterations:        i + 1,
			}, nil
		}

		if fa*fc < 0 {
			hi = c
			fb = fc
		} else {
			lo = c
			fa = fc
		}
		best.Iterations = i + 1
	}

	best.Converged = false
	best.Iterations = opts.MaxIter
	return best, nil
}

// score ranks candidate midpoints for the best-effort result: thresholds that
// overshoot the target (coverage at or above desired) beat undershooting ones,
// then smaller overshoot wins.
func score(fc, acc float64) float64 {
	if fc >= 0 {
		return fc
	}
	// Undershooting candidates rank behind every overshooting one.
	return 1 + math.Abs(fc) + acc
}
