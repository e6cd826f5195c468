package bayes

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"corrcov/internal/errors"
)

// DefaultPriorW is the default prior standard deviation of the true effect size
const DefaultPriorW = 0.2

// Shrinkage computes the per-variant shrinkage factors r_i = W² / (W² + V_i)
func Shrinkage(w float64, variance []float64) []float64 {
	w2 := w * w
	r := make([]float64, len(variance))
	for i, v := range variance {
		r[i] = w2 / (w2 + v)
	}
	return r
}

// LogABF computes the asymptotic log Bayes factor for each variant:
// logABF_i = 0.5*log(1-r_i) + 0.5*r_i*z_i². Each variance must be positive.
func LogABF(z, variance []float64, w float64) ([]float64, error) {
	if len(z) == 0 {
		return nil, errors.InvalidInput("empty Z-score vector")
	}
	if len(z) != len(variance) {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"Z-score and variance lengths differ: %d vs %d", len(z), len(variance))
	}
	if w <= 0 {
		return nil, errors.InvalidInput("prior width W must be positive")
	}
	for i, v := range variance {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Newf(errors.CodeInvalidInput,
				"effect-size variance at index %d must be positive and finite, got %v", i, v)
		}
	}

	r := Shrinkage(w, variance)
	labf := make([]float64, len(z))
	for i := range z {
		labf[i] = 0.5*math.Log(1-r[i]) + 0.5*r[i]*z[i]*z[i]
	}
	return labf, nil
}

// PosteriorProbs converts Z-scores and effect-size variances into normalized
// posterior causality probabilities. Normalization runs in log space: the
// maximum log-ABF is subtracted before exponentiating so large Z-scores cannot
// overflow and small ones cannot collapse the denominator.
func PosteriorProbs(z, variance []float64, w float64) ([]float64, error) {
	labf, err := LogABF(z, variance, w)
	if err != nil {
		return nil, err
	}
	pp, _, err := normalize(labf, false)
	return pp, err
}

// PosteriorProbsWithNull is the alternate converter mode that reserves
// probability mass for "no causal variant in the region": a constant null term
// joins the denominator before normalization. Returns the per-variant
// probabilities and the null-model mass. Not used by the correction path.
func PosteriorProbsWithNull(z, variance []float64, w float64) ([]float64, float64, error) {
	labf, err := LogABF(z, variance, w)
	if err != nil {
		return nil, 0, err
	}
	return normalize(labf, true)
}

// normalize exponentiates log Bayes factors and divides by their sum. With
// includeNull, a log-ABF of zero (odds of one) for the null model joins the
// denominator, and the max is taken over that term too so the null never
// overflows when every ABF is tiny.
func normalize(labf []float64, includeNull bool) ([]float64, float64, error) {
	max := math.Inf(-1)
	for _, l := range labf {
		if l > max {
			max = l
		}
	}
	if includeNull && max < 0 {
		max = 0
	}
	if math.IsInf(max, -1) || math.IsNaN(max) {
		return nil, 0, errors.NumericalInstability("all log Bayes factors are degenerate")
	}

	denom := 0.0
	pp := make([]float64, len(labf))
	for i, l := range labf {
		pp[i] = math.Exp(l - max)
		denom += pp[i]
	}
	nullMass := 0.0
	if includeNull {
		nullMass = math.Exp(-max)
		denom += nullMass
	}
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return nil, 0, errors.NumericalInstability("posterior normalization denominator is zero after log-space renormalization")
	}

	for i := range pp {
		pp[i] /= denom
	}
	return pp, nullMass / denom, nil
}

// EffectSizeVariance derives the variance of an estimated log odds ratio from
// the minor allele frequency, the total sample size and the case fraction:
// V = 1 / (2 N f (1-f) s (1-s)).
func EffectSizeVariance(maf float64, totalN int, caseFraction float64) (float64, error) {
	if maf <= 0 || maf >= 1 {
		return 0, errors.Newf(errors.CodeInvalidInput, "allele frequency must be in (0,1), got %v", maf)
	}
	if totalN <= 0 {
		return 0, errors.InvalidInput("total sample size must be positive")
	}
	if caseFraction <= 0 || caseFraction >= 1 {
		return 0, errors.Newf(errors.CodeInvalidInput, "case fraction must be in (0,1), got %v", caseFraction)
	}
	n := float64(totalN)
	return 1 / (2 * n * maf * (1 - maf) * caseFraction * (1 - caseFraction)), nil
}

// EffectSizeVariances applies EffectSizeVariance across a vector of allele frequencies
func EffectSizeVariances(maf []float64, totalN int, caseFraction float64) ([]float64, error) {
	out := make([]float64, len(maf))
	for i, f := range maf {
		v, err := EffectSizeVariance(f, totalN, caseFraction)
		if err != nil {
			return nil, errors.Wrapf(err, "variant %d", i)
		}
		out[i] = v
	}
	return out, nil
}

// ZFromPValue converts a two-sided p-value into an absolute Z-score via the
// standard normal quantile; negative flips the sign for a negative effect
// direction. Entry-point helper for callers holding p-values rather than Z.
func ZFromPValue(p float64, negative bool) (float64, error) {
	if p <= 0 || p >= 1 {
		return 0, errors.Newf(errors.CodeInvalidInput, "p-value must be in (0,1), got %v", p)
	}
	z := distuv.UnitNormal.Quantile(1 - p/2)
	if negative {
		z = -z
	}
	return z, nil
}
