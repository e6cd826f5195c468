package simulate

import (
	"corrcov/internal/credset"
)

// CoverageAt estimates the corrected coverage at the given threshold: for each
// eligible hypothesis j, the fraction of simulated credible sets containing j,
// averaged across hypotheses weighted by their prior posterior probability.
// The cached ensembles are reused, so querying many thresholds never resimulates.
func (s *Session) CoverageAt(threshold float64) float64 {
	totalWeight := 0.0
	weighted := 0.0
	for h, j := range s.eligible {
		hits := 0
		for _, row := range s.ensembles[h] {
			if credset.Build(row, threshold, j).ContainsCausal {
				hits++
			}
		}
		propcov := float64(hits) / float64(len(s.ensembles[h]))
		weighted += propcov * s.weights[h]
		totalWeight += s.weights[h]
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}
