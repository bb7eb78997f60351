// Package overlap scores the spatial agreement of two binary masks.
// It backs the registration QC checks: a well-registered volume should
// occupy the same voxels as the target it was registered to.
package overlap

import (
	"errors"
	"math"

	"dtiqc/internal/models"
)

// ErrShapeMismatch is returned when two masks do not share a voxel grid.
var ErrShapeMismatch = errors.New("overlap: mask shapes do not match")

// When a thresholded mask comes out smaller than this, the threshold is
// considered too aggressive and the binarization falls back to a
// fraction of the maximum intensity.
const minMaskVoxels = 1000

// Dice computes the Dice coefficient 2|A∩B| / (|A|+|B|) of two masks
// over the same grid. Two empty masks have no defined overlap; the
// result is NaN rather than an error so callers can report the case
// distinctly from a genuine low score.
func Dice(a, b []bool) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrShapeMismatch
	}
	var inter, sum int
	for i := range a {
		if a[i] && b[i] {
			inter++
		}
		if a[i] {
			sum++
		}
		if b[i] {
			sum++
		}
	}
	if sum == 0 {
		return math.NaN(), nil
	}
	return 2 * float64(inter) / float64(sum), nil
}

// Jaccard computes |A∩B| / |A∪B| with the same NaN convention as Dice.
func Jaccard(a, b []bool) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrShapeMismatch
	}
	var inter, union int
	for i := range a {
		if a[i] && b[i] {
			inter++
		}
		if a[i] || b[i] {
			union++
		}
	}
	if union == 0 {
		return math.NaN(), nil
	}
	return float64(inter) / float64(union), nil
}

// Binarize thresholds intensities at frac times the mean, the adaptive
// foreground mask used for registration scoring. If the resulting mask
// is implausibly small the threshold drops to 1% of the maximum, which
// rescues templates with near-zero backgrounds.
func Binarize(data []float64, frac float64) []bool {
	var sum, maxv float64
	for _, d := range data {
		sum += d
		if d > maxv {
			maxv = d
		}
	}
	mean := 0.0
	if len(data) > 0 {
		mean = sum / float64(len(data))
	}

	mask := make([]bool, len(data))
	n := 0
	for i, d := range data {
		if d > mean*frac {
			mask[i] = true
			n++
		}
	}
	if n >= minMaskVoxels || len(data) < minMaskVoxels {
		return mask
	}

	low := maxv * 0.01
	for i, d := range data {
		mask[i] = d > low
	}
	return mask
}

// Classify maps a metric value onto a QC status given the pass and
// warning thresholds. NaN metrics must be handled by the caller before
// classification; Classify treats them as failures.
func Classify(metric, pass, warn float64) models.Status {
	switch {
	case metric >= pass:
		return models.StatusPass
	case metric >= warn:
		return models.StatusWarning
	default:
		return models.StatusFail
	}
}
