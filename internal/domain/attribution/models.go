package attribution

import (
	"fmt"
	"math"
	"time"
)

// Weights computes the credit distribution for a non-empty journey under
// the given model. The returned slice is parallel to journey.Touchpoints
// and always sums to 1.0 (within floating-point epsilon). Empty journeys
// are the conversion processor's responsibility; calling Weights on one is
// a programming error. Invalid parameters are the only failure on
// non-empty input.
func Weights(model ModelType, params ModelParams, journey *Journey, conversionAt time.Time) ([]float64, error) {
	if journey.Empty() {
		return nil, fmt.Errorf("weights: journey for customer %s is empty", journey.CustomerID)
	}
	if err := params.ValidateFor(model); err != nil {
		return nil, err
	}

	n := journey.Len()
	switch model {
	case ModelFirstTouch:
		return singleTouchWeights(n, 0), nil
	case ModelLastTouch:
		return singleTouchWeights(n, n-1), nil
	case ModelLinear:
		return linearWeights(n), nil
	case ModelTimeDecay:
		return timeDecayWeights(journey, conversionAt, params.HalfLifeDays), nil
	case ModelPositionBased:
		return positionBasedWeights(n, params.FirstPct, params.LastPct), nil
	}
	return nil, NewValidationError("modelType", "unknown model type")
}

func singleTouchWeights(n, idx int) []float64 {
	w := make([]float64, n)
	w[idx] = 1.0
	return w
}

func linearWeights(n int) []float64 {
	w := make([]float64, n)
	share := 1.0 / float64(n)
	for i := range w {
		w[i] = share
	}
	return w
}

// timeDecayWeights gives weight(i) ∝ 2^(−Δt(i)/halfLife) where Δt(i) is
// the age of touchpoint i in days at conversion time. Because the journey
// is ordered ascending, weights are non-decreasing toward the conversion.
//
// Ages are rebased on the newest touchpoint before exponentiation. The
// rebase cancels out in the normalization, but it pins the largest
// exponent at zero so a journey whose touchpoints are all many
// half-lives old cannot underflow every term to zero and normalize to
// NaN.
func timeDecayWeights(journey *Journey, conversionAt time.Time, halfLifeDays float64) []float64 {
	n := journey.Len()
	newestAge := conversionAt.Sub(journey.Touchpoints[n-1].Timestamp).Hours() / 24

	w := make([]float64, n)
	var sum float64
	for i, tp := range journey.Touchpoints {
		ageDays := conversionAt.Sub(tp.Timestamp).Hours() / 24
		w[i] = math.Exp2(-(ageDays - newestAge) / halfLifeDays)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// positionBasedWeights credits firstPct to the first touchpoint, lastPct
// to the last, and splits the remainder evenly across the middle. A
// single-touch journey gets full credit; a two-touch journey splits 50/50
// (no middle segment exists to hold the remainder).
func positionBasedWeights(n int, firstPct, lastPct float64) []float64 {
	w := make([]float64, n)
	switch n {
	case 1:
		w[0] = 1.0
	case 2:
		w[0] = 0.5
		w[1] = 0.5
	default:
		w[0] = firstPct
		w[n-1] = lastPct
		middleShare := (1 - firstPct - lastPct) / float64(n-2)
		for i := 1; i < n-1; i++ {
			w[i] = middleShare
		}
	}
	return w
}
