package attribution

import (
	"errors"
	"math"
	"testing"
	"time"
)

const weightEpsilon = 1e-9

func journeyOf(t *testing.T, conversionAt time.Time, agesDays ...float64) *Journey {
	t.Helper()
	tps := make([]*Touchpoint, 0, len(agesDays))
	for i, age := range agesDays {
		tps = append(tps, &Touchpoint{
			ID:         string(rune('a' + i)),
			CustomerID: "cust-1",
			Channel:    ChannelEmail,
			Timestamp:  conversionAt.Add(-time.Duration(age * 24 * float64(time.Hour))),
		})
	}
	return &Journey{CustomerID: "cust-1", WindowEnd: conversionAt, Touchpoints: tps}
}

func sum(ws []float64) float64 {
	var s float64
	for _, w := range ws {
		s += w
	}
	return s
}

func TestWeightsSumToOne(t *testing.T) {
	t.Parallel()

	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	sizes := []int{1, 2, 3, 5, 10, 47}

	for _, m := range AllModelTypes() {
		for _, n := range sizes {
			ages := make([]float64, n)
			for i := range ages {
				ages[i] = float64(n-i) * 1.7
			}
			j := journeyOf(t, conversionAt, ages...)

			ws, err := Weights(m, DefaultParams(m), j, conversionAt)
			if err != nil {
				t.Fatalf("%s n=%d: unexpected error: %v", m, n, err)
			}
			if len(ws) != n {
				t.Fatalf("%s n=%d: got %d weights", m, n, len(ws))
			}
			if diff := math.Abs(sum(ws) - 1.0); diff > weightEpsilon {
				t.Fatalf("%s n=%d: weights sum to %v, off by %v", m, n, sum(ws), diff)
			}
		}
	}
}

func TestWeightsSingleTouchGetsFullCredit(t *testing.T) {
	t.Parallel()

	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	j := journeyOf(t, conversionAt, 3)

	for _, m := range AllModelTypes() {
		ws, err := Weights(m, DefaultParams(m), j, conversionAt)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", m, err)
		}
		if len(ws) != 1 || ws[0] != 1.0 {
			t.Fatalf("%s: single touchpoint got %v, want [1.0]", m, ws)
		}
	}
}

func TestFirstAndLastTouchWeights(t *testing.T) {
	t.Parallel()

	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	j := journeyOf(t, conversionAt, 10, 5, 1)

	first, err := Weights(ModelFirstTouch, ModelParams{}, j, conversionAt)
	if err != nil {
		t.Fatalf("first-touch: %v", err)
	}
	if first[0] != 1.0 || first[1] != 0 || first[2] != 0 {
		t.Fatalf("first-touch weights = %v", first)
	}

	last, err := Weights(ModelLastTouch, ModelParams{}, j, conversionAt)
	if err != nil {
		t.Fatalf("last-touch: %v", err)
	}
	if last[0] != 0 || last[1] != 0 || last[2] != 1.0 {
		t.Fatalf("last-touch weights = %v", last)
	}
}

func TestLinearWeightsAreEqual(t *testing.T) {
	t.Parallel()

	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	j := journeyOf(t, conversionAt, 9, 6, 3)

	ws, err := Weights(ModelLinear, ModelParams{}, j, conversionAt)
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	for i, w := range ws {
		if math.Abs(w-1.0/3.0) > weightEpsilon {
			t.Fatalf("linear weight[%d] = %v, want 1/3", i, w)
		}
	}
}

func TestTimeDecayWeightsIncreaseTowardConversion(t *testing.T) {
	t.Parallel()

	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	j := journeyOf(t, conversionAt, 28, 14, 7, 2, 0.5)

	ws, err := Weights(ModelTimeDecay, ModelParams{HalfLifeDays: 7}, j, conversionAt)
	if err != nil {
		t.Fatalf("time-decay: %v", err)
	}
	for i := 1; i < len(ws); i++ {
		if ws[i] < ws[i-1] {
			t.Fatalf("time-decay weights not non-decreasing: %v", ws)
		}
	}
}

func TestTimeDecayHalfLifeHalvesWeight(t *testing.T) {
	t.Parallel()

	// Two touchpoints exactly one half-life apart: the older one gets
	// half the weight of the newer one, so the split is 1/3 vs 2/3.
	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	j := journeyOf(t, conversionAt, 7, 0)

	ws, err := Weights(ModelTimeDecay, ModelParams{HalfLifeDays: 7}, j, conversionAt)
	if err != nil {
		t.Fatalf("time-decay: %v", err)
	}
	if math.Abs(ws[0]-1.0/3.0) > weightEpsilon || math.Abs(ws[1]-2.0/3.0) > weightEpsilon {
		t.Fatalf("time-decay weights = %v, want [1/3, 2/3]", ws)
	}
}

func TestTimeDecayOldJourneyStaysNormalized(t *testing.T) {
	t.Parallel()

	// Every touchpoint is thousands of half-lives old. The raw 2^(-age/h)
	// terms all underflow to zero, so the weights must come from the
	// rebased ages, not from a zero normalizer.
	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	j := journeyOf(t, conversionAt, 30, 20)

	ws, err := Weights(ModelTimeDecay, ModelParams{HalfLifeDays: 0.01}, j, conversionAt)
	if err != nil {
		t.Fatalf("time-decay: %v", err)
	}
	for i, w := range ws {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			t.Fatalf("weight[%d] = %v", i, w)
		}
	}
	if diff := math.Abs(sum(ws) - 1.0); diff > weightEpsilon {
		t.Fatalf("weights sum to %v", sum(ws))
	}
	if ws[1] < ws[0] {
		t.Fatalf("newest touchpoint lost weight: %v", ws)
	}
}

func TestPositionBasedWeights(t *testing.T) {
	t.Parallel()

	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	params := DefaultParams(ModelPositionBased)

	// Two touchpoints split evenly regardless of the configured split.
	two, err := Weights(ModelPositionBased, params, journeyOf(t, conversionAt, 5, 1), conversionAt)
	if err != nil {
		t.Fatalf("position-based n=2: %v", err)
	}
	if two[0] != 0.5 || two[1] != 0.5 {
		t.Fatalf("position-based n=2 weights = %v, want [0.5, 0.5]", two)
	}

	// Three touchpoints: 40% / 20% / 40% with defaults.
	three, err := Weights(ModelPositionBased, params, journeyOf(t, conversionAt, 9, 5, 1), conversionAt)
	if err != nil {
		t.Fatalf("position-based n=3: %v", err)
	}
	want := []float64{0.4, 0.2, 0.4}
	for i := range want {
		if math.Abs(three[i]-want[i]) > weightEpsilon {
			t.Fatalf("position-based n=3 weights = %v, want %v", three, want)
		}
	}

	// Four touchpoints: the middle 20% splits evenly across two.
	four, err := Weights(ModelPositionBased, params, journeyOf(t, conversionAt, 12, 9, 5, 1), conversionAt)
	if err != nil {
		t.Fatalf("position-based n=4: %v", err)
	}
	wantFour := []float64{0.4, 0.1, 0.1, 0.4}
	for i := range wantFour {
		if math.Abs(four[i]-wantFour[i]) > weightEpsilon {
			t.Fatalf("position-based n=4 weights = %v, want %v", four, wantFour)
		}
	}
}

func TestWeightsRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	j := journeyOf(t, conversionAt, 5, 1)

	cases := []struct {
		name   string
		model  ModelType
		params ModelParams
	}{
		{"zero half-life", ModelTimeDecay, ModelParams{HalfLifeDays: 0}},
		{"negative half-life", ModelTimeDecay, ModelParams{HalfLifeDays: -3}},
		{"negative split", ModelPositionBased, ModelParams{FirstPct: -0.1, LastPct: 0.4}},
		{"split sum above one", ModelPositionBased, ModelParams{FirstPct: 0.7, LastPct: 0.5}},
		{"unknown model", ModelType("markov-chain"), ModelParams{}},
	}
	for _, tc := range cases {
		_, err := Weights(tc.model, tc.params, j, conversionAt)
		var v *ValidationError
		if !errors.As(err, &v) {
			t.Fatalf("%s: got %v, want ValidationError", tc.name, err)
		}
	}
}

func TestWeightsRejectsEmptyJourney(t *testing.T) {
	t.Parallel()

	conversionAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	j := &Journey{CustomerID: "cust-1", WindowEnd: conversionAt}

	if _, err := Weights(ModelLinear, ModelParams{}, j, conversionAt); err == nil {
		t.Fatal("expected error for empty journey")
	}
}
