package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/memory"
)

// seedEmailConversions stores two customers who each converted off a
// single email touchpoint, for 400 and 600, and runs attribution.
func seedEmailConversions(t *testing.T, f *testFixture) (from, to time.Time) {
	t.Helper()
	ctx := context.Background()
	from = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to = time.Date(2026, 4, 30, 23, 59, 59, 0, time.UTC)

	seeds := []struct {
		customer string
		revenue  string
		at       time.Time
	}{
		{"cust-a", "400", from.AddDate(0, 0, 5)},
		{"cust-b", "600", from.AddDate(0, 0, 12)},
	}
	for i, s := range seeds {
		tp := touchpointAt("tp-"+s.customer, s.customer, attribution.ChannelEmail, "camp-news", s.at.AddDate(0, 0, -2))
		if err := f.repos.Touchpoints.Store(ctx, tp); err != nil {
			t.Fatalf("store touchpoint: %v", err)
		}
		conv := conversionAt("conv-"+s.customer, s.customer, s.revenue, s.at)
		if err := f.repos.Conversions.Store(ctx, conv); err != nil {
			t.Fatalf("store conversion: %v", err)
		}
		if err := f.processor.Process(ctx, conv, 1); err != nil {
			t.Fatalf("process conversion %d: %v", i, err)
		}
	}
	return from, to
}

func storeSpend(t *testing.T, f *testFixture, channel attribution.Channel, amount string, from, to time.Time) {
	t.Helper()
	rec := &attribution.SpendRecord{
		ID:          "spend-" + string(channel),
		Channel:     channel,
		PeriodStart: from,
		PeriodEnd:   to,
		Amount:      decimal.RequireFromString(amount),
	}
	if err := f.repos.Spend.Store(context.Background(), rec); err != nil {
		t.Fatalf("store spend: %v", err)
	}
}

func TestRecomputeJoinsAttributedRevenueAgainstSpend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	from, to := seedEmailConversions(t, f)
	storeSpend(t, f, attribution.ChannelEmail, "200", from, to)

	key := attribution.PerformanceKey{Channel: attribution.ChannelEmail}
	snap, err := f.performance.GetPerformance(context.Background(), key, from, to, attribution.ModelLastTouch)
	if err != nil {
		t.Fatalf("get performance: %v", err)
	}

	if !snap.AttributedRevenue.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("attributed revenue = %s, want 1000", snap.AttributedRevenue)
	}
	if !snap.SpendKnown {
		t.Fatal("spend should be known")
	}
	if snap.ROI == nil || !snap.ROI.Equal(decimal.RequireFromString("4")) {
		t.Fatalf("roi = %v, want 4", snap.ROI)
	}
	if snap.ROAS == nil || !snap.ROAS.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("roas = %v, want 5", snap.ROAS)
	}
}

func TestRecomputeWithoutSpendLeavesRatiosUndefined(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	from, to := seedEmailConversions(t, f)

	key := attribution.PerformanceKey{Channel: attribution.ChannelEmail}
	snap, err := f.performance.Recompute(context.Background(), key, from, to, attribution.ModelLinear)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}

	if snap.SpendKnown {
		t.Fatal("spend should be unknown")
	}
	if snap.ROI != nil || snap.ROAS != nil {
		t.Fatalf("roi/roas should be nil without spend, got %v / %v", snap.ROI, snap.ROAS)
	}
	if !snap.AttributedRevenue.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("attributed revenue = %s, want 1000", snap.AttributedRevenue)
	}
}

func TestRecomputeWithZeroSpendLeavesRatiosUndefined(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	from, to := seedEmailConversions(t, f)
	storeSpend(t, f, attribution.ChannelEmail, "0", from, to)

	key := attribution.PerformanceKey{Channel: attribution.ChannelEmail}
	snap, err := f.performance.Recompute(context.Background(), key, from, to, attribution.ModelLinear)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !snap.SpendKnown {
		t.Fatal("zero spend is still a known figure")
	}
	if snap.ROI != nil || snap.ROAS != nil {
		t.Fatal("roi/roas must stay nil for zero spend")
	}
}

func TestRecomputeSupersedesPreviousSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	from, to := seedEmailConversions(t, f)
	key := attribution.PerformanceKey{Channel: attribution.ChannelEmail}

	first, err := f.performance.Recompute(context.Background(), key, from, to, attribution.ModelLinear)
	if err != nil {
		t.Fatalf("first recompute: %v", err)
	}
	second, err := f.performance.Recompute(context.Background(), key, from, to, attribution.ModelLinear)
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("recompute reused the snapshot row")
	}

	current, err := f.repos.Snapshots.FindCurrent(context.Background(), key, from, to, attribution.ModelLinear)
	if err != nil {
		t.Fatalf("find current: %v", err)
	}
	if current.ID != second.ID {
		t.Fatalf("current snapshot = %s, want %s", current.ID, second.ID)
	}

	// Superseded snapshots are kept for trend analysis.
	snapRepo := f.repos.Snapshots.(*memory.SnapshotRepository)
	history := snapRepo.History()
	if len(history) != 1 || history[0].ID != first.ID || !history[0].Superseded {
		t.Fatalf("history = %+v, want the superseded first snapshot", history)
	}
}

func TestRecomputeCreditsOnlyTouchpointsInsidePeriod(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 30, 23, 59, 59, 0, time.UTC)

	// The conversion lands inside the reporting period, but its only
	// touchpoint is weeks before it. The touchpoint carries the credit,
	// so the period must not claim it.
	tp := touchpointAt("tp-early", "cust-early", attribution.ChannelEmail, "", from.AddDate(0, 0, -20))
	if err := f.repos.Touchpoints.Store(ctx, tp); err != nil {
		t.Fatalf("store touchpoint: %v", err)
	}
	conv := conversionAt("conv-early", "cust-early", "500", from.AddDate(0, 0, 3))
	if err := f.repos.Conversions.Store(ctx, conv); err != nil {
		t.Fatalf("store conversion: %v", err)
	}
	if err := f.processor.Process(ctx, conv, 1); err != nil {
		t.Fatalf("process: %v", err)
	}

	key := attribution.PerformanceKey{Channel: attribution.ChannelEmail}
	snap, err := f.performance.Recompute(ctx, key, from, to, attribution.ModelLastTouch)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !snap.AttributedRevenue.IsZero() {
		t.Fatalf("attributed revenue = %s, want 0", snap.AttributedRevenue)
	}

	// The same touchpoint is credited by a period that contains it.
	wider, err := f.performance.Recompute(ctx, key, from.AddDate(0, 0, -30), to, attribution.ModelLastTouch)
	if err != nil {
		t.Fatalf("recompute wider: %v", err)
	}
	if !wider.AttributedRevenue.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("attributed revenue = %s, want 500", wider.AttributedRevenue)
	}
}

func TestPerformanceByCampaignIgnoresOtherCampaigns(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	from, to := seedEmailConversions(t, f)

	// Both seeded touchpoints carry camp-news, so a different campaign
	// aggregates to zero.
	snap, err := f.performance.Recompute(context.Background(),
		attribution.PerformanceKey{CampaignID: "camp-other"}, from, to, attribution.ModelLastTouch)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !snap.AttributedRevenue.IsZero() {
		t.Fatalf("attributed revenue = %s, want 0", snap.AttributedRevenue)
	}

	byCampaign, err := f.performance.Recompute(context.Background(),
		attribution.PerformanceKey{CampaignID: "camp-news"}, from, to, attribution.ModelLastTouch)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !byCampaign.AttributedRevenue.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("attributed revenue = %s, want 1000", byCampaign.AttributedRevenue)
	}
}
