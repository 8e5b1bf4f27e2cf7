package attribution

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/database"
)

func newTestDB(t *testing.T) (*database.DB, *logging.ChanneledLogger) {
	t.Helper()
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}

	db, err := database.NewConnection("sqlite3", filepath.Join(t.TempDir(), "attribution.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.EnsureSchema(db, logger); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}
	return db, logger
}

func storedResult(conversionID string, model attribution.ModelType, version int, conversionAt time.Time) *attribution.AttributionResult {
	revenue := decimal.RequireFromString("1000")
	return &attribution.AttributionResult{
		ID:                 conversionID + "-" + string(model) + "-" + string(rune('0'+version)),
		ConversionID:       conversionID,
		CustomerID:         "cust-1",
		ModelType:          model,
		ComputationVersion: version,
		ConversionAt:       conversionAt,
		Revenue:            revenue,
		Entries: []attribution.ResultEntry{
			{
				TouchpointID:      "tp-1",
				Channel:           attribution.ChannelEmail,
				CampaignID:        "camp-1",
				TouchpointAt:      conversionAt.AddDate(0, 0, -3),
				Weight:            1.0,
				AttributedRevenue: revenue,
			},
		},
		ComputedAt: conversionAt.Add(time.Minute),
	}
}

func TestResultStoreIsAppendOnly(t *testing.T) {
	t.Parallel()

	db, logger := newTestDB(t)
	repo := NewSQLResultRepository(db, logger)
	ctx := context.Background()
	at := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	if err := repo.Store(ctx, storedResult("conv-1", attribution.ModelLinear, 1, at)); err != nil {
		t.Fatalf("store v1: %v", err)
	}
	err := repo.Store(ctx, storedResult("conv-1", attribution.ModelLinear, 1, at))
	if !errors.Is(err, attribution.ErrConflict) {
		t.Fatalf("duplicate version error = %v, want ErrConflict", err)
	}
	if err := repo.Store(ctx, storedResult("conv-1", attribution.ModelLinear, 2, at)); err != nil {
		t.Fatalf("store v2: %v", err)
	}

	version, err := repo.LatestVersion(ctx, "conv-1", attribution.ModelLinear)
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if version != 2 {
		t.Fatalf("latest version = %d, want 2", version)
	}
	version, err = repo.LatestVersion(ctx, "conv-missing", attribution.ModelLinear)
	if err != nil {
		t.Fatalf("latest version for unknown: %v", err)
	}
	if version != 0 {
		t.Fatalf("latest version for unknown = %d, want 0", version)
	}

	latest, err := repo.FindLatest(ctx, "conv-1", attribution.ModelLinear)
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	if latest.ComputationVersion != 2 {
		t.Fatalf("find latest version = %d, want 2", latest.ComputationVersion)
	}
	v1, err := repo.FindByVersion(ctx, "conv-1", attribution.ModelLinear, 1)
	if err != nil {
		t.Fatalf("find by version: %v", err)
	}
	if v1.ComputationVersion != 1 {
		t.Fatalf("find by version = %d, want 1", v1.ComputationVersion)
	}

	if _, err := repo.FindLatest(ctx, "conv-missing", attribution.ModelLinear); !errors.Is(err, attribution.ErrNotFound) {
		t.Fatalf("find latest for unknown = %v, want ErrNotFound", err)
	}
}

func TestResultEntriesSurviveRoundTrip(t *testing.T) {
	t.Parallel()

	db, logger := newTestDB(t)
	repo := NewSQLResultRepository(db, logger)
	ctx := context.Background()
	at := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	res := storedResult("conv-rt", attribution.ModelPositionBased, 1, at)
	res.Entries = []attribution.ResultEntry{
		{
			TouchpointID:      "tp-a",
			Channel:           attribution.ChannelPaidSearch,
			CampaignID:        "camp-brand",
			TouchpointAt:      at.AddDate(0, 0, -10),
			Weight:            0.4,
			AttributedRevenue: decimal.RequireFromString("400"),
		},
		{
			TouchpointID:      "tp-b",
			Channel:           attribution.ChannelDirect,
			TouchpointAt:      at.Add(-time.Hour),
			Weight:            0.6,
			AttributedRevenue: decimal.RequireFromString("600"),
		},
	}
	if err := repo.Store(ctx, res); err != nil {
		t.Fatalf("store: %v", err)
	}

	loaded, err := repo.FindLatest(ctx, "conv-rt", attribution.ModelPositionBased)
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	if len(loaded.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(loaded.Entries))
	}
	first := loaded.Entries[0]
	if first.TouchpointID != "tp-a" || first.Channel != attribution.ChannelPaidSearch || first.CampaignID != "camp-brand" {
		t.Fatalf("first entry identity = %+v", first)
	}
	if !first.TouchpointAt.Equal(at.AddDate(0, 0, -10)) {
		t.Fatalf("first touchpoint time = %s, want %s", first.TouchpointAt, at.AddDate(0, 0, -10))
	}
	if !first.AttributedRevenue.Equal(decimal.RequireFromString("400")) {
		t.Fatalf("first revenue = %s, want 400", first.AttributedRevenue)
	}
	second := loaded.Entries[1]
	if second.CampaignID != "" {
		t.Fatalf("second campaign = %q, want empty", second.CampaignID)
	}
	if !second.TouchpointAt.Equal(at.Add(-time.Hour)) {
		t.Fatalf("second touchpoint time = %s", second.TouchpointAt)
	}
	if !loaded.Revenue.Equal(res.Revenue) || !loaded.ConversionAt.Equal(at) {
		t.Fatalf("result header mismatch: %+v", loaded)
	}
}

func TestUnattributedResultRoundTrip(t *testing.T) {
	t.Parallel()

	db, logger := newTestDB(t)
	repo := NewSQLResultRepository(db, logger)
	ctx := context.Background()
	at := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	res := storedResult("conv-empty", attribution.ModelFirstTouch, 1, at)
	res.Entries = []attribution.ResultEntry{
		{Weight: 1.0, AttributedRevenue: res.Revenue, Unattributed: true},
	}
	if err := repo.Store(ctx, res); err != nil {
		t.Fatalf("store: %v", err)
	}

	loaded, err := repo.FindLatest(ctx, "conv-empty", attribution.ModelFirstTouch)
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	if !loaded.Unattributed() {
		t.Fatalf("result should be unattributed: %+v", loaded.Entries)
	}
	if !loaded.Entries[0].TouchpointAt.IsZero() {
		t.Fatalf("synthetic entry carries a touchpoint time: %s", loaded.Entries[0].TouchpointAt)
	}
}

func TestTouchpointRangeIsInclusiveAndSubSecondExact(t *testing.T) {
	t.Parallel()

	db, logger := newTestDB(t)
	repo := NewSQLTouchpointRepository(db, logger)
	ctx := context.Background()

	from := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 31, 10, 0, 0, 0, time.UTC)
	cost := decimal.RequireFromString("12.50")

	seeds := []struct {
		id     string
		at     time.Time
		inside bool
	}{
		{"tp-before", from.Add(-time.Second), false},
		{"tp-just-before", from.Add(-500 * time.Millisecond), false},
		{"tp-at-start", from, true},
		{"tp-mid", from.AddDate(0, 0, 14), true},
		{"tp-at-end", to, true},
		{"tp-just-after", to.Add(500 * time.Millisecond), false},
		{"tp-after", to.Add(time.Second), false},
	}
	for _, s := range seeds {
		tp := &attribution.Touchpoint{
			ID:         s.id,
			CustomerID: "cust-range",
			Channel:    attribution.ChannelEmail,
			Timestamp:  s.at,
			Cost:       &cost,
		}
		if err := repo.Store(ctx, tp); err != nil {
			t.Fatalf("store %s: %v", s.id, err)
		}
	}

	got, err := repo.FindByCustomerInRange(ctx, "cust-range", from, to)
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	found := make(map[string]*attribution.Touchpoint, len(got))
	for _, tp := range got {
		found[tp.ID] = tp
	}
	for _, s := range seeds {
		_, ok := found[s.id]
		if ok != s.inside {
			t.Fatalf("touchpoint %s in range = %v, want %v", s.id, ok, s.inside)
		}
	}
	if len(got) != 3 {
		t.Fatalf("range returned %d touchpoints, want 3", len(got))
	}
	mid := found["tp-mid"]
	if mid.Cost == nil || !mid.Cost.Equal(cost) {
		t.Fatalf("cost did not round trip: %+v", mid.Cost)
	}
	if !mid.Timestamp.Equal(from.AddDate(0, 0, 14)) {
		t.Fatalf("timestamp did not round trip: %s", mid.Timestamp)
	}
}

func TestFindLatestInPeriodPicksHighestVersionPerConversion(t *testing.T) {
	t.Parallel()

	db, logger := newTestDB(t)
	repo := NewSQLResultRepository(db, logger)
	ctx := context.Background()

	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 30, 23, 59, 59, 0, time.UTC)

	inPeriod := from.AddDate(0, 0, 10)
	if err := repo.Store(ctx, storedResult("conv-a", attribution.ModelLastTouch, 1, inPeriod)); err != nil {
		t.Fatalf("store conv-a v1: %v", err)
	}
	if err := repo.Store(ctx, storedResult("conv-a", attribution.ModelLastTouch, 2, inPeriod)); err != nil {
		t.Fatalf("store conv-a v2: %v", err)
	}
	if err := repo.Store(ctx, storedResult("conv-b", attribution.ModelLastTouch, 1, inPeriod)); err != nil {
		t.Fatalf("store conv-b: %v", err)
	}
	if err := repo.Store(ctx, storedResult("conv-out", attribution.ModelLastTouch, 1, to.Add(500*time.Millisecond))); err != nil {
		t.Fatalf("store conv-out: %v", err)
	}
	if err := repo.Store(ctx, storedResult("conv-other-model", attribution.ModelLinear, 1, inPeriod)); err != nil {
		t.Fatalf("store other model: %v", err)
	}

	results, err := repo.FindLatestInPeriod(ctx, attribution.ModelLastTouch, from, to)
	if err != nil {
		t.Fatalf("find latest in period: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ConversionID != "conv-a" || results[0].ComputationVersion != 2 {
		t.Fatalf("first result = %s v%d, want conv-a v2", results[0].ConversionID, results[0].ComputationVersion)
	}
	if results[1].ConversionID != "conv-b" || results[1].ComputationVersion != 1 {
		t.Fatalf("second result = %s v%d, want conv-b v1", results[1].ConversionID, results[1].ComputationVersion)
	}
	if len(results[0].Entries) != 1 {
		t.Fatalf("entries not loaded for period results: %d", len(results[0].Entries))
	}
}
