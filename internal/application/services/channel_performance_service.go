package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/caching"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/security"
)

// ChannelPerformanceService rolls attributed revenue up to a channel or
// campaign over a period and joins it against external spend. Fresh
// snapshots come from the cache, then the snapshot store, then a full
// recompute over the latest attribution results.
type ChannelPerformanceService struct {
	results   repositories.ResultRepository
	spend     repositories.SpendRepository
	snapshots repositories.SnapshotRepository
	cache     *caching.SnapshotCache
	staleTTL  time.Duration
	logger    *logging.ChanneledLogger
}

func NewChannelPerformanceService(
	repos repositories.Bundle,
	cache *caching.SnapshotCache,
	staleTTL time.Duration,
	logger *logging.ChanneledLogger,
) *ChannelPerformanceService {
	return &ChannelPerformanceService{
		results:   repos.Results,
		spend:     repos.Spend,
		snapshots: repos.Snapshots,
		cache:     cache,
		staleTTL:  staleTTL,
		logger:    logger,
	}
}

// GetPerformance returns the current snapshot for the grouping key,
// recomputing when no snapshot exists or the stored one is stale.
func (s *ChannelPerformanceService) GetPerformance(ctx context.Context, key attribution.PerformanceKey, from, to time.Time, model attribution.ModelType) (*attribution.ChannelPerformanceSnapshot, error) {
	if snap, ok := s.cache.Get(key, from, to, model); ok {
		return snap, nil
	}

	snap, err := s.snapshots.FindCurrent(ctx, key, from, to, model)
	if err == nil && time.Since(snap.ComputedAt) <= s.staleTTL {
		s.cache.Set(key, from, to, model, snap)
		return snap, nil
	}
	if err != nil && !errors.Is(err, attribution.ErrNotFound) {
		return nil, err
	}

	return s.Recompute(ctx, key, from, to, model)
}

// Recompute aggregates the latest attribution results for the period
// and persists a fresh snapshot, superseding any previous one.
func (s *ChannelPerformanceService) Recompute(ctx context.Context, key attribution.PerformanceKey, from, to time.Time, model attribution.ModelType) (*attribution.ChannelPerformanceSnapshot, error) {
	results, err := s.results.FindLatestInPeriod(ctx, model, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for aggregation: %w", err)
	}

	// Credit follows the touchpoint: an entry only counts when its
	// touchpoint itself landed inside the reporting period, not merely
	// its conversion.
	attributed := decimal.Zero
	for _, res := range results {
		for _, entry := range res.Entries {
			if key.Matches(entry) && entry.InPeriod(from, to) {
				attributed = attributed.Add(entry.AttributedRevenue)
			}
		}
	}

	spendTotal, spendKnown, err := s.spend.TotalInPeriod(ctx, key, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load spend for aggregation: %w", err)
	}

	snap := &attribution.ChannelPerformanceSnapshot{
		ID:                security.GenerateULID(),
		Channel:           key.Channel,
		CampaignID:        key.CampaignID,
		PeriodStart:       from,
		PeriodEnd:         to,
		ModelType:         model,
		AttributedRevenue: attributed,
		Spend:             spendTotal,
		SpendKnown:        spendKnown,
		ComputedAt:        time.Now().UTC(),
	}

	// ROI and ROAS stay nil when spend is missing or zero. Callers
	// render that as insufficient spend data.
	if spendKnown && spendTotal.IsPositive() {
		roi := attributed.Sub(spendTotal).Div(spendTotal)
		roas := attributed.Div(spendTotal)
		snap.ROI = &roi
		snap.ROAS = &roas
	}

	if err := s.snapshots.Store(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to store performance snapshot: %w", err)
	}
	s.cache.Set(key, from, to, model, snap)

	s.logger.Aggregation().Info("Channel performance snapshot computed",
		"channel", key.Channel,
		"campaignId", key.CampaignID,
		"model", model,
		"attributedRevenue", attributed.String(),
		"spendKnown", spendKnown,
		"results", len(results))
	return snap, nil
}

// InvalidateCache drops cached snapshots, called after recompute jobs
// change the result set.
func (s *ChannelPerformanceService) InvalidateCache() {
	s.cache.Invalidate()
}
