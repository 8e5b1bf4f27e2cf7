package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/caching"
	"github.com/convertlens/convertlens-go/internal/infrastructure/locking"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/memory"
)

// testFixture bundles the in-memory wiring the service tests share.
type testFixture struct {
	repos       repositories.Bundle
	locks       *locking.CustomerLocks
	logger      *logging.ChanneledLogger
	journeys    *JourneyService
	processor   *ConversionProcessor
	performance *ChannelPerformanceService
	modelConfig attribution.ModelConfig
}

func newTestLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	return logger
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		repos:       memory.NewRepositories(),
		locks:       locking.NewCustomerLocks(),
		logger:      newTestLogger(t),
		modelConfig: attribution.DefaultModelConfig(),
	}
	f.journeys = NewJourneyService(f.repos.Touchpoints, f.logger)
	f.processor = NewConversionProcessor(f.journeys, f.repos.Results, f.locks, f.modelConfig, f.logger, nil)
	f.performance = NewChannelPerformanceService(f.repos, caching.NewSnapshotCache(time.Minute), time.Minute, f.logger)
	return f
}

func touchpointAt(id, customerID string, channel attribution.Channel, campaignID string, ts time.Time) *attribution.Touchpoint {
	return &attribution.Touchpoint{
		ID:         id,
		CustomerID: customerID,
		Channel:    channel,
		CampaignID: campaignID,
		Timestamp:  ts,
	}
}

func conversionAt(id, customerID string, revenue string, ts time.Time) *attribution.ConversionEvent {
	return &attribution.ConversionEvent{
		ID:             id,
		CustomerID:     customerID,
		Timestamp:      ts,
		Revenue:        decimal.RequireFromString(revenue),
		ConversionType: "purchase",
	}
}
