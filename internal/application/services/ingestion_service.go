package services

import (
	"context"
	"fmt"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/locking"
	"github.com/convertlens/convertlens-go/internal/infrastructure/messaging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/metrics"
	"github.com/convertlens/convertlens-go/internal/infrastructure/security"
)

// liveComputationVersion is the version assigned to results computed
// during normal ingestion-driven processing. Recompute jobs allocate
// higher versions.
const liveComputationVersion = 1

// IngestionService validates and stores incoming touchpoints,
// conversions, and spend records. Conversions additionally enter the
// processing queue.
type IngestionService struct {
	touchpoints repositories.TouchpointRepository
	conversions repositories.ConversionRepository
	spend       repositories.SpendRepository
	queue       *messaging.Queue
	locks       *locking.CustomerLocks
	logger      *logging.ChanneledLogger
	metrics     *metrics.Registry
}

func NewIngestionService(
	repos repositories.Bundle,
	queue *messaging.Queue,
	locks *locking.CustomerLocks,
	logger *logging.ChanneledLogger,
	reg *metrics.Registry,
) *IngestionService {
	return &IngestionService{
		touchpoints: repos.Touchpoints,
		conversions: repos.Conversions,
		spend:       repos.Spend,
		queue:       queue,
		locks:       locks,
		logger:      logger,
		metrics:     reg,
	}
}

// IngestTouchpoint validates and stores one touchpoint, assigning an ID
// when the caller did not provide one. The customer lock keeps the
// write from landing mid-assembly of that customer's journey.
func (s *IngestionService) IngestTouchpoint(ctx context.Context, tp *attribution.Touchpoint) error {
	if err := tp.Validate(); err != nil {
		return err
	}
	if tp.ID == "" {
		tp.ID = security.GenerateULID()
	}

	release := s.locks.Lock(tp.CustomerID)
	err := s.touchpoints.Store(ctx, tp)
	release()
	if err != nil {
		return fmt.Errorf("failed to store touchpoint: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TouchpointsIngested.Inc()
	}
	s.logger.Ingest().Debug("Touchpoint ingested",
		"touchpointId", tp.ID, "customerId", tp.CustomerID, "channel", tp.Channel)
	return nil
}

// IngestConversion validates and stores one conversion and queues it
// for attribution under every active model. A full queue surfaces as
// attribution.ErrThrottled after the conversion is stored; re-ingestion
// of the stored conversion returns attribution.ErrConflict and callers
// should retry through the dead-letter path instead.
func (s *IngestionService) IngestConversion(ctx context.Context, conv *attribution.ConversionEvent) error {
	if err := conv.Validate(); err != nil {
		return err
	}
	if conv.ID == "" {
		conv.ID = security.GenerateULID()
	}

	if err := s.conversions.Store(ctx, conv); err != nil {
		return fmt.Errorf("failed to store conversion: %w", err)
	}

	if err := s.queue.Enqueue(messaging.Task{Conversion: conv, Version: liveComputationVersion}); err != nil {
		if s.metrics != nil {
			s.metrics.ConversionsRejected.Inc()
		}
		s.logger.Ingest().Warn("Conversion stored but queue full",
			"conversionId", conv.ID, "depth", s.queue.Depth())
		return err
	}

	if s.metrics != nil {
		s.metrics.ConversionsIngested.Inc()
	}
	s.logger.Ingest().Debug("Conversion ingested",
		"conversionId", conv.ID, "customerId", conv.CustomerID, "revenue", conv.Revenue.String())
	return nil
}

// IngestSpend validates and stores one externally supplied spend
// record.
func (s *IngestionService) IngestSpend(ctx context.Context, rec *attribution.SpendRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = security.GenerateULID()
	}

	if err := s.spend.Store(ctx, rec); err != nil {
		return fmt.Errorf("failed to store spend record: %w", err)
	}

	s.logger.Ingest().Debug("Spend record ingested",
		"spendId", rec.ID, "channel", rec.Channel, "campaignId", rec.CampaignID, "amount", rec.Amount.String())
	return nil
}
