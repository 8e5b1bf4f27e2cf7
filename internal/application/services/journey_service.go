// Package services contains the application-layer orchestration for
// ingestion, attribution processing, aggregation, and recomputation.
package services

import (
	"context"
	"fmt"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// JourneyService assembles customer journeys for conversions. The
// window filter and ordering live in the domain layer; this service
// owns the touchpoint fetch.
type JourneyService struct {
	touchpoints repositories.TouchpointRepository
	logger      *logging.ChanneledLogger
}

func NewJourneyService(touchpoints repositories.TouchpointRepository, logger *logging.ChanneledLogger) *JourneyService {
	return &JourneyService{touchpoints: touchpoints, logger: logger}
}

// AssembleForConversion builds the ordered journey for the attribution
// window preceding the conversion. An unreachable touchpoint store
// surfaces as attribution.ErrDataUnavailable; an empty journey is a
// valid result.
func (s *JourneyService) AssembleForConversion(ctx context.Context, conv *attribution.ConversionEvent, windowDays int) (*attribution.Journey, error) {
	windowStart := conv.Timestamp.AddDate(0, 0, -windowDays)

	touchpoints, err := s.touchpoints.FindByCustomerInRange(ctx, conv.CustomerID, windowStart, conv.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch touchpoints for customer %s: %w", conv.CustomerID, err)
	}

	journey := attribution.AssembleJourney(conv.CustomerID, touchpoints, conv.Timestamp, windowDays)
	s.logger.Attribution().Debug("Journey assembled",
		"customerId", conv.CustomerID,
		"conversionId", conv.ID,
		"windowDays", windowDays,
		"touchpoints", journey.Len())
	return journey, nil
}
