package services

import (
	"context"
	"fmt"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/email"
	"github.com/convertlens/convertlens-go/internal/infrastructure/messaging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/metrics"
	"github.com/convertlens/convertlens-go/internal/infrastructure/security"
)

// DeadLetterService parks conversions that exhausted their retries and
// lets operators inspect and re-trigger them. Alerts is optional; nil
// disables email notifications.
type DeadLetterService struct {
	deadLetters repositories.DeadLetterRepository
	conversions repositories.ConversionRepository
	queue       *messaging.Queue
	alerts      email.AlertService
	logger      *logging.ChanneledLogger
	metrics     *metrics.Registry
}

func NewDeadLetterService(
	repos repositories.Bundle,
	queue *messaging.Queue,
	alerts email.AlertService,
	logger *logging.ChanneledLogger,
	reg *metrics.Registry,
) *DeadLetterService {
	return &DeadLetterService{
		deadLetters: repos.DeadLetters,
		conversions: repos.Conversions,
		queue:       queue,
		alerts:      alerts,
		logger:      logger,
		metrics:     reg,
	}
}

// Park records a conversion in the dead-letter store and fires the
// alert email in the background.
func (s *DeadLetterService) Park(ctx context.Context, conv *attribution.ConversionEvent, version int, attempts int, reason error) error {
	dl := &attribution.DeadLetter{
		ID:           security.GenerateULID(),
		ConversionID: conv.ID,
		CustomerID:   conv.CustomerID,
		Reason:       reason.Error(),
		Attempts:     attempts,
		ParkedAt:     time.Now().UTC(),
	}
	if err := s.deadLetters.Store(ctx, dl); err != nil {
		return fmt.Errorf("failed to store dead letter: %w", err)
	}

	if s.metrics != nil {
		s.metrics.DeadLettered.Inc()
	}
	s.logger.Alert().Warn("Conversion parked in dead-letter store",
		"deadLetterId", dl.ID, "conversionId", conv.ID, "attempts", attempts, "reason", dl.Reason)

	if s.alerts != nil {
		go func(dl attribution.DeadLetter) {
			if err := s.alerts.SendDeadLetterAlert(&dl); err != nil {
				s.logger.LogError(logging.ChannelAlert, "send_dead_letter_alert", err, map[string]any{
					"deadLetterId": dl.ID,
				})
			}
		}(*dl)
	}
	return nil
}

// List returns every parked conversion, oldest first.
func (s *DeadLetterService) List(ctx context.Context) ([]*attribution.DeadLetter, error) {
	return s.deadLetters.List(ctx)
}

// Retry re-queues a parked conversion and removes the dead letter once
// the task is accepted. A full queue leaves the letter parked.
func (s *DeadLetterService) Retry(ctx context.Context, deadLetterID string) error {
	dl, err := s.deadLetters.FindByID(ctx, deadLetterID)
	if err != nil {
		return err
	}
	conv, err := s.conversions.FindByID(ctx, dl.ConversionID)
	if err != nil {
		return err
	}

	if err := s.queue.Enqueue(messaging.Task{Conversion: conv, Version: liveComputationVersion}); err != nil {
		return err
	}
	if err := s.deadLetters.Delete(ctx, deadLetterID); err != nil {
		return err
	}

	s.logger.Alert().Info("Dead letter re-queued",
		"deadLetterId", deadLetterID, "conversionId", dl.ConversionID)
	return nil
}
