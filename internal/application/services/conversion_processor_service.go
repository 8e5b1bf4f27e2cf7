package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/locking"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/metrics"
	"github.com/convertlens/convertlens-go/internal/infrastructure/security"
)

// ConversionProcessor runs a conversion through the attribution state
// machine for every configured model: assemble the journey once, weight
// it per model, persist one result per model. The per-customer lock is
// held for assembly and weighting only, never across persistence.
type ConversionProcessor struct {
	journeys    *JourneyService
	results     repositories.ResultRepository
	locks       *locking.CustomerLocks
	modelConfig attribution.ModelConfig
	logger      *logging.ChanneledLogger
	metrics     *metrics.Registry
}

func NewConversionProcessor(
	journeys *JourneyService,
	results repositories.ResultRepository,
	locks *locking.CustomerLocks,
	modelConfig attribution.ModelConfig,
	logger *logging.ChanneledLogger,
	reg *metrics.Registry,
) *ConversionProcessor {
	return &ConversionProcessor{
		journeys:    journeys,
		results:     results,
		locks:       locks,
		modelConfig: modelConfig,
		logger:      logger,
		metrics:     reg,
	}
}

// Process attributes the conversion under every active model at the
// given computation version. Already-persisted pairs are skipped, so
// re-delivery of the same task is a no-op.
func (p *ConversionProcessor) Process(ctx context.Context, conv *attribution.ConversionEvent, version int) error {
	computed, err := p.computeAll(ctx, conv, version)
	if err != nil {
		return err
	}

	for _, res := range computed {
		if err := p.persist(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// ProcessModel attributes the conversion under a single model spec,
// used by recompute jobs and the comparison service to fill missing
// pairs. WindowDays overrides the configured window when positive.
func (p *ConversionProcessor) ProcessModel(ctx context.Context, conv *attribution.ConversionEvent, spec attribution.ModelSpec, windowDays, version int) error {
	if windowDays <= 0 {
		windowDays = p.modelConfig.WindowDays
	}

	exists, err := p.results.Exists(ctx, conv.ID, spec.Type, version)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	release := p.locks.Lock(conv.CustomerID)
	journey, err := p.journeys.AssembleForConversion(ctx, conv, windowDays)
	if err != nil {
		release()
		return err
	}
	res, err := p.weigh(conv, spec, journey, version)
	release()
	if err != nil {
		return err
	}

	return p.persist(ctx, res)
}

// computeAll assembles the journey once under the customer lock and
// weights it for every active model.
func (p *ConversionProcessor) computeAll(ctx context.Context, conv *attribution.ConversionEvent, version int) ([]*attribution.AttributionResult, error) {
	release := p.locks.Lock(conv.CustomerID)
	defer release()

	journey, err := p.journeys.AssembleForConversion(ctx, conv, p.modelConfig.WindowDays)
	if err != nil {
		return nil, err
	}

	computed := make([]*attribution.AttributionResult, 0, len(p.modelConfig.Models))
	for _, spec := range p.modelConfig.Models {
		res, err := p.weigh(conv, spec, journey, version)
		if err != nil {
			return nil, err
		}
		computed = append(computed, res)
	}
	return computed, nil
}

// weigh converts model weights into an attribution result. An empty
// journey yields the single synthetic unattributed entry.
func (p *ConversionProcessor) weigh(conv *attribution.ConversionEvent, spec attribution.ModelSpec, journey *attribution.Journey, version int) (*attribution.AttributionResult, error) {
	res := &attribution.AttributionResult{
		ID:                 security.GenerateULID(),
		ConversionID:       conv.ID,
		CustomerID:         conv.CustomerID,
		ModelType:          spec.Type,
		ComputationVersion: version,
		ConversionAt:       conv.Timestamp,
		Revenue:            conv.Revenue,
		ComputedAt:         time.Now().UTC(),
	}

	if journey.Empty() {
		res.Entries = []attribution.ResultEntry{{
			Weight:            1.0,
			AttributedRevenue: conv.Revenue,
			Unattributed:      true,
		}}
		p.logger.Attribution().Debug("Conversion unattributed",
			"conversionId", conv.ID, "model", spec.Type, "state", attribution.StateUnattributed)
		return res, nil
	}

	weights, err := attribution.Weights(spec.Type, spec.Params, journey, conv.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to weight conversion %s under %s: %w", conv.ID, spec.Type, err)
	}

	res.Entries = make([]attribution.ResultEntry, len(weights))
	for i, w := range weights {
		tp := journey.Touchpoints[i]
		res.Entries[i] = attribution.ResultEntry{
			TouchpointID:      tp.ID,
			Channel:           tp.Channel,
			CampaignID:        tp.CampaignID,
			TouchpointAt:      tp.Timestamp,
			Weight:            w,
			AttributedRevenue: conv.Revenue.Mul(decimal.NewFromFloat(w)),
		}
	}
	p.logger.Attribution().Debug("Conversion weighted",
		"conversionId", conv.ID, "model", spec.Type, "state", attribution.StateWeighted, "entries", len(res.Entries))
	return res, nil
}

// persist stores one result, treating an existing row for the same
// version as already done.
func (p *ConversionProcessor) persist(ctx context.Context, res *attribution.AttributionResult) error {
	exists, err := p.results.Exists(ctx, res.ConversionID, res.ModelType, res.ComputationVersion)
	if err != nil {
		return err
	}
	if exists {
		p.logger.Attribution().Debug("Result already persisted, skipping",
			"conversionId", res.ConversionID, "model", res.ModelType, "version", res.ComputationVersion)
		return nil
	}

	if err := p.results.Store(ctx, res); err != nil {
		// A concurrent processor won the race for this version.
		if errors.Is(err, attribution.ErrConflict) {
			return nil
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.ResultsComputed.WithLabelValues(string(res.ModelType)).Inc()
	}
	p.logger.Attribution().Info("Attribution result persisted",
		"conversionId", res.ConversionID,
		"model", res.ModelType,
		"version", res.ComputationVersion,
		"state", attribution.StatePersisted,
		"unattributed", res.Unattributed())
	return nil
}
