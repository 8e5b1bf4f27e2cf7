package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// ModelComparison reports how the active models distribute one
// conversion's revenue, with per-channel divergence figures for
// benchmarking.
type ModelComparison struct {
	ConversionID string                                                  `json:"conversionId"`
	Results      map[attribution.ModelType]*attribution.AttributionResult `json:"results"`
	Divergence   []ChannelDivergence                                     `json:"divergence"`
}

// ChannelDivergence summarizes the spread of attributed revenue one
// channel receives across models.
type ChannelDivergence struct {
	Channel  attribution.Channel `json:"channel"`
	Min      decimal.Decimal     `json:"min"`
	Max      decimal.Decimal     `json:"max"`
	Range    decimal.Decimal     `json:"range"`
	Variance float64             `json:"variance"`
}

// ModelComparisonService runs every active model over a conversion and
// reports divergence. It is read-only over existing results and only
// triggers computation for missing (conversion, model) pairs.
type ModelComparisonService struct {
	conversions repositories.ConversionRepository
	results     repositories.ResultRepository
	processor   *ConversionProcessor
	modelConfig attribution.ModelConfig
	logger      *logging.ChanneledLogger
}

func NewModelComparisonService(
	repos repositories.Bundle,
	processor *ConversionProcessor,
	modelConfig attribution.ModelConfig,
	logger *logging.ChanneledLogger,
) *ModelComparisonService {
	return &ModelComparisonService{
		conversions: repos.Conversions,
		results:     repos.Results,
		processor:   processor,
		modelConfig: modelConfig,
		logger:      logger,
	}
}

// Compare returns the latest result per active model for one
// conversion, computing any missing pairs first.
func (s *ModelComparisonService) Compare(ctx context.Context, conversionID string) (*ModelComparison, error) {
	conv, err := s.conversions.FindByID(ctx, conversionID)
	if err != nil {
		return nil, err
	}

	comparison := &ModelComparison{
		ConversionID: conversionID,
		Results:      make(map[attribution.ModelType]*attribution.AttributionResult, len(s.modelConfig.Models)),
	}

	for _, spec := range s.modelConfig.Models {
		res, err := s.results.FindLatest(ctx, conversionID, spec.Type)
		if errors.Is(err, attribution.ErrNotFound) {
			if procErr := s.processor.ProcessModel(ctx, conv, spec, s.modelConfig.WindowDays, liveComputationVersion); procErr != nil {
				return nil, fmt.Errorf("failed to compute missing %s result: %w", spec.Type, procErr)
			}
			res, err = s.results.FindLatest(ctx, conversionID, spec.Type)
		}
		if err != nil {
			return nil, err
		}
		comparison.Results[spec.Type] = res
	}

	comparison.Divergence = channelDivergence(comparison.Results)
	return comparison, nil
}

// channelDivergence computes, per channel, the min/max/range and
// variance of attributed revenue across the compared models. A model
// that gave a channel nothing counts as zero, so single-touch models
// pull the spread wide.
func channelDivergence(results map[attribution.ModelType]*attribution.AttributionResult) []ChannelDivergence {
	channels := make(map[attribution.Channel]bool)
	for _, res := range results {
		for _, entry := range res.Entries {
			if !entry.Unattributed {
				channels[entry.Channel] = true
			}
		}
	}

	out := make([]ChannelDivergence, 0, len(channels))
	for channel := range channels {
		var values []decimal.Decimal
		for _, res := range results {
			total := decimal.Zero
			for _, entry := range res.Entries {
				if !entry.Unattributed && entry.Channel == channel {
					total = total.Add(entry.AttributedRevenue)
				}
			}
			values = append(values, total)
		}

		min, max := values[0], values[0]
		var sum float64
		for _, v := range values {
			if v.LessThan(min) {
				min = v
			}
			if v.GreaterThan(max) {
				max = v
			}
			sum += v.InexactFloat64()
		}
		mean := sum / float64(len(values))
		var variance float64
		for _, v := range values {
			d := v.InexactFloat64() - mean
			variance += d * d
		}
		variance /= float64(len(values))
		if math.IsNaN(variance) {
			variance = 0
		}

		out = append(out, ChannelDivergence{
			Channel:  channel,
			Min:      min,
			Max:      max,
			Range:    max.Sub(min),
			Variance: variance,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
