package attribution

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessingState tracks a conversion × model pair through the processor
// state machine. Failed and Unattributed are terminal; Unattributed is a
// valid outcome for an empty journey, not a failure.
type ProcessingState string

const (
	StatePending          ProcessingState = "pending"
	StateJourneyAssembled ProcessingState = "journey-assembled"
	StateWeighted         ProcessingState = "weighted"
	StatePersisted        ProcessingState = "persisted"
	StateFailed           ProcessingState = "failed"
	StateUnattributed     ProcessingState = "unattributed"
)

// ResultEntry is one touchpoint's share of a conversion's credit. The
// synthetic unattributed entry has no touchpoint reference and weight 1.0.
// Channel, campaign, and the touchpoint timestamp are denormalized from
// the touchpoint so the aggregator never re-fetches journeys.
type ResultEntry struct {
	TouchpointID      string          `json:"touchpointId,omitempty"`
	Channel           Channel         `json:"channel,omitempty"`
	CampaignID        string          `json:"campaignId,omitempty"`
	TouchpointAt      time.Time       `json:"touchpointAt,omitempty"`
	Weight            float64         `json:"weight"`
	AttributedRevenue decimal.Decimal `json:"attributedRevenue"`
	Unattributed      bool            `json:"unattributed,omitempty"`
}

// InPeriod reports whether the entry's touchpoint falls inside the
// inclusive [from, to] reporting period.
func (e ResultEntry) InPeriod(from, to time.Time) bool {
	return !e.TouchpointAt.Before(from) && !e.TouchpointAt.After(to)
}

// AttributionResult is the credit distribution one model produced for one
// conversion. Results are append-only and versioned: recomputation creates
// a new row under an incremented ComputationVersion, never a mutation.
type AttributionResult struct {
	ID                 string          `json:"id"`
	ConversionID       string          `json:"conversionId"`
	CustomerID         string          `json:"customerId"`
	ModelType          ModelType       `json:"modelType"`
	ComputationVersion int             `json:"computationVersion"`
	ConversionAt       time.Time       `json:"conversionAt"`
	Revenue            decimal.Decimal `json:"revenue"`
	Entries            []ResultEntry   `json:"entries"`
	ComputedAt         time.Time       `json:"computedAt"`
}

// Unattributed reports whether the result is the synthetic single-entry
// outcome of an empty journey.
func (r *AttributionResult) Unattributed() bool {
	return len(r.Entries) == 1 && r.Entries[0].Unattributed
}

// PerformanceKey selects the grouping for a channel performance rollup:
// exactly one of Channel or CampaignID is set.
type PerformanceKey struct {
	Channel    Channel `json:"channel,omitempty"`
	CampaignID string  `json:"campaignId,omitempty"`
}

// Matches reports whether a result entry falls under this grouping key.
func (k PerformanceKey) Matches(e ResultEntry) bool {
	if e.Unattributed {
		return false
	}
	if k.CampaignID != "" {
		return e.CampaignID == k.CampaignID
	}
	return e.Channel == k.Channel
}

// ChannelPerformanceSnapshot is a period-scoped rollup of attributed
// revenue against spend. ROI and ROAS are nil when spend data is missing
// or zero: an explicit undefined sentinel, never a division crash.
// Superseded snapshots are retained for trend analysis, not deleted.
type ChannelPerformanceSnapshot struct {
	ID                string           `json:"id"`
	Channel           Channel          `json:"channel,omitempty"`
	CampaignID        string           `json:"campaignId,omitempty"`
	PeriodStart       time.Time        `json:"periodStart"`
	PeriodEnd         time.Time        `json:"periodEnd"`
	ModelType         ModelType        `json:"modelType"`
	AttributedRevenue decimal.Decimal  `json:"attributedRevenue"`
	Spend             decimal.Decimal  `json:"spend"`
	SpendKnown        bool             `json:"spendKnown"`
	ROI               *decimal.Decimal `json:"roi,omitempty"`
	ROAS              *decimal.Decimal `json:"roas,omitempty"`
	ComputedAt        time.Time        `json:"computedAt"`
	Superseded        bool             `json:"superseded,omitempty"`
}

// Key returns the grouping key this snapshot was computed for.
func (s *ChannelPerformanceSnapshot) Key() PerformanceKey {
	return PerformanceKey{Channel: s.Channel, CampaignID: s.CampaignID}
}

// JobState is the lifecycle of a historical recompute job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobCancelled JobState = "cancelled"
	JobFailed    JobState = "failed"
)

// RecomputeJob is a cancellable, resumable batch recomputation of one
// model over historical conversions. Cursor holds the last completed
// conversionId so the job survives process restarts.
type RecomputeJob struct {
	ID         string      `json:"id"`
	ModelType  ModelType   `json:"modelType"`
	Params     ModelParams `json:"params"`
	WindowDays int         `json:"windowDays"`
	FromDate   time.Time   `json:"fromDate"`
	State      JobState    `json:"state"`
	Cursor     string      `json:"cursor,omitempty"`
	Processed  int         `json:"processed"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"startedAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// DeadLetter is a conversion parked after exhausting ingestion retries.
// It stays parked until re-triggered manually or by automation.
type DeadLetter struct {
	ID           string    `json:"id"`
	ConversionID string    `json:"conversionId"`
	CustomerID   string    `json:"customerId"`
	Reason       string    `json:"reason"`
	Attempts     int       `json:"attempts"`
	ParkedAt     time.Time `json:"parkedAt"`
}
