// Package repositories defines the repository interfaces for attribution
// entities. These repositories abstract the data persistence details,
// ensuring the core application is clean and decoupled from the database.
package repositories

import (
	"context"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/shopspring/decimal"
)

type TouchpointRepository interface {
	Store(ctx context.Context, tp *attribution.Touchpoint) error
	// FindByCustomerInRange returns all of a customer's touchpoints with
	// timestamp in [from, to], unordered. An unreachable store surfaces as
	// attribution.ErrDataUnavailable; an empty result is not an error.
	FindByCustomerInRange(ctx context.Context, customerID string, from, to time.Time) ([]*attribution.Touchpoint, error)
}

type ConversionRepository interface {
	Store(ctx context.Context, conv *attribution.ConversionEvent) error
	FindByID(ctx context.Context, id string) (*attribution.ConversionEvent, error)
	// FindBatchAfter returns up to limit conversions with timestamp >= from
	// and ID > afterID, ordered by ID ascending. Drives the recompute
	// job's persisted cursor.
	FindBatchAfter(ctx context.Context, from time.Time, afterID string, limit int) ([]*attribution.ConversionEvent, error)
}

type ResultRepository interface {
	// Store persists a result. Returns attribution.ErrConflict when a row
	// for the same (conversionId, modelType, computationVersion) exists;
	// results are append-only and never mutated.
	Store(ctx context.Context, res *attribution.AttributionResult) error
	Exists(ctx context.Context, conversionID string, model attribution.ModelType, version int) (bool, error)
	// LatestVersion returns 0 when no result exists yet.
	LatestVersion(ctx context.Context, conversionID string, model attribution.ModelType) (int, error)
	FindByVersion(ctx context.Context, conversionID string, model attribution.ModelType, version int) (*attribution.AttributionResult, error)
	FindLatest(ctx context.Context, conversionID string, model attribution.ModelType) (*attribution.AttributionResult, error)
	// FindLatestInPeriod returns, for every conversion whose timestamp
	// falls in [from, to], the highest-version result under the model.
	FindLatestInPeriod(ctx context.Context, model attribution.ModelType, from, to time.Time) ([]*attribution.AttributionResult, error)
}

type SpendRepository interface {
	Store(ctx context.Context, rec *attribution.SpendRecord) error
	// TotalInPeriod sums spend for the grouping key over records
	// overlapping [from, to]. The bool is false when no spend data exists
	// for the key at all.
	TotalInPeriod(ctx context.Context, key attribution.PerformanceKey, from, to time.Time) (decimal.Decimal, bool, error)
}

type SnapshotRepository interface {
	// Store persists a snapshot and marks earlier snapshots for the same
	// (key, period, model) superseded. Superseded rows are retained.
	Store(ctx context.Context, snap *attribution.ChannelPerformanceSnapshot) error
	// FindCurrent returns the non-superseded snapshot for the key/period/
	// model, or attribution.ErrNotFound.
	FindCurrent(ctx context.Context, key attribution.PerformanceKey, from, to time.Time, model attribution.ModelType) (*attribution.ChannelPerformanceSnapshot, error)
}

type JobRepository interface {
	Store(ctx context.Context, job *attribution.RecomputeJob) error
	Update(ctx context.Context, job *attribution.RecomputeJob) error
	FindByID(ctx context.Context, id string) (*attribution.RecomputeJob, error)
	// FindRunning returns jobs left in the running state, i.e. candidates
	// for resumption after a process restart.
	FindRunning(ctx context.Context) ([]*attribution.RecomputeJob, error)
}

type DeadLetterRepository interface {
	Store(ctx context.Context, dl *attribution.DeadLetter) error
	List(ctx context.Context) ([]*attribution.DeadLetter, error)
	FindByID(ctx context.Context, id string) (*attribution.DeadLetter, error)
	Delete(ctx context.Context, id string) error
}

// Bundle groups one implementation of every repository so wiring stays in
// one place regardless of the backing store.
type Bundle struct {
	Touchpoints TouchpointRepository
	Conversions ConversionRepository
	Results     ResultRepository
	Spend       SpendRepository
	Snapshots   SnapshotRepository
	Jobs        JobRepository
	DeadLetters DeadLetterRepository
}
