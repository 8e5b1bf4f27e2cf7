// Package memory provides in-memory implementations of the attribution
// repositories. They back the unit tests and the memory database driver
// used for local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/shopspring/decimal"
)

// NewRepositories returns a fresh in-memory bundle.
func NewRepositories() repositories.Bundle {
	return repositories.Bundle{
		Touchpoints: NewTouchpointRepository(),
		Conversions: NewConversionRepository(),
		Results:     NewResultRepository(),
		Spend:       NewSpendRepository(),
		Snapshots:   NewSnapshotRepository(),
		Jobs:        NewJobRepository(),
		DeadLetters: NewDeadLetterRepository(),
	}
}

// TouchpointRepository is an in-memory TouchpointRepository.
type TouchpointRepository struct {
	mu    sync.RWMutex
	items []*attribution.Touchpoint
}

func NewTouchpointRepository() *TouchpointRepository {
	return &TouchpointRepository{}
}

func (r *TouchpointRepository) Store(_ context.Context, tp *attribution.Touchpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *tp
	r.items = append(r.items, &copied)
	return nil
}

func (r *TouchpointRepository) FindByCustomerInRange(_ context.Context, customerID string, from, to time.Time) ([]*attribution.Touchpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*attribution.Touchpoint
	for _, tp := range r.items {
		if tp.CustomerID != customerID {
			continue
		}
		if tp.Timestamp.Before(from) || tp.Timestamp.After(to) {
			continue
		}
		copied := *tp
		out = append(out, &copied)
	}
	return out, nil
}

// ConversionRepository is an in-memory ConversionRepository.
type ConversionRepository struct {
	mu    sync.RWMutex
	items map[string]*attribution.ConversionEvent
}

func NewConversionRepository() *ConversionRepository {
	return &ConversionRepository{items: make(map[string]*attribution.ConversionEvent)}
}

func (r *ConversionRepository) Store(_ context.Context, conv *attribution.ConversionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[conv.ID]; exists {
		return fmt.Errorf("%w: conversion %s already ingested", attribution.ErrConflict, conv.ID)
	}
	copied := *conv
	r.items[conv.ID] = &copied
	return nil
}

func (r *ConversionRepository) FindByID(_ context.Context, id string) (*attribution.ConversionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversion %s", attribution.ErrNotFound, id)
	}
	copied := *conv
	return &copied, nil
}

func (r *ConversionRepository) FindBatchAfter(_ context.Context, from time.Time, afterID string, limit int) ([]*attribution.ConversionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*attribution.ConversionEvent
	for _, conv := range r.items {
		if conv.Timestamp.Before(from) || conv.ID <= afterID {
			continue
		}
		copied := *conv
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type resultKey struct {
	conversionID string
	model        attribution.ModelType
	version      int
}

// ResultRepository is an in-memory ResultRepository with append-only
// version semantics.
type ResultRepository struct {
	mu    sync.RWMutex
	items map[resultKey]*attribution.AttributionResult
}

func NewResultRepository() *ResultRepository {
	return &ResultRepository{items: make(map[resultKey]*attribution.AttributionResult)}
}

func (r *ResultRepository) Store(_ context.Context, res *attribution.AttributionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := resultKey{res.ConversionID, res.ModelType, res.ComputationVersion}
	if _, exists := r.items[key]; exists {
		return fmt.Errorf("%w: result for conversion %s, model %s, version %d",
			attribution.ErrConflict, res.ConversionID, res.ModelType, res.ComputationVersion)
	}
	copied := *res
	copied.Entries = append([]attribution.ResultEntry(nil), res.Entries...)
	r.items[key] = &copied
	return nil
}

func (r *ResultRepository) Exists(_ context.Context, conversionID string, model attribution.ModelType, version int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[resultKey{conversionID, model, version}]
	return ok, nil
}

func (r *ResultRepository) LatestVersion(_ context.Context, conversionID string, model attribution.ModelType) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	latest := 0
	for key := range r.items {
		if key.conversionID == conversionID && key.model == model && key.version > latest {
			latest = key.version
		}
	}
	return latest, nil
}

func (r *ResultRepository) FindByVersion(_ context.Context, conversionID string, model attribution.ModelType, version int) (*attribution.AttributionResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.items[resultKey{conversionID, model, version}]
	if !ok {
		return nil, fmt.Errorf("%w: attribution result", attribution.ErrNotFound)
	}
	return copyResult(res), nil
}

func (r *ResultRepository) FindLatest(ctx context.Context, conversionID string, model attribution.ModelType) (*attribution.AttributionResult, error) {
	version, err := r.LatestVersion(ctx, conversionID, model)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("%w: attribution result", attribution.ErrNotFound)
	}
	return r.FindByVersion(ctx, conversionID, model, version)
}

func (r *ResultRepository) FindLatestInPeriod(_ context.Context, model attribution.ModelType, from, to time.Time) ([]*attribution.AttributionResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	latest := make(map[string]*attribution.AttributionResult)
	for key, res := range r.items {
		if key.model != model {
			continue
		}
		if res.ConversionAt.Before(from) || res.ConversionAt.After(to) {
			continue
		}
		if cur, ok := latest[key.conversionID]; !ok || res.ComputationVersion > cur.ComputationVersion {
			latest[key.conversionID] = res
		}
	}
	out := make([]*attribution.AttributionResult, 0, len(latest))
	for _, res := range latest {
		out = append(out, copyResult(res))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversionID < out[j].ConversionID })
	return out, nil
}

func copyResult(res *attribution.AttributionResult) *attribution.AttributionResult {
	copied := *res
	copied.Entries = append([]attribution.ResultEntry(nil), res.Entries...)
	return &copied
}

// SpendRepository is an in-memory SpendRepository.
type SpendRepository struct {
	mu    sync.RWMutex
	items []*attribution.SpendRecord
}

func NewSpendRepository() *SpendRepository {
	return &SpendRepository{}
}

func (r *SpendRepository) Store(_ context.Context, rec *attribution.SpendRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *rec
	r.items = append(r.items, &copied)
	return nil
}

func (r *SpendRepository) TotalInPeriod(_ context.Context, key attribution.PerformanceKey, from, to time.Time) (decimal.Decimal, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	found := false
	for _, rec := range r.items {
		if rec.PeriodStart.After(to) || rec.PeriodEnd.Before(from) {
			continue
		}
		if key.CampaignID != "" {
			if rec.CampaignID != key.CampaignID {
				continue
			}
		} else if rec.Channel != key.Channel {
			continue
		}
		total = total.Add(rec.Amount)
		found = true
	}
	return total, found, nil
}

type snapshotKey struct {
	channel    attribution.Channel
	campaignID string
	from       time.Time
	to         time.Time
	model      attribution.ModelType
}

// SnapshotRepository is an in-memory SnapshotRepository. History of
// superseded snapshots is retained in order.
type SnapshotRepository struct {
	mu      sync.RWMutex
	current map[snapshotKey]*attribution.ChannelPerformanceSnapshot
	history []*attribution.ChannelPerformanceSnapshot
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{current: make(map[snapshotKey]*attribution.ChannelPerformanceSnapshot)}
}

func (r *SnapshotRepository) Store(_ context.Context, snap *attribution.ChannelPerformanceSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := snapshotKey{snap.Channel, snap.CampaignID, snap.PeriodStart, snap.PeriodEnd, snap.ModelType}
	if prev, ok := r.current[key]; ok {
		prev.Superseded = true
		r.history = append(r.history, prev)
	}
	copied := *snap
	r.current[key] = &copied
	return nil
}

func (r *SnapshotRepository) FindCurrent(_ context.Context, key attribution.PerformanceKey, from, to time.Time, model attribution.ModelType) (*attribution.ChannelPerformanceSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.current[snapshotKey{key.Channel, key.CampaignID, from, to, model}]
	if !ok {
		return nil, fmt.Errorf("%w: channel snapshot", attribution.ErrNotFound)
	}
	copied := *snap
	return &copied, nil
}

// History returns all superseded snapshots, for tests.
func (r *SnapshotRepository) History() []*attribution.ChannelPerformanceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*attribution.ChannelPerformanceSnapshot(nil), r.history...)
}

// JobRepository is an in-memory JobRepository.
type JobRepository struct {
	mu    sync.RWMutex
	items map[string]*attribution.RecomputeJob
}

func NewJobRepository() *JobRepository {
	return &JobRepository{items: make(map[string]*attribution.RecomputeJob)}
}

func (r *JobRepository) Store(_ context.Context, job *attribution.RecomputeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.items[job.ID] = &copied
	return nil
}

func (r *JobRepository) Update(_ context.Context, job *attribution.RecomputeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[job.ID]; !ok {
		return fmt.Errorf("%w: recompute job %s", attribution.ErrNotFound, job.ID)
	}
	copied := *job
	copied.UpdatedAt = time.Now().UTC()
	r.items[job.ID] = &copied
	return nil
}

func (r *JobRepository) FindByID(_ context.Context, id string) (*attribution.RecomputeJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: recompute job %s", attribution.ErrNotFound, id)
	}
	copied := *job
	return &copied, nil
}

func (r *JobRepository) FindRunning(_ context.Context) ([]*attribution.RecomputeJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*attribution.RecomputeJob
	for _, job := range r.items {
		if job.State == attribution.JobRunning {
			copied := *job
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// DeadLetterRepository is an in-memory DeadLetterRepository.
type DeadLetterRepository struct {
	mu    sync.RWMutex
	items map[string]*attribution.DeadLetter
}

func NewDeadLetterRepository() *DeadLetterRepository {
	return &DeadLetterRepository{items: make(map[string]*attribution.DeadLetter)}
}

func (r *DeadLetterRepository) Store(_ context.Context, dl *attribution.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *dl
	r.items[dl.ID] = &copied
	return nil
}

func (r *DeadLetterRepository) List(_ context.Context) ([]*attribution.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*attribution.DeadLetter, 0, len(r.items))
	for _, dl := range r.items {
		copied := *dl
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParkedAt.Before(out[j].ParkedAt) })
	return out, nil
}

func (r *DeadLetterRepository) FindByID(_ context.Context, id string) (*attribution.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dl, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: dead letter %s", attribution.ErrNotFound, id)
	}
	copied := *dl
	return &copied, nil
}

func (r *DeadLetterRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: dead letter %s", attribution.ErrNotFound, id)
	}
	delete(r.items, id)
	return nil
}
