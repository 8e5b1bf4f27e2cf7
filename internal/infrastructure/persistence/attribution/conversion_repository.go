package attribution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/database"
)

// SQLConversionRepository handles conversion event persistence.
type SQLConversionRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLConversionRepository creates a new instance of the repository.
func NewSQLConversionRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLConversionRepository {
	return &SQLConversionRepository{db: db, logger: logger}
}

// Store saves a conversion event to the database.
func (r *SQLConversionRepository) Store(ctx context.Context, conv *attribution.ConversionEvent) error {
	const query = `
		INSERT INTO conversions (id, customer_id, timestamp, revenue, conversion_type)
		VALUES (?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		conv.ID,
		conv.CustomerID,
		formatTime(conv.Timestamp),
		conv.Revenue.String(),
		nullableString(conv.ConversionType),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: conversion %s already ingested", attribution.ErrConflict, conv.ID)
		}
		r.logger.Database().Error("Conversion insert failed",
			"error", err.Error(),
			"conversionId", conv.ID,
			"customerId", conv.CustomerID)
		return fmt.Errorf("failed to store conversion: %w", err)
	}

	r.logger.Database().Debug("Conversion insert completed",
		"conversionId", conv.ID,
		"customerId", conv.CustomerID,
		"duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// FindByID retrieves a single conversion event.
func (r *SQLConversionRepository) FindByID(ctx context.Context, id string) (*attribution.ConversionEvent, error) {
	const query = `
		SELECT id, customer_id, timestamp, revenue, conversion_type
		FROM conversions WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	conv, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversion %s", attribution.ErrNotFound, id)
	}
	return conv, err
}

// FindBatchAfter returns up to limit conversions with timestamp >= from
// and ID > afterID, ordered by ID ascending. An empty afterID starts from
// the beginning.
func (r *SQLConversionRepository) FindBatchAfter(ctx context.Context, from time.Time, afterID string, limit int) ([]*attribution.ConversionEvent, error) {
	const query = `
		SELECT id, customer_id, timestamp, revenue, conversion_type
		FROM conversions
		WHERE timestamp >= ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, formatTime(from), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: conversion batch query failed: %v", attribution.ErrDataUnavailable, err)
	}
	defer rows.Close()

	var out []*attribution.ConversionEvent
	for rows.Next() {
		conv, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: conversion row iteration failed: %v", attribution.ErrDataUnavailable, err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversion(row rowScanner) (*attribution.ConversionEvent, error) {
	var (
		conv     attribution.ConversionEvent
		ts       string
		revenue  string
		convType sql.NullString
	)
	if err := row.Scan(&conv.ID, &conv.CustomerID, &ts, &revenue, &convType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan conversion row: %w", err)
	}

	parsed, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	conv.Timestamp = parsed

	rev, err := parseDecimal(revenue)
	if err != nil {
		return nil, err
	}
	conv.Revenue = rev
	conv.ConversionType = scanNullString(convType)
	return &conv, nil
}
