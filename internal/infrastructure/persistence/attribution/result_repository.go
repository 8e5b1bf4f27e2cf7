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

// SQLResultRepository persists attribution results and their per-touchpoint
// entries. Results are append-only: a duplicate (conversionId, modelType,
// computationVersion) insert is rejected as a conflict, never overwritten.
type SQLResultRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLResultRepository creates a new instance of the repository.
func NewSQLResultRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLResultRepository {
	return &SQLResultRepository{db: db, logger: logger}
}

// Store persists a result with its entries in one transaction.
func (r *SQLResultRepository) Store(ctx context.Context, res *attribution.AttributionResult) error {
	const resultQuery = `
		INSERT INTO attribution_results
			(id, conversion_id, customer_id, model_type, computation_version, conversion_at, revenue, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	const entryQuery = `
		INSERT INTO attribution_result_entries
			(result_id, position, touchpoint_id, channel, campaign_id, touchpoint_at, weight, attributed_revenue, unattributed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin result transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, resultQuery,
		res.ID,
		res.ConversionID,
		res.CustomerID,
		string(res.ModelType),
		res.ComputationVersion,
		formatTime(res.ConversionAt),
		res.Revenue.String(),
		formatTime(res.ComputedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: result for conversion %s, model %s, version %d",
				attribution.ErrConflict, res.ConversionID, res.ModelType, res.ComputationVersion)
		}
		r.logger.Database().Error("Result insert failed",
			"error", err.Error(),
			"conversionId", res.ConversionID,
			"modelType", res.ModelType,
			"version", res.ComputationVersion)
		return fmt.Errorf("failed to store attribution result: %w", err)
	}

	for i, entry := range res.Entries {
		unattributed := 0
		if entry.Unattributed {
			unattributed = 1
		}
		var touchpointAt any
		if !entry.TouchpointAt.IsZero() {
			touchpointAt = formatTime(entry.TouchpointAt)
		}
		_, err = tx.ExecContext(ctx, entryQuery,
			res.ID,
			i,
			nullableString(entry.TouchpointID),
			nullableString(string(entry.Channel)),
			nullableString(entry.CampaignID),
			touchpointAt,
			entry.Weight,
			entry.AttributedRevenue.String(),
			unattributed,
		)
		if err != nil {
			return fmt.Errorf("failed to store result entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result transaction: %w", err)
	}

	r.logger.Database().Debug("Result persisted",
		"conversionId", res.ConversionID,
		"modelType", res.ModelType,
		"version", res.ComputationVersion,
		"entries", len(res.Entries),
		"duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, resultQuery, time.Since(start))
	return nil
}

// Exists reports whether a result row exists for the exact version.
func (r *SQLResultRepository) Exists(ctx context.Context, conversionID string, model attribution.ModelType, version int) (bool, error) {
	const query = `
		SELECT 1 FROM attribution_results
		WHERE conversion_id = ? AND model_type = ? AND computation_version = ?`

	var one int
	err := r.db.QueryRowContext(ctx, query, conversionID, string(model), version).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check result existence: %w", err)
	}
	return true, nil
}

// LatestVersion returns the highest computation version, or 0 when no
// result exists yet.
func (r *SQLResultRepository) LatestVersion(ctx context.Context, conversionID string, model attribution.ModelType) (int, error) {
	const query = `
		SELECT COALESCE(MAX(computation_version), 0) FROM attribution_results
		WHERE conversion_id = ? AND model_type = ?`

	var version int
	if err := r.db.QueryRowContext(ctx, query, conversionID, string(model)).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query latest version: %w", err)
	}
	return version, nil
}

// FindByVersion retrieves a result at an exact computation version.
func (r *SQLResultRepository) FindByVersion(ctx context.Context, conversionID string, model attribution.ModelType, version int) (*attribution.AttributionResult, error) {
	const query = `
		SELECT id, conversion_id, customer_id, model_type, computation_version, conversion_at, revenue, computed_at
		FROM attribution_results
		WHERE conversion_id = ? AND model_type = ? AND computation_version = ?`

	res, err := r.scanResultRow(ctx, query, conversionID, string(model), version)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FindLatest retrieves the highest-version result for a conversion/model.
func (r *SQLResultRepository) FindLatest(ctx context.Context, conversionID string, model attribution.ModelType) (*attribution.AttributionResult, error) {
	const query = `
		SELECT id, conversion_id, customer_id, model_type, computation_version, conversion_at, revenue, computed_at
		FROM attribution_results
		WHERE conversion_id = ? AND model_type = ?
		ORDER BY computation_version DESC LIMIT 1`

	return r.scanResultRow(ctx, query, conversionID, string(model))
}

// FindLatestInPeriod returns the highest-version result per conversion
// under the model, for conversions inside [from, to].
func (r *SQLResultRepository) FindLatestInPeriod(ctx context.Context, model attribution.ModelType, from, to time.Time) ([]*attribution.AttributionResult, error) {
	const query = `
		SELECT r.id, r.conversion_id, r.customer_id, r.model_type, r.computation_version, r.conversion_at, r.revenue, r.computed_at
		FROM attribution_results r
		WHERE r.model_type = ?
		  AND r.conversion_at >= ? AND r.conversion_at <= ?
		  AND r.computation_version = (
			SELECT MAX(r2.computation_version)
			FROM attribution_results r2
			WHERE r2.conversion_id = r.conversion_id AND r2.model_type = r.model_type
		  )
		ORDER BY r.conversion_id ASC`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, string(model), formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("%w: result period query failed: %v", attribution.ErrDataUnavailable, err)
	}
	defer rows.Close()

	var results []*attribution.AttributionResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: result row iteration failed: %v", attribution.ErrDataUnavailable, err)
	}

	for _, res := range results {
		if err := r.loadEntries(ctx, res); err != nil {
			return nil, err
		}
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return results, nil
}

func (r *SQLResultRepository) scanResultRow(ctx context.Context, query string, args ...any) (*attribution.AttributionResult, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: attribution result", attribution.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadEntries(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *SQLResultRepository) loadEntries(ctx context.Context, res *attribution.AttributionResult) error {
	const query = `
		SELECT touchpoint_id, channel, campaign_id, touchpoint_at, weight, attributed_revenue, unattributed
		FROM attribution_result_entries
		WHERE result_id = ?
		ORDER BY position ASC`

	rows, err := r.db.QueryContext(ctx, query, res.ID)
	if err != nil {
		return fmt.Errorf("failed to load result entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry        attribution.ResultEntry
			touchpointID sql.NullString
			channel      sql.NullString
			campaignID   sql.NullString
			touchpointAt sql.NullString
			revenue      string
			unattributed int
		)
		if err := rows.Scan(&touchpointID, &channel, &campaignID, &touchpointAt, &entry.Weight, &revenue, &unattributed); err != nil {
			return fmt.Errorf("failed to scan result entry: %w", err)
		}
		entry.TouchpointID = scanNullString(touchpointID)
		entry.Channel = attribution.Channel(scanNullString(channel))
		entry.CampaignID = scanNullString(campaignID)
		entry.Unattributed = unattributed == 1
		if touchpointAt.Valid {
			at, err := parseTime(touchpointAt.String)
			if err != nil {
				return err
			}
			entry.TouchpointAt = at
		}

		rev, err := parseDecimal(revenue)
		if err != nil {
			return err
		}
		entry.AttributedRevenue = rev
		res.Entries = append(res.Entries, entry)
	}
	return rows.Err()
}

func scanResult(row rowScanner) (*attribution.AttributionResult, error) {
	var (
		res          attribution.AttributionResult
		modelType    string
		conversionAt string
		revenue      string
		computedAt   string
	)
	err := row.Scan(&res.ID, &res.ConversionID, &res.CustomerID, &modelType,
		&res.ComputationVersion, &conversionAt, &revenue, &computedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan result row: %w", err)
	}

	res.ModelType = attribution.ModelType(modelType)

	if res.ConversionAt, err = parseTime(conversionAt); err != nil {
		return nil, err
	}
	if res.ComputedAt, err = parseTime(computedAt); err != nil {
		return nil, err
	}
	if res.Revenue, err = parseDecimal(revenue); err != nil {
		return nil, err
	}
	return &res, nil
}
