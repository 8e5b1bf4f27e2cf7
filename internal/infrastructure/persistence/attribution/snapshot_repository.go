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

// SQLSnapshotRepository persists channel performance snapshots. Superseded
// snapshots are flagged, never deleted, so trend analysis keeps history.
type SQLSnapshotRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSnapshotRepository creates a new instance of the repository.
func NewSQLSnapshotRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSnapshotRepository {
	return &SQLSnapshotRepository{db: db, logger: logger}
}

// Store persists a snapshot after marking earlier snapshots for the same
// key/period/model superseded, in one transaction.
func (r *SQLSnapshotRepository) Store(ctx context.Context, snap *attribution.ChannelPerformanceSnapshot) error {
	const supersedeQuery = `
		UPDATE channel_snapshots SET superseded = 1
		WHERE COALESCE(channel, '') = ? AND COALESCE(campaign_id, '') = ?
		  AND period_start = ? AND period_end = ? AND model_type = ? AND superseded = 0`
	const insertQuery = `
		INSERT INTO channel_snapshots
			(id, channel, campaign_id, period_start, period_end, model_type,
			 attributed_revenue, spend, spend_known, roi, roas, computed_at, superseded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`

	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, supersedeQuery,
		string(snap.Channel), snap.CampaignID,
		formatTime(snap.PeriodStart), formatTime(snap.PeriodEnd), string(snap.ModelType))
	if err != nil {
		return fmt.Errorf("failed to supersede snapshots: %w", err)
	}

	spendKnown := 0
	if snap.SpendKnown {
		spendKnown = 1
	}
	var roi, roas any
	if snap.ROI != nil {
		roi = snap.ROI.String()
	}
	if snap.ROAS != nil {
		roas = snap.ROAS.String()
	}

	_, err = tx.ExecContext(ctx, insertQuery,
		snap.ID,
		nullableString(string(snap.Channel)),
		nullableString(snap.CampaignID),
		formatTime(snap.PeriodStart),
		formatTime(snap.PeriodEnd),
		string(snap.ModelType),
		snap.AttributedRevenue.String(),
		snap.Spend.String(),
		spendKnown,
		roi,
		roas,
		formatTime(snap.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, insertQuery, time.Since(start))
	return nil
}

// FindCurrent returns the non-superseded snapshot for the key/period/model.
func (r *SQLSnapshotRepository) FindCurrent(ctx context.Context, key attribution.PerformanceKey, from, to time.Time, model attribution.ModelType) (*attribution.ChannelPerformanceSnapshot, error) {
	const query = `
		SELECT id, channel, campaign_id, period_start, period_end, model_type,
		       attributed_revenue, spend, spend_known, roi, roas, computed_at
		FROM channel_snapshots
		WHERE COALESCE(channel, '') = ? AND COALESCE(campaign_id, '') = ?
		  AND period_start = ? AND period_end = ? AND model_type = ? AND superseded = 0
		ORDER BY computed_at DESC LIMIT 1`

	row := r.db.QueryRowContext(ctx, query,
		string(key.Channel), key.CampaignID,
		formatTime(from), formatTime(to), string(model))

	var (
		snap        attribution.ChannelPerformanceSnapshot
		channel     sql.NullString
		campaignID  sql.NullString
		periodStart string
		periodEnd   string
		modelType   string
		attributed  string
		spend       string
		spendKnown  int
		roi         sql.NullString
		roas        sql.NullString
		computedAt  string
	)
	err := row.Scan(&snap.ID, &channel, &campaignID, &periodStart, &periodEnd, &modelType,
		&attributed, &spend, &spendKnown, &roi, &roas, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: channel snapshot", attribution.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
	}

	snap.Channel = attribution.Channel(scanNullString(channel))
	snap.CampaignID = scanNullString(campaignID)
	snap.ModelType = attribution.ModelType(modelType)
	snap.SpendKnown = spendKnown == 1

	if snap.PeriodStart, err = parseTime(periodStart); err != nil {
		return nil, err
	}
	if snap.PeriodEnd, err = parseTime(periodEnd); err != nil {
		return nil, err
	}
	if snap.ComputedAt, err = parseTime(computedAt); err != nil {
		return nil, err
	}
	if snap.AttributedRevenue, err = parseDecimal(attributed); err != nil {
		return nil, err
	}
	if snap.Spend, err = parseDecimal(spend); err != nil {
		return nil, err
	}
	if roi.Valid {
		d, err := parseDecimal(roi.String)
		if err != nil {
			return nil, err
		}
		snap.ROI = &d
	}
	if roas.Valid {
		d, err := parseDecimal(roas.String)
		if err != nil {
			return nil, err
		}
		snap.ROAS = &d
	}
	return &snap, nil
}
