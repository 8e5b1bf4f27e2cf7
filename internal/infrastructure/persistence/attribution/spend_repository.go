package attribution

import (
	"context"
	"fmt"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/database"
	"github.com/shopspring/decimal"
)

// SQLSpendRepository stores externally supplied spend figures.
type SQLSpendRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSpendRepository creates a new instance of the repository.
func NewSQLSpendRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSpendRepository {
	return &SQLSpendRepository{db: db, logger: logger}
}

// Store saves a spend record.
func (r *SQLSpendRepository) Store(ctx context.Context, rec *attribution.SpendRecord) error {
	const query = `
		INSERT INTO spend_records (id, channel, campaign_id, period_start, period_end, amount)
		VALUES (?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		nullableString(string(rec.Channel)),
		nullableString(rec.CampaignID),
		formatTime(rec.PeriodStart),
		formatTime(rec.PeriodEnd),
		rec.Amount.String(),
	)
	if err != nil {
		r.logger.Database().Error("Spend insert failed", "error", err.Error(), "spendId", rec.ID)
		return fmt.Errorf("failed to store spend record: %w", err)
	}
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// TotalInPeriod sums spend for the grouping key over records overlapping
// [from, to]. The bool is false when no spend rows match at all, which the
// aggregator surfaces as "insufficient spend data".
func (r *SQLSpendRepository) TotalInPeriod(ctx context.Context, key attribution.PerformanceKey, from, to time.Time) (decimal.Decimal, bool, error) {
	query := `
		SELECT amount FROM spend_records
		WHERE period_start <= ? AND period_end >= ?`
	args := []any{formatTime(to), formatTime(from)}

	if key.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, key.CampaignID)
	} else {
		query += ` AND channel = ?`
		args = append(args, string(key.Channel))
	}

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: spend query failed: %v", attribution.ErrDataUnavailable, err)
	}
	defer rows.Close()

	total := decimal.Zero
	found := false
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, false, fmt.Errorf("failed to scan spend row: %w", err)
		}
		d, err := parseDecimal(amount)
		if err != nil {
			return decimal.Zero, false, err
		}
		total = total.Add(d)
		found = true
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: spend row iteration failed: %v", attribution.ErrDataUnavailable, err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return total, found, nil
}
