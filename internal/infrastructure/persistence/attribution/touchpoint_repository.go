package attribution

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/database"
)

// SQLTouchpointRepository handles touchpoint persistence. Touchpoints are
// append-only; there is no update or delete path.
type SQLTouchpointRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLTouchpointRepository creates a new instance of the repository.
func NewSQLTouchpointRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLTouchpointRepository {
	return &SQLTouchpointRepository{db: db, logger: logger}
}

// Store saves a touchpoint event to the database.
func (r *SQLTouchpointRepository) Store(ctx context.Context, tp *attribution.Touchpoint) error {
	const query = `
		INSERT INTO touchpoints (id, customer_id, channel, campaign_id, timestamp, cost)
		VALUES (?, ?, ?, ?, ?, ?)`

	var cost any
	if tp.Cost != nil {
		cost = tp.Cost.String()
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		tp.ID,
		tp.CustomerID,
		string(tp.Channel),
		nullableString(tp.CampaignID),
		formatTime(tp.Timestamp),
		cost,
	)
	if err != nil {
		r.logger.Database().Error("Touchpoint insert failed",
			"error", err.Error(),
			"touchpointId", tp.ID,
			"customerId", tp.CustomerID)
		return fmt.Errorf("failed to store touchpoint: %w", err)
	}

	r.logger.Database().Debug("Touchpoint insert completed",
		"touchpointId", tp.ID,
		"customerId", tp.CustomerID,
		"channel", tp.Channel,
		"duration", time.Since(start))
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// FindByCustomerInRange retrieves a customer's touchpoints with timestamp
// in [from, to]. A failing store surfaces as ErrDataUnavailable so the
// processing layer retries with backoff.
func (r *SQLTouchpointRepository) FindByCustomerInRange(ctx context.Context, customerID string, from, to time.Time) ([]*attribution.Touchpoint, error) {
	const query = `
		SELECT id, customer_id, channel, campaign_id, timestamp, cost
		FROM touchpoints
		WHERE customer_id = ? AND timestamp >= ? AND timestamp <= ?`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, customerID, formatTime(from), formatTime(to))
	if err != nil {
		r.logger.Database().Error("Touchpoint range query failed",
			"error", err.Error(),
			"customerId", customerID)
		return nil, fmt.Errorf("%w: touchpoint query failed: %v", attribution.ErrDataUnavailable, err)
	}
	defer rows.Close()

	var touchpoints []*attribution.Touchpoint
	for rows.Next() {
		tp, err := scanTouchpoint(rows)
		if err != nil {
			return nil, err
		}
		touchpoints = append(touchpoints, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: touchpoint row iteration failed: %v", attribution.ErrDataUnavailable, err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return touchpoints, nil
}

func scanTouchpoint(rows *sql.Rows) (*attribution.Touchpoint, error) {
	var (
		tp         attribution.Touchpoint
		channel    string
		campaignID sql.NullString
		ts         string
		cost       sql.NullString
	)
	if err := rows.Scan(&tp.ID, &tp.CustomerID, &channel, &campaignID, &ts, &cost); err != nil {
		return nil, fmt.Errorf("failed to scan touchpoint row: %w", err)
	}

	tp.Channel = attribution.Channel(channel)
	tp.CampaignID = scanNullString(campaignID)

	parsed, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	tp.Timestamp = parsed

	if cost.Valid {
		d, err := parseDecimal(cost.String)
		if err != nil {
			return nil, err
		}
		tp.Cost = &d
	}
	return &tp, nil
}
