package database

import (
	"fmt"
	"time"

	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// schemaStatements creates the attribution tables. Results are append-only:
// the unique index on (conversion_id, model_type, computation_version) is
// what turns a duplicate-version write into a conflict.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS touchpoints (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		campaign_id TEXT,
		timestamp TEXT NOT NULL,
		cost TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_touchpoints_customer_time
		ON touchpoints (customer_id, timestamp)`,

	`CREATE TABLE IF NOT EXISTS conversions (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		revenue TEXT NOT NULL,
		conversion_type TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversions_time ON conversions (timestamp)`,

	`CREATE TABLE IF NOT EXISTS attribution_results (
		id TEXT PRIMARY KEY,
		conversion_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		model_type TEXT NOT NULL,
		computation_version INTEGER NOT NULL,
		conversion_at TEXT NOT NULL,
		revenue TEXT NOT NULL,
		computed_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_results_version
		ON attribution_results (conversion_id, model_type, computation_version)`,
	`CREATE INDEX IF NOT EXISTS idx_results_model_time
		ON attribution_results (model_type, conversion_at)`,

	`CREATE TABLE IF NOT EXISTS attribution_result_entries (
		result_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		touchpoint_id TEXT,
		channel TEXT,
		campaign_id TEXT,
		touchpoint_at TEXT,
		weight REAL NOT NULL,
		attributed_revenue TEXT NOT NULL,
		unattributed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (result_id, position)
	)`,

	`CREATE TABLE IF NOT EXISTS spend_records (
		id TEXT PRIMARY KEY,
		channel TEXT,
		campaign_id TEXT,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		amount TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_spend_channel ON spend_records (channel, period_start)`,

	`CREATE TABLE IF NOT EXISTS channel_snapshots (
		id TEXT PRIMARY KEY,
		channel TEXT,
		campaign_id TEXT,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		model_type TEXT NOT NULL,
		attributed_revenue TEXT NOT NULL,
		spend TEXT NOT NULL,
		spend_known INTEGER NOT NULL,
		roi TEXT,
		roas TEXT,
		computed_at TEXT NOT NULL,
		superseded INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_key
		ON channel_snapshots (channel, campaign_id, period_start, period_end, model_type)`,

	`CREATE TABLE IF NOT EXISTS recompute_jobs (
		id TEXT PRIMARY KEY,
		model_type TEXT NOT NULL,
		params TEXT NOT NULL,
		window_days INTEGER NOT NULL,
		from_date TEXT NOT NULL,
		state TEXT NOT NULL,
		cursor TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS dead_letters (
		id TEXT PRIMARY KEY,
		conversion_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		parked_at TEXT NOT NULL
	)`,
}

// EnsureSchema creates all attribution tables and indexes if they do not
// already exist.
func EnsureSchema(db *DB, logger *logging.ChanneledLogger) error {
	start := time.Now()
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			logger.Database().Error("Schema statement failed", "error", err.Error())
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	logger.Database().Info("Schema ensured", "statements", len(schemaStatements), "duration", time.Since(start))
	return nil
}
