package attribution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/database"
)

// SQLDeadLetterRepository persists conversions parked after exhausting
// ingestion retries.
type SQLDeadLetterRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLDeadLetterRepository creates a new instance of the repository.
func NewSQLDeadLetterRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLDeadLetterRepository {
	return &SQLDeadLetterRepository{db: db, logger: logger}
}

// Store parks a conversion.
func (r *SQLDeadLetterRepository) Store(ctx context.Context, dl *attribution.DeadLetter) error {
	const query = `
		INSERT INTO dead_letters (id, conversion_id, customer_id, reason, attempts, parked_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		dl.ID, dl.ConversionID, dl.CustomerID, dl.Reason, dl.Attempts, formatTime(dl.ParkedAt))
	if err != nil {
		r.logger.Database().Error("Dead letter insert failed", "error", err.Error(), "conversionId", dl.ConversionID)
		return fmt.Errorf("failed to store dead letter: %w", err)
	}
	return nil
}

// List returns all parked conversions, oldest first.
func (r *SQLDeadLetterRepository) List(ctx context.Context) ([]*attribution.DeadLetter, error) {
	const query = `
		SELECT id, conversion_id, customer_id, reason, attempts, parked_at
		FROM dead_letters ORDER BY parked_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*attribution.DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

// FindByID retrieves a single parked conversion.
func (r *SQLDeadLetterRepository) FindByID(ctx context.Context, id string) (*attribution.DeadLetter, error) {
	const query = `
		SELECT id, conversion_id, customer_id, reason, attempts, parked_at
		FROM dead_letters WHERE id = ?`

	dl, err := scanDeadLetter(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: dead letter %s", attribution.ErrNotFound, id)
	}
	return dl, err
}

// Delete removes a parked conversion after a successful re-trigger.
func (r *SQLDeadLetterRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM dead_letters WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: dead letter %s", attribution.ErrNotFound, id)
	}
	return nil
}

func scanDeadLetter(row rowScanner) (*attribution.DeadLetter, error) {
	var (
		dl       attribution.DeadLetter
		parkedAt string
	)
	err := row.Scan(&dl.ID, &dl.ConversionID, &dl.CustomerID, &dl.Reason, &dl.Attempts, &parkedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
	}
	if dl.ParkedAt, err = parseTime(parkedAt); err != nil {
		return nil, err
	}
	return &dl, nil
}
