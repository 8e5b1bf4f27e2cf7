// Package attribution provides the concrete SQL-based implementations of
// the attribution repositories.
//
// All timestamps are stored as fixed-width UTC strings and all money
// values as decimal strings, so rows survive driver swaps (sqlite3
// locally, libsql against a remote Turso database) without precision
// loss. The fixed fractional width matters: range predicates compare
// these columns lexicographically, which only matches chronological
// order when every value has the same length.
package attribution

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/repositories"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/database"
	"github.com/shopspring/decimal"
)

const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// NewRepositories wires every SQL repository against one connection.
func NewRepositories(db *database.DB, logger *logging.ChanneledLogger) repositories.Bundle {
	return repositories.Bundle{
		Touchpoints: NewSQLTouchpointRepository(db, logger),
		Conversions: NewSQLConversionRepository(db, logger),
		Results:     NewSQLResultRepository(db, logger),
		Spend:       NewSQLSpendRepository(db, logger),
		Snapshots:   NewSQLSnapshotRepository(db, logger),
		Jobs:        NewSQLJobRepository(db, logger),
		DeadLetters: NewSQLDeadLetterRepository(db, logger),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse stored decimal %q: %w", s, err)
	}
	return d, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// isUniqueViolation detects the sqlite/libsql unique-constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
