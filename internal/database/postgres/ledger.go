package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// LedgerStore provides PostgreSQL-backed attendance storage
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new PostgreSQL ledger store
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Load reads every attendance row into a ledger document
func (s *LedgerStore) Load(ctx context.Context) (attendance.Days, error) {
	query := `
		SELECT to_char(day, 'YYYY-MM-DD'), person, checkin, checkout
		FROM attendance
		ORDER BY day, person
	`

	rows, err := s.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	days := make(attendance.Days)
	for rows.Next() {
		var (
			day, person, checkin string
			checkout             sql.NullString
		)
		if err := rows.Scan(&day, &person, &checkin, &checkout); err != nil {
			return nil, fmt.Errorf("scan attendance row: %w", err)
		}
		if days[day] == nil {
			days[day] = make(map[string]attendance.Record)
		}
		days[day][person] = attendance.Record{CheckIn: checkin, CheckOut: checkout.String}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance rows: %w", err)
	}
	return days, nil
}

// Save upserts every record of the ledger in one transaction. Records are
// never deleted by the ledger, so an upsert of the full document is
// equivalent to replacing it.
func (s *LedgerStore) Save(ctx context.Context, days attendance.Days) error {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance (day, person, checkin, checkout)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (day, person) DO UPDATE SET
			checkin = EXCLUDED.checkin,
			checkout = EXCLUDED.checkout,
			updated_at = NOW()
		WHERE attendance.checkin IS DISTINCT FROM EXCLUDED.checkin
		   OR attendance.checkout IS DISTINCT FROM EXCLUDED.checkout
	`)
	if err != nil {
		return fmt.Errorf("prepare attendance upsert: %w", err)
	}
	defer stmt.Close()

	for day, people := range days {
		for person, rec := range people {
			checkout := sql.NullString{String: rec.CheckOut, Valid: rec.CheckOut != ""}
			if _, err := stmt.ExecContext(ctx, day, person, rec.CheckIn, checkout); err != nil {
				return fmt.Errorf("save attendance %s/%s: %w", day, person, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance save: %w", err)
	}
	return nil
}
