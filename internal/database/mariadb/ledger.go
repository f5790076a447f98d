package mariadb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// LedgerStore provides MariaDB-backed attendance storage
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new MariaDB ledger store
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Load reads every attendance row into a ledger document
func (s *LedgerStore) Load(ctx context.Context) (attendance.Days, error) {
	rows, err := s.pool.db.QueryContext(ctx,
		`SELECT DATE_FORMAT(day, '%Y-%m-%d'), person, checkin, checkout FROM attendance ORDER BY day, person`)
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

// Save upserts every record of the ledger in one transaction
func (s *LedgerStore) Save(ctx context.Context, days attendance.Days) error {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance (day, person, checkin, checkout)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE checkin = VALUES(checkin), checkout = VALUES(checkout)
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
