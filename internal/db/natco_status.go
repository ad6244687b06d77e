package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/innowave/analytiqa/internal/model"
)

const natcoColumns = `id, test_case_id, natco, language, device, status, applicable,
	user_email, modified_by, created_at, updated_at`

func scanNatcoRow(s scanner) (model.NatcoStatus, error) {
	var r model.NatcoStatus
	var applicable int64
	var created, updated string
	if err := s.Scan(&r.ID, &r.TestCaseID, &r.NatCo, &r.Language, &r.Device, &r.Status,
		&applicable, &r.User, &r.ModifiedBy, &created, &updated); err != nil {
		return r, err
	}
	r.Applicable = applicable != 0
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return r, nil
}

func (d *DB) CountNatcoRows(ctx context.Context, testCaseID int64) (int, error) {
	var n int
	err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM natco_status WHERE test_case_id = ?`, testCaseID).Scan(&n)
	return n, err
}

// InsertNatcoRows creates all rows in one transaction. A duplicate
// combination aborts the whole batch.
func (d *DB) InsertNatcoRows(ctx context.Context, rows []model.NatcoStatus) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO natco_status (test_case_id, natco, language, device, status, applicable,
				user_email, modified_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		ts := now()
		for _, r := range rows {
			status := r.Status
			if status == "" {
				status = model.AutomationManual
			}
			if _, err := stmt.ExecContext(ctx, r.TestCaseID, r.NatCo, r.Language, r.Device, status,
				boolToInt64(r.Applicable), r.User, r.ModifiedBy, ts, ts); err != nil {
				return fmt.Errorf("insert natco row %s/%s/%s for test case %d: %w",
					r.NatCo, r.Device, r.Language, r.TestCaseID, err)
			}
		}
		return nil
	})
}

func (d *DB) ListNatcoRows(ctx context.Context, testCaseID int64) ([]model.NatcoStatus, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT `+natcoColumns+` FROM natco_status WHERE test_case_id = ?
		ORDER BY natco, device, language`, testCaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NatcoStatus
	for rows.Next() {
		r, err := scanNatcoRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) GetNatcoRow(ctx context.Context, id int64) (model.NatcoStatus, error) {
	r, err := scanNatcoRow(d.QueryRowContext(ctx, `SELECT `+natcoColumns+` FROM natco_status WHERE id = ?`, id))
	if err != nil {
		return r, notFound(err, fmt.Sprintf("natco row %d", id))
	}
	return r, nil
}

// FindNatcoRow looks up the row of one combination.
func (d *DB) FindNatcoRow(ctx context.Context, testCaseID int64, natco, device, language string) (model.NatcoStatus, error) {
	r, err := scanNatcoRow(d.QueryRowContext(ctx,
		`SELECT `+natcoColumns+` FROM natco_status
		WHERE test_case_id = ? AND natco = ? AND device = ? AND language = ?`,
		testCaseID, natco, device, language))
	if err != nil {
		return r, notFound(err, fmt.Sprintf("natco row %s/%s/%s of test case %d", natco, device, language, testCaseID))
	}
	return r, nil
}

// SaveNatcoRow updates the mutable columns of one row.
func (d *DB) SaveNatcoRow(ctx context.Context, r model.NatcoStatus) (model.NatcoStatus, error) {
	ts := now()
	res, err := d.ExecContext(ctx,
		`UPDATE natco_status SET status = ?, applicable = ?, modified_by = ?, updated_at = ? WHERE id = ?`,
		r.Status, boolToInt64(r.Applicable), r.ModifiedBy, ts, r.ID)
	if err != nil {
		return r, fmt.Errorf("update natco row %d: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r, fmt.Errorf("natco row %d: %w", r.ID, ErrNotFound)
	}
	r.UpdatedAt = parseTime(ts)
	return r, nil
}

// SaveNatcoRows updates several rows in one transaction.
func (d *DB) SaveNatcoRows(ctx context.Context, rows []model.NatcoStatus) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		for _, r := range rows {
			res, err := tx.ExecContext(ctx,
				`UPDATE natco_status SET status = ?, applicable = ?, modified_by = ?, updated_at = ? WHERE id = ?`,
				r.Status, boolToInt64(r.Applicable), r.ModifiedBy, ts, r.ID)
			if err != nil {
				return fmt.Errorf("update natco row %d: %w", r.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("natco row %d: %w", r.ID, ErrNotFound)
			}
		}
		return nil
	})
}
