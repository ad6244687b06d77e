package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/innowave/analytiqa/internal/model"
)

const historyColumns = `id, test_case_id, user_email, priority, testcase_type, status,
	automation_status, change_reason, changed_fields, snapshot, created_at`

func scanHistory(s scanner) (model.HistoryRecord, error) {
	var h model.HistoryRecord
	var fields, snapshot, created string
	if err := s.Scan(&h.ID, &h.TestCaseID, &h.User, &h.Priority, &h.Type, &h.Status,
		&h.AutomationStatus, &h.ChangeReason, &fields, &snapshot, &created); err != nil {
		return h, err
	}
	if err := json.Unmarshal([]byte(fields), &h.ChangedFields); err != nil {
		return h, fmt.Errorf("decode changed fields of history %d: %w", h.ID, err)
	}
	var tc model.TestCase
	if err := json.Unmarshal([]byte(snapshot), &tc); err != nil {
		return h, fmt.Errorf("decode snapshot of history %d: %w", h.ID, err)
	}
	h.Snapshot = &tc
	h.CreatedAt = parseTime(created)
	return h, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, h model.HistoryRecord) (model.HistoryRecord, error) {
	fields, err := json.Marshal(h.ChangedFields)
	if err != nil {
		return h, fmt.Errorf("encode changed fields: %w", err)
	}
	snapshot := []byte("{}")
	if h.Snapshot != nil {
		if snapshot, err = json.Marshal(h.Snapshot); err != nil {
			return h, fmt.Errorf("encode snapshot: %w", err)
		}
	}
	ts := now()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO test_case_history (test_case_id, user_email, priority, testcase_type, status,
			automation_status, change_reason, changed_fields, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		h.TestCaseID, h.User, h.Priority, h.Type, h.Status, h.AutomationStatus,
		h.ChangeReason, string(fields), string(snapshot), ts,
	).Scan(&h.ID)
	if err != nil {
		return h, fmt.Errorf("insert history for test case %d: %w", h.TestCaseID, err)
	}
	h.CreatedAt = parseTime(ts)
	return h, nil
}

// LatestHistory returns the most recent history record of a test case.
func (d *DB) LatestHistory(ctx context.Context, testCaseID int64) (model.HistoryRecord, error) {
	row := d.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM test_case_history
		WHERE test_case_id = ? ORDER BY id DESC LIMIT 1`, testCaseID)
	h, err := scanHistory(row)
	if err != nil {
		return h, notFound(err, fmt.Sprintf("history of test case %d", testCaseID))
	}
	return h, nil
}

// ListHistory returns the history of a test case, newest first.
func (d *DB) ListHistory(ctx context.Context, testCaseID int64) ([]model.HistoryRecord, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM test_case_history
		WHERE test_case_id = ? ORDER BY id DESC`, testCaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
