package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/innowave/analytiqa/internal/model"
)

// First test case ID handed out on an empty table.
const firstTestCaseID = 13000

const testCaseColumns = `id, jira_id, name, summary, description, priority, status,
	automation_status, testcase_type, steps, reporter, created_by, assigned, created_at, updated_at`

func scanTestCase(s scanner) (model.TestCase, error) {
	var tc model.TestCase
	var jira sql.NullInt64
	var steps, created, updated string
	if err := s.Scan(&tc.ID, &jira, &tc.Name, &tc.Summary, &tc.Description,
		&tc.Priority, &tc.Status, &tc.AutomationStatus, &tc.Type, &steps,
		&tc.Reporter, &tc.CreatedBy, &tc.Assigned, &created, &updated); err != nil {
		return tc, err
	}
	if jira.Valid {
		v := jira.Int64
		tc.JiraID = &v
	}
	if err := json.Unmarshal([]byte(steps), &tc.Steps); err != nil {
		return tc, fmt.Errorf("decode steps of test case %d: %w", tc.ID, err)
	}
	if tc.Steps == nil {
		tc.Steps = model.Steps{}
	}
	tc.CreatedAt = parseTime(created)
	tc.UpdatedAt = parseTime(updated)
	return tc, nil
}

func encodeSteps(st model.Steps) (string, error) {
	if st == nil {
		return "{}", nil
	}
	b, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("encode steps: %w", err)
	}
	return string(b), nil
}

func nullJira(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func insertTestCase(ctx context.Context, tx *sql.Tx, tc model.TestCase) (model.TestCase, error) {
	steps, err := encodeSteps(tc.Steps)
	if err != nil {
		return tc, err
	}
	ts := now()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO test_cases (id, jira_id, name, summary, description, priority, status,
			automation_status, testcase_type, steps, reporter, created_by, assigned, created_at, updated_at)
		VALUES ((SELECT COALESCE(MAX(id), ?) + 1 FROM test_cases), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		firstTestCaseID-1, nullJira(tc.JiraID), tc.Name, tc.Summary, tc.Description,
		tc.Priority, tc.Status, tc.AutomationStatus, tc.Type, steps,
		tc.Reporter, tc.CreatedBy, tc.Assigned, ts, ts,
	).Scan(&tc.ID)
	if err != nil {
		return tc, fmt.Errorf("insert test case %q: %w", tc.Name, err)
	}
	tc.CreatedAt = parseTime(ts)
	tc.UpdatedAt = tc.CreatedAt
	return tc, nil
}

// CreateTestCase inserts one test case with its tags.
func (d *DB) CreateTestCase(ctx context.Context, tc model.TestCase) (model.TestCase, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if tc, err = insertTestCase(ctx, tx, tc); err != nil {
			return err
		}
		return setTags(ctx, tx, tc.ID, tc.Tags)
	})
	return tc, err
}

// InsertTestCases writes every test case in a single transaction. Either
// all rows are stored or none are.
func (d *DB) InsertTestCases(ctx context.Context, tcs []model.TestCase) ([]model.TestCase, error) {
	out := make([]model.TestCase, 0, len(tcs))
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		for _, tc := range tcs {
			created, err := insertTestCase(ctx, tx, tc)
			if err != nil {
				return err
			}
			out = append(out, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) ExistingJiraIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := d.QueryContext(ctx, `SELECT jira_id FROM test_cases WHERE jira_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (d *DB) GetTestCase(ctx context.Context, id int64) (model.TestCase, error) {
	row := d.QueryRowContext(ctx, `SELECT `+testCaseColumns+` FROM test_cases WHERE id = ?`, id)
	tc, err := scanTestCase(row)
	if err != nil {
		return tc, notFound(err, fmt.Sprintf("test case %d", id))
	}
	tags, err := d.tagsFor(ctx, []int64{id})
	if err != nil {
		return tc, err
	}
	tc.Tags = tags[id]
	return tc, nil
}

// ListTestCases returns test cases newest first.
func (d *DB) ListTestCases(ctx context.Context, f model.TestCaseFilter) ([]model.TestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases WHERE 1=1`
	var args []any

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.AutomationStatus != "" {
		query += ` AND automation_status = ?`
		args = append(args, f.AutomationStatus)
	}
	if f.Assigned != "" {
		query += ` AND assigned = ?`
		args = append(args, f.Assigned)
	}
	if f.Tag != "" {
		query += ` AND id IN (SELECT tct.test_case_id FROM test_case_tags tct
			JOIN tags t ON t.id = tct.tag_id WHERE t.name = ?)`
		args = append(args, f.Tag)
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TestCase
	var ids []int64
	for rows.Next() {
		tc, err := scanTestCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
		ids = append(ids, tc.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tags, err := d.tagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tags = tags[out[i].ID]
	}
	return out, nil
}

// SaveTestCase overwrites every mutable column of an existing test case.
func (d *DB) SaveTestCase(ctx context.Context, tc model.TestCase) (model.TestCase, error) {
	return d.SaveTestCaseWithHistory(ctx, tc, nil)
}

// SaveTestCaseWithHistory saves tc and, when h is not nil, inserts h in
// the same transaction. Neither is stored if either fails. The ID and
// creation time of the inserted record are written back to h.
func (d *DB) SaveTestCaseWithHistory(ctx context.Context, tc model.TestCase, h *model.HistoryRecord) (model.TestCase, error) {
	steps, err := encodeSteps(tc.Steps)
	if err != nil {
		return tc, err
	}
	ts := now()
	var rec model.HistoryRecord
	err = d.inTx(ctx, func(tx *sql.Tx) error {
		if h != nil {
			var err error
			if rec, err = insertHistory(ctx, tx, *h); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE test_cases SET name = ?, summary = ?, description = ?, priority = ?, status = ?,
				automation_status = ?, testcase_type = ?, steps = ?, reporter = ?, assigned = ?, updated_at = ?
			WHERE id = ?`,
			tc.Name, tc.Summary, tc.Description, tc.Priority, tc.Status,
			tc.AutomationStatus, tc.Type, steps, tc.Reporter, tc.Assigned, ts, tc.ID)
		if err != nil {
			return fmt.Errorf("update test case %d: %w", tc.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("test case %d: %w", tc.ID, ErrNotFound)
		}
		if tc.Tags != nil {
			return setTags(ctx, tx, tc.ID, tc.Tags)
		}
		return nil
	})
	if err != nil {
		return tc, err
	}
	if h != nil {
		*h = rec
	}
	tc.UpdatedAt = parseTime(ts)
	return tc, nil
}

// SetTestCaseTags replaces the tags of a test case, creating missing tags.
func (d *DB) SetTestCaseTags(ctx context.Context, testCaseID int64, tags []string) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		return setTags(ctx, tx, testCaseID, tags)
	})
}

func setTags(ctx context.Context, tx *sql.Tx, testCaseID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM test_case_tags WHERE test_case_id = ?`, testCaseID); err != nil {
		return fmt.Errorf("clear tags of %d: %w", testCaseID, err)
	}
	for _, name := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("create tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO test_case_tags (test_case_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?`, testCaseID, name); err != nil {
			return fmt.Errorf("tag %d with %q: %w", testCaseID, name, err)
		}
	}
	return nil
}

func (d *DB) tagsFor(ctx context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := d.QueryContext(ctx,
		`SELECT tct.test_case_id, t.name FROM test_case_tags tct
		JOIN tags t ON t.id = tct.tag_id
		WHERE tct.test_case_id IN (`+placeholders(len(ids))+`)
		ORDER BY t.name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}

func (d *DB) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := d.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
