package db

import (
	"context"
	"fmt"

	"github.com/innowave/analytiqa/internal/model"
)

// First script issue ID handed out on an empty table.
const firstIssueID = 101

const scriptColumns = `id, test_case_id, name, location, script_type, natco, language, device,
	developed_by, reviewed_by, modified_by, description, created_at, updated_at`

func scanScript(s scanner) (model.Script, error) {
	var sc model.Script
	var created, updated string
	if err := s.Scan(&sc.ID, &sc.TestCaseID, &sc.Name, &sc.Location, &sc.Type, &sc.NatCo,
		&sc.Language, &sc.Device, &sc.DevelopedBy, &sc.ReviewedBy, &sc.ModifiedBy,
		&sc.Description, &created, &updated); err != nil {
		return sc, err
	}
	sc.CreatedAt = parseTime(created)
	sc.UpdatedAt = parseTime(updated)
	return sc, nil
}

func (d *DB) CreateScript(ctx context.Context, sc model.Script) (model.Script, error) {
	ts := now()
	err := d.QueryRowContext(ctx,
		`INSERT INTO scripts (test_case_id, name, location, script_type, natco, language, device,
			developed_by, reviewed_by, modified_by, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		sc.TestCaseID, sc.Name, sc.Location, sc.Type, sc.NatCo, sc.Language, sc.Device,
		sc.DevelopedBy, sc.ReviewedBy, sc.ModifiedBy, sc.Description, ts, ts,
	).Scan(&sc.ID)
	if err != nil {
		return sc, fmt.Errorf("insert script %q: %w", sc.Name, err)
	}
	sc.CreatedAt = parseTime(ts)
	sc.UpdatedAt = sc.CreatedAt
	return sc, nil
}

func (d *DB) GetScript(ctx context.Context, id int64) (model.Script, error) {
	sc, err := scanScript(d.QueryRowContext(ctx, `SELECT `+scriptColumns+` FROM scripts WHERE id = ?`, id))
	if err != nil {
		return sc, notFound(err, fmt.Sprintf("script %d", id))
	}
	return sc, nil
}

func (d *DB) ListScripts(ctx context.Context, testCaseID int64) ([]model.Script, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT `+scriptColumns+` FROM scripts WHERE test_case_id = ? ORDER BY id`, testCaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Script
	for rows.Next() {
		sc, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ScriptNames returns every distinct script name with the ID of its
// most recently created script.
func (d *DB) ScriptNames(ctx context.Context) (map[string]int64, error) {
	rows, err := d.QueryContext(ctx, `SELECT name, MAX(id) FROM scripts WHERE name != '' GROUP BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}

// --- Script issues ---

const issueColumns = `id, script_id, summary, description, result, status, created_by,
	resolved_by, created_at, updated_at`

func scanIssue(s scanner) (model.ScriptIssue, error) {
	var is model.ScriptIssue
	var created, updated string
	if err := s.Scan(&is.ID, &is.ScriptID, &is.Summary, &is.Description, &is.Result,
		&is.Status, &is.CreatedBy, &is.ResolvedBy, &created, &updated); err != nil {
		return is, err
	}
	is.CreatedAt = parseTime(created)
	is.UpdatedAt = parseTime(updated)
	return is, nil
}

func (d *DB) CreateIssue(ctx context.Context, is model.ScriptIssue) (model.ScriptIssue, error) {
	if is.Status == "" {
		is.Status = model.IssueOpen
	}
	ts := now()
	err := d.QueryRowContext(ctx,
		`INSERT INTO script_issues (id, script_id, summary, description, result, status,
			created_by, resolved_by, created_at, updated_at)
		VALUES ((SELECT COALESCE(MAX(id), ?) + 1 FROM script_issues), ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		firstIssueID-1, is.ScriptID, is.Summary, is.Description, is.Result, is.Status,
		is.CreatedBy, is.ResolvedBy, ts, ts,
	).Scan(&is.ID)
	if err != nil {
		return is, fmt.Errorf("insert issue for script %d: %w", is.ScriptID, err)
	}
	is.CreatedAt = parseTime(ts)
	is.UpdatedAt = is.CreatedAt
	return is, nil
}

func (d *DB) GetIssue(ctx context.Context, id int64) (model.ScriptIssue, error) {
	is, err := scanIssue(d.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM script_issues WHERE id = ?`, id))
	if err != nil {
		return is, notFound(err, fmt.Sprintf("script issue %d", id))
	}
	return is, nil
}

func (d *DB) SaveIssue(ctx context.Context, is model.ScriptIssue) (model.ScriptIssue, error) {
	ts := now()
	res, err := d.ExecContext(ctx,
		`UPDATE script_issues SET summary = ?, description = ?, result = ?, status = ?,
			resolved_by = ?, updated_at = ? WHERE id = ?`,
		is.Summary, is.Description, is.Result, is.Status, is.ResolvedBy, ts, is.ID)
	if err != nil {
		return is, fmt.Errorf("update script issue %d: %w", is.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return is, fmt.Errorf("script issue %d: %w", is.ID, ErrNotFound)
	}
	is.UpdatedAt = parseTime(ts)
	return is, nil
}

func (d *DB) ListIssues(ctx context.Context, scriptID int64) ([]model.ScriptIssue, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM script_issues WHERE script_id = ? ORDER BY id`, scriptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScriptIssue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

// CountOpenIssues counts open issues across every script of a test case.
func (d *DB) CountOpenIssues(ctx context.Context, testCaseID int64) (int, error) {
	var n int
	err := d.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM script_issues i JOIN scripts s ON s.id = i.script_id
		WHERE s.test_case_id = ? AND i.status = ?`, testCaseID, model.IssueOpen).Scan(&n)
	return n, err
}
