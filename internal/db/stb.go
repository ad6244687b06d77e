package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/innowave/analytiqa/internal/model"
)

func (d *DB) EnsureSTBNode(ctx context.Context, nodeID string) error {
	_, err := d.ExecContext(ctx, `INSERT OR IGNORE INTO stb_nodes (node_id) VALUES (?)`, nodeID)
	if err != nil {
		return fmt.Errorf("ensure node %s: %w", nodeID, err)
	}
	return nil
}

func (d *DB) ListSTBNodes(ctx context.Context) ([]model.STBNode, error) {
	rows, err := d.QueryContext(ctx, `SELECT id, node_id FROM stb_nodes ORDER BY node_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.STBNode
	for rows.Next() {
		var n model.STBNode
		if err := rows.Scan(&n.ID, &n.NodeID); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ActiveNodeConfig returns the active config of a node.
func (d *DB) ActiveNodeConfig(ctx context.Context, nodeID string) (model.STBNodeConfig, error) {
	var c model.STBNodeConfig
	var active int64
	var created string
	err := d.QueryRowContext(ctx,
		`SELECT id, node_id, natco, is_active, created_at FROM stb_node_configs
		WHERE node_id = ? AND is_active = 1 ORDER BY id DESC LIMIT 1`, nodeID).
		Scan(&c.ID, &c.NodeID, &c.NatCo, &active, &created)
	if err != nil {
		return c, notFound(err, "config of node "+nodeID)
	}
	c.Active = active != 0
	c.CreatedAt = parseTime(created)
	return c, nil
}

// ReplaceNodeConfig deactivates the node's active configs and activates
// a new one for natco.
func (d *DB) ReplaceNodeConfig(ctx context.Context, nodeID, natco string) (model.STBNodeConfig, error) {
	c := model.STBNodeConfig{NodeID: nodeID, NatCo: natco, Active: true}
	ts := now()
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE stb_node_configs SET is_active = 0 WHERE node_id = ? AND is_active = 1`, nodeID); err != nil {
			return fmt.Errorf("deactivate configs of %s: %w", nodeID, err)
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO stb_node_configs (node_id, natco, is_active, created_at) VALUES (?, ?, 1, ?) RETURNING id`,
			nodeID, natco, ts).Scan(&c.ID)
	})
	if err != nil {
		return c, fmt.Errorf("replace config of %s: %w", nodeID, err)
	}
	c.CreatedAt = parseTime(ts)
	return c, nil
}

// LatestResultStart returns the start time of the newest stored result
// of a script, or the zero time when there is none.
func (d *DB) LatestResultStart(ctx context.Context, scriptID int64) (time.Time, error) {
	var s sql.NullString
	err := d.QueryRowContext(ctx,
		`SELECT MAX(start_time) FROM stb_results WHERE script_id = ?`, scriptID).Scan(&s)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, err
	}
	if !s.Valid {
		return time.Time{}, nil
	}
	return parseTime(s.String), nil
}

// InsertResults stores results, skipping any whose result ID is already
// present. It returns how many rows were inserted.
func (d *DB) InsertResults(ctx context.Context, results []model.STBResult) (int, error) {
	inserted := 0
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO stb_results (result_id, job_uid, result_url, triage_url, start_time, end_time,
				script_id, result, failure_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(result_id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range results {
			res, err := stmt.ExecContext(ctx, r.ResultID, r.JobUID, r.ResultURL, r.TriageURL,
				formatTime(r.StartTime), formatTime(r.EndTime), r.ScriptID, r.Result, r.FailureReason)
			if err != nil {
				return fmt.Errorf("insert result %s: %w", r.ResultID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListResults returns the results of a script, newest first.
func (d *DB) ListResults(ctx context.Context, scriptID int64, limit int) ([]model.STBResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.QueryContext(ctx,
		`SELECT id, result_id, job_uid, result_url, triage_url, start_time, end_time,
			script_id, result, failure_reason
		FROM stb_results WHERE script_id = ? ORDER BY start_time DESC LIMIT ?`, scriptID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.STBResult
	for rows.Next() {
		var r model.STBResult
		var start, end string
		if err := rows.Scan(&r.ID, &r.ResultID, &r.JobUID, &r.ResultURL, &r.TriageURL,
			&start, &end, &r.ScriptID, &r.Result, &r.FailureReason); err != nil {
			return nil, err
		}
		r.StartTime = parseTime(start)
		r.EndTime = parseTime(end)
		out = append(out, r)
	}
	return out, rows.Err()
}
