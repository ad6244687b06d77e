package db

import (
	"context"
	"fmt"

	"github.com/innowave/analytiqa/internal/model"
)

const commentColumns = `id, target_kind, target_id, body, created_by, created_at, updated_at`

func scanComment(s scanner) (model.Comment, error) {
	var c model.Comment
	var created, updated string
	if err := s.Scan(&c.ID, &c.Target.Kind, &c.Target.ID, &c.Body, &c.CreatedBy, &created, &updated); err != nil {
		return c, err
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

func (d *DB) CreateComment(ctx context.Context, c model.Comment) (model.Comment, error) {
	ts := now()
	err := d.QueryRowContext(ctx,
		`INSERT INTO comments (target_kind, target_id, body, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		c.Target.Kind, c.Target.ID, c.Body, c.CreatedBy, ts, ts,
	).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("insert comment on %s %d: %w", c.Target.Kind, c.Target.ID, err)
	}
	c.CreatedAt = parseTime(ts)
	c.UpdatedAt = c.CreatedAt
	return c, nil
}

func (d *DB) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	c, err := scanComment(d.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id))
	if err != nil {
		return c, notFound(err, fmt.Sprintf("comment %d", id))
	}
	return c, nil
}

func (d *DB) SaveComment(ctx context.Context, c model.Comment) (model.Comment, error) {
	ts := now()
	res, err := d.ExecContext(ctx, `UPDATE comments SET body = ?, updated_at = ? WHERE id = ?`, c.Body, ts, c.ID)
	if err != nil {
		return c, fmt.Errorf("update comment %d: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return c, fmt.Errorf("comment %d: %w", c.ID, ErrNotFound)
	}
	c.UpdatedAt = parseTime(ts)
	return c, nil
}

func (d *DB) DeleteComment(ctx context.Context, id int64) error {
	res, err := d.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListComments returns the comments of a target, oldest first.
func (d *DB) ListComments(ctx context.Context, target model.Target) ([]model.Comment, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE target_kind = ? AND target_id = ? ORDER BY id`,
		target.Kind, target.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
