package db

import (
	"context"
	"fmt"

	"github.com/innowave/analytiqa/internal/model"
)

func (d *DB) CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	var kind model.TargetKind
	var targetID int64
	if n.Target != nil {
		kind, targetID = n.Target.Kind, n.Target.ID
	}
	ts := now()
	err := d.QueryRowContext(ctx,
		`INSERT INTO notifications (message, sender, recipient, target_kind, target_id, status, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		n.Message, n.Sender, n.Recipient, kind, targetID, boolToInt64(n.Status), boolToInt64(n.Read), ts,
	).Scan(&n.ID)
	if err != nil {
		return n, fmt.Errorf("insert notification for %s: %w", n.Recipient, err)
	}
	n.CreatedAt = parseTime(ts)
	return n, nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (d *DB) ListNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]model.Notification, error) {
	query := `SELECT id, message, sender, recipient, target_kind, target_id, status, is_read, created_at
		FROM notifications WHERE recipient = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY id DESC`

	rows, err := d.QueryContext(ctx, query, recipient)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var kind model.TargetKind
		var targetID, status, read int64
		var created string
		if err := rows.Scan(&n.ID, &n.Message, &n.Sender, &n.Recipient, &kind, &targetID,
			&status, &read, &created); err != nil {
			return nil, err
		}
		if kind != "" {
			n.Target = &model.Target{Kind: kind, ID: targetID}
		}
		n.Status = status != 0
		n.Read = read != 0
		n.CreatedAt = parseTime(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one notification of recipient as read.
func (d *DB) MarkNotificationRead(ctx context.Context, id int64, recipient string) error {
	res, err := d.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient = ?`, id, recipient)
	if err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClearNotifications deletes every notification of recipient and returns
// how many were removed.
func (d *DB) ClearNotifications(ctx context.Context, recipient string) (int64, error) {
	res, err := d.ExecContext(ctx, `DELETE FROM notifications WHERE recipient = ?`, recipient)
	if err != nil {
		return 0, fmt.Errorf("clear notifications of %s: %w", recipient, err)
	}
	return res.RowsAffected()
}
