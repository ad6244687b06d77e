package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/innowave/analytiqa/internal/model"
)

// ReferenceData is the static catalog seeded at startup.
type ReferenceData struct {
	Users         []model.User
	Languages     []string
	Manufacturers []string
	NatCos        []model.NatCo
	StatusGroups  []model.StatusGroup
}

// Seed upserts reference data. Existing rows are updated in place and
// permissions, natco languages and group statuses are replaced.
func (d *DB) Seed(ctx context.Context, ref ReferenceData) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range ref.Users {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (email, full_name) VALUES (?, ?)
				ON CONFLICT(email) DO UPDATE SET full_name = excluded.full_name`,
				u.Email, u.FullName); err != nil {
				return fmt.Errorf("seed user %s: %w", u.Email, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM user_permissions WHERE email = ?`, u.Email); err != nil {
				return fmt.Errorf("clear permissions of %s: %w", u.Email, err)
			}
			for _, p := range u.Permissions {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO user_permissions (email, permission) VALUES (?, ?)`,
					u.Email, p); err != nil {
					return fmt.Errorf("grant %s to %s: %w", p, u.Email, err)
				}
			}
		}

		for _, l := range ref.Languages {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO languages (name) VALUES (?)`, l); err != nil {
				return fmt.Errorf("seed language %s: %w", l, err)
			}
		}
		for _, m := range ref.Manufacturers {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO manufacturers (name) VALUES (?)`, m); err != nil {
				return fmt.Errorf("seed manufacturer %s: %w", m, err)
			}
		}

		for _, n := range ref.NatCos {
			if err := seedNatCo(ctx, tx, n); err != nil {
				return err
			}
		}

		for _, g := range ref.StatusGroups {
			var id int64
			err := tx.QueryRowContext(ctx,
				`INSERT INTO status_groups (name, owner) VALUES (?, ?)
				ON CONFLICT(name) DO UPDATE SET owner = excluded.owner
				RETURNING id`, g.Name, g.Owner).Scan(&id)
			if err != nil {
				return fmt.Errorf("seed status group %s: %w", g.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM status_group_statuses WHERE group_id = ?`, id); err != nil {
				return fmt.Errorf("clear statuses of group %s: %w", g.Name, err)
			}
			for _, s := range g.Statuses {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO status_group_statuses (group_id, status) VALUES (?, ?)`,
					id, s); err != nil {
					return fmt.Errorf("seed status %s of group %s: %w", s, g.Name, err)
				}
			}
		}
		return nil
	})
}

func seedNatCo(ctx context.Context, tx *sql.Tx, n model.NatCo) error {
	var mfr sql.NullInt64
	if n.Manufacturer != "" {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO manufacturers (name) VALUES (?)`, n.Manufacturer); err != nil {
			return fmt.Errorf("seed manufacturer %s: %w", n.Manufacturer, err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT id FROM manufacturers WHERE name = ?`, n.Manufacturer).Scan(&mfr); err != nil {
			return fmt.Errorf("look up manufacturer %s: %w", n.Manufacturer, err)
		}
	}
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO natcos (country, code, manufacturer_id) VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET country = excluded.country, manufacturer_id = excluded.manufacturer_id
		RETURNING id`, n.Country, n.Code, mfr).Scan(&id)
	if err != nil {
		return fmt.Errorf("seed natco %s: %w", n.Code, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM natco_languages WHERE natco_id = ?`, id); err != nil {
		return fmt.Errorf("clear languages of natco %s: %w", n.Code, err)
	}
	for _, l := range n.Languages {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO languages (name) VALUES (?)`, l); err != nil {
			return fmt.Errorf("seed language %s: %w", l, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO natco_languages (natco_id, language_id)
			SELECT ?, id FROM languages WHERE name = ?`, id, l); err != nil {
			return fmt.Errorf("link language %s to natco %s: %w", l, n.Code, err)
		}
	}
	return nil
}

func (d *DB) GetUser(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := d.QueryRowContext(ctx, `SELECT email, full_name FROM users WHERE email = ?`, email).
		Scan(&u.Email, &u.FullName)
	if err != nil {
		return u, notFound(err, "user "+email)
	}
	rows, err := d.QueryContext(ctx,
		`SELECT permission FROM user_permissions WHERE email = ? ORDER BY permission`, email)
	if err != nil {
		return u, err
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return u, err
		}
		u.Permissions = append(u.Permissions, p)
	}
	return u, rows.Err()
}

func (d *DB) HasPermission(ctx context.Context, email, permission string) (bool, error) {
	var n int
	err := d.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_permissions WHERE email = ? AND permission = ?`,
		email, permission).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListNatCos returns every natco with its manufacturer and languages.
func (d *DB) ListNatCos(ctx context.Context) ([]model.NatCo, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT n.id, n.country, n.code, COALESCE(m.name, '')
		FROM natcos n LEFT JOIN manufacturers m ON m.id = n.manufacturer_id
		ORDER BY n.code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NatCo
	index := make(map[int64]int)
	for rows.Next() {
		var n model.NatCo
		if err := rows.Scan(&n.ID, &n.Country, &n.Code, &n.Manufacturer); err != nil {
			return nil, err
		}
		index[n.ID] = len(out)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	langs, err := d.QueryContext(ctx,
		`SELECT nl.natco_id, l.name FROM natco_languages nl
		JOIN languages l ON l.id = nl.language_id
		ORDER BY nl.natco_id, l.name`)
	if err != nil {
		return nil, err
	}
	defer langs.Close()
	for langs.Next() {
		var id int64
		var name string
		if err := langs.Scan(&id, &name); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			out[i].Languages = append(out[i].Languages, name)
		}
	}
	return out, langs.Err()
}

// StatusGroupFor returns the first group that routes the given status.
func (d *DB) StatusGroupFor(ctx context.Context, status model.AutomationStatus) (model.StatusGroup, error) {
	var g model.StatusGroup
	err := d.QueryRowContext(ctx,
		`SELECT g.id, g.name, g.owner FROM status_groups g
		JOIN status_group_statuses s ON s.group_id = g.id
		WHERE s.status = ? ORDER BY g.id LIMIT 1`, status).Scan(&g.ID, &g.Name, &g.Owner)
	if err != nil {
		return g, notFound(err, fmt.Sprintf("status group for %s", status))
	}
	g.Statuses = []model.AutomationStatus{status}
	return g, nil
}
