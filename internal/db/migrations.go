package db

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS users (
    email      TEXT PRIMARY KEY,
    full_name  TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS user_permissions (
    email      TEXT NOT NULL REFERENCES users(email) ON DELETE CASCADE,
    permission TEXT NOT NULL,
    PRIMARY KEY (email, permission)
);

CREATE TABLE IF NOT EXISTS status_groups (
    id    INTEGER PRIMARY KEY AUTOINCREMENT,
    name  TEXT NOT NULL UNIQUE,
    owner TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS status_group_statuses (
    group_id INTEGER NOT NULL REFERENCES status_groups(id) ON DELETE CASCADE,
    status   TEXT NOT NULL,
    PRIMARY KEY (group_id, status)
);

CREATE TABLE IF NOT EXISTS languages (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS manufacturers (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS natcos (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    country         TEXT NOT NULL DEFAULT '',
    code            TEXT NOT NULL UNIQUE,
    manufacturer_id INTEGER REFERENCES manufacturers(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS natco_languages (
    natco_id    INTEGER NOT NULL REFERENCES natcos(id) ON DELETE CASCADE,
    language_id INTEGER NOT NULL REFERENCES languages(id) ON DELETE CASCADE,
    PRIMARY KEY (natco_id, language_id)
);

CREATE TABLE IF NOT EXISTS tags (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS test_cases (
    id                INTEGER PRIMARY KEY,
    jira_id           INTEGER UNIQUE,
    name              TEXT NOT NULL,
    summary           TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    priority          TEXT NOT NULL DEFAULT 'class_3',
    status            TEXT NOT NULL DEFAULT 'todo',
    automation_status TEXT NOT NULL DEFAULT 'not-automatable',
    testcase_type     TEXT NOT NULL DEFAULT 'smoke',
    steps             TEXT NOT NULL DEFAULT '{}',
    reporter          TEXT NOT NULL DEFAULT '',
    created_by        TEXT NOT NULL DEFAULT '',
    assigned          TEXT NOT NULL DEFAULT '',
    created_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    updated_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_test_cases_automation ON test_cases(automation_status);
CREATE INDEX IF NOT EXISTS idx_test_cases_assigned ON test_cases(assigned);

CREATE TABLE IF NOT EXISTS test_case_tags (
    test_case_id INTEGER NOT NULL REFERENCES test_cases(id) ON DELETE CASCADE,
    tag_id       INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    PRIMARY KEY (test_case_id, tag_id)
);

CREATE TABLE IF NOT EXISTS test_case_history (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    test_case_id      INTEGER NOT NULL REFERENCES test_cases(id) ON DELETE CASCADE,
    user_email        TEXT NOT NULL DEFAULT '',
    priority          TEXT NOT NULL DEFAULT '',
    testcase_type     TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT '',
    automation_status TEXT NOT NULL DEFAULT '',
    change_reason     TEXT NOT NULL DEFAULT '',
    changed_fields    TEXT NOT NULL DEFAULT '{}',
    snapshot          TEXT NOT NULL DEFAULT '{}',
    created_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_test_case_history_tc ON test_case_history(test_case_id, id DESC);

CREATE TABLE IF NOT EXISTS natco_status (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    test_case_id INTEGER NOT NULL REFERENCES test_cases(id) ON DELETE CASCADE,
    natco        TEXT NOT NULL,
    language     TEXT NOT NULL,
    device       TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'manual',
    applicable   INTEGER NOT NULL DEFAULT 0,
    user_email   TEXT NOT NULL DEFAULT '',
    modified_by  TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    updated_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    UNIQUE (test_case_id, natco, device, language)
);

CREATE TABLE IF NOT EXISTS scripts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    test_case_id    INTEGER NOT NULL REFERENCES test_cases(id) ON DELETE CASCADE,
    name            TEXT NOT NULL DEFAULT '',
    location        TEXT NOT NULL DEFAULT '',
    script_type     TEXT NOT NULL DEFAULT '',
    natco           TEXT NOT NULL DEFAULT '',
    language        TEXT NOT NULL DEFAULT '',
    device          TEXT NOT NULL DEFAULT '',
    developed_by    TEXT NOT NULL DEFAULT '',
    reviewed_by     TEXT NOT NULL DEFAULT '',
    modified_by     TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    updated_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_scripts_test_case ON scripts(test_case_id);
CREATE INDEX IF NOT EXISTS idx_scripts_name ON scripts(name);

CREATE TABLE IF NOT EXISTS script_issues (
    id          INTEGER PRIMARY KEY,
    script_id   INTEGER NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
    summary     TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    result      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'open',
    created_by  TEXT NOT NULL DEFAULT '',
    resolved_by TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_script_issues_script ON script_issues(script_id);

CREATE TABLE IF NOT EXISTS comments (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    target_kind TEXT NOT NULL,
    target_id   INTEGER NOT NULL,
    body        TEXT NOT NULL,
    created_by  TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
    updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_comments_target ON comments(target_kind, target_id);

CREATE TABLE IF NOT EXISTS notifications (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    message     TEXT NOT NULL,
    sender      TEXT NOT NULL DEFAULT '',
    recipient   TEXT NOT NULL DEFAULT '',
    target_kind TEXT NOT NULL DEFAULT '',
    target_id   INTEGER NOT NULL DEFAULT 0,
    status      INTEGER NOT NULL DEFAULT 1,
    is_read     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient, is_read);

CREATE TABLE IF NOT EXISTS stb_nodes (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    node_id TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS stb_node_configs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    node_id    TEXT NOT NULL REFERENCES stb_nodes(node_id) ON DELETE CASCADE,
    natco      TEXT NOT NULL DEFAULT '',
    is_active  INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_stb_node_configs_node ON stb_node_configs(node_id, is_active);

CREATE TABLE IF NOT EXISTS stb_results (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    result_id      TEXT NOT NULL UNIQUE,
    job_uid        TEXT NOT NULL DEFAULT '',
    result_url     TEXT NOT NULL DEFAULT '',
    triage_url     TEXT NOT NULL DEFAULT '',
    start_time     TEXT NOT NULL DEFAULT '',
    end_time       TEXT NOT NULL DEFAULT '',
    script_id      INTEGER NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
    result         TEXT NOT NULL DEFAULT '',
    failure_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_stb_results_script ON stb_results(script_id, start_time DESC);
`

func (d *DB) migrate() error {
	if _, err := d.Exec(schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}
