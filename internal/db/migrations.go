package db

import (
	"context"
	"fmt"
)

// migration is one schema step. Both dialects must describe the same tables.
type migration struct {
	version  int
	postgres []string
	sqlite   []string
}

func (m migration) statements(d Dialect) []string {
	if d == Postgres {
		return m.postgres
	}
	return m.sqlite
}

// migrations is the ordered list of schema migrations, versions sequential
// from 1.
var migrations = []migration{
	{
		version: 1,
		postgres: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id                  BIGSERIAL PRIMARY KEY,
				username            TEXT NOT NULL UNIQUE,
				email               TEXT,
				is_admin            BOOLEAN NOT NULL DEFAULT FALSE,
				status              TEXT NOT NULL DEFAULT 'active',
				reset_allowed_until TIMESTAMPTZ,
				created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS pages (
				id          BIGSERIAL PRIMARY KEY,
				user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title       TEXT NOT NULL DEFAULT 'Untitled',
				content     TEXT NOT NULL DEFAULT '',
				is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
				order_index INTEGER NOT NULL DEFAULT 0,
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS tasks (
				id          BIGSERIAL PRIMARY KEY,
				user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				page_id     BIGINT REFERENCES pages(id) ON DELETE SET NULL,
				title       VARCHAR(500) NOT NULL,
				description TEXT,
				status      VARCHAR(20) NOT NULL DEFAULT 'todo',
				priority    VARCHAR(10) NOT NULL DEFAULT 'medium',
				due_date    TIMESTAMPTZ,
				category    VARCHAR(100),
				order_index INTEGER NOT NULL DEFAULT 0,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS subtasks (
				id          BIGSERIAL PRIMARY KEY,
				task_id     BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				title       VARCHAR(500) NOT NULL,
				completed   BOOLEAN NOT NULL DEFAULT FALSE,
				order_index INTEGER NOT NULL DEFAULT 0,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pages_user_id ON pages(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_page_id ON tasks(page_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
			`CREATE INDEX IF NOT EXISTS idx_subtasks_task_id ON subtasks(task_id)`,
		},
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id                  INTEGER PRIMARY KEY AUTOINCREMENT,
				username            TEXT NOT NULL UNIQUE,
				email               TEXT,
				is_admin            BOOLEAN NOT NULL DEFAULT 0,
				status              TEXT NOT NULL DEFAULT 'active',
				reset_allowed_until DATETIME,
				created_at          DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS pages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title       TEXT NOT NULL DEFAULT 'Untitled',
				content     TEXT NOT NULL DEFAULT '',
				is_favorite BOOLEAN NOT NULL DEFAULT 0,
				order_index INTEGER NOT NULL DEFAULT 0,
				updated_at  DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tasks (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				page_id     INTEGER REFERENCES pages(id) ON DELETE SET NULL,
				title       TEXT NOT NULL,
				description TEXT,
				status      TEXT NOT NULL DEFAULT 'todo',
				priority    TEXT NOT NULL DEFAULT 'medium',
				due_date    DATETIME,
				category    TEXT,
				order_index INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL,
				updated_at  DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS subtasks (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				task_id     INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				title       TEXT NOT NULL,
				completed   BOOLEAN NOT NULL DEFAULT 0,
				order_index INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pages_user_id ON pages(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_page_id ON tasks(page_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
			`CREATE INDEX IF NOT EXISTS idx_subtasks_task_id ON subtasks(task_id)`,
		},
	},
}

// Migrate applies every migration newer than the recorded schema version.
// Each migration runs in its own transaction.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := d.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := d.apply(ctx, m); err != nil {
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := d.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (d *DB) apply(ctx context.Context, m migration) error {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range m.statements(d.Dialect) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, d.Rebind("INSERT INTO schema_version (version) VALUES (?)"), m.version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
