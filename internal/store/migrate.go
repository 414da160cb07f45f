package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var migrationName = regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

// Migration is one versioned schema change on disk.
type Migration struct {
	Version  string
	Name     string
	UpPath   string
	DownPath string
}

// LoadMigrations pairs the up and down files in dir, ordered by version.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		m := byVersion[match[1]]
		if m == nil {
			m = &Migration{Version: match[1]}
			byVersion[match[1]] = m
		}
		path := filepath.Join(dir, entry.Name())
		if match[2] == "up" {
			m.UpPath = path
			m.Name = entry.Name()
		} else {
			m.DownPath = path
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpPath == "" {
			return nil, fmt.Errorf("migration %s has no up file", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ApplyMigrations runs every pending up migration, each in its own
// transaction, and returns the names it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range migrations {
		if migrated, err := isMigrated(ctx, db, m.Name); err != nil {
			return applied, err
		} else if migrated {
			continue
		}
		contents, err := os.ReadFile(m.UpPath)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", m.Name, err)
		}
		if err := runInTx(ctx, db, m.Name, string(contents), `INSERT INTO schema_migrations(version) VALUES($1)`); err != nil {
			return applied, err
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// RollbackMigration reverts the most recently applied migration. It returns
// an empty name when nothing is applied.
func RollbackMigration(ctx context.Context, db *sql.DB, migrationsDir string) (string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return "", err
	}
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return "", err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		migrated, err := isMigrated(ctx, db, m.Name)
		if err != nil {
			return "", err
		}
		if !migrated {
			continue
		}
		if m.DownPath == "" {
			return "", fmt.Errorf("migration %s has no down file", m.Name)
		}
		contents, err := os.ReadFile(m.DownPath)
		if err != nil {
			return "", fmt.Errorf("read migration %s: %w", m.DownPath, err)
		}
		if err := runInTx(ctx, db, m.Name, strings.TrimSpace(string(contents)), `DELETE FROM schema_migrations WHERE version=$1`); err != nil {
			return "", err
		}
		return m.Name, nil
	}
	return "", nil
}

func runInTx(ctx context.Context, db *sql.DB, version, body, record string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", version, err)
	}
	if body != "" {
		if _, err := tx.ExecContext(ctx, body); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", version, err)
		}
	}
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
