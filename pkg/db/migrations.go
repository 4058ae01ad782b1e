package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var embedded embed.FS

// schemaLockID serialises concurrent Migrate calls from parallel replays.
const schemaLockID = 0x6d656574 // "meet"

// Schema returns the embedded meeting schema.
func Schema() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration is one schema file, versioned by its name without extension.
type Migration struct {
	Version string
	Name    string
}

// MigrationResult lists what a Migrate call did.
type MigrationResult struct {
	Applied []string
	Skipped []string
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (*MigrationResult, error) {
	return RunMigrations(ctx, pool, Schema())
}

// RunMigrations applies the .sql files at the root of fsys in version order,
// each in its own transaction, recording them in meetiq_schema. It stops at
// the first failure.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) (*MigrationResult, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	migrations, err := findMigrations(fsys)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS meetiq_schema (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return nil, fmt.Errorf("creating meetiq_schema: %w", err)
	}

	result := &MigrationResult{}
	for _, m := range migrations {
		applied, err := applyMigration(ctx, pool, fsys, m)
		if err != nil {
			return result, fmt.Errorf("migration %s: %w", m.Version, err)
		}
		if applied {
			result.Applied = append(result.Applied, m.Version)
		} else {
			result.Skipped = append(result.Skipped, m.Version)
		}
	}
	return result, nil
}

// findMigrations lists the .sql files at the root of fsys, sorted by version.
func findMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(path.Ext(name), ".sql") {
			continue
		}
		migrations = append(migrations, Migration{
			Version: strings.TrimSuffix(name, path.Ext(name)),
			Name:    name,
		})
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// applyMigration runs m unless it is already recorded. The check and the
// apply share a transaction holding the schema lock.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, m Migration) (bool, error) {
	content, err := fs.ReadFile(fsys, m.Name)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(string(content)) == "" {
		return false, fmt.Errorf("%s is empty", m.Name)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) // nolint: errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(schemaLockID)); err != nil {
		return false, fmt.Errorf("taking schema lock: %w", err)
	}
	var done bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM meetiq_schema WHERE version = $1)", m.Version).Scan(&done); err != nil {
		return false, err
	}
	if done {
		return false, nil
	}

	if _, err := tx.Exec(ctx, string(content)); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, "INSERT INTO meetiq_schema (version) VALUES ($1)", m.Version); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
