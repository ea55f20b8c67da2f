package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	migrationsDir = "migrations"
	// migrationLockKey: ключ pg_advisory_lock, сериализующий миграции нескольких экземпляров.
	migrationLockKey   = int64(0x7665677368)
	migrationsTableDDL = `
CREATE TABLE IF NOT EXISTS vegshop_schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed migrations/*.sql
	embeddedMigrations embed.FS

	migrationName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)
)

// Migration — пара up/down скриптов одной версии схемы.
type Migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// MigrationStatus — состояние схемы.
type MigrationStatus struct {
	Current int64
	Applied int
	Pending int
}

// ParseMigrations читает миграции из каталога dir файловой системы fsys.
// У каждой версии должны быть и up, и down файлы.
func ParseMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version %s: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}
		if m.Name != parts[2] {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, m.Name, parts[2])
		}

		target := &m.Up
		if parts[3] == "down" {
			target = &m.Down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}

	if len(byVersion) == 0 {
		return nil, fmt.Errorf("no migrations found in %s", dir)
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %d_%s needs both up and down files", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// MigrateUp применяет steps непримененных миграций; steps<=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) (int, error) {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []Migration) (int, error) {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return 0, err
		}

		done := 0
		for _, m := range migrations {
			if steps > 0 && done >= steps {
				break
			}
			if _, ok := applied[m.Version]; ok {
				continue
			}
			if err := runMigration(ctx, conn, m, true); err != nil {
				return done, err
			}
			done++
		}
		return done, nil
	})
}

// MigrateDown откатывает steps последних миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []Migration) (int, error) {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return 0, err
		}

		done := 0
		for i := len(migrations) - 1; i >= 0 && done < steps; i-- {
			m := migrations[i]
			if _, ok := applied[m.Version]; !ok {
				continue
			}
			if err := runMigration(ctx, conn, m, false); err != nil {
				return done, err
			}
			done++
		}
		return done, nil
	})
}

// Status сообщает текущую версию схемы и число ожидающих миграций.
func (s *Store) Status(ctx context.Context) (MigrationStatus, error) {
	var status MigrationStatus
	_, err := s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []Migration) (int, error) {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return 0, err
		}
		for _, m := range migrations {
			if _, ok := applied[m.Version]; ok {
				status.Applied++
				if m.Version > status.Current {
					status.Current = m.Version
				}
			} else {
				status.Pending++
			}
		}
		return 0, nil
	})
	return status, err
}

func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn, migrations []Migration) (int, error)) (int, error) {
	if s == nil || s.db == nil {
		return 0, errStoreNotInitialized
	}
	migrations, err := ParseMigrations(embeddedMigrations, migrationsDir)
	if err != nil {
		return 0, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationsTableDDL); err != nil {
		return 0, fmt.Errorf("ensure migrations table: %w", err)
	}
	return fn(conn, migrations)
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]struct{}, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM vegshop_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]struct{})
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = struct{}{}
	}
	return applied, rows.Err()
}

// runMigration выполняет скрипт и запись в журнал одной транзакцией.
func runMigration(ctx context.Context, conn *sql.Conn, m Migration, up bool) error {
	script, direction := m.Down, "down"
	if up {
		script, direction = m.Up, "up"
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %d: %w", direction, m.Version, err)
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}

	if up {
		_, err = tx.ExecContext(ctx, `INSERT INTO vegshop_schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM vegshop_schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record %s migration %d: %w", direction, m.Version, err)
	}
	return tx.Commit()
}
