package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseMigrations_Sorted(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"m/0002_more.up.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
		"m/0002_more.down.sql": {Data: []byte("DROP TABLE b;")},
		"m/0001_init.up.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
		"m/0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
	}

	migrations, err := ParseMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("parse migrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "init" || migrations[1].Version != 2 {
		t.Fatalf("unexpected order: %+v", migrations)
	}
	if migrations[1].Down != "DROP TABLE b;" {
		t.Fatalf("unexpected down script: %q", migrations[1].Down)
	}
}

func TestParseMigrations_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		fsys fstest.MapFS
		want string
	}{
		"missing down": {
			fsys: fstest.MapFS{"m/0001_init.up.sql": {Data: []byte("SELECT 1;")}},
			want: "both up and down",
		},
		"bad name": {
			fsys: fstest.MapFS{"m/init.sql": {Data: []byte("SELECT 1;")}},
			want: "invalid migration file name",
		},
		"empty body": {
			fsys: fstest.MapFS{
				"m/0001_init.up.sql":   {Data: []byte("  \n")},
				"m/0001_init.down.sql": {Data: []byte("SELECT 1;")},
			},
			want: "is empty",
		},
		"name conflict": {
			fsys: fstest.MapFS{
				"m/0001_init.up.sql":    {Data: []byte("SELECT 1;")},
				"m/0001_other.down.sql": {Data: []byte("SELECT 1;")},
			},
			want: "conflicting names",
		},
		"stray file": {
			fsys: fstest.MapFS{"m/.keep": {Data: []byte{}, Mode: 0o644}},
			want: "invalid migration file name",
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseMigrations(tc.fsys, "m")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := ParseMigrations(embeddedMigrations, migrationsDir)
	if err != nil {
		t.Fatalf("parse embedded migrations: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 {
		t.Fatalf("unexpected embedded migrations: %+v", migrations)
	}
	for _, table := range []string{"users", "products", "carts", "orders", "order_lines", "outbox_messages", "timeline_events", "idempotency_keys"} {
		if !strings.Contains(migrations[0].Up, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Fatalf("init migration does not create %s", table)
		}
	}
}
