package pg

import (
	"io/fs"
	"testing"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/jobs?sslmode=disable": "pgx5://u:p@localhost:5432/jobs?sslmode=disable",
		"postgresql://localhost/jobs":                        "pgx5://localhost/jobs",
		"pgx5://localhost/jobs":                              "pgx5://localhost/jobs",
	}
	for in, want := range cases {
		got, err := migrateURL(in)
		if err != nil {
			t.Fatalf("migrateURL(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := migrateURL("host=localhost dbname=jobs"); err == nil {
		t.Error("expected error for key/value DSN")
	}
}

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	ups, _ := fs.Glob(migrationFS, "migrations/*.up.sql")
	downs, _ := fs.Glob(migrationFS, "migrations/*.down.sql")
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Errorf("migrations: %d up, %d down", len(ups), len(downs))
	}
}
