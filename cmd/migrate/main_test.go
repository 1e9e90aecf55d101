package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init.sql", true, 1, "init"},
		{"0012_staged_tasks.sql", true, 12, "staged_tasks"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.valid || version != tt.version || name != tt.name {
				t.Errorf("parseMigrationFilename() = %d, %q, %v", version, name, ok)
			}
		})
	}
}

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestReadMigrations(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"0002_second.sql": "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (id INT64);",
		"0001_first.sql":  "CREATE TABLE a (id INT);",
		"README.md":       "not a migration",
	})

	migrations, err := readMigrations(dir, map[string]string{"{{PROJECT_ID}}": "proj", "{{DATASET_ID}}": "ds"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Name != "second" {
		t.Errorf("order = %+v", migrations)
	}
	if !strings.Contains(migrations[1].SQL, "`proj.ds.b`") {
		t.Errorf("placeholders not replaced: %s", migrations[1].SQL)
	}
	if migrations[0].Checksum == migrations[1].Checksum || len(migrations[0].Checksum) != 64 {
		t.Errorf("checksums = %q, %q", migrations[0].Checksum, migrations[1].Checksum)
	}
}

func TestReadMigrations_ChecksumIgnoresPlaceholders(t *testing.T) {
	dir := writeMigrations(t, map[string]string{"0001_a.sql": "SELECT '{{PROJECT_ID}}';"})

	a, err := readMigrations(dir, map[string]string{"{{PROJECT_ID}}": "one"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	b, err := readMigrations(dir, map[string]string{"{{PROJECT_ID}}": "two"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if a[0].Checksum != b[0].Checksum {
		t.Error("checksum should not depend on placeholder values")
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"0001_a.sql": "SELECT 1;",
		"0001_b.sql": "SELECT 2;",
	})
	if _, err := readMigrations(dir, nil, zerolog.Nop()); err == nil {
		t.Error("expected duplicate version error")
	}
}

type fakeTarget struct {
	applied []AppliedMigration
	ran     []int
	failOn  int
}

func (f *fakeTarget) EnsureTable(ctx context.Context) error { return nil }

func (f *fakeTarget) Applied(ctx context.Context) ([]AppliedMigration, error) {
	return f.applied, nil
}

func (f *fakeTarget) Apply(ctx context.Context, m Migration, appliedBy string) error {
	if m.Version == f.failOn {
		return errors.New("syntax error")
	}
	f.ran = append(f.ran, m.Version)
	f.applied = append(f.applied, AppliedMigration{Version: m.Version, Name: m.Name, Checksum: m.Checksum, AppliedBy: appliedBy})
	return nil
}

func (f *fakeTarget) Close() error { return nil }

func TestRun(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"0001_a.sql": "SELECT 1;",
		"0002_b.sql": "SELECT 2;",
		"0003_c.sql": "SELECT 3;",
	})
	target := &fakeTarget{applied: []AppliedMigration{{Version: 1, Name: "a"}}}

	if err := run(context.Background(), target, dir, nil, "test", zerolog.Nop()); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if len(target.ran) != 2 || target.ran[0] != 2 || target.ran[1] != 3 {
		t.Errorf("ran = %v, want [2 3]", target.ran)
	}

	target.ran = nil
	if err := run(context.Background(), target, dir, nil, "test", zerolog.Nop()); err != nil {
		t.Fatalf("second run() error = %v", err)
	}
	if len(target.ran) != 0 {
		t.Errorf("second run applied %v, want nothing", target.ran)
	}
}

func TestRun_StopsOnFailure(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"0001_a.sql": "SELECT 1;",
		"0002_b.sql": "SELECT 2;",
		"0003_c.sql": "SELECT 3;",
	})
	target := &fakeTarget{failOn: 2}

	err := run(context.Background(), target, dir, nil, "test", zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "0002_b") {
		t.Fatalf("run() error = %v, want failure naming 0002_b", err)
	}
	if len(target.ran) != 1 || target.ran[0] != 1 {
		t.Errorf("ran = %v, want [1]", target.ran)
	}
}

func TestRepositoryMigrationsParse(t *testing.T) {
	for _, kind := range []string{"postgres", "bigquery"} {
		dir, err := resolveDir("migrations/" + kind)
		if err != nil {
			t.Fatalf("resolveDir(%s) error = %v", kind, err)
		}
		migrations, err := readMigrations(dir, nil, zerolog.Nop())
		if err != nil {
			t.Fatalf("readMigrations(%s) error = %v", kind, err)
		}
		if len(migrations) == 0 {
			t.Errorf("no %s migrations found", kind)
		}
	}
}
