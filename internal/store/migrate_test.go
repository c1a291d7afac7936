package store

import (
	"io/fs"
	"strings"
	"testing"
)

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"
	up := ExtractUpMigration(content)
	if !strings.Contains(up, "CREATE TABLE a") {
		t.Fatalf("up section missing create statement: %q", up)
	}
	if strings.Contains(up, "DROP TABLE") {
		t.Fatalf("up section must not include down statements: %q", up)
	}

	plain := "CREATE TABLE b (id INT);"
	if got := ExtractUpMigration(plain); got != plain {
		t.Fatalf("content without markers should be returned as-is, got %q", got)
	}
}

func TestEmbeddedMigrationsHaveUpSections(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for _, entry := range entries {
		content, err := fs.ReadFile(migrationFiles, "migrations/"+entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		if strings.TrimSpace(ExtractUpMigration(string(content))) == "" {
			t.Fatalf("%s has an empty up section", entry.Name())
		}
	}
}
