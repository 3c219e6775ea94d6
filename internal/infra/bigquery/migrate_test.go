package bigquery

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init.sql", true, 1, "init"},
		{"0012_add_budgets.sql", true, 12, "add_budgets"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.valid || version != tt.version || name != tt.name {
				t.Errorf("parseMigrationFilename(%q) = %d, %q, %v", tt.filename, version, name, ok)
			}
		})
	}
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_second.sql": {Data: []byte("SELECT 2 FROM `{{PROJECT_ID}}.{{DATASET_ID}}.t`")},
		"migrations/0001_first.sql":  {Data: []byte("SELECT 1")},
		"migrations/readme.sql":      {Data: []byte("ignored")},
	}

	migrations, err := readMigrations(fsys, "p", "d")
	if err != nil {
		t.Fatalf("readMigrations failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("Expected migrations sorted by version, got %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if !strings.Contains(migrations[1].SQL, "`p.d.t`") {
		t.Errorf("Expected placeholders to be substituted, got %q", migrations[1].SQL)
	}

	other, _ := readMigrations(fsys, "x", "y")
	if other[1].Checksum != migrations[1].Checksum {
		t.Error("Expected checksum to ignore the target dataset")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := readMigrations(migrationsFS, "p", "d")
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 {
		t.Fatalf("Expected embedded init migration, got %+v", migrations)
	}
	for _, table := range []string{"vaults", "categories", "transactions", "budgets"} {
		if !strings.Contains(migrations[0].SQL, "`p.d."+table+"`") {
			t.Errorf("Expected init migration to create %s", table)
		}
	}
}
