package database

import (
	"testing"
	"testing/fstest"
)

func TestListMigrationFilesSkipsDownAndDirs(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/000002_b.up.sql":   {Data: []byte("select 1;")},
		"migrations/000001_a.up.sql":   {Data: []byte("select 1;")},
		"migrations/000001_a.down.sql": {Data: []byte("select 1;")},
		"migrations/nested/x.up.sql":   {Data: []byte("select 1;")},
	}
	got := listMigrationFiles(fsys, "migrations")
	want := []string{"000001_a.up.sql", "000002_b.up.sql"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}
	if got := selectApplied(files, 1, 3); len(got) != 2 || got[0] != "000002_b.up.sql" {
		t.Fatalf("unexpected applied set: %v", got)
	}
	if got := selectApplied(files, 3, 3); len(got) != 0 {
		t.Fatalf("expected nothing applied, got %v", got)
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", User: "bot", Password: "p@ss", Name: "topup"}
	if !cfg.Enabled() {
		t.Fatal("config with host must be enabled")
	}
	if got, want := cfg.URL(), "postgres://bot:p%40ss@db:5432/topup?sslmode=disable"; got != want {
		t.Fatalf("URL() = %s, want %s", got, want)
	}
	if got, want := cfg.KeywordDSN(), "user=bot password=p@ss host=db port=5432 dbname=topup sslmode=disable"; got != want {
		t.Fatalf("KeywordDSN() = %s, want %s", got, want)
	}
	if (Config{}).Enabled() {
		t.Fatal("empty config must be disabled")
	}
}
