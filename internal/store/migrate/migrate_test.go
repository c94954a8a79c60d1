package migrate

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"pixav/migrations"
)

func TestEmbeddedMigrations_AreOrderedAndNonEmpty(t *testing.T) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one embedded migration file")
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			t.Fatalf("unexpected non-sql embedded file: %s", e.Name())
		}
		names = append(names, e.Name())
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("expected embedded migration filenames to already sort lexically: %v", names)
	}

	for _, name := range names {
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(strings.TrimSpace(string(content))) == 0 {
			t.Fatalf("migration %s is empty", name)
		}
	}
}
