package store

import (
	"strings"
	"testing"

	"github.com/workshoplabs/webhook-engine/migrations"
)

func TestMigrationScripts(t *testing.T) {
	scripts, err := migrationScripts()
	if err != nil {
		t.Fatalf("migrationScripts: %v", err)
	}
	if len(scripts) == 0 {
		t.Fatal("no embedded migration scripts found")
	}
	if scripts[0] != "001_init.up.sql" {
		t.Errorf("first script = %q, want 001_init.up.sql", scripts[0])
	}

	for i := 1; i < len(scripts); i++ {
		if scripts[i-1] >= scripts[i] {
			t.Errorf("scripts out of apply order: %q before %q", scripts[i-1], scripts[i])
		}
	}

	for _, name := range scripts {
		sql, err := migrations.Files.ReadFile(name)
		if err != nil {
			t.Fatalf("reading embedded %s: %v", name, err)
		}
		if len(sql) == 0 {
			t.Errorf("embedded %s is empty", name)
		}
	}
}

func TestInitMigrationDefinesSchema(t *testing.T) {
	sql, err := migrations.Files.ReadFile("001_init.up.sql")
	if err != nil {
		t.Fatalf("reading 001_init.up.sql: %v", err)
	}

	for _, table := range []string{"subscriptions", "delivery_attempts"} {
		if !strings.Contains(string(sql), table) {
			t.Errorf("init migration does not define %s", table)
		}
	}
}
