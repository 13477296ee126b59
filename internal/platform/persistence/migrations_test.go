package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamper-evident-ledger/internal/domain/ledger"
)

const repoMigrationsPath = "../../../migrations/postgres"

func TestRunMigrations_RejectsMissingInputs(t *testing.T) {
	tests := []struct {
		name, url, path, want string
	}{
		{"NoPath", "postgres://ledger@localhost/ledger_core", "", "migrations path cannot be empty"},
		{"NoURL", "", "migrations/postgres", "database URL cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, RunMigrations(tt.url, tt.path), tt.want)
		})
	}
}

func TestMigrationSourceURL(t *testing.T) {
	assert.Equal(t, "file://migrations/postgres", migrationSourceURL("migrations/postgres"))
	assert.Equal(t, "file:///srv/ledger/migrations", migrationSourceURL("file:///srv/ledger/migrations"))
}

// Every up migration needs a down counterpart for golang-migrate to roll back cleanly.
func TestMigrations_ArePaired(t *testing.T) {
	ups, err := filepath.Glob(filepath.Join(repoMigrationsPath, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := os.Stat(down)
		assert.NoError(t, err, "missing down migration for %s", filepath.Base(up))
	}
}

func TestMigrations_DeclareLedgerInvariants(t *testing.T) {
	read := func(name string) string {
		content, err := os.ReadFile(filepath.Join(repoMigrationsPath, name))
		require.NoError(t, err)
		return strings.ToLower(string(content))
	}

	journal := read("000001_create_journal_tables.up.sql")
	assert.Contains(t, journal, "idempotency_key")
	assert.Contains(t, journal, "reversed_entry_id")
	assert.Contains(t, journal, fmt.Sprintf("amount        numeric(%d, %d)", ledger.AmountPrecision, ledger.AmountScale),
		"amount column must match the precision validated before posting")

	auditTable := read("000002_create_audit_events.up.sql")
	assert.Contains(t, auditTable, "sequence_number")
	assert.Contains(t, auditTable, "prev_hash")

	outboxTable := read("000003_create_outbox_events.up.sql")
	assert.Contains(t, outboxTable, "event_type")

	owners := read("000004_create_account_owners.up.sql")
	assert.Contains(t, owners, "account_id     varchar(128) primary key")
}
