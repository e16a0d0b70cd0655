package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames_Sorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	assert.Equal(t, "001_initial.sql", names[0])
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestMigrations_CreateCoreTables(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)

	var all strings.Builder
	for _, name := range names {
		content, err := migrationsFS.ReadFile("migrations/" + name)
		require.NoError(t, err)
		all.Write(content)
	}

	for _, table := range []string{"users", "medications", "medication_reminders", "dose_events", "user_settings"} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}
