package client

import (
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

// The status CHECK in the schema must accept every value the Status type
// defines, or a valid update dies at the database instead of validation.
func TestSchemaPermitsAllStatuses(t *testing.T) {
	schema, err := os.ReadFile("../../migrations/0001_init.sql")
	require.NoError(t, err)

	re := regexp.MustCompile(`status TEXT[^\n]*CHECK \(status IN \(([^)]+)\)\)`)
	m := re.FindStringSubmatch(string(schema))
	require.NotNil(t, m, "clients.status CHECK not found in schema")

	for _, s := range []Status{StatusActive, StatusPaused, StatusSuspended} {
		require.Contains(t, m[1], "'"+string(s)+"'")
	}
}
