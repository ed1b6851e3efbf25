package postgres

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationVersions(t *testing.T) {
	versions, err := migrationVersions()
	require.NoError(t, err)
	require.NotEmpty(t, versions, "the embedded migrations must ship with the binary")

	assert.True(t, sort.StringsAreSorted(versions), "migrations must run in filename order")
	for _, v := range versions {
		assert.True(t, strings.HasSuffix(v, ".sql"), "unexpected embedded file %q", v)
	}
	assert.Equal(t, "0001_init.sql", versions[0])
}
