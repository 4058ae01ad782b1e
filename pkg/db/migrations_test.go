package db

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":    {Data: []byte("SELECT 1")},
		"002_second.SQL":   {Data: []byte("SELECT 1")},
		"001_first.sql":    {Data: []byte("SELECT 1")},
		"README.md":        {Data: []byte("docs")},
		"nested/003_x.sql": {Data: []byte("SELECT 1")},
	}

	got, err := findMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Migration{Version: "001_first", Name: "001_first.sql"}, got[0])
	assert.Equal(t, "002_second", got[1].Version)
	assert.Equal(t, "010_later", got[2].Version)
}

func TestSchema_EmbedsMeetingTables(t *testing.T) {
	got, err := findMigrations(Schema())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_meeting_snapshots", got[0].Version)
	assert.Equal(t, "002_meeting_reports", got[1].Version)
}

func TestRunMigrations_NilPool(t *testing.T) {
	_, err := RunMigrations(context.Background(), nil, Schema())
	assert.ErrorContains(t, err, "pool is nil")
}
