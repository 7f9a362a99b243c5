package repository

import (
	"context"
	"testing"

	"github.com/bubuagent/bubu-agent/pkg/db"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.DB {
	handle, err := db.New(db.Config{Driver: db.DriverSQLite, Path: ":memory:"}, false)
	require.NoError(t, err)

	repo := NewSentRecordRepository(handle)
	require.NoError(t, repo.Migrate(context.Background()))

	return handle
}
