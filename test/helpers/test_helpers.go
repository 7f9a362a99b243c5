package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/internal/repository"
	"github.com/bubuagent/bubu-agent/pkg/db"
	"github.com/bubuagent/bubu-agent/pkg/redis"
)

func SetupTestDB(t *testing.T) (*db.DB, *repository.SentRecordRepository) {
	handle, err := db.New(db.Config{Driver: db.DriverSQLite, Path: ":memory:"}, false)
	require.NoError(t, err)

	repo := repository.NewSentRecordRepository(handle)
	require.NoError(t, repo.Migrate(context.Background()))

	return handle, repo
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateSentRecord(t *testing.T, repo *repository.SentRecordRepository, date time.Time, slot model.MessageType, status model.RecordStatus) {
	ctx := context.Background()
	claimed, err := repo.TryClaim(ctx, date, slot)
	require.NoError(t, err)
	require.True(t, claimed)
	if status == model.RecordClaimed {
		return
	}

	now := time.Now()
	providerID := "test-provider-id"
	rec := &model.SentRecord{
		Date:       model.DateKey(date),
		Slot:       slot,
		Text:       "test message",
		Status:     status,
		ProviderID: &providerID,
		SentAt:     &now,
	}
	require.NoError(t, repo.Commit(ctx, rec))
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
