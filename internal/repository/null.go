package repository

import (
	"context"
	"time"

	"github.com/bubuagent/bubu-agent/internal/model"
)

// NullStorage is used when no database is configured. Every slot looks
// unsent and every claim succeeds, so the agent keeps sending without
// duplicate protection.
type NullStorage struct{}

func NewNullStorage() *NullStorage {
	return &NullStorage{}
}

func (NullStorage) Exists(ctx context.Context, date time.Time, slot model.MessageType) (bool, error) {
	return false, nil
}

func (NullStorage) TryClaim(ctx context.Context, date time.Time, slot model.MessageType) (bool, error) {
	return true, nil
}

func (NullStorage) Commit(ctx context.Context, rec *model.SentRecord) error {
	return nil
}

func (NullStorage) ForDate(ctx context.Context, date time.Time) ([]*model.SentRecord, error) {
	return nil, nil
}

func (NullStorage) Recent(ctx context.Context, now time.Time, days int) ([]*model.SentRecord, error) {
	return nil, nil
}

func (NullStorage) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
