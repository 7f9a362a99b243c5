package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/pkg/db"
)

var (
	// ErrNotFound is returned when a sent record does not exist.
	ErrNotFound = errors.New("sent record not found")
)

type SentRecordRepository struct {
	*db.DB
}

func NewSentRecordRepository(handle *db.DB) *SentRecordRepository {
	return &SentRecordRepository{
		handle,
	}
}

// Exists reports whether a message for the given day and slot has already
// been delivered. Claimed and failed rows do not count, only delivered ones.
func (r *SentRecordRepository) Exists(ctx context.Context, date time.Time, slot model.MessageType) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&SentRecordEntity{}).
		Where("date = ? AND slot = ? AND status = ?", model.DateKey(date), string(slot), string(model.RecordSent)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// TryClaim inserts a claim row for the day/slot pair. The UNIQUE(date, slot)
// constraint makes this atomic across processes: exactly one caller wins a
// fresh slot. A slot whose previous attempt failed can be claimed again;
// a delivered or in-flight slot cannot.
func (r *SentRecordRepository) TryClaim(ctx context.Context, date time.Time, slot model.MessageType) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).Exec(
		`INSERT INTO messages_sent (date, slot, text, status, created_at)
		 VALUES (?, ?, '', ?, ?)
		 ON CONFLICT (date, slot) DO UPDATE SET status = ?
		 WHERE messages_sent.status = ?`,
		model.DateKey(date), string(slot), string(model.RecordClaimed), time.Now().UTC(),
		string(model.RecordClaimed), string(model.RecordFailed),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Commit finalizes a previously claimed slot with the delivery outcome.
func (r *SentRecordRepository) Commit(ctx context.Context, rec *model.SentRecord) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&SentRecordEntity{}).
		Where("date = ? AND slot = ?", rec.Date, string(rec.Slot)).
		Updates(map[string]interface{}{
			"text":        rec.Text,
			"status":      string(rec.Status),
			"provider_id": rec.ProviderID,
			"sent_at":     rec.SentAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ForDate returns all records for a single day, newest slot first.
func (r *SentRecordRepository) ForDate(ctx context.Context, date time.Time) ([]*model.SentRecord, error) {
	var entities []*SentRecordEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("date = ?", model.DateKey(date)).
		Order("created_at DESC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toSentRecordModels(entities), nil
}

// Recent returns records from the last n days, newest first.
func (r *SentRecordRepository) Recent(ctx context.Context, now time.Time, days int) ([]*model.SentRecord, error) {
	if days <= 0 {
		days = 7
	}
	since := model.DateKey(now.AddDate(0, 0, -days))
	var entities []*SentRecordEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("date >= ?", since).
		Order("date DESC, created_at DESC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toSentRecordModels(entities), nil
}

// CleanupOlderThan deletes records older than the cutoff day and reports
// how many rows went away.
func (r *SentRecordRepository) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.Write(ctx).WithContext(ctx).
		Where("date < ?", model.DateKey(cutoff)).
		Delete(&SentRecordEntity{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Migrate creates the backing table. Used by sqlite setups and tests;
// postgres deployments run the SQL migrations instead.
func (r *SentRecordRepository) Migrate(ctx context.Context) error {
	return r.Write(ctx).WithContext(ctx).AutoMigrate(&SentRecordEntity{})
}
