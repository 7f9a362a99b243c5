package repository

import (
	"time"

	"github.com/bubuagent/bubu-agent/internal/model"
)

type SentRecordEntity struct {
	ID         int64      `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	Date       string     `db:"date"        gorm:"column:date;not null;uniqueIndex:uq_messages_sent_date_slot"`
	Slot       string     `db:"slot"        gorm:"column:slot;not null;uniqueIndex:uq_messages_sent_date_slot"`
	Text       string     `db:"text"        gorm:"column:text;not null"`
	Status     string     `db:"status"      gorm:"column:status;not null"`
	ProviderID *string    `db:"provider_id" gorm:"column:provider_id"`
	SentAt     *time.Time `db:"sent_at"     gorm:"column:sent_at"`
	CreatedAt  time.Time  `db:"created_at"  gorm:"column:created_at;autoCreateTime"`
}

func (SentRecordEntity) TableName() string {
	return "messages_sent"
}

func toSentRecordEntity(m *model.SentRecord) *SentRecordEntity {
	if m == nil {
		return nil
	}
	return &SentRecordEntity{
		ID:         m.ID,
		Date:       m.Date,
		Slot:       string(m.Slot),
		Text:       m.Text,
		Status:     string(m.Status),
		ProviderID: m.ProviderID,
		SentAt:     m.SentAt,
		CreatedAt:  m.CreatedAt,
	}
}

func toSentRecordModel(e *SentRecordEntity) *model.SentRecord {
	if e == nil {
		return nil
	}
	return &model.SentRecord{
		ID:         e.ID,
		Date:       e.Date,
		Slot:       model.MessageType(e.Slot),
		Text:       e.Text,
		Status:     model.RecordStatus(e.Status),
		ProviderID: e.ProviderID,
		SentAt:     e.SentAt,
		CreatedAt:  e.CreatedAt,
	}
}

func toSentRecordModels(entities []*SentRecordEntity) []*model.SentRecord {
	if entities == nil {
		return nil
	}
	models := make([]*model.SentRecord, len(entities))
	for i, e := range entities {
		models[i] = toSentRecordModel(e)
	}
	return models
}
