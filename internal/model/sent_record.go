package model

import "time"

// RecordStatus is the persisted delivery state of a slot.
type RecordStatus string

const (
	// RecordClaimed marks a slot as in flight. A crash between claim and
	// commit leaves this row behind; it is re-evaluated on the next restart.
	RecordClaimed RecordStatus = "claimed"
	RecordSent    RecordStatus = "sent"
	RecordFailed  RecordStatus = "failed"
)

// SentRecord is the single durable entity of the system: one logical row per
// (date, slot). A sent record is never overwritten; a failed one may be
// re-claimed by a manual trigger.
type SentRecord struct {
	ID         int64        `json:"id"`
	Date       string       `json:"date"`
	Slot       MessageType  `json:"slot"`
	Text       string       `json:"text"`
	Status     RecordStatus `json:"status"`
	ProviderID *string      `json:"provider_id,omitempty"`
	SentAt     *time.Time   `json:"sent_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}
