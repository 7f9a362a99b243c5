package model

import (
	"fmt"
	"time"
)

// DateLayout is the canonical key format for a calendar day. All storage keys
// and seeds derive from it so that behavior is stable across restarts.
const DateLayout = "2006-01-02"

func DateKey(d time.Time) string {
	return d.Format(DateLayout)
}

// MinuteOfDay is a time-of-day expressed as minutes since midnight [0, 1439].
type MinuteOfDay int

// ParseMinuteOfDay parses "HH:MM".
func ParseMinuteOfDay(s string) (MinuteOfDay, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return MinuteOfDay(hh*60 + mm), nil
}

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// ScheduleWindow is the configured firing window for one message type.
// Start < End is enforced at config load time, not here.
type ScheduleWindow struct {
	Type      MessageType
	Start     MinuteOfDay
	End       MinuteOfDay
	JitterMin int
}

// DndRange is the quiet-hours range. It wraps past midnight when Start > End
// (e.g. 23:45-06:30).
type DndRange struct {
	Start MinuteOfDay
	End   MinuteOfDay
}

// Contains reports whether m falls inside the range, honoring midnight wrap.
func (r DndRange) Contains(m MinuteOfDay) bool {
	if r.Start <= r.End {
		return m >= r.Start && m <= r.End
	}
	return m >= r.Start || m <= r.End
}

// SlotStatus describes where a (date, type) slot currently stands.
type SlotStatus string

const (
	SlotPlanned           SlotStatus = "planned"
	SlotSuppressedDnd     SlotStatus = "suppressed_dnd"
	SlotSuppressedHoliday SlotStatus = "suppressed_holiday"
	SlotSent              SlotStatus = "sent"
	SlotFailed            SlotStatus = "failed"
)

// DaySlotPlan is one scheduling opportunity. Recomputing a plan for the same
// (date, type) always yields an identical PlannedAt.
type DaySlotPlan struct {
	Date      time.Time   `json:"date"`
	Type      MessageType `json:"type"`
	PlannedAt time.Time   `json:"planned_at"`
	Status    SlotStatus  `json:"status"`
}
