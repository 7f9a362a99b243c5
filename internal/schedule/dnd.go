package schedule

import (
	"time"

	"github.com/bubuagent/bubu-agent/internal/model"
)

// Decision is the outcome of gating a planned fire time.
type Decision int

const (
	Allow Decision = iota
	SuppressDnd
	SuppressHoliday
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case SuppressDnd:
		return "suppress_dnd"
	case SuppressHoliday:
		return "suppress_holiday"
	}
	return "unknown"
}

// Admit decides whether a planned fire time may execute. Rules, in order:
// holiday skip-dates suppress every type; night messages are exempt from
// quiet hours; everything else is suppressed when the planned time falls
// inside the DND range. A suppressed occurrence is skipped outright for that
// day, not resampled or clamped.
func Admit(planned time.Time, t model.MessageType, dnd model.DndRange, skipDates map[string]struct{}, date time.Time) Decision {
	if _, ok := skipDates[model.DateKey(date)]; ok {
		return SuppressHoliday
	}
	if t == model.TypeNight {
		return Allow
	}
	m := model.MinuteOfDay(planned.Hour()*60 + planned.Minute())
	if dnd.Contains(m) {
		return SuppressDnd
	}
	return Allow
}
