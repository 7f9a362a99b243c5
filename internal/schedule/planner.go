package schedule

import (
	"time"

	"github.com/bubuagent/bubu-agent/internal/model"
)

// ComputeSlot returns the planned fire time for (date, type). The offset and
// jitter draws both come from the single (date, type)-seeded stream, so the
// full computation is reproducible from the date and type alone. The result
// never falls outside [window.Start-jitter, window.End+jitter], clamped to
// the calendar day.
func ComputeSlot(date time.Time, t model.MessageType, w model.ScheduleWindow, loc *time.Location) time.Time {
	rng := Seeded(date, t.String())

	minute := int(w.Start) + rng.Intn(int(w.End)-int(w.Start)+1)
	if w.JitterMin > 0 {
		minute += rng.Intn(2*w.JitterMin+1) - w.JitterMin
	}

	lo := int(w.Start) - w.JitterMin
	hi := int(w.End) + w.JitterMin
	if minute < lo {
		minute = lo
	}
	if minute > hi {
		minute = hi
	}
	if minute < 0 {
		minute = 0
	}
	if minute > 24*60-1 {
		minute = 24*60 - 1
	}

	return time.Date(date.Year(), date.Month(), date.Day(), minute/60, minute%60, 0, 0, loc)
}
