package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComposer struct{}

func (fakeComposer) Compose(ctx context.Context, t model.MessageType, date time.Time) model.MessageResult {
	return model.MessageResult{Text: "msg-" + t.String(), Status: model.StatusTemplateFallback}
}

func (fakeComposer) Preview(t model.MessageType, date time.Time) model.MessageResult {
	return model.MessageResult{Text: "preview-" + t.String(), Status: model.StatusTemplateFallback}
}

type memoryGate struct {
	mu   sync.Mutex
	rows map[string]model.RecordStatus
}

func newMemoryGate() *memoryGate {
	return &memoryGate{rows: make(map[string]model.RecordStatus)}
}

func (g *memoryGate) key(date time.Time, slot model.MessageType) string {
	return model.DateKey(date) + "/" + slot.String()
}

func (g *memoryGate) IsAlreadySent(ctx context.Context, date time.Time, slot model.MessageType) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rows[g.key(date, slot)] == model.RecordSent
}

func (g *memoryGate) Claim(ctx context.Context, date time.Time, slot model.MessageType) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := g.key(date, slot)
	if status, ok := g.rows[key]; ok && status != model.RecordFailed {
		return false
	}
	g.rows[key] = model.RecordClaimed
	return true
}

func (g *memoryGate) Record(ctx context.Context, rec *model.SentRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows[rec.Date+"/"+rec.Slot.String()] = rec.Status
	return nil
}

type memoryMessenger struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	calls int
}

func (m *memoryMessenger) Send(ctx context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return "", errors.New("provider down")
	}
	m.sent = append(m.sent, body)
	return "mid-1", nil
}

func (m *memoryMessenger) countOf(body string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.sent {
		if b == body {
			n++
		}
	}
	return n
}

type countingCleaner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (c *countingCleaner) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cutoffs = append(c.cutoffs, cutoff)
	return 3, nil
}

// windows well clear of the zero-value DND range used by these tests
func testConfig(t *testing.T) Config {
	return Config{
		Windows: map[model.MessageType]model.ScheduleWindow{
			model.TypeMorning: mustWindow(t, "01:01", "02:00", 0),
			model.TypeFlirty:  mustWindow(t, "03:00", "04:00", 0),
			model.TypeNight:   mustWindow(t, "23:00", "23:30", 0),
		},
		Dnd:          dndRange(t, "00:00", "00:00"),
		Location:     time.UTC,
		Recipient:    "+919876543210",
		MaxCustomLen: 50,
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestScheduler_StartupCatchUp(t *testing.T) {
	gate := newMemoryGate()
	messenger := &memoryMessenger{}
	s := New(testConfig(t), fakeComposer{}, gate, messenger, nil)
	s.nowFunc = fixedNow(noon)

	s.Start()
	defer s.Stop()

	// morning and flirty are overdue at noon, night is still armed
	require.Eventually(t, func() bool {
		return messenger.countOf("msg-morning") == 1 && messenger.countOf("msg-flirty") == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, messenger.countOf("msg-night"))
}

func TestScheduler_CatchUpRacesTimerFire(t *testing.T) {
	gate := newMemoryGate()
	messenger := &memoryMessenger{}
	s := New(testConfig(t), fakeComposer{}, gate, messenger, nil)
	s.nowFunc = fixedNow(noon)

	s.Start()
	defer s.Stop()

	// hammer the same slot from the outside while startup catch-up runs
	day := startOfDay(noon, time.UTC)
	planned := ComputeSlot(day, model.TypeMorning, s.config.Windows[model.TypeMorning], time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.fire(model.TypeMorning, day, planned)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return messenger.countOf("msg-morning") >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, messenger.countOf("msg-morning"), "exactly one dispatch passes the gate")
}

func TestScheduler_PauseSkipsFires(t *testing.T) {
	gate := newMemoryGate()
	messenger := &memoryMessenger{}
	s := New(testConfig(t), fakeComposer{}, gate, messenger, nil)
	s.nowFunc = fixedNow(noon)

	s.Pause()
	day := startOfDay(noon, time.UTC)
	s.fire(model.TypeMorning, day, noon)

	assert.Equal(t, 0, messenger.calls)
	assert.True(t, s.Paused())

	s.Resume()
	assert.False(t, s.Paused())
}

func TestScheduler_TriggerNow(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		gate := newMemoryGate()
		messenger := &memoryMessenger{}
		s := New(testConfig(t), fakeComposer{}, gate, messenger, nil)
		s.nowFunc = fixedNow(noon)

		result, err := s.TriggerNow(context.Background(), model.TypeNight)
		require.NoError(t, err)
		assert.Equal(t, model.StatusTemplateFallback, result.Status)
		assert.Equal(t, "msg-night", result.Text)
		assert.True(t, gate.IsAlreadySent(context.Background(), noon, model.TypeNight))
	})

	t.Run("second trigger is rejected", func(t *testing.T) {
		gate := newMemoryGate()
		messenger := &memoryMessenger{}
		s := New(testConfig(t), fakeComposer{}, gate, messenger, nil)
		s.nowFunc = fixedNow(noon)

		_, err := s.TriggerNow(context.Background(), model.TypeNight)
		require.NoError(t, err)

		result, err := s.TriggerNow(context.Background(), model.TypeNight)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSkippedAlreadySent, result.Status)
	})

	t.Run("holiday still suppresses", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SkipDates = map[string]struct{}{model.DateKey(noon): {}}
		messenger := &memoryMessenger{}
		s := New(cfg, fakeComposer{}, newMemoryGate(), messenger, nil)
		s.nowFunc = fixedNow(noon)

		result, err := s.TriggerNow(context.Background(), model.TypeMorning)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSkippedHoliday, result.Status)
		assert.Equal(t, 0, messenger.calls)
	})

	t.Run("paused", func(t *testing.T) {
		s := New(testConfig(t), fakeComposer{}, newMemoryGate(), &memoryMessenger{}, nil)
		s.nowFunc = fixedNow(noon)
		s.Pause()

		_, err := s.TriggerNow(context.Background(), model.TypeMorning)
		assert.ErrorIs(t, err, ErrPaused)
	})

	t.Run("send failure is surfaced and recorded", func(t *testing.T) {
		gate := newMemoryGate()
		messenger := &memoryMessenger{fail: true}
		s := New(testConfig(t), fakeComposer{}, gate, messenger, nil)
		s.nowFunc = fixedNow(noon)

		_, err := s.TriggerNow(context.Background(), model.TypeMorning)
		assert.Error(t, err)

		// the failed slot can be claimed again
		assert.True(t, gate.Claim(context.Background(), noon, model.TypeMorning))
	})
}

func TestScheduler_SendCustom(t *testing.T) {
	messenger := &memoryMessenger{}
	s := New(testConfig(t), fakeComposer{}, newMemoryGate(), messenger, nil)
	s.nowFunc = fixedNow(noon)

	t.Run("valid", func(t *testing.T) {
		id, err := s.SendCustom(context.Background(), "miss you")
		require.NoError(t, err)
		assert.Equal(t, "mid-1", id)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := s.SendCustom(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})

	t.Run("too long", func(t *testing.T) {
		long := make([]rune, 51)
		for i := range long {
			long[i] = 'x'
		}
		_, err := s.SendCustom(context.Background(), string(long))
		assert.ErrorIs(t, err, ErrMessageTooLong)
	})
}

func TestScheduler_Plan(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dnd = dndRange(t, "00:30", "02:30") // swallows the whole morning window
	gate := newMemoryGate()
	s := New(cfg, fakeComposer{}, gate, &memoryMessenger{}, nil)
	s.nowFunc = fixedNow(noon)

	plans := s.Plan(context.Background(), noon)
	require.Len(t, plans, 3)

	byType := make(map[model.MessageType]model.DaySlotPlan)
	for _, p := range plans {
		byType[p.Type] = p
	}

	assert.Equal(t, model.SlotSuppressedDnd, byType[model.TypeMorning].Status)
	assert.Equal(t, model.SlotPlanned, byType[model.TypeFlirty].Status)
	assert.Equal(t, model.SlotPlanned, byType[model.TypeNight].Status)

	// recomputing yields identical planned times
	again := s.Plan(context.Background(), noon)
	for i := range plans {
		assert.Equal(t, plans[i].PlannedAt, again[i].PlannedAt)
	}

	t.Run("sent slot shows as sent", func(t *testing.T) {
		require.NoError(t, gate.Record(context.Background(), &model.SentRecord{
			Date:   model.DateKey(noon),
			Slot:   model.TypeFlirty,
			Status: model.RecordSent,
		}))
		plans := s.Plan(context.Background(), noon)
		for _, p := range plans {
			if p.Type == model.TypeFlirty {
				assert.Equal(t, model.SlotSent, p.Status)
			}
		}
	})

	t.Run("holiday suppresses all three", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SkipDates = map[string]struct{}{model.DateKey(noon): {}}
		s := New(cfg, fakeComposer{}, newMemoryGate(), &memoryMessenger{}, nil)
		s.nowFunc = fixedNow(noon)

		for _, p := range s.Plan(context.Background(), noon) {
			assert.Equal(t, model.SlotSuppressedHoliday, p.Status)
		}
	})
}

func TestScheduler_CleanupOldRecords(t *testing.T) {
	cleaner := &countingCleaner{}
	cfg := testConfig(t)
	cfg.RetentionDays = 90
	s := New(cfg, fakeComposer{}, newMemoryGate(), &memoryMessenger{}, cleaner)
	s.nowFunc = fixedNow(noon)

	s.cleanupOldRecords()

	require.Len(t, cleaner.cutoffs, 1)
	assert.Equal(t, noon.AddDate(0, 0, -90).Day(), cleaner.cutoffs[0].Day())
}
