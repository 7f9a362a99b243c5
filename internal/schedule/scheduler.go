package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/bubuagent/bubu-agent/pkg/prom"
	"github.com/bubuagent/bubu-agent/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

var (
	ErrPaused          = errors.New("scheduler is paused")
	ErrEmptyMessage    = errors.New("message text is empty")
	ErrMessageTooLong  = errors.New("message text exceeds the length limit")
	ErrSlotUnavailable = errors.New("slot already claimed or delivered")
)

// Composer renders message text. It never errors; failures surface as
// fallback statuses inside the result.
type Composer interface {
	Compose(ctx context.Context, t model.MessageType, date time.Time) model.MessageResult
	Preview(t model.MessageType, date time.Time) model.MessageResult
}

// Gate serializes sends per (date, slot).
type Gate interface {
	IsAlreadySent(ctx context.Context, date time.Time, slot model.MessageType) bool
	Claim(ctx context.Context, date time.Time, slot model.MessageType) bool
	Record(ctx context.Context, rec *model.SentRecord) error
}

// Messenger delivers the composed text.
type Messenger interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Cleaner prunes old sent records.
type Cleaner interface {
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	Windows       map[model.MessageType]model.ScheduleWindow
	Dnd           model.DndRange
	SkipDates     map[string]struct{}
	Location      *time.Location
	Recipient     string
	MaxCustomLen  int
	RetentionDays int
}

// Scheduler runs one timer line per message type. Each line plans today's
// slot, fires it (or catches up if the process started late), then arms the
// next calendar day. Fires are re-gated at fire time: plan state may have
// changed since arming.
type Scheduler struct {
	config    Config
	composer  Composer
	gate      Gate
	messenger Messenger
	cleaner   Cleaner

	workers *worker.WorkerManager[dispatchJob]
	cron    *cron.Cron
	paused  atomic.Bool
	nowFunc func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type dispatchJob struct {
	slot    model.MessageType
	date    time.Time
	planned time.Time
}

func New(config Config, composer Composer, gate Gate, messenger Messenger, cleaner Cleaner) *Scheduler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.MaxCustomLen <= 0 {
		config.MaxCustomLen = 300
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 90
	}
	return &Scheduler{
		config:    config,
		composer:  composer,
		gate:      gate,
		messenger: messenger,
		cleaner:   cleaner,
		workers:   worker.NewWorkerManager[dispatchJob](16, len(model.AllTypes()), nil),
		cron:      cron.New(cron.WithLocation(config.Location)),
		nowFunc:   time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the timer lines, the dispatch workers and the maintenance
// cron jobs. Non-blocking.
func (s *Scheduler) Start() {
	s.workers.SetWorker(func(workerIndex int, job dispatchJob) {
		s.dispatch(context.Background(), job.slot, job.date)
	})
	go s.workers.Start() //nolint:errcheck

	// 00:05 plan log for the fresh day, Sunday 02:00 record cleanup
	s.cron.AddFunc("5 0 * * *", s.logTodayPlan) //nolint:errcheck
	if s.cleaner != nil {
		s.cron.AddFunc("0 2 * * 0", s.cleanupOldRecords) //nolint:errcheck
	}
	s.cron.Start()

	for _, t := range model.AllTypes() {
		s.wg.Add(1)
		go s.slotLoop(t)
	}

	logger.Info("Scheduler started",
		"types", len(model.AllTypes()),
		"timezone", s.config.Location.String())
}

// Stop shuts the timer lines down. In-flight dispatches on the worker pool
// are left to finish; a claim without a record is tolerated as the
// documented crash-recovery window.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cron.Stop()
		s.workers.Exit()
	})
	s.wg.Wait()
	logger.Info("Scheduler stopped")
}

func (s *Scheduler) Pause() {
	s.paused.Store(true)
	logger.Info("Scheduler paused")
}

func (s *Scheduler) Resume() {
	s.paused.Store(false)
	logger.Info("Scheduler resumed")
}

func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

func (s *Scheduler) now() time.Time {
	return s.nowFunc().In(s.config.Location)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// slotLoop is one timer line. Day by day: compute the plan, wait for the
// planned time (zero wait when starting late, that is the startup catch-up),
// fire, then move to the next calendar day.
func (s *Scheduler) slotLoop(t model.MessageType) {
	defer s.wg.Done()

	day := startOfDay(s.now(), s.config.Location)
	for {
		planned := ComputeSlot(day, t, s.config.Windows[t], s.config.Location)

		if planned.After(s.now()) {
			logger.Info("Slot armed", "slot", t, "planned_at", planned.Format(time.RFC3339))
			if !s.sleepUntil(planned) {
				return
			}
		}
		s.fire(t, day, planned)

		day = day.AddDate(0, 0, 1)
		if !s.sleepUntil(day) {
			return
		}
	}
}

// sleepUntil blocks until the target wall time or shutdown. The wait is
// re-evaluated hourly so clock adjustments do not stretch a day.
func (s *Scheduler) sleepUntil(target time.Time) bool {
	for {
		d := target.Sub(s.now())
		if d <= 0 {
			return true
		}
		if d > time.Hour {
			d = time.Hour
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-s.stopCh:
			timer.Stop()
			return false
		}
	}
}

// fire re-gates a due slot and, when admitted, claims it and hands the
// blocking compose/send work to the worker pool so other timer lines keep
// scheduling.
func (s *Scheduler) fire(t model.MessageType, day, planned time.Time) {
	ctx := context.Background()

	if s.paused.Load() {
		logger.Info("Skipping slot, scheduler paused", "slot", t, "date", model.DateKey(day))
		return
	}

	decision := Admit(planned, t, s.config.Dnd, s.config.SkipDates, day)
	if decision != Allow {
		logger.Info("Slot suppressed", "slot", t, "date", model.DateKey(day), "reason", decision.String())
		return
	}

	if s.gate.IsAlreadySent(ctx, day, t) {
		logger.Info("Slot already delivered", "slot", t, "date", model.DateKey(day))
		return
	}
	if !s.gate.Claim(ctx, day, t) {
		logger.Info("Slot claim lost", "slot", t, "date", model.DateKey(day))
		return
	}

	s.workers.Enqueue(dispatchJob{slot: t, date: day, planned: planned})
}

// dispatch composes, sends, and records the outcome for a claimed slot.
func (s *Scheduler) dispatch(ctx context.Context, t model.MessageType, day time.Time) (model.MessageResult, error) {
	result := s.composer.Compose(ctx, t, day)
	if result.Status.Skipped() {
		logger.Info("Dispatch skipped by composer", "slot", t, "date", model.DateKey(day), "status", result.Status)
		return result, nil
	}

	rec := &model.SentRecord{
		Date: model.DateKey(day),
		Slot: t,
		Text: result.Text,
	}

	providerID, err := s.messenger.Send(ctx, s.config.Recipient, result.Text)
	if err != nil {
		rec.Status = model.RecordFailed
		logger.Error("Send failed", "slot", t, "date", model.DateKey(day), "error", err)
	} else {
		now := s.now()
		rec.Status = model.RecordSent
		rec.ProviderID = &providerID
		rec.SentAt = &now
	}

	s.gate.Record(ctx, rec) //nolint:errcheck
	prom.IncMessageSent(t.String(), string(rec.Status))

	if err != nil {
		return result, errors.Wrap(err, "send message")
	}
	logger.Info("Message dispatched",
		"slot", t,
		"date", model.DateKey(day),
		"status", result.Status,
		"provider_message_id", providerID)
	return result, nil
}

// Plan reports the day's slots with their current status.
func (s *Scheduler) Plan(ctx context.Context, date time.Time) []model.DaySlotPlan {
	day := startOfDay(date.In(s.config.Location), s.config.Location)
	plans := make([]model.DaySlotPlan, 0, len(model.AllTypes()))

	for _, t := range model.AllTypes() {
		planned := ComputeSlot(day, t, s.config.Windows[t], s.config.Location)
		status := model.SlotPlanned
		switch Admit(planned, t, s.config.Dnd, s.config.SkipDates, day) {
		case SuppressHoliday:
			status = model.SlotSuppressedHoliday
		case SuppressDnd:
			status = model.SlotSuppressedDnd
		default:
			if s.gate.IsAlreadySent(ctx, day, t) {
				status = model.SlotSent
			}
		}
		plans = append(plans, model.DaySlotPlan{
			Date:      day,
			Type:      t,
			PlannedAt: planned,
			Status:    status,
		})
	}
	return plans
}

// Preview renders the day's deterministic fallback text without claiming or
// sending.
func (s *Scheduler) Preview(t model.MessageType, date time.Time) model.MessageResult {
	return s.composer.Preview(t, startOfDay(date.In(s.config.Location), s.config.Location))
}

// TriggerNow dispatches a slot immediately, bypassing the window but not the
// holiday check, the pause flag or the idempotency gate.
func (s *Scheduler) TriggerNow(ctx context.Context, t model.MessageType) (model.MessageResult, error) {
	if s.paused.Load() {
		return model.MessageResult{}, ErrPaused
	}

	day := startOfDay(s.now(), s.config.Location)
	if _, ok := s.config.SkipDates[model.DateKey(day)]; ok {
		return model.MessageResult{Status: model.StatusSkippedHoliday}, nil
	}
	if s.gate.IsAlreadySent(ctx, day, t) {
		return model.MessageResult{Status: model.StatusSkippedAlreadySent}, nil
	}
	if !s.gate.Claim(ctx, day, t) {
		return model.MessageResult{}, ErrSlotUnavailable
	}

	return s.dispatch(ctx, t, day)
}

// SendCustom delivers a one-off message outside the daily slots. No claim is
// taken; custom sends are additive and never block the day's scheduled ones.
func (s *Scheduler) SendCustom(ctx context.Context, text string) (string, error) {
	if s.paused.Load() {
		return "", ErrPaused
	}
	if len([]rune(text)) == 0 {
		return "", ErrEmptyMessage
	}
	if len([]rune(text)) > s.config.MaxCustomLen {
		return "", ErrMessageTooLong
	}
	return s.messenger.Send(ctx, s.config.Recipient, text)
}

func (s *Scheduler) logTodayPlan() {
	for _, p := range s.Plan(context.Background(), s.now()) {
		logger.Info("Plan for today",
			"slot", p.Type,
			"planned_at", p.PlannedAt.Format(time.RFC3339),
			"status", p.Status)
	}
}

func (s *Scheduler) cleanupOldRecords() {
	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	deleted, err := s.cleaner.CleanupOlderThan(context.Background(), cutoff)
	if err != nil {
		logger.Error("Record cleanup failed", "error", err)
		return
	}
	logger.Info("Old records cleaned up", "deleted", deleted, "cutoff", model.DateKey(cutoff))
}
