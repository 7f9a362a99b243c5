package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/bubuagent/bubu-agent/pkg/redis"
)

// Storage is the durable half of the gate. The UNIQUE(date, slot) constraint
// behind TryClaim is what makes a claim exclusive across processes.
type Storage interface {
	Exists(ctx context.Context, date time.Time, slot model.MessageType) (bool, error)
	TryClaim(ctx context.Context, date time.Time, slot model.MessageType) (bool, error)
	Commit(ctx context.Context, rec *model.SentRecord) error
}

type Config struct {
	LockTTL       time.Duration
	LockKeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		LockTTL:       2 * time.Minute,
		LockKeyPrefix: "claim:",
	}
}

// Gate guarantees at most one successful send per day and slot. Reads fail
// open, the claim is atomic, and the final record is written exactly once
// per dispatch attempt.
type Gate struct {
	storage Storage
	locks   redis.RedisAdapter
	config  Config
}

// New builds a gate. locks may be nil; the redis fence is an optional
// fast path in front of the database claim, not a correctness requirement.
func New(storage Storage, locks redis.RedisAdapter, config Config) *Gate {
	return &Gate{
		storage: storage,
		locks:   locks,
		config:  config,
	}
}

// IsAlreadySent reports whether the slot was already delivered today.
func (g *Gate) IsAlreadySent(ctx context.Context, date time.Time, slot model.MessageType) bool {
	sent, err := g.storage.Exists(ctx, date, slot)
	if err != nil {
		logger.Warn("Failed to check sent status", "date", model.DateKey(date), "slot", slot, "error", err)
		// Continue even if the check fails - better to risk a duplicate than miss a day
		return false
	}
	return sent
}

// Claim marks the slot as in flight. Exactly one caller wins; a concurrent
// startup catch-up and timer fire for the same slot cannot both pass.
func (g *Gate) Claim(ctx context.Context, date time.Time, slot model.MessageType) bool {
	if g.locks != nil {
		lockKey := g.lockKey(date, slot)
		lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))

		acquired, err := g.locks.SetNX(lockKey, lockValue, g.config.LockTTL)
		if err != nil {
			// the database claim below still serializes, keep going
			logger.Warn("Failed to acquire claim lock", "date", model.DateKey(date), "slot", slot, "error", err)
		} else if !acquired {
			logger.Info("Claim lock already held", "date", model.DateKey(date), "slot", slot)
			return false
		}
	}

	claimed, err := g.storage.TryClaim(ctx, date, slot)
	if err != nil {
		logger.Error("Failed to claim slot", "date", model.DateKey(date), "slot", slot, "error", err)
		// claim is best effort on storage outage, proceed without protection
		return true
	}
	if !claimed {
		logger.Info("Slot already claimed or delivered", "date", model.DateKey(date), "slot", slot)
	}
	return claimed
}

// Record persists the dispatch outcome for a previously claimed slot.
// Write failures are loud: the caller logs and carries on, the claim row
// stays behind as the crash-recovery marker.
func (g *Gate) Record(ctx context.Context, rec *model.SentRecord) error {
	if err := g.storage.Commit(ctx, rec); err != nil {
		logger.Error("Failed to record dispatch outcome",
			"date", rec.Date,
			"slot", rec.Slot,
			"status", rec.Status,
			"error", err)
		return err
	}

	// drop the fence after a failure so the slot can be claimed again
	if g.locks != nil && rec.Status == model.RecordFailed {
		date, err := time.Parse(model.DateLayout, rec.Date)
		if err == nil {
			if err := g.locks.Del(g.lockKey(date, rec.Slot)); err != nil {
				logger.Warn("Failed to release claim lock", "date", rec.Date, "slot", rec.Slot, "error", err)
			}
		}
	}
	return nil
}

func (g *Gate) lockKey(date time.Time, slot model.MessageType) string {
	return g.config.LockKeyPrefix + model.DateKey(date) + ":" + slot.String()
}
