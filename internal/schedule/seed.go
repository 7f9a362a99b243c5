package schedule

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/bubuagent/bubu-agent/internal/model"
)

// Tags for cross-type seeded choices. Message types themselves are used as
// tags for per-type choices.
const (
	TagCloser = "closer"
	TagQuote  = "quote"
	TagCheesy = "cheesy"
)

// Seed derives a deterministic seed from a calendar date and a tag. The same
// (date, tag) pair always yields the same seed, regardless of process
// restarts or call order. Wall clock, pid and external entropy never feed in.
func Seed(date time.Time, tag string) int64 {
	h := fnv.New64a()
	h.Write([]byte(model.DateKey(date)))
	h.Write([]byte("|"))
	h.Write([]byte(tag))
	return int64(h.Sum64())
}

// Seeded returns a fresh generator for (date, tag). Callers get independent
// generator instances, so concurrent use from different seeds never
// interferes; two call sites seeded identically produce identical sequences.
func Seeded(date time.Time, tag string) *rand.Rand {
	return rand.New(rand.NewSource(Seed(date, tag)))
}
