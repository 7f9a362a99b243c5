package fixtures

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bubuagent/bubu-agent/internal/config"
	"github.com/bubuagent/bubu-agent/internal/model"
)

// TestDay is a fixed date used across deterministic tests.
var TestDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

const (
	TestRecipientName   = "Priya"
	TestRecipientNumber = "+919876543210"
	TestFlirtyTone      = "playful"
)

// ContentYAML is a minimal but complete content file covering all three
// message types.
const ContentYAML = `general:
  max_message_length: 300
  max_emojis: 5
  truncation_marker: "..."

windows:
  morning:
    start: "06:45"
    end: "09:30"
    jitter_minutes: 20
  flirty:
    start: "12:00"
    end: "17:30"
    jitter_minutes: 20
  night:
    start: "21:30"
    end: "23:30"
    jitter_minutes: 20

dnd:
  start: "23:45"
  end: "06:30"

prompt_templates:
  morning:
    system: "You write short good-morning messages for {GF_NAME}."
    user: "Write a warm good morning message that ends with {closer}."
  flirty:
    system: "You write short {DAILY_FLIRTY_TONE} messages for {GF_NAME}."
    user: "Write a flirty midday message that ends with {closer}."
  night:
    system: "You write short good-night messages for {GF_NAME}."
    user: "Write a calm good night message that ends with {closer}."

fallback_templates:
  morning:
    - "Good morning {GF_NAME}! Hope your day sparkles. {closer}"
    - "Rise and shine {GF_NAME}! {closer}"
  flirty:
    - "Hey {GF_NAME}, thinking about you right now. {closer}"
    - "You make my afternoon better just by existing, {GF_NAME}. {closer}"
  night:
    - "Good night {GF_NAME}, sleep well. {closer}"
    - "Sweet dreams {GF_NAME}. {closer}"

signature_closers:
  - "- your bubu"
  - "- always yours"

bollywood_quotes:
  - "Kuch kuch hota hai, tum nahi samjhoge"

cheesy_lines:
  - "Are you a magician? Because whenever I look at you, everyone else disappears."

forbidden_topics:
  - '\b(money|crypto|investment)\b'
  - '\b(medicine|doctor|hospital)\b'
`

// LoadTestContent writes ContentYAML to a temp file and parses it.
func LoadTestContent(t *testing.T) *config.Content {
	path := filepath.Join(t.TempDir(), "content.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ContentYAML), 0o600))

	content, err := config.LoadContent(path)
	require.NoError(t, err)
	return content
}

func NewSentRecord(date time.Time, slot model.MessageType, status model.RecordStatus) *model.SentRecord {
	now := date.Add(8 * time.Hour)
	providerID := "fixture-provider-id"
	return &model.SentRecord{
		Date:       model.DateKey(date),
		Slot:       slot,
		Text:       "fixture message",
		Status:     status,
		ProviderID: &providerID,
		SentAt:     &now,
	}
}
