package composer

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bubuagent/bubu-agent/internal/config"
	"github.com/bubuagent/bubu-agent/internal/generator"
	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/internal/schedule"
	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/bubuagent/bubu-agent/pkg/prom"
)

// emojiPattern covers the common emoji blocks: emoticons, pictographs,
// transport symbols, flags and dingbats. A run of adjacent emojis counts
// as one.
var emojiPattern = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2702}-\x{27B0}\x{24C2}-\x{1F251}]+`)

const defaultCloser = "- bubu"

// Gate is the pre-send idempotency check the composer consults before
// spending a generation attempt.
type Gate interface {
	IsAlreadySent(ctx context.Context, date time.Time, slot model.MessageType) bool
}

type Composer struct {
	content       *config.Content
	gen           generator.Generator
	gate          Gate
	recipientName string
	flirtyTone    string
	genTimeout    time.Duration
}

func New(content *config.Content, gen generator.Generator, gate Gate, recipientName, flirtyTone string, genTimeout time.Duration) *Composer {
	if genTimeout <= 0 {
		genTimeout = 30 * time.Second
	}
	return &Composer{
		content:       content,
		gen:           gen,
		gate:          gate,
		recipientName: recipientName,
		flirtyTone:    flirtyTone,
		genTimeout:    genTimeout,
	}
}

// Compose turns (type, date) into final message text. It never returns an
// error and never panics: any unanticipated failure inside the pipeline is
// absorbed into an emergency fallback message.
func (c *Composer) Compose(ctx context.Context, t model.MessageType, date time.Time) (result model.MessageResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Compose pipeline panicked, using emergency fallback",
				"slot", t, "date", model.DateKey(date), "panic", r)
			result = model.MessageResult{
				Text:   c.emergencyMessage(),
				Status: model.StatusErrorFallback,
			}
		}
	}()

	if c.gate != nil && c.gate.IsAlreadySent(ctx, date, t) {
		logger.Info("Message already sent for this date and slot", "date", model.DateKey(date), "slot", t)
		return model.MessageResult{Status: model.StatusSkippedAlreadySent}
	}

	closer := c.signatureCloser(date)

	gen := c.generate(ctx, t, date, closer)
	if gen.Outcome == model.GenOK {
		if text, ok := c.validateAndClean(gen.Text, closer); ok {
			return model.MessageResult{Text: text, Status: model.StatusAIGenerated}
		}
		logger.Warn("Generated message failed validation, using fallback", "slot", t, "date", model.DateKey(date))
	} else {
		logger.Warn("Generation did not produce text, using fallback",
			"slot", t, "date", model.DateKey(date), "outcome", gen.Outcome)
	}

	return model.MessageResult{
		Text:   c.fallbackMessage(t, date, closer),
		Status: model.StatusTemplateFallback,
	}
}

// Preview renders the deterministic fallback for (type, date) without
// consulting the gate or spending a generation attempt.
func (c *Composer) Preview(t model.MessageType, date time.Time) (result model.MessageResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Preview panicked, using emergency fallback", "slot", t, "panic", r)
			result = model.MessageResult{
				Text:   c.emergencyMessage(),
				Status: model.StatusErrorFallback,
			}
		}
	}()
	return model.MessageResult{
		Text:   c.fallbackMessage(t, date, c.signatureCloser(date)),
		Status: model.StatusTemplateFallback,
	}
}

// generate performs the single bounded AI attempt.
func (c *Composer) generate(ctx context.Context, t model.MessageType, date time.Time, closer string) model.GenerationResult {
	system, user := c.content.PromptTemplate(t)
	if system == "" || user == "" {
		logger.Warn("Missing prompt templates for message type", "slot", t)
		prom.IncGenerationOutcome(t.String(), string(model.GenMissingPrompt))
		return model.GenerationResult{Outcome: model.GenMissingPrompt}
	}

	replacer := strings.NewReplacer(
		"{GF_NAME}", c.recipientName,
		"{DAILY_FLIRTY_TONE}", c.flirtyTone,
		"{closer}", closer,
	)
	system = replacer.Replace(system)
	user = replacer.Replace(user)

	genCtx, cancel := context.WithTimeout(ctx, c.genTimeout)
	defer cancel()

	start := time.Now()
	text, err := c.gen.Generate(genCtx, system, user)
	prom.ObserveGenerationDuration(time.Since(start).Seconds(), t.String())

	var result model.GenerationResult
	switch {
	case err == nil && strings.TrimSpace(text) == "":
		result = model.GenerationResult{Outcome: model.GenEmpty}
	case err == nil:
		result = model.GenerationResult{Outcome: model.GenOK, Text: text}
	case errors.Is(err, generator.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		result = model.GenerationResult{Outcome: model.GenTimeout}
	case errors.Is(err, generator.ErrEmpty):
		result = model.GenerationResult{Outcome: model.GenEmpty}
	default:
		logger.Warn("Generation attempt failed", "slot", t, "error", err)
		result = model.GenerationResult{Outcome: model.GenException}
	}
	prom.IncGenerationOutcome(t.String(), string(result.Outcome))
	return result
}

// validateAndClean normalizes generated text and enforces the content
// limits. Returns false when the text is unusable and the caller must fall
// back to a template.
func (c *Composer) validateAndClean(text, closer string) (string, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", false
	}

	// avoid a doubled signature when the model echoes the closer
	if strings.Contains(text, closer) {
		text = strings.TrimSpace(strings.ReplaceAll(text, closer, ""))
	}
	text = text + " " + closer

	for _, re := range c.content.ForbiddenTopics() {
		if re.MatchString(text) {
			return "", false
		}
	}

	text = stripExcessEmojis(text, c.content.MaxEmojis())
	text = truncate(text, c.content.MaxMessageLength(), c.content.TruncationMarker())
	return strings.TrimSpace(text), true
}

// fallbackMessage deterministically selects and formats a template for the
// day. The same (type, date) always renders the same text.
func (c *Composer) fallbackMessage(t model.MessageType, date time.Time, closer string) string {
	templates := c.content.FallbackTemplates(t)
	if len(templates) == 0 {
		return c.emergencyMessage()
	}

	rng := schedule.Seeded(date, t.String())
	template := templates[rng.Intn(len(templates))]

	message := strings.NewReplacer(
		"{GF_NAME}", c.recipientName,
		"{closer}", closer,
	).Replace(template)

	// occasionally fold in a quote or a cheesy line, from the same seeded
	// stream so the day's rendition stays stable
	if rng.Float64() < 0.2 {
		quote := c.bollywoodQuote(date)
		cheesy := c.cheesyLine(date)
		if quote != "" && rng.Float64() < 0.5 {
			message = strings.Replace(message, closer, "💕 '"+quote+"' "+closer, 1)
		} else if cheesy != "" {
			message = strings.Replace(message, closer, cheesy+" "+closer, 1)
		}
	}

	return truncate(message, c.content.MaxMessageLength(), c.content.TruncationMarker())
}

func (c *Composer) signatureCloser(date time.Time) string {
	closers := c.content.SignatureClosers()
	if len(closers) == 0 {
		return defaultCloser
	}
	rng := schedule.Seeded(date, schedule.TagCloser)
	return closers[rng.Intn(len(closers))]
}

func (c *Composer) bollywoodQuote(date time.Time) string {
	quotes := c.content.BollywoodQuotes()
	if len(quotes) == 0 {
		return ""
	}
	rng := schedule.Seeded(date, schedule.TagQuote)
	return quotes[rng.Intn(len(quotes))]
}

func (c *Composer) cheesyLine(date time.Time) string {
	lines := c.content.CheesyLines()
	if len(lines) == 0 {
		return ""
	}
	rng := schedule.Seeded(date, schedule.TagCheesy)
	return lines[rng.Intn(len(lines))]
}

func (c *Composer) emergencyMessage() string {
	if c.recipientName != "" {
		return "Hello " + c.recipientName + "! Thinking of you ❤️"
	}
	return "Hello! Thinking of you ❤️"
}

// stripExcessEmojis removes emoji runs beyond max, starting from the end of
// the text.
func stripExcessEmojis(text string, max int) string {
	locs := emojiPattern.FindAllStringIndex(text, -1)
	if len(locs) <= max {
		return text
	}
	for i := len(locs) - 1; i >= max; i-- {
		text = text[:locs[i][0]] + text[locs[i][1]:]
	}
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// truncate caps text at max characters, preferring a word boundary when one
// sits close enough to the cut.
func truncate(text string, max int, marker string) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	cut := runes[:max-len([]rune(marker))]
	boundary := -1
	for i, r := range cut {
		if r == ' ' {
			boundary = i
		}
	}
	if boundary > int(float64(max)*0.8) {
		cut = cut[:boundary]
	}
	return string(cut) + marker
}
