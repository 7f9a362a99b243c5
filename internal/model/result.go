package model

// GenerationOutcome classifies a single AI generation attempt.
type GenerationOutcome string

const (
	GenOK            GenerationOutcome = "ok"
	GenMissingPrompt GenerationOutcome = "missing_prompt"
	GenEmpty         GenerationOutcome = "empty"
	GenTimeout       GenerationOutcome = "timeout"
	GenException     GenerationOutcome = "exception"
)

// GenerationResult carries the generated text iff Outcome is GenOK.
type GenerationResult struct {
	Outcome GenerationOutcome
	Text    string
}

// ComposeStatus is the terminal state of one compose invocation. Exactly one
// is reached per call.
type ComposeStatus string

const (
	StatusAIGenerated        ComposeStatus = "ai_generated"
	StatusTemplateFallback   ComposeStatus = "template_fallback"
	StatusErrorFallback      ComposeStatus = "error_fallback"
	StatusSkippedDnd         ComposeStatus = "skipped_dnd"
	StatusSkippedAlreadySent ComposeStatus = "skipped_already_sent"
	StatusSkippedHoliday     ComposeStatus = "skipped_holiday"
)

// Skipped reports whether the status means no text should be dispatched.
func (s ComposeStatus) Skipped() bool {
	switch s {
	case StatusSkippedDnd, StatusSkippedAlreadySent, StatusSkippedHoliday:
		return true
	}
	return false
}

// MessageResult is the output of the compose pipeline.
type MessageResult struct {
	Text   string        `json:"text"`
	Status ComposeStatus `json:"status"`
}
