package generator

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned when the model did not answer within the
	// configured generation deadline.
	ErrTimeout = errors.New("text generation timed out")

	// ErrEmpty is returned when the model answered with no usable text.
	ErrEmpty = errors.New("generator returned empty text")
)

// Generator produces message text from a system/user prompt pair. A single
// attempt per call; the caller decides what a failure falls back to.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
