package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractGeneratedText(t *testing.T) {
	t.Run("list shape", func(t *testing.T) {
		body := []byte(`[{"generated_text": "  good morning sunshine  "}]`)
		assert.Equal(t, "good morning sunshine", extractGeneratedText(body))
	})

	t.Run("chat completion shape", func(t *testing.T) {
		body := []byte(`{"choices":[{"message":{"role":"assistant","content":"sleep well"}}]}`)
		assert.Equal(t, "sleep well", extractGeneratedText(body))
	})

	t.Run("empty list", func(t *testing.T) {
		assert.Equal(t, "", extractGeneratedText([]byte(`[]`)))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.Equal(t, "", extractGeneratedText([]byte(`{"error":"model loading"}`)))
	})
}
