package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/valyala/fasthttp"
)

type HFConfig struct {
	APIURL       string
	APIKey       string
	ModelID      string
	Timeout      time.Duration
	MaxNewTokens int
	Temperature  float64
	TopP         float64
}

func DefaultHFConfig() HFConfig {
	return HFConfig{
		APIURL:       "https://api-inference.huggingface.co",
		Timeout:      30 * time.Second,
		MaxNewTokens: 150,
		Temperature:  0.8,
		TopP:         0.9,
	}
}

// HFGenerator calls the Hugging Face inference API.
type HFGenerator struct {
	config HFConfig
	client *fasthttp.Client
}

func NewHFGenerator(config HFConfig) *HFGenerator {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxNewTokens <= 0 {
		config.MaxNewTokens = 150
	}
	return &HFGenerator{
		config: config,
		client: &fasthttp.Client{
			MaxConnsPerHost:     4,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
	}
}

type hfMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type hfRequest struct {
	Inputs     []hfMessage  `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText bool    `json:"return_full_text"`
}

func (g *HFGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := hfRequest{
		Inputs: []hfMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Parameters: hfParameters{
			MaxNewTokens:   g.config.MaxNewTokens,
			Temperature:    g.config.Temperature,
			TopP:           g.config.TopP,
			DoSample:       true,
			ReturnFullText: false,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimSuffix(g.config.APIURL, "/") + "/models/" + g.config.ModelID)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	req.SetBody(body)

	deadline := time.Now().Add(g.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	if err := g.client.DoDeadline(req, resp, deadline); err != nil {
		if err == fasthttp.ErrTimeout || ctx.Err() == context.DeadlineExceeded {
			logger.Warn("Text generation timed out", "model", g.config.ModelID, "timeout", g.config.Timeout)
			return "", ErrTimeout
		}
		return "", fmt.Errorf("generation request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	text := extractGeneratedText(resp.Body())
	if text == "" {
		logger.Warn("No text in generation response", "model", g.config.ModelID)
		return "", ErrEmpty
	}

	logger.Info("Text generation successful",
		"model", g.config.ModelID,
		"text_length", len(text),
		"latency_ms", time.Since(start).Milliseconds())

	return text, nil
}

// extractGeneratedText handles the two response shapes the inference API
// produces: the classic [{"generated_text": ...}] list and the chat
// completion {"choices": [{"message": {"content": ...}}]} object.
func extractGeneratedText(body []byte) string {
	var list []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0].GeneratedText)
	}

	var chat struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &chat); err == nil && len(chat.Choices) > 0 {
		return strings.TrimSpace(chat.Choices[0].Message.Content)
	}

	return ""
}
