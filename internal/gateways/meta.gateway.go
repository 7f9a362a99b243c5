package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

type MetaConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	Timeout       time.Duration
}

// MetaGateway sends WhatsApp messages through the Meta Cloud API.
type MetaGateway struct {
	config  MetaConfig
	client  *fasthttp.Client
	metrics *ProviderMetrics
}

func NewMetaGateway(config MetaConfig) *MetaGateway {
	if config.BaseURL == "" {
		config.BaseURL = "https://graph.facebook.com/v18.0"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &MetaGateway{
		config:  config,
		client:  newHTTPClient(config.Timeout),
		metrics: NewProviderMetrics(),
	}
}

func (g *MetaGateway) Name() string { return "meta" }

func (g *MetaGateway) Metrics() *ProviderMetrics { return g.metrics }

type metaSendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             metaText `json:"text"`
}

type metaText struct {
	Body string `json:"body"`
}

func (g *MetaGateway) Send(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(metaSendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             metaText{Body: body},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal meta request")
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(g.config.BaseURL + "/" + g.config.PhoneNumberID + "/messages")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+g.config.AccessToken)
	req.SetBody(payload)

	logger.Info("Sending WhatsApp message via Meta", "to", MaskPhone(to), "body_length", len(body))

	start := time.Now()
	statusCode, respBody, err := doRequest(ctx, g.client, g.config.Timeout, req)
	if err != nil {
		g.metrics.RecordFailure()
		return "", errors.Wrap(ErrProviderUnavailable, err.Error())
	}
	if statusCode != fasthttp.StatusOK {
		g.metrics.RecordFailure()
		logger.Error("Failed to send WhatsApp message via Meta",
			"status_code", statusCode, "to", MaskPhone(to))
		return "", classifySendError(statusCode)
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		g.metrics.RecordFailure()
		return "", errors.Wrap(err, "unmarshal meta response")
	}

	messageID := ""
	if len(result.Messages) > 0 {
		messageID = result.Messages[0].ID
	}

	g.metrics.RecordSuccess(time.Since(start).Milliseconds())
	logger.Info("WhatsApp message sent via Meta", "to", MaskPhone(to), "message_id", messageID)
	return messageID, nil
}

func (g *MetaGateway) Available(ctx context.Context) bool {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(g.config.BaseURL + "/" + g.config.PhoneNumberID)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", "Bearer "+g.config.AccessToken)

	statusCode, _, err := doRequest(ctx, g.client, g.config.Timeout, req)
	return err == nil && statusCode == fasthttp.StatusOK
}
