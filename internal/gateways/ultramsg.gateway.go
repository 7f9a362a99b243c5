package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

type UltramsgConfig struct {
	APIKey     string
	InstanceID string
	BaseURL    string
	Timeout    time.Duration
}

// UltramsgGateway sends WhatsApp messages through the Ultramsg API.
type UltramsgGateway struct {
	config  UltramsgConfig
	client  *fasthttp.Client
	metrics *ProviderMetrics
}

func NewUltramsgGateway(config UltramsgConfig) *UltramsgGateway {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.ultramsg.com"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &UltramsgGateway{
		config:  config,
		client:  newHTTPClient(config.Timeout),
		metrics: NewProviderMetrics(),
	}
}

func (g *UltramsgGateway) Name() string { return "ultramsg" }

func (g *UltramsgGateway) Metrics() *ProviderMetrics { return g.metrics }

func (g *UltramsgGateway) Send(ctx context.Context, to, body string) (string, error) {
	to = strings.TrimPrefix(to, "whatsapp:")
	if !strings.HasPrefix(to, "+") {
		to = "+" + to
	}

	payload, err := json.Marshal(map[string]string{
		"token": g.config.APIKey,
		"to":    to,
		"body":  body,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal ultramsg request")
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(g.config.BaseURL + "/" + g.config.InstanceID + "/messages/chat")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	logger.Info("Sending WhatsApp message via Ultramsg", "to", MaskPhone(to), "body_length", len(body))

	start := time.Now()
	statusCode, respBody, err := doRequest(ctx, g.client, g.config.Timeout, req)
	if err != nil {
		g.metrics.RecordFailure()
		return "", errors.Wrap(ErrProviderUnavailable, err.Error())
	}
	if statusCode != fasthttp.StatusOK {
		g.metrics.RecordFailure()
		logger.Error("Failed to send WhatsApp message via Ultramsg",
			"status_code", statusCode, "to", MaskPhone(to))
		return "", classifySendError(statusCode)
	}

	var result struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		g.metrics.RecordFailure()
		return "", errors.Wrap(err, "unmarshal ultramsg response")
	}

	g.metrics.RecordSuccess(time.Since(start).Milliseconds())
	logger.Info("WhatsApp message sent via Ultramsg", "to", MaskPhone(to), "message_id", result.ID.String())
	return result.ID.String(), nil
}

func (g *UltramsgGateway) Available(ctx context.Context) bool {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(g.config.BaseURL + "/" + g.config.InstanceID + "/instance/connectionState?token=" + g.config.APIKey)
	req.Header.SetMethod(fasthttp.MethodGet)

	statusCode, _, err := doRequest(ctx, g.client, g.config.Timeout, req)
	return err == nil && statusCode == fasthttp.StatusOK
}
