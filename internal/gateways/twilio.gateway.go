package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	Timeout    time.Duration
}

// TwilioGateway sends WhatsApp messages through the Twilio REST API.
type TwilioGateway struct {
	config  TwilioConfig
	client  *fasthttp.Client
	metrics *ProviderMetrics
	auth    string
}

func NewTwilioGateway(config TwilioConfig) *TwilioGateway {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.twilio.com"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &TwilioGateway{
		config:  config,
		client:  newHTTPClient(config.Timeout),
		metrics: NewProviderMetrics(),
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(config.AccountSID+":"+config.AuthToken)),
	}
}

func (g *TwilioGateway) Name() string { return "twilio" }

func (g *TwilioGateway) Metrics() *ProviderMetrics { return g.metrics }

func (g *TwilioGateway) Send(ctx context.Context, to, body string) (string, error) {
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}
	from := g.config.From
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}

	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(g.config.BaseURL + "/2010-04-01/Accounts/" + g.config.AccountSID + "/Messages.json")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("Authorization", g.auth)
	req.SetBodyString(form.Encode())

	logger.Info("Sending WhatsApp message via Twilio",
		"to", MaskPhone(to), "from", MaskPhone(from), "body_length", len(body))

	start := time.Now()
	statusCode, respBody, err := doRequest(ctx, g.client, g.config.Timeout, req)
	if err != nil {
		g.metrics.RecordFailure()
		return "", errors.Wrap(ErrProviderUnavailable, err.Error())
	}
	if statusCode != fasthttp.StatusCreated {
		g.metrics.RecordFailure()
		logger.Error("Failed to send WhatsApp message via Twilio",
			"status_code", statusCode, "to", MaskPhone(to))
		return "", classifySendError(statusCode)
	}

	var result struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		g.metrics.RecordFailure()
		return "", errors.Wrap(err, "unmarshal twilio response")
	}

	g.metrics.RecordSuccess(time.Since(start).Milliseconds())
	logger.Info("WhatsApp message sent via Twilio",
		"to", MaskPhone(to), "message_sid", result.SID, "status", result.Status)
	return result.SID, nil
}

func (g *TwilioGateway) Available(ctx context.Context) bool {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(g.config.BaseURL + "/2010-04-01/Accounts/" + g.config.AccountSID + ".json")
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", g.auth)

	statusCode, _, err := doRequest(ctx, g.client, g.config.Timeout, req)
	return err == nil && statusCode == fasthttp.StatusOK
}
