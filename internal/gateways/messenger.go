package gateway

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bubuagent/bubu-agent/internal/config"
	"github.com/valyala/fasthttp"
)

var (
	ErrProviderUnavailable = errors.New("whatsapp provider unavailable")
	ErrInvalidRecipient    = errors.New("invalid recipient")
	ErrRateLimited         = errors.New("rate limited by provider")
)

// Messenger sends one WhatsApp text message. No retry happens at this
// level; failures are surfaced and recorded by the caller.
type Messenger interface {
	Send(ctx context.Context, to, body string) (providerMessageID string, err error)
	Available(ctx context.Context) bool
	Name() string
}

// ProviderMetrics tracks request outcomes for the health endpoint.
type ProviderMetrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	LastLatencyMs    atomic.Int64
	ConsecutiveFails atomic.Int32
	LastErrorTime    atomic.Int64
	LastSuccessTime  atomic.Int64
}

func NewProviderMetrics() *ProviderMetrics {
	return &ProviderMetrics{}
}

func (m *ProviderMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.LastLatencyMs.Store(latencyMs)
	m.ConsecutiveFails.Store(0)
	m.LastSuccessTime.Store(time.Now().Unix())
}

func (m *ProviderMetrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	m.ConsecutiveFails.Add(1)
	m.LastErrorTime.Store(time.Now().Unix())
}

func (m *ProviderMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

// NewMessenger builds the provider selected by configuration. Credentials
// are validated here so a misconfigured provider fails at startup, not at
// the first send.
func NewMessenger(cfg *config.Config) (Messenger, error) {
	switch cfg.WhatsappProvider {
	case config.ProviderUltramsg:
		if cfg.UltramsgAPIKey == "" || cfg.UltramsgInstanceID == "" {
			return nil, errors.New("ultramsg provider requires ULTRAMSG_API_KEY and ULTRAMSG_INSTANCE_ID")
		}
		return NewUltramsgGateway(UltramsgConfig{
			APIKey:     cfg.UltramsgAPIKey,
			InstanceID: cfg.UltramsgInstanceID,
			BaseURL:    cfg.ProviderBaseURL,
			Timeout:    cfg.ProviderTimeout,
		}), nil
	case config.ProviderMeta:
		if cfg.MetaAccessToken == "" || cfg.MetaPhoneNumberID == "" {
			return nil, errors.New("meta provider requires META_ACCESS_TOKEN and META_PHONE_NUMBER_ID")
		}
		return NewMetaGateway(MetaConfig{
			AccessToken:   cfg.MetaAccessToken,
			PhoneNumberID: cfg.MetaPhoneNumberID,
			BaseURL:       cfg.ProviderBaseURL,
			Timeout:       cfg.ProviderTimeout,
		}), nil
	case config.ProviderTwilio:
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioWhatsappFrom == "" {
			return nil, errors.New("twilio provider requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_FROM")
		}
		return NewTwilioGateway(TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioWhatsappFrom,
			BaseURL:    cfg.ProviderBaseURL,
			Timeout:    cfg.ProviderTimeout,
		}), nil
	case config.ProviderMock:
		return NewMockGateway(), nil
	default:
		return nil, errors.New("unsupported whatsapp provider: " + cfg.WhatsappProvider)
	}
}

// MaskPhone hides all but the last four digits so recipient numbers never
// land in logs verbatim.
func MaskPhone(number string) string {
	number = strings.TrimPrefix(number, "whatsapp:")
	if len(number) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

func newHTTPClient(timeout time.Duration) *fasthttp.Client {
	return &fasthttp.Client{
		MaxConnsPerHost:     4,
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxIdleConnDuration: 60 * time.Second,
	}
}

// doRequest performs an HTTP request honoring the earlier of the context
// deadline and the provider timeout. Returns the status code and a copy of
// the response body.
func doRequest(ctx context.Context, client *fasthttp.Client, timeout time.Duration, req *fasthttp.Request) (int, []byte, error) {
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, err
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return resp.StatusCode(), body, nil
}

// classifySendError maps provider status codes onto the send error taxonomy.
func classifySendError(statusCode int) error {
	switch {
	case statusCode == fasthttp.StatusTooManyRequests:
		return ErrRateLimited
	case statusCode >= 400 && statusCode < 500:
		return ErrInvalidRecipient
	default:
		return ErrProviderUnavailable
	}
}
