package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

var config *Config

// Supported WhatsApp providers.
const (
	ProviderUltramsg = "ultramsg"
	ProviderMeta     = "meta"
	ProviderTwilio   = "twilio"
	ProviderMock     = "mock"
)

// Config holds all environment-sourced settings. Only this struct must be
// used to read configuration values, no direct access to env or any other
// config source should be made.
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"bubu_agent"`
	AppDebug            bool   `env:"APP_DEBUG" default:"1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`

	Enabled  bool   `env:"ENABLED" default:"true"`
	Timezone string `env:"TIMEZONE" default:"Asia/Kolkata"`

	RecipientName   string `env:"GF_NAME"`
	RecipientNumber string `env:"GF_WHATSAPP_NUMBER"`
	SenderNumber    string `env:"SENDER_WHATSAPP_NUMBER"`
	DailyFlirtyTone string `env:"DAILY_FLIRTY_TONE" default:"playful"`

	// Comma-separated YYYY-MM-DD dates on which no messages fire.
	SkipDates string `env:"SKIP_DATES"`

	HTTPListenAddr string `env:"HTTP_LISTEN_ADDR" default:":8000"`
	APIBearerToken string `env:"API_BEARER_TOKEN"`

	ContentPath string `env:"CONTENT_PATH" default:"content.yaml"`

	WhatsappProvider string `env:"WHATSAPP_PROVIDER" default:"ultramsg"`

	TwilioAccountSID   string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken    string `env:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsappFrom string `env:"TWILIO_WHATSAPP_FROM"`

	MetaAccessToken   string `env:"META_ACCESS_TOKEN"`
	MetaPhoneNumberID string `env:"META_PHONE_NUMBER_ID"`

	UltramsgAPIKey     string `env:"ULTRAMSG_API_KEY"`
	UltramsgInstanceID string `env:"ULTRAMSG_INSTANCE_ID"`

	ProviderBaseURL string        `env:"PROVIDER_BASE_URL"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" default:"30s"`

	HFAPIURL          string        `env:"HF_API_URL" default:"https://api-inference.huggingface.co"`
	HFAPIKey          string        `env:"HF_API_KEY"`
	HFModelID         string        `env:"HF_MODEL_ID" default:"microsoft/DialoGPT-medium"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" default:"30s"`

	DBDriver string `env:"DB_DRIVER" default:"sqlite"`
	DBPath   string `env:"DB_PATH" default:"bubu_agent.db"`

	PostgresHost     string `env:"POSTGRES_HOST"`
	PostgresPort     string `env:"POSTGRES_PORT"`
	PostgresUser     string `env:"POSTGRES_USER"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDatabase string `env:"POSTGRES_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE" default:"bubu"`

	LogLevel []string `env:"LOG_LEVEL"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	if err := c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func (c *Config) validate() error {
	switch c.WhatsappProvider {
	case ProviderUltramsg, ProviderMeta, ProviderTwilio, ProviderMock:
	default:
		return errors.Errorf("unsupported whatsapp provider %q", c.WhatsappProvider)
	}
	switch c.DailyFlirtyTone {
	case "playful", "romantic", "witty":
	default:
		return errors.Errorf("daily flirty tone must be playful, romantic or witty, got %q", c.DailyFlirtyTone)
	}
	if c.RecipientNumber != "" && !strings.HasPrefix(c.RecipientNumber, "+") {
		return errors.New("GF_WHATSAPP_NUMBER must be in E.164 format (start with +)")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported db driver %q", c.DBDriver)
	}
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// SkipDatesSet parses SKIP_DATES into a set keyed by model.DateKey.
// Malformed entries are skipped.
func (c *Config) SkipDatesSet() map[string]struct{} {
	set := make(map[string]struct{})
	if c.SkipDates == "" {
		return set
	}
	for _, s := range strings.Split(c.SkipDates, ",") {
		s = strings.TrimSpace(s)
		if _, err := time.Parse(model.DateLayout, s); err != nil {
			logger.Warn("skipping malformed skip date", "value", s)
			continue
		}
		set[s] = struct{}{}
	}
	return set
}
