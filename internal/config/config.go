package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"outreach@talentreach.dev"`
	SenderName   string `envconfig:"SENDER_NAME" default:"TalentReach"`

	// ----------------------------
	// Dispatch
	// ----------------------------
	DispatchInterval time.Duration `envconfig:"DISPATCH_INTERVAL" default:"1m"`
	BatchSize        int           `envconfig:"BATCH_SIZE" default:"10"`
	RetryAttempts    int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryDelay       time.Duration `envconfig:"RETRY_DELAY" default:"2s"`
	RateLimit        int           `envconfig:"RATE_LIMIT" default:"10"`

	// Local hours; messages outside the window wait for a later cycle.
	WindowStartHour int `envconfig:"WINDOW_START_HOUR" default:"9"`
	WindowEndHour   int `envconfig:"WINDOW_END_HOUR" default:"17"`

	// Rows stuck in sending longer than this get re-armed.
	StaleSendingAfter time.Duration `envconfig:"STALE_SENDING_AFTER" default:"15m"`

	// ----------------------------
	// Follow-up
	// ----------------------------
	FollowupTemplate   string `envconfig:"FOLLOWUP_TEMPLATE" default:"followup_outreach"`
	FollowupOffsetDays int    `envconfig:"FOLLOWUP_OFFSET_DAYS" default:"3"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// ----------------------------
	// Events (optional; sent events are dropped when unset)
	// ----------------------------
	AMQPURL string `envconfig:"AMQP_URL" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
