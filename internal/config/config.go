package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StreamConfig selects and tunes the message bus.
type StreamConfig struct {
	Driver                  string
	Brokers                 []string
	GroupID                 string
	NATSURL                 string
	NATSStream              string
	MetricsTopic            string
	AlertsTopic             string
	NotificationsTopic      string
	MaxConcurrentOperations int
	PollTimeout             time.Duration
	AcquireTimeout          time.Duration
	ShutdownGrace           time.Duration
}

// HistoryConfig selects the metric history backend.
type HistoryConfig struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// AlertingConfig holds the decision engine thresholds.
type AlertingConfig struct {
	AlertThresholdPercent   float64
	WarningThresholdPercent float64
	WarningBoundaryPercent  float64
	AlertTimeout            time.Duration
	WarningTimeout          time.Duration
	HistoryTTL              time.Duration
	IndicatorsFile          string
	Indicators              Indicators
}

// DeliveryConfig tunes the queue processor and retry executor.
type DeliveryConfig struct {
	MaxRetryAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	SendTimeout      time.Duration
	PollInterval     time.Duration
	Concurrency      int
	AlertRecipient   string
	AlertChannel     string
	AlertTemplate    string
}

type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	Username   string
	Password   string
	FromName   string
}

type TelegramConfig struct {
	BotToken  string
	RateLimit int
}

type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type PushConfig struct {
	GatewayURL string
	Token      string
}

type LoggingConfig struct {
	Dir        string
	Level      string
	Format     string
	MaxSizeMB  int
	MaxBackups int
}

// Config holds application configuration loaded from environment.
type Config struct {
	Stream   StreamConfig
	History  HistoryConfig
	Alerting AlertingConfig
	Delivery DeliveryConfig
	DB       struct {
		DSN string
	}
	Email    EmailConfig
	Telegram TelegramConfig
	SMS      SMSConfig
	Push     PushConfig
	API      struct {
		Port     string
		BasePath string
	}
	Logging LoggingConfig
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	envFile := getString("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load %s file: %w", envFile, err)
	}

	var cfg Config
	var bad []string

	// Stream settings
	cfg.Stream.Driver = strings.ToLower(getString("STREAM_DRIVER", "kafka"))
	cfg.Stream.Brokers = getList("KAFKA_BROKERS")
	cfg.Stream.GroupID = getString("KAFKA_GROUP_ID", "monitoring-service")
	cfg.Stream.NATSURL = getString("NATS_URL", "nats://127.0.0.1:4222")
	cfg.Stream.NATSStream = getString("NATS_STREAM", "MONITORING")
	cfg.Stream.MetricsTopic = getString("TOPIC_METRICS", "patient_metrics")
	cfg.Stream.AlertsTopic = getString("TOPIC_ALERTS", "alert_events")
	cfg.Stream.NotificationsTopic = getString("TOPIC_NOTIFICATIONS", "notification_requests")
	cfg.Stream.MaxConcurrentOperations = getInt("MAX_CONCURRENT_OPERATIONS", 5, &bad)
	cfg.Stream.PollTimeout = getMillis("STREAM_POLL_TIMEOUT_MS", 1000, &bad)
	cfg.Stream.AcquireTimeout = getMillis("STREAM_ACQUIRE_TIMEOUT_MS", 5000, &bad)
	cfg.Stream.ShutdownGrace = time.Duration(getInt("SHUTDOWN_GRACE_SECONDS", 10, &bad)) * time.Second

	// Metric history
	cfg.History.Driver = strings.ToLower(getString("HISTORY_DRIVER", "redis"))
	cfg.History.RedisAddr = getString("REDIS_ADDR", "127.0.0.1:6379")
	cfg.History.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.History.RedisDB = getInt("REDIS_DB", 0, &bad)

	// Decision engine
	cfg.Alerting.AlertThresholdPercent = getFloat("ALERT_THRESHOLD_PERCENT", 20, &bad)
	cfg.Alerting.WarningThresholdPercent = getFloat("WARNING_THRESHOLD_PERCENT", 10, &bad)
	cfg.Alerting.WarningBoundaryPercent = getFloat("WARNING_BOUNDARY_PERCENT", 5, &bad)
	cfg.Alerting.AlertTimeout = time.Duration(getInt("ALERT_TIMEOUT_MINUTES", 5, &bad)) * time.Minute
	cfg.Alerting.WarningTimeout = time.Duration(getInt("WARNING_TIMEOUT_MINUTES", 10, &bad)) * time.Minute
	cfg.Alerting.HistoryTTL = time.Duration(getInt("HISTORY_TTL_HOURS", 24, &bad)) * time.Hour
	cfg.Alerting.IndicatorsFile = os.Getenv("INDICATORS_FILE")

	// Delivery
	cfg.Delivery.MaxRetryAttempts = getInt("MAX_RETRY_ATTEMPTS", 3, &bad)
	cfg.Delivery.RetryBaseDelay = getMillis("RETRY_BASE_DELAY_MS", 200, &bad)
	cfg.Delivery.RetryMaxDelay = getMillis("RETRY_MAX_DELAY_MS", 5000, &bad)
	cfg.Delivery.SendTimeout = time.Duration(getInt("SEND_TIMEOUT_SECONDS", 10, &bad)) * time.Second
	cfg.Delivery.PollInterval = getMillis("QUEUE_POLL_INTERVAL_MS", 200, &bad)
	cfg.Delivery.Concurrency = getInt("DELIVERY_CONCURRENCY", 4, &bad)
	cfg.Delivery.AlertRecipient = os.Getenv("ALERT_RECIPIENT")
	cfg.Delivery.AlertChannel = getString("ALERT_CHANNEL", "telegram")
	cfg.Delivery.AlertTemplate = os.Getenv("ALERT_TEMPLATE")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Channels
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = getInt("EMAIL_SMTP_PORT", 587, &bad)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = getString("EMAIL_FROM_NAME", "Patient Monitoring")
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.RateLimit = getInt("TELEGRAM_RATE_LIMIT", 25, &bad)
	cfg.SMS.AccountSID = os.Getenv("SMS_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("SMS_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("SMS_FROM_NUMBER")
	cfg.Push.GatewayURL = os.Getenv("PUSH_GATEWAY_URL")
	cfg.Push.Token = os.Getenv("PUSH_GATEWAY_TOKEN")

	// API settings
	cfg.API.Port = getString("API_PORT", ":9191")
	cfg.API.BasePath = getString("API_BASE_PATH", "/api/v0")

	// Logging
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = getString("LOG_LEVEL", "info")
	cfg.Logging.Format = getString("LOG_FORMAT", "text")
	cfg.Logging.MaxSizeMB = getInt("LOG_MAX_SIZE_MB", 50, &bad)
	cfg.Logging.MaxBackups = getInt("LOG_MAX_BACKUPS", 5, &bad)

	if len(bad) > 0 {
		return Config{}, fmt.Errorf("invalid numeric configurations: %v", bad)
	}

	// Validate required settings
	missing := []string{}
	switch cfg.Stream.Driver {
	case "kafka":
		if len(cfg.Stream.Brokers) == 0 {
			missing = append(missing, "KAFKA_BROKERS")
		}
	case "nats":
		if cfg.Stream.NATSURL == "" {
			missing = append(missing, "NATS_URL")
		}
	default:
		return Config{}, fmt.Errorf("unsupported STREAM_DRIVER %q", cfg.Stream.Driver)
	}
	if cfg.History.Driver != "redis" && cfg.History.Driver != "memory" {
		return Config{}, fmt.Errorf("unsupported HISTORY_DRIVER %q", cfg.History.Driver)
	}
	if cfg.Delivery.AlertRecipient == "" {
		missing = append(missing, "ALERT_RECIPIENT")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	if err := cfg.validateRanges(); err != nil {
		return Config{}, err
	}

	indicators := DefaultIndicators()
	if cfg.Alerting.IndicatorsFile != "" {
		loaded, err := LoadIndicators(cfg.Alerting.IndicatorsFile)
		if err != nil {
			return Config{}, err
		}
		indicators = loaded
	}
	cfg.Alerting.Indicators = indicators

	return cfg, nil
}

func (c Config) validateRanges() error {
	switch {
	case c.Alerting.WarningThresholdPercent >= c.Alerting.AlertThresholdPercent:
		return fmt.Errorf("WARNING_THRESHOLD_PERCENT must be below ALERT_THRESHOLD_PERCENT")
	case c.Alerting.WarningBoundaryPercent < 0:
		return fmt.Errorf("WARNING_BOUNDARY_PERCENT must not be negative")
	case c.Alerting.AlertTimeout <= 0 || c.Alerting.WarningTimeout <= 0:
		return fmt.Errorf("alert and warning timeouts must be positive")
	case c.Delivery.MaxRetryAttempts < 1:
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1")
	case c.Delivery.Concurrency < 1:
		return fmt.Errorf("DELIVERY_CONCURRENCY must be at least 1")
	case c.Stream.MaxConcurrentOperations < 1:
		return fmt.Errorf("MAX_CONCURRENT_OPERATIONS must be at least 1")
	case c.Delivery.PollInterval <= 0 || c.Stream.PollTimeout <= 0 || c.Stream.AcquireTimeout <= 0:
		return fmt.Errorf("poll and acquire intervals must be positive")
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, def int, bad *[]string) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*bad = append(*bad, key)
		return def
	}
	return v
}

func getFloat(key string, def float64, bad *[]string) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*bad = append(*bad, key)
		return def
	}
	return v
}

func getMillis(key string, def int, bad *[]string) time.Duration {
	return time.Duration(getInt(key, def, bad)) * time.Millisecond
}
