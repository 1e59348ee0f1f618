package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Database    DatabaseConfig
	Feed        FeedConfig
	Pipeline    PipelineConfig
	Notify      NotifyConfig
	Maintenance MaintenanceConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

type DatabaseConfig struct {
	Host            string `validate:"required"`
	Port            string `validate:"required,numeric"`
	User            string `validate:"required"`
	Password        string
	DBName          string `validate:"required"`
	SSLMode         string `validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int    `validate:"gte=1"`
	ConnMaxLifetime time.Duration
}

// FeedConfig for the National Rail Knowledgebase incidents STOMP feed
type FeedConfig struct {
	Host           string        `validate:"required"`
	Port           string        `validate:"required,numeric"`
	Username       string        `validate:"required"`
	Password       string        `validate:"required"`
	Topic          string        `validate:"required"`
	ClientID       string        `validate:"required"`
	HeartBeat      time.Duration `validate:"gt=0"`
	ConnectRetries int           `validate:"gte=1"`
	ConnectBackoff time.Duration `validate:"gt=0"`
	QueueSize      int           `validate:"gte=1"`
	ArchiveDir     string
}

// PipelineConfig for the polling loop
type PipelineConfig struct {
	PollInterval time.Duration `validate:"gt=0"`
}

// NotifyConfig selects and configures the fan-out channel
type NotifyConfig struct {
	Channel string `validate:"oneof=sns nats discord none"`

	AWSRegion    string
	AWSAccessKey string
	AWSSecretKey string
	SNSTopic     string `validate:"required_if=Channel sns"`

	NATSURL     string `validate:"required_if=Channel nats"`
	NATSSubject string `validate:"required_if=Channel nats"`

	DiscordURL string `validate:"required_if=Channel discord"`

	BreakerTimeout time.Duration `validate:"gt=0"`
}

// MaintenanceConfig for the database watchdog and statistics refresh
type MaintenanceConfig struct {
	HealthInterval  time.Duration `validate:"gt=0"`
	MaxPingFailures int           `validate:"gte=1"`
	AnalyzeInterval time.Duration `validate:"gt=0"`
}

type MetricsConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level      string `validate:"oneof=debug info warn warning error fatal"`
	FilePath   string
	DiscordURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "signalshift"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 4),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Feed: FeedConfig{
			Host:           getEnv("FEED_HOST", "darwin-dist-44ae45.nationalrail.co.uk"),
			Port:           getEnv("FEED_PORT", "61613"),
			Username:       getEnv("FEED_USERNAME", ""),
			Password:       getEnv("FEED_PASSWORD", ""),
			Topic:          getEnv("FEED_TOPIC", "kb.incidents"),
			ClientID:       getEnv("FEED_CLIENT_ID", defaultClientID()),
			HeartBeat:      getDurationEnv("FEED_HEARTBEAT", 15*time.Second),
			ConnectRetries: getIntEnv("FEED_CONNECT_RETRIES", 5),
			ConnectBackoff: getDurationEnv("FEED_CONNECT_BACKOFF", 2*time.Second),
			QueueSize:      getIntEnv("FEED_QUEUE_SIZE", 1000),
			ArchiveDir:     getEnv("FEED_ARCHIVE_DIR", ""),
		},
		Pipeline: PipelineConfig{
			PollInterval: getDurationEnv("POLL_INTERVAL", time.Second),
		},
		Notify: NotifyConfig{
			Channel:        strings.ToLower(getEnv("NOTIFY_CHANNEL", "sns")),
			AWSRegion:      getEnv("AWS_REGION", "eu-west-2"),
			AWSAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
			AWSSecretKey:   getEnv("AWS_SECRET_KEY", ""),
			SNSTopic:       getEnv("SNS_TOPIC", ""),
			NATSURL:        getEnv("NATS_URL", ""),
			NATSSubject:    getEnv("NATS_SUBJECT", "incidents.alerts"),
			DiscordURL:     getEnv("NOTIFY_DISCORD_URL", ""),
			BreakerTimeout: getDurationEnv("NOTIFY_BREAKER_TIMEOUT", time.Minute),
		},
		Maintenance: MaintenanceConfig{
			HealthInterval:  getDurationEnv("DB_HEALTH_INTERVAL", 30*time.Second),
			MaxPingFailures: getIntEnv("DB_MAX_PING_FAILURES", 3),
			AnalyzeInterval: getDurationEnv("DB_ANALYZE_INTERVAL", 24*time.Hour),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9102"),
		},
		Logging: LoggingConfig{
			Level:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
			FilePath:   getEnv("LOG_FILE", "incidents.log"),
			DiscordURL: getEnv("LOG_DISCORD_URL", ""),
		},
	}

	return cfg, nil
}

// Validate checks every section against its struct tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Validate checks only the database section, for tools that never touch the feed
func (c *DatabaseConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Address returns host:port of the STOMP broker
func (c *FeedConfig) Address() string {
	return c.Host + ":" + c.Port
}

// Destination returns the STOMP destination for the configured topic
func (c *FeedConfig) Destination() string {
	if strings.HasPrefix(c.Topic, "/") {
		return c.Topic
	}
	return "/topic/" + c.Topic
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "signalshift-incidents"
	}
	return host
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
