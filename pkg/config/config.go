package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tuncanbit/paylink/pkg/logger"
)

const DefaultPath = "./config.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Payment   PaymentConfig   `yaml:"payment"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Events    EventsConfig    `yaml:"events"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Logger    logger.Config   `yaml:"logger"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
}

type SecurityConfig struct {
	// APIKey protects the POS API. Empty disables the check.
	APIKey string `yaml:"api_key"`
	// WebhookSecret is expected in X-Webhook-Secret on backend callbacks.
	WebhookSecret string `yaml:"webhook_secret"`
}

// PaymentConfig holds the credentials and endpoints of the payment backend.
// ProjectID and APIKey may be left empty: the terminal then runs
// soft-disabled instead of failing to start.
type PaymentConfig struct {
	ProjectID        string        `yaml:"project_id"`
	APIKey           string        `yaml:"api_key"`
	BackendURL       string        `yaml:"backend_url"`
	LinkBaseURL      string        `yaml:"link_base_url"`
	MerchantName     string        `yaml:"merchant_name"`
	TerminalID       string        `yaml:"terminal_id"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
}

type SessionConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	ReapInterval  time.Duration `yaml:"reap_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SubmitRetries int           `yaml:"submit_retries"`
}

type DatabaseConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	DBName          string `yaml:"name"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type EventsConfig struct {
	// Source is one of "kafka", "poll" or "webhook".
	Source       string        `yaml:"source"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	CheckOrigin     bool          `yaml:"check_origin"`
	PingPeriod      time.Duration `yaml:"ping_period"`
}

// WalletConfig selects where the wallet CLI keeps its mnemonic.
type WalletConfig struct {
	// SecretStore is one of "file" or "redis".
	SecretStore string `yaml:"secret_store"`
	SecretFile  string `yaml:"secret_file"`
	SecretKey   string `yaml:"secret_key"`
}

// Load reads an optional .env file and then the YAML config at path.
// An empty path falls back to DefaultPath.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		path = DefaultPath
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	config, err := Parse(configData)
	if err != nil {
		return nil, err
	}
	config.applyEnv()

	return config, nil
}

// LoadOrDefault is Load for tools that may run without a config file: a
// missing file yields the defaults plus the environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	config, err := Load(path)
	if !errors.Is(err, os.ErrNotExist) {
		return config, err
	}

	config, err = Parse(nil)
	if err != nil {
		return nil, err
	}
	config.applyEnv()
	return config, nil
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyEnv lets deployments keep backend credentials out of the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("PAYLINK_PROJECT_ID"); v != "" {
		c.Payment.ProjectID = v
	}
	if v := os.Getenv("PAYLINK_API_KEY"); v != "" {
		c.Payment.APIKey = v
	}
	if v := os.Getenv("PAYLINK_SERVER_API_KEY"); v != "" {
		c.Security.APIKey = v
	}
	if v := os.Getenv("PAYLINK_WEBHOOK_SECRET"); v != "" {
		c.Security.WebhookSecret = v
	}
}

func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Payment.LinkBaseURL == "" {
		c.Payment.LinkBaseURL = "https://pay.example.com"
	}
	if c.Payment.Timeout == 0 {
		c.Payment.Timeout = 15 * time.Second
	}
	if c.Payment.MaxRetries == 0 {
		c.Payment.MaxRetries = 2
	}
	if c.Payment.RetryBackoffBase == 0 {
		c.Payment.RetryBackoffBase = 250 * time.Millisecond
	}
	if c.Session.Timeout == 0 {
		c.Session.Timeout = 5 * time.Minute
	}
	if c.Session.ReapInterval == 0 {
		c.Session.ReapInterval = 30 * time.Second
	}
	if c.Session.StaleAfter == 0 {
		c.Session.StaleAfter = 15 * time.Minute
	}
	if c.Session.SubmitRetries == 0 {
		c.Session.SubmitRetries = 3
	}
	if c.Events.Source == "" {
		c.Events.Source = "webhook"
	}
	if c.Events.PollInterval == 0 {
		c.Events.PollInterval = 2 * time.Second
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "paylink-terminal"
	}
	if c.WebSocket.ReadBufferSize == 0 {
		c.WebSocket.ReadBufferSize = 1024
	}
	if c.WebSocket.WriteBufferSize == 0 {
		c.WebSocket.WriteBufferSize = 1024
	}
	if c.WebSocket.PingPeriod == 0 {
		c.WebSocket.PingPeriod = 54 * time.Second
	}
	if c.Wallet.SecretStore == "" {
		c.Wallet.SecretStore = "file"
	}
	if c.Wallet.SecretFile == "" {
		c.Wallet.SecretFile = "./wallet.secret"
	}
	if c.Wallet.SecretKey == "" {
		c.Wallet.SecretKey = "wallet:mnemonic"
	}
}

func (c *Config) Validate() error {
	switch c.Events.Source {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.New("events.source kafka requires kafka.brokers and kafka.topic")
		}
	case "poll", "webhook":
	default:
		return fmt.Errorf("unknown events.source %q", c.Events.Source)
	}

	switch c.Wallet.SecretStore {
	case "file":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("wallet.secret_store redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown wallet.secret_store %q", c.Wallet.SecretStore)
	}

	if c.Session.Timeout < 0 || c.Session.StaleAfter < 0 {
		return errors.New("session durations must not be negative")
	}
	if c.Session.SubmitRetries < 0 {
		return errors.New("session.submit_retries must not be negative")
	}

	return nil
}
