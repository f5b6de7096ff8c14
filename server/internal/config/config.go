package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 6662
	DefaultWSPath          = "/ws"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultAuthHeader      = "x-api-key"
	DefaultSendBuffer      = 64
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPongWait        = 60 * time.Second
	DefaultMaxMessageBytes = 4096
	DefaultRatePerSecond   = 20
	DefaultRateBurst       = 40
	DefaultPollInterval    = 2 * time.Second
	DefaultBatchSize       = 100
	DefaultExchange        = "ee"
	DefaultBindingKey      = "#"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, metrics and WebSocket endpoint listen on.
	HTTPPort int `yaml:"http_port"`

	// WSPath is the single WebSocket endpoint path (default "/ws").
	WSPath string `yaml:"ws_path"`

	Log  LogConfig  `yaml:"log"`
	Auth AuthConfig `yaml:"auth"`
	Hub  HubConfig  `yaml:"hub"`
	Feed FeedConfig `yaml:"feed"`
}

// LogConfig selects the slog handler and minimum level. Level may be changed
// by hot reload; Format is fixed at startup.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig controls API key authentication on the REST ingest endpoint.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// HubConfig tunes per-connection buffers, deadlines and limits.
type HubConfig struct {
	// SendBuffer is the per-connection outbound queue depth. A full queue drops
	// the frame for that connection only.
	SendBuffer int `yaml:"send_buffer"`

	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PongWait        time.Duration `yaml:"pong_wait"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`

	// AllowedOrigins restricts the Origin header on upgrade. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is the inbound token bucket applied to each connection.
// A MessagesPerSecond of 0 disables limiting.
type RateLimitConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// FeedConfig enables the built-in event producers.
type FeedConfig struct {
	Postgres PostgresFeedConfig `yaml:"postgres"`
	AMQP     AMQPFeedConfig     `yaml:"amqp"`
}

// PostgresFeedConfig configures the indexer table poller.
type PostgresFeedConfig struct {
	Enabled      bool          `yaml:"enabled"`
	DSNEnv       string        `yaml:"dsn_env"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// DSN returns the connection string resolved from the environment.
func (p PostgresFeedConfig) DSN() string {
	if p.DSNEnv == "" {
		return ""
	}
	return os.Getenv(p.DSNEnv)
}

// AMQPFeedConfig configures the topic-exchange consumer.
type AMQPFeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URLEnv  string `yaml:"url_env"`

	// Exchange is declared as a durable topic exchange.
	Exchange string `yaml:"exchange"`

	// Queue is the queue to bind. Empty requests a server-named exclusive queue.
	Queue      string `yaml:"queue"`
	BindingKey string `yaml:"binding_key"`
}

// URL returns the broker URL resolved from the environment.
func (a AMQPFeedConfig) URL() string {
	if a.URLEnv == "" {
		return ""
	}
	return os.Getenv(a.URLEnv)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			WSPath:   DefaultWSPath,
			Log: LogConfig{
				Level:  DefaultLogLevel,
				Format: DefaultLogFormat,
			},
			Auth: AuthConfig{
				Mode:   "none",
				KeyEnv: "LIVEFEED_API_KEY",
			},
			Hub: HubConfig{
				SendBuffer:      DefaultSendBuffer,
				WriteTimeout:    DefaultWriteTimeout,
				PongWait:        DefaultPongWait,
				MaxMessageBytes: DefaultMaxMessageBytes,
				RateLimit: RateLimitConfig{
					MessagesPerSecond: DefaultRatePerSecond,
					Burst:             DefaultRateBurst,
				},
			},
			Feed: FeedConfig{
				Postgres: PostgresFeedConfig{
					DSNEnv:       "DATABASE_URL",
					PollInterval: DefaultPollInterval,
					BatchSize:    DefaultBatchSize,
				},
				AMQP: AMQPFeedConfig{
					URLEnv:     "AMQP_URL",
					Exchange:   DefaultExchange,
					BindingKey: DefaultBindingKey,
				},
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if !strings.HasPrefix(s.WSPath, "/") {
		return fmt.Errorf("server.ws_path %q must begin with /", s.WSPath)
	}

	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", s.Log.Level)
	}
	switch strings.ToLower(s.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("server.log.format %q unknown: want json|text", s.Log.Format)
	}

	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}

	h := s.Hub
	if h.SendBuffer <= 0 {
		return fmt.Errorf("server.hub.send_buffer must be positive")
	}
	if h.WriteTimeout <= 0 {
		return fmt.Errorf("server.hub.write_timeout must be positive")
	}
	if h.PongWait <= 0 {
		return fmt.Errorf("server.hub.pong_wait must be positive")
	}
	if h.MaxMessageBytes <= 0 {
		return fmt.Errorf("server.hub.max_message_bytes must be positive")
	}
	if h.RateLimit.MessagesPerSecond < 0 || h.RateLimit.Burst < 0 {
		return fmt.Errorf("server.hub.rate_limit must not be negative")
	}
	if h.RateLimit.MessagesPerSecond > 0 && h.RateLimit.Burst == 0 {
		return fmt.Errorf("server.hub.rate_limit.burst must be positive when a rate is set")
	}

	if pg := s.Feed.Postgres; pg.Enabled {
		if pg.PollInterval <= 0 {
			return fmt.Errorf("server.feed.postgres.poll_interval must be positive")
		}
		if pg.BatchSize <= 0 {
			return fmt.Errorf("server.feed.postgres.batch_size must be positive")
		}
	}
	if mq := s.Feed.AMQP; mq.Enabled && mq.Exchange == "" {
		return fmt.Errorf("server.feed.amqp.exchange must not be empty")
	}
	return nil
}
