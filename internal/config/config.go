package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	defaultTokenEnv    = "DOCINTEL_TOKEN"
	defaultMaxFailures = 60
)

// Config represents the complete application configuration
type Config struct {
	App     AppConfig     `yaml:"app"`
	Logging LoggingConfig `yaml:"logging"`
	Client  ClientConfig  `yaml:"client"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Chat    ChatConfig    `yaml:"chat"`
	Backend BackendConfig `yaml:"backend"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// ClientConfig holds the job API client settings
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// TokenEnv names the environment variable holding the bearer token
	TokenEnv string `yaml:"token_env"`
}

// JobsConfig holds tracker settings
type JobsConfig struct {
	MaxFailures    int             `yaml:"max_failures"`
	FailureWindow  time.Duration   `yaml:"failure_window"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	Intervals      IntervalsConfig `yaml:"intervals"`
}

// IntervalsConfig overrides the poll interval per job type. Zero keeps the
// built-in interval.
type IntervalsConfig struct {
	PdfAnalysis     time.Duration `yaml:"pdf_analysis"`
	VideoGeneration time.Duration `yaml:"video_generation"`
	YoutubeAnalysis time.Duration `yaml:"youtube_analysis"`
	ChatFollowup    time.Duration `yaml:"chat_followup"`
}

// ChatConfig holds chat controller settings
type ChatConfig struct {
	Overlap bool `yaml:"overlap"`
}

// BackendConfig holds the stub backend configuration
type BackendConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     string          `yaml:"store"`    // memory, postgres
	Dispatch  string          `yaml:"dispatch"` // inprocess, rabbitmq
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds bearer token verification settings. An empty secret
// disables authentication.
type AuthConfig struct {
	Secret    string `yaml:"secret"`
	SecretEnv string `yaml:"secret_env"`
	Issuer    string `yaml:"issuer"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// SimulatorConfig drives the fake job pipeline of the stub backend
type SimulatorConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	StepInterval time.Duration `yaml:"step_interval"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	// FailMarker makes a job fail when its payload contains it
	FailMarker string `yaml:"fail_marker"`
	// Credits is the starting balance of every user; each finished job
	// costs one. Zero means unlimited.
	Credits int `yaml:"credits"`
	// NoCredits lists users that start with an empty balance
	NoCredits []string `yaml:"no_credits"`
	// DeferKeywords make a chat query go through a follow-up job
	DeferKeywords []string `yaml:"defer_keywords"`
}

// Load reads and parses the configuration file and applies defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills in every unset field that has a sensible default
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}

	if c.Client.Timeout <= 0 {
		c.Client.Timeout = 30 * time.Second
	}
	if c.Client.TokenEnv == "" {
		c.Client.TokenEnv = defaultTokenEnv
	}
	if c.Jobs.MaxFailures <= 0 {
		c.Jobs.MaxFailures = defaultMaxFailures
	}

	s := &c.Backend.Server
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = 10 * time.Second
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 10 * time.Second
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = 60 * time.Second
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = 15 * time.Second
	}

	if c.Backend.Store == "" {
		c.Backend.Store = "memory"
	}
	if c.Backend.Dispatch == "" {
		c.Backend.Dispatch = "inprocess"
	}
	if c.Backend.Auth.SecretEnv == "" {
		c.Backend.Auth.SecretEnv = "DOCINTEL_JWT_SECRET"
	}

	sim := &c.Backend.Simulator
	if sim.Concurrency <= 0 {
		sim.Concurrency = 4
	}
	if sim.StepInterval <= 0 {
		sim.StepInterval = time.Second
	}
	if sim.JobTimeout <= 0 {
		sim.JobTimeout = 5 * time.Minute
	}
	if sim.FailMarker == "" {
		sim.FailMarker = "fail"
	}
	if len(sim.DeferKeywords) == 0 {
		sim.DeferKeywords = []string{"analyze", "analyse", "summarize"}
	}

	mq := &c.Backend.RabbitMQ
	if mq.Exchange.Type == "" {
		mq.Exchange.Type = "direct"
	}
	if mq.Connection.RetryAttempts <= 0 {
		mq.Connection.RetryAttempts = 5
	}
	if mq.Connection.RetryInterval <= 0 {
		mq.Connection.RetryInterval = 2 * time.Second
	}
	if mq.Consumer.PrefetchCount <= 0 {
		mq.Consumer.PrefetchCount = sim.Concurrency
	}
}

// ValidateClientConfig checks the settings used by the command-line client
func (c *Config) ValidateClientConfig() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client base_url is required")
	}

	u, err := url.Parse(c.Client.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid client base_url: %q", c.Client.BaseURL)
	}

	if c.Jobs.MaxFailures <= 0 {
		return fmt.Errorf("jobs max_failures must be greater than 0")
	}

	if c.Jobs.FailureWindow < 0 {
		return fmt.Errorf("jobs failure_window must not be negative")
	}

	if c.Jobs.RequestTimeout < 0 {
		return fmt.Errorf("jobs request_timeout must not be negative")
	}

	return nil
}

// ValidateBackendConfig checks the settings used by the stub backend
func (c *Config) ValidateBackendConfig() error {
	b := &c.Backend

	if b.Server.Port < MinPort || b.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", b.Server.Port, MinPort, MaxPort)
	}

	switch b.Store {
	case "memory":
	case "postgres":
		if b.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if b.Database.Port < MinPort || b.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", b.Database.Port, MinPort, MaxPort)
		}
		if b.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unknown store: %q", b.Store)
	}

	switch b.Dispatch {
	case "inprocess":
	case "rabbitmq":
		if b.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if b.RabbitMQ.Port < MinPort || b.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", b.RabbitMQ.Port, MinPort, MaxPort)
		}
		if b.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
		if b.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
	default:
		return fmt.Errorf("unknown dispatch: %q", b.Dispatch)
	}

	if b.Simulator.Concurrency <= 0 {
		return fmt.Errorf("simulator concurrency must be greater than 0")
	}

	if b.Simulator.StepInterval <= 0 {
		return fmt.Errorf("simulator step_interval must be greater than 0")
	}

	return nil
}

// SigningSecret returns the configured signing secret, falling back to the
// environment variable named by SecretEnv
func (a AuthConfig) SigningSecret() string {
	if a.Secret != "" {
		return a.Secret
	}
	if a.SecretEnv == "" {
		return ""
	}
	return os.Getenv(a.SecretEnv)
}
