package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Client   ClientConfig   `mapstructure:"client"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Session  SessionConfig  `mapstructure:"session"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ClientConfig configures the chat client's backend access
type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SaveRetries    int           `mapstructure:"save_retries"`
	Locale         string        `mapstructure:"locale"`
}

// StreamConfig configures streamed reply consumption
type StreamConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	ReadBuffer  int           `mapstructure:"read_buffer"`
	StrictUTF8  bool          `mapstructure:"strict_utf8"`
}

// SessionConfig selects where the current user is kept between runs
type SessionConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Key        string `mapstructure:"key"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// StreamRateLimit caps streaming requests per client and minute; zero
	// disables limiting, otherwise Redis holds the counters
	StreamRateLimit int `mapstructure:"stream_rate_limit"`
	StreamBurst     int `mapstructure:"stream_burst"`
}

// DatabaseConfig configures the development backend's Postgres store.
// An empty host selects the in-memory store.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Enabled reports whether a Postgres store is configured
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

type LLMConfig struct {
	DefaultProvider string          `mapstructure:"default_provider"`
	Echo            EchoConfig      `mapstructure:"echo"`
	Ollama          OllamaConfig    `mapstructure:"ollama"`
	OpenAI          OpenAIConfig    `mapstructure:"openai"`
	DeepSeek        OpenAIConfig    `mapstructure:"deepseek"`
	Anthropic       AnthropicConfig `mapstructure:"anthropic"`
	Gemini          GeminiConfig    `mapstructure:"gemini"`
}

type EchoConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

type OllamaConfig struct {
	Host         string `mapstructure:"host"`
	DefaultModel string `mapstructure:"default_model"`
}

// OpenAIConfig also covers OpenAI-compatible endpoints via BaseURL
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type LoggingConfig struct {
	Level        string        `mapstructure:"level"`
	Format       string        `mapstructure:"format"`
	File         string        `mapstructure:"file"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	return LoadFile(configPath)
}

// LoadFile reads configuration from the given file, falling back to
// defaults and environment variables when the file does not exist
func LoadFile(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Session.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("invalid session backend %q (want sqlite or redis)", c.Session.Backend)
	}
	if c.Stream.IdleTimeout < 0 {
		return fmt.Errorf("stream idle timeout must not be negative")
	}
	if c.Client.SaveRetries < 0 {
		return fmt.Errorf("save retries must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Client
	v.SetDefault("client.base_url", "http://localhost:8088")
	v.SetDefault("client.request_timeout", "30s")
	v.SetDefault("client.save_retries", 2)
	v.SetDefault("client.locale", "zh-CN")

	// Stream
	v.SetDefault("stream.idle_timeout", "60s")
	v.SetDefault("stream.read_buffer", 4096)
	v.SetDefault("stream.strict_utf8", false)

	// Session
	v.SetDefault("session.backend", "sqlite")
	v.SetDefault("session.sqlite_path", "./streamchat.db")
	v.SetDefault("session.key", "currentUser")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.handler_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.stream_rate_limit", 0)
	v.SetDefault("server.stream_burst", 5)

	// Database
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "streamchat")
	v.SetDefault("database.database", "streamchat")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)

	// LLM
	v.SetDefault("llm.default_provider", "echo")
	v.SetDefault("llm.echo.delay", "40ms")
	v.SetDefault("llm.ollama.default_model", "llama3")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.deepseek.model", "deepseek-chat")
	v.SetDefault("llm.deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.gemini.model", "gemini-2.5-flash")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_age", "168h")
	v.SetDefault("logging.rotation_time", "24h")
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("client.base_url", "STREAMCHAT_BASE_URL")
	v.BindEnv("server.port", "SERVER_PORT")

	// Database
	v.BindEnv("database.host", "POSTGRES_HOST")
	v.BindEnv("database.password", "POSTGRES_PASSWORD")

	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// LLM API Keys
	v.BindEnv("llm.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.deepseek.api_key", "DEEPSEEK_API_KEY")
	v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.ollama.host", "OLLAMA_HOST")
}
