package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Search    SearchConfig    `mapstructure:"search"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"` // sqlite file path
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type EmbeddingConfig struct {
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SummaryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
}

type QueueConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

type SearchConfig struct {
	ScoreThreshold float32 `mapstructure:"score_threshold"`
	DefaultLimit   int     `mapstructure:"default_limit"`
	MaxLimit       int     `mapstructure:"max_limit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/perch.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "perch_records")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("summary.enabled", true)
	v.SetDefault("summary.model", "gpt-4o-mini")
	v.SetDefault("summary.base_url", "https://api.openai.com/v1")
	v.SetDefault("summary.timeout", 20*time.Second)
	v.SetDefault("summary.max_tokens", 300)
	v.SetDefault("summary.temperature", 0.3)
	v.SetDefault("queue.max_concurrent", 3)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.retry_delay", 5*time.Second)
	v.SetDefault("queue.poll_interval", 250*time.Millisecond)
	v.SetDefault("search.score_threshold", 0.7)
	v.SetDefault("search.default_limit", 10)
	v.SetDefault("search.max_limit", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("embedding.api_key", "OPENAI_API_KEY")
	v.BindEnv("embedding.base_url", "OPENAI_BASE_URL")
	v.BindEnv("summary.api_key", "OPENAI_API_KEY")
	v.BindEnv("summary.base_url", "OPENAI_BASE_URL")
	v.BindEnv("summary.model", "SUMMARY_MODEL")
	v.BindEnv("search.score_threshold", "SEARCH_SCORE_THRESHOLD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
