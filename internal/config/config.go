package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingAPIKeys    = errors.New("YOUTUBE_API_KEYS or YOUTUBE_API_KEY is required")
	ErrMissingAuthTokens = errors.New("AUTH_TOKENS is required")
	ErrInvalidPageSize   = errors.New("DEFAULT_PAGE_SIZE must be within [1, MAX_PAGE_SIZE]")
	ErrInvalidRetries    = errors.New("SEARCH_MAX_RETRIES must not be negative")
	ErrInvalidPort       = errors.New("PORT must be within [1, 65535]")
)

type Config struct {
	Server   ServerConfig
	YouTube  YouTubeConfig
	Keys     KeyPoolConfig
	Search   SearchConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Telegram TelegramConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port               int
	AuthTokens         []string
	CORSOrigins        []string
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration
}

type YouTubeConfig struct {
	APIKeys      []string
	BaseURL      string
	Timeout      time.Duration
	RateLimit    float64
	FetchDetails bool
}

type KeyPoolConfig struct {
	Cooldown         time.Duration
	RecoveryInterval time.Duration
}

type SearchConfig struct {
	MaxRetries      int
	DefaultPageSize int
	MaxPageSize     int
	SingleFlight    bool
}

type CacheConfig struct {
	MaxItems int
	TTL      time.Duration
}

// DatabaseConfig - пустой URL выключает журнал поисков.
type DatabaseConfig struct {
	URL string
}

// TelegramConfig - пустой токен выключает бота.
type TelegramConfig struct {
	Token           string
	AllowedUsers    []int64
	DefaultPlatform string
	Debug           bool
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	keys := getEnvListOrDefault("YOUTUBE_API_KEYS", nil)
	if len(keys) == 0 {
		keys = getEnvListOrDefault("YOUTUBE_API_KEY", nil)
	}

	allowed, err := parseUserIDs(os.Getenv("TELEGRAM_ALLOWED_USERS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnvIntOrDefault("PORT", 3000),
			AuthTokens:         getEnvListOrDefault("AUTH_TOKENS", nil),
			CORSOrigins:        getEnvListOrDefault("CORS_ORIGIN", nil),
			RateLimitPerMinute: getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", 60),
			ShutdownTimeout:    time.Duration(getEnvIntOrDefault("SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
		},
		YouTube: YouTubeConfig{
			APIKeys:      keys,
			BaseURL:      getEnvOrDefault("YOUTUBE_BASE_URL", "https://www.googleapis.com/youtube/v3"),
			Timeout:      time.Duration(getEnvIntOrDefault("YOUTUBE_TIMEOUT_SEC", 10)) * time.Second,
			RateLimit:    getEnvFloatOrDefault("YOUTUBE_RATE_LIMIT", 0),
			FetchDetails: getEnvBoolOrDefault("YOUTUBE_FETCH_DETAILS", false),
		},
		Keys: KeyPoolConfig{
			Cooldown:         time.Duration(getEnvIntOrDefault("KEY_COOLDOWN_SEC", 86400)) * time.Second,
			RecoveryInterval: time.Duration(getEnvIntOrDefault("KEY_RECOVERY_INTERVAL_SEC", 3600)) * time.Second,
		},
		Search: SearchConfig{
			MaxRetries:      getEnvIntOrDefault("SEARCH_MAX_RETRIES", 3),
			DefaultPageSize: getEnvIntOrDefault("DEFAULT_PAGE_SIZE", 10),
			MaxPageSize:     getEnvIntOrDefault("MAX_PAGE_SIZE", 50),
			SingleFlight:    getEnvBoolOrDefault("SEARCH_SINGLEFLIGHT", false),
		},
		Cache: CacheConfig{
			MaxItems: getEnvIntOrDefault("CACHE_MAX_ITEMS", 1000),
			TTL:      time.Duration(getEnvIntOrDefault("CACHE_TTL_SEC", 600)) * time.Second,
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Telegram: TelegramConfig{
			Token:           os.Getenv("TELEGRAM_BOT_TOKEN"),
			AllowedUsers:    allowed,
			DefaultPlatform: getEnvOrDefault("TELEGRAM_DEFAULT_PLATFORM", "youtube"),
			Debug:           getEnvBoolOrDefault("TELEGRAM_DEBUG", false),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет то, без чего не работает ни serve, ни разовый search.
func (c *Config) Validate() error {
	if len(c.YouTube.APIKeys) == 0 {
		return ErrMissingAPIKeys
	}
	if c.Search.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if c.Search.MaxPageSize < 1 || c.Search.DefaultPageSize < 1 || c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return ErrInvalidPageSize
	}
	return nil
}

// ValidateServer - дополнительные требования для HTTP-сервера.
func (c *Config) ValidateServer() error {
	if len(c.Server.AuthTokens) == 0 {
		return ErrMissingAuthTokens
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

func (c *Config) HistoryEnabled() bool {
	return c.Database.URL != ""
}

func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvListOrDefault режет значение по запятым, пустые элементы выбрасываются
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func parseUserIDs(value string) ([]int64, error) {
	if value == "" {
		return nil, nil
	}

	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USERS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
