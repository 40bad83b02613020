package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

// Backend names.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
	CacheRedis     = "redis"
	CacheNone      = "none"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	ForecastDays      int
	ForecastHours     int
	HourlyPageSize    int

	RequestTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	StoreBackend  string // "memory" or "postgres"
	DatabaseURL   string
	SeedLocations []models.Location

	CacheBackend string // "in_memory", "memcached", "redis" or "none"
	CacheTTL     time.Duration
	WarmOnStart  bool

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	Timezone        *time.Location
	SyncSpec        string
	DigestSpec      string
	ReportSpecs     []string
	SyncConcurrency int
	JobTimeout      time.Duration

	AlertThreshold   int
	AlertLookahead   int
	AlertDigestHours int

	NotifyTimeout time.Duration
	PushBuffer    int

	EmailEnabled bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      string
	MailFromName string
	MailFromAddr string
	MailLogoPath string

	TelegramEnabled  bool
	TelegramBotToken string
	TelegramAPIURL   string

	HealthWindow     time.Duration
	HealthErrorPct   int
	MessageMaxLength int

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL            string `yaml:"url"`
		Timeout        string `yaml:"timeout"`
		Days           int    `yaml:"days"`
		Hours          int    `yaml:"hours"`
		HourlyPageSize int    `yaml:"hourly_page_size"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Store struct {
		Backend   string         `yaml:"backend"`
		Locations []seedLocation `yaml:"locations"`
	} `yaml:"store"`

	Cache struct {
		Backend     string `yaml:"backend"`
		TTL         string `yaml:"ttl"`
		WarmOnStart bool   `yaml:"warm_on_start"`
		Memcached   struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr    string `yaml:"addr"`
			DB      int    `yaml:"db"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	ReadPath struct {
		CoalesceEnabled bool   `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"read_path"`

	Schedule struct {
		Timezone        string   `yaml:"timezone"`
		Sync            string   `yaml:"sync"`
		Digest          string   `yaml:"digest"`
		Reports         []string `yaml:"reports"`
		SyncConcurrency int      `yaml:"sync_concurrency"`
		JobTimeout      string   `yaml:"job_timeout"`
	} `yaml:"schedule"`

	Alert struct {
		Threshold   int `yaml:"threshold"`
		Lookahead   int `yaml:"lookahead"`
		DigestHours int `yaml:"digest_hours"`
	} `yaml:"alert"`

	Notify struct {
		Timeout    string `yaml:"timeout"`
		PushBuffer int    `yaml:"push_buffer"`
		Email      struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			TLS      string `yaml:"tls"`
			FromName string `yaml:"from_name"`
			FromAddr string `yaml:"from_addr"`
			LogoPath string `yaml:"logo_path"`
		} `yaml:"email"`
		Telegram struct {
			Enabled bool   `yaml:"enabled"`
			APIURL  string `yaml:"api_url"`
		} `yaml:"telegram"`
	} `yaml:"notify"`

	Health struct {
		Window   string `yaml:"window"`
		ErrorPct int    `yaml:"error_pct"`
	} `yaml:"health"`

	Alerts struct {
		MessageMaxLength int `yaml:"message_max_length"`
	} `yaml:"alerts"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type seedLocation struct {
	ID             int64   `yaml:"id"`
	Name           string  `yaml:"name"`
	Latitude       float64 `yaml:"latitude"`
	Longitude      float64 `yaml:"longitude"`
	Email          string  `yaml:"email"`
	TelegramChatID string  `yaml:"telegram_chat_id"`
}

type secretsFile struct {
	WeatherAPIKey    string `yaml:"weather_api_key"`
	DatabaseURL      string `yaml:"database_url"`
	SMTPPassword     string `yaml:"smtp_password"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	RedisPassword    string `yaml:"redis_password"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first when present; variables already
// set in the environment win. Secrets come from env first, then the secrets file.
// Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey = envOr("WEATHER_API_KEY", sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://weather.googleapis.com/v1"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.ForecastDays = positiveOr(fc.WeatherAPI.Days, 7)
	cfg.ForecastHours = positiveOr(fc.WeatherAPI.Hours, 168)
	cfg.HourlyPageSize = positiveOr(fc.WeatherAPI.HourlyPageSize, 24)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.RetryAttempts = positiveOr(fc.Reliability.RetryMaxAttempts, 3)
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 200*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 50)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 100)
	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerFailureThreshold = positiveOr(cb.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(cb.SuccessThreshold, 2)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(os.Getenv("STORE_BACKEND")))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = strings.TrimSpace(strings.ToLower(fc.Store.Backend))
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = StoreMemory
	}
	cfg.DatabaseURL = envOr("DATABASE_URL", sec.DatabaseURL)
	for _, l := range fc.Store.Locations {
		cfg.SeedLocations = append(cfg.SeedLocations, models.Location{
			ID:             l.ID,
			Name:           l.Name,
			Latitude:       l.Latitude,
			Longitude:      l.Longitude,
			Email:          l.Email,
			TelegramChatID: l.TelegramChatID,
		})
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheInMemory
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.WarmOnStart = fc.Cache.WarmOnStart
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)
	cfg.RedisAddr = envOr("REDIS_ADDR", fc.Cache.Redis.Addr)
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisPassword = envOr("REDIS_PASSWORD", sec.RedisPassword)
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.CoalesceEnabled = fc.ReadPath.CoalesceEnabled
	cfg.CoalesceTimeout = parseDuration(fc.ReadPath.CoalesceTimeout, 15*time.Second)

	tzName := envOr("TZ_NAME", fc.Schedule.Timezone)
	if tzName == "" {
		tzName = "Asia/Colombo"
	}
	cfg.Timezone, err = time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone %q: %w", tzName, err)
	}
	cfg.SyncSpec = stringOr(fc.Schedule.Sync, "*/15 * * * *")
	cfg.DigestSpec = stringOr(fc.Schedule.Digest, "0 * * * *")
	cfg.ReportSpecs = fc.Schedule.Reports
	if len(cfg.ReportSpecs) == 0 {
		cfg.ReportSpecs = []string{"0 8 * * *", "0 10 * * *", "0 12 * * *", "0 15 * * *"}
	}
	cfg.SyncConcurrency = positiveOr(fc.Schedule.SyncConcurrency, 4)
	cfg.JobTimeout = parseDuration(fc.Schedule.JobTimeout, 10*time.Minute)

	cfg.AlertThreshold = positiveOr(fc.Alert.Threshold, 15)
	cfg.AlertLookahead = positiveOr(fc.Alert.Lookahead, 2)
	cfg.AlertDigestHours = positiveOr(fc.Alert.DigestHours, 6)

	cfg.NotifyTimeout = parseDuration(fc.Notify.Timeout, 20*time.Second)
	cfg.PushBuffer = positiveOr(fc.Notify.PushBuffer, 16)

	em := fc.Notify.Email
	cfg.EmailEnabled = em.Enabled
	cfg.SMTPHost = envOr("SMTP_HOST", em.Host)
	cfg.SMTPPort = positiveOr(em.Port, 587)
	cfg.SMTPUsername = envOr("SMTP_USERNAME", em.Username)
	cfg.SMTPPassword = envOr("SMTP_PASSWORD", sec.SMTPPassword)
	cfg.SMTPTLS = stringOr(strings.ToLower(em.TLS), "starttls")
	cfg.MailFromName = stringOr(em.FromName, "Meteoscope Bot")
	cfg.MailFromAddr = envOr("MAIL_FROM", em.FromAddr)
	cfg.MailLogoPath = em.LogoPath

	cfg.TelegramEnabled = fc.Notify.Telegram.Enabled
	cfg.TelegramBotToken = envOr("TELEGRAM_BOT_TOKEN", sec.TelegramBotToken)
	cfg.TelegramAPIURL = stringOr(fc.Notify.Telegram.APIURL, "https://api.telegram.org")

	cfg.HealthWindow = parseDuration(fc.Health.Window, 5*time.Minute)
	cfg.HealthErrorPct = positiveOr(fc.Health.ErrorPct, 50)
	cfg.MessageMaxLength = positiveOr(fc.Alerts.MessageMaxLength, 1000)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

func stringOr(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}

func positiveOr(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above WeatherAPITimeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if cfg.HealthErrorPct > 100 {
		return fmt.Errorf("health.error_pct must be at most 100, got %d", cfg.HealthErrorPct)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.StoreBackend {
	case StoreMemory:
		if len(cfg.SeedLocations) == 0 {
			return fmt.Errorf("store.locations required for the memory store")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL required for the postgres store")
		}
	default:
		return fmt.Errorf("store.backend must be memory or postgres, got %q", cfg.StoreBackend)
	}
	seen := make(map[int64]bool, len(cfg.SeedLocations))
	for _, l := range cfg.SeedLocations {
		if l.ID <= 0 || strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("store.locations: each location needs a positive id and a name")
		}
		if seen[l.ID] {
			return fmt.Errorf("store.locations: duplicate id %d", l.ID)
		}
		seen[l.ID] = true
	}
	switch cfg.CacheBackend {
	case CacheInMemory, CacheMemcached, CacheRedis, CacheNone:
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached, redis or none, got %q", cfg.CacheBackend)
	}
	for _, spec := range append([]string{cfg.SyncSpec, cfg.DigestSpec}, cfg.ReportSpecs...) {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("schedule spec %q: %w", spec, err)
		}
	}
	if cfg.EmailEnabled && (cfg.SMTPHost == "" || cfg.MailFromAddr == "") {
		return fmt.Errorf("notify.email enabled but host or from_addr missing")
	}
	switch cfg.SMTPTLS {
	case "starttls", "ssl", "none":
	default:
		return fmt.Errorf("notify.email.tls must be starttls, ssl or none, got %q", cfg.SMTPTLS)
	}
	if cfg.TelegramEnabled && cfg.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN required when notify.telegram is enabled")
	}
	return nil
}
