package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Backends   BackendsConfig   `mapstructure:"backends"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Prompts    PromptsConfig    `mapstructure:"prompts"`
	Lexicons   LexiconsConfig   `mapstructure:"lexicons"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Paywall    PaywallConfig    `mapstructure:"paywall"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string        `mapstructure:"token"`
	UpdateTimeout int           `mapstructure:"update_timeout"`
	AdminIDs      []int64       `mapstructure:"admin_ids"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Port    int    `mapstructure:"port"`
}

type BackendsConfig struct {
	Economical BackendConfig `mapstructure:"economical"`
	Permissive BackendConfig `mapstructure:"permissive"`
	// CallsPerSecond limits outbound generation calls process-wide.
	CallsPerSecond float64       `mapstructure:"calls_per_second"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxTokens      int           `mapstructure:"max_tokens"`
}

type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type StorageConfig struct {
	Type   string            `mapstructure:"type"`
	Redis  RedisConfig       `mapstructure:"redis"`
	Memory MemoryStoreConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type MemoryStoreConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Window   time.Duration `mapstructure:"window"`
	Requests int           `mapstructure:"requests"`
}

type PipelineConfig struct {
	MaxInputChars   int           `mapstructure:"max_input_chars"`
	HistoryWindow   int           `mapstructure:"history_window"`
	SessionGap      time.Duration `mapstructure:"session_gap"`
	NewDayThreshold time.Duration `mapstructure:"new_day_threshold"`
	EmojiCap        int           `mapstructure:"emoji_cap"`
	TimeZone        string        `mapstructure:"time_zone"`
}

type PromptsConfig struct {
	Directory   string `mapstructure:"directory"`
	TokenBudget int    `mapstructure:"token_budget"`
}

type LexiconsConfig struct {
	Path string `mapstructure:"path"`
}

type MemoryConfig struct {
	TopK            int           `mapstructure:"top_k"`
	ScoreThreshold  float64       `mapstructure:"score_threshold"`
	HalfLifeDays    float64       `mapstructure:"half_life_days"`
	CharBudget      int           `mapstructure:"char_budget"`
	DeepCharBudget  int           `mapstructure:"deep_char_budget"`
	ExtractEvery    int           `mapstructure:"extract_every"`
	ExtractWindow   int           `mapstructure:"extract_window"`
	CompactInterval time.Duration `mapstructure:"compact_interval"`
}

type PaywallConfig struct {
	TrialDays     int `mapstructure:"trial_days"`
	ConversionDay int `mapstructure:"conversion_day"`
	PaywallDay    int `mapstructure:"paywall_day"`
	PaywallMsgs   int `mapstructure:"paywall_msgs"`
	MinTeasing    int `mapstructure:"min_teasing"`
	MinPreviews   int `mapstructure:"min_previews"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	viper.BindEnv("bot.token", "BOT_TOKEN")
	viper.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("storage.redis.db", "REDIS_DB")
	viper.BindEnv("backends.economical.api_key", "ECONOMICAL_API_KEY")
	viper.BindEnv("backends.permissive.api_key", "PERMISSIVE_API_KEY")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// REDIS_HOST/REDIS_PORT override the single addr field.
	if redisHost := viper.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := viper.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if adminIDs := os.Getenv("ADMIN_IDS"); adminIDs != "" {
		config.Bot.AdminIDs = nil
		for _, part := range strings.Split(adminIDs, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			var id int64
			if _, err := fmt.Sscan(part, &id); err == nil {
				config.Bot.AdminIDs = append(config.Bot.AdminIDs, id)
			}
		}
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Pipeline.MaxInputChars == 0 {
		cfg.Pipeline.MaxInputChars = 2000
	}
	if cfg.Pipeline.HistoryWindow == 0 {
		cfg.Pipeline.HistoryWindow = 20
	}
	if cfg.Pipeline.SessionGap == 0 {
		cfg.Pipeline.SessionGap = 45 * time.Minute
	}
	if cfg.Pipeline.NewDayThreshold == 0 {
		cfg.Pipeline.NewDayThreshold = 20 * time.Hour
	}
	if cfg.Pipeline.EmojiCap == 0 {
		cfg.Pipeline.EmojiCap = 2
	}
	if cfg.Pipeline.TimeZone == "" {
		cfg.Pipeline.TimeZone = "Europe/Paris"
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 20
	}
	if cfg.Backends.Timeout == 0 {
		cfg.Backends.Timeout = 30 * time.Second
	}
	if cfg.Backends.MaxTokens == 0 {
		cfg.Backends.MaxTokens = 400
	}
	if cfg.Backends.CallsPerSecond == 0 {
		cfg.Backends.CallsPerSecond = 10
	}
	if cfg.Storage.Redis.PoolSize == 0 {
		cfg.Storage.Redis.PoolSize = 20
	}
	if cfg.Storage.Redis.MinIdleConns == 0 {
		cfg.Storage.Redis.MinIdleConns = 2
	}
	if cfg.Memory.TopK == 0 {
		cfg.Memory.TopK = 8
	}
	if cfg.Memory.ScoreThreshold == 0 {
		cfg.Memory.ScoreThreshold = 0.1
	}
	if cfg.Memory.HalfLifeDays == 0 {
		cfg.Memory.HalfLifeDays = 30
	}
	if cfg.Memory.CharBudget == 0 {
		cfg.Memory.CharBudget = 500
	}
	if cfg.Memory.DeepCharBudget == 0 {
		cfg.Memory.DeepCharBudget = 5000
	}
	if cfg.Memory.ExtractEvery == 0 {
		cfg.Memory.ExtractEvery = 5
	}
	if cfg.Memory.ExtractWindow == 0 {
		cfg.Memory.ExtractWindow = 10
	}
	if cfg.Memory.CompactInterval == 0 {
		cfg.Memory.CompactInterval = 6 * time.Hour
	}
	if cfg.Paywall.TrialDays == 0 {
		cfg.Paywall.TrialDays = 3
	}
	if cfg.Paywall.ConversionDay == 0 {
		cfg.Paywall.ConversionDay = 5
	}
	if cfg.Paywall.PaywallDay == 0 {
		cfg.Paywall.PaywallDay = 3
	}
	if cfg.Paywall.PaywallMsgs == 0 {
		cfg.Paywall.PaywallMsgs = 35
	}
	if cfg.Paywall.MinTeasing == 0 {
		cfg.Paywall.MinTeasing = 3
	}
	if cfg.Paywall.MinPreviews == 0 {
		cfg.Paywall.MinPreviews = 2
	}
	if cfg.Prompts.TokenBudget == 0 {
		cfg.Prompts.TokenBudget = 1400
	}
	if cfg.I18n.DefaultLanguage == "" {
		cfg.I18n.DefaultLanguage = "fr"
	}
	if len(cfg.I18n.Languages) == 0 {
		cfg.I18n.Languages = []string{"fr", "en"}
	}
	if cfg.I18n.Directory == "" {
		cfg.I18n.Directory = "configs/i18n"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.Backends.Economical.BaseURL == "" || cfg.Backends.Permissive.BaseURL == "" {
		return fmt.Errorf("both backend base URLs are required")
	}
	if cfg.Backends.Economical.Model == "" || cfg.Backends.Permissive.Model == "" {
		return fmt.Errorf("both backend model ids are required")
	}
	if cfg.Prompts.Directory == "" {
		return fmt.Errorf("prompt directory is required")
	}
	if _, err := time.LoadLocation(cfg.Pipeline.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone %q: %w", cfg.Pipeline.TimeZone, err)
	}
	return nil
}

// Location returns the configured time zone. Validation guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Pipeline.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
