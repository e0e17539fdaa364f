package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "LOCALAINEWS"

// Store backends.
const (
	StoreBolt  = "bolt"
	StoreRedis = "redis"
)

// Config is the full runtime configuration.
type Config struct {
	Env        string           `mapstructure:"env"`
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Store      StoreConfig      `mapstructure:"store"`
	Topics     TopicsConfig     `mapstructure:"topics"`
	NewsAPI    NewsAPIConfig    `mapstructure:"newsapi"`
	RSS        RSSConfig        `mapstructure:"rss"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	LMStudio   LMStudioConfig   `mapstructure:"lmstudio"`
	Discord    DiscordConfig    `mapstructure:"discord"`
	Review     ReviewConfig     `mapstructure:"review"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Publishers PublishersConfig `mapstructure:"publishers"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// HTTPConfig configures the interactions/status server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AdminToken guards /api. The routes are not served while it is empty.
	AdminToken string `mapstructure:"admin_token"`
}

// StoreConfig selects the Seen-Set backend.
type StoreConfig struct {
	Backend       string        `mapstructure:"backend"`
	BoltPath      string        `mapstructure:"bolt_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisKey      string        `mapstructure:"redis_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// TopicsConfig lists search topics inline, from a newline-delimited file, or both.
type TopicsConfig struct {
	List []string `mapstructure:"list"`
	File string   `mapstructure:"file"`
}

type NewsAPIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Language string        `mapstructure:"language"`
	PageSize int           `mapstructure:"page_size"`
	Lookback time.Duration `mapstructure:"lookback"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RSSConfig lists fixed feeds filtered by topic. GoogleNews adds a per-topic Google
// News search feed.
type RSSConfig struct {
	Feeds          []string      `mapstructure:"feeds"`
	GoogleNews     bool          `mapstructure:"google_news"`
	GoogleNewsLang string        `mapstructure:"google_news_lang"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// CrawlerConfig controls OG-meta enrichment of articles that arrive without a description.
type CrawlerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LMStudioConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UseTools    bool          `mapstructure:"use_tools"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

type DiscordConfig struct {
	Token           string        `mapstructure:"token"`
	PublicKey       string        `mapstructure:"public_key"`
	APIBase         string        `mapstructure:"api_base"`
	ReviewChannelID string        `mapstructure:"review_channel_id"`
	PublicChannelID string        `mapstructure:"public_channel_id"`
	Timeout         time.Duration `mapstructure:"timeout"`
	SendAttempts    int           `mapstructure:"send_attempts"`
}

// ReviewConfig controls who may decide and how long drafts wait.
type ReviewConfig struct {
	AdminUserIDs   []string      `mapstructure:"admin_user_ids"`
	AdminRoleIDs   []string      `mapstructure:"admin_role_ids"`
	Window         time.Duration `mapstructure:"window"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
	QueueSize      int           `mapstructure:"queue_size"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type PipelineConfig struct {
	Schedule          string        `mapstructure:"schedule"`
	TopicReset        string        `mapstructure:"topic_reset"`
	MaxDraftsPerCycle int           `mapstructure:"max_drafts_per_cycle"`
	SummarizeTimeout  time.Duration `mapstructure:"summarize_timeout"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	RunOnStart        bool          `mapstructure:"run_on_start"`
}

// PublishersConfig points at the optional downstream sinks file.
type PublishersConfig struct {
	File string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("log.level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.backend", StoreBolt)
	v.SetDefault("store.bolt_path", "data/seen.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_key", "localainews:seen")
	v.SetDefault("store.timeout", 3*time.Second)

	v.SetDefault("topics.list", []string{})
	v.SetDefault("topics.file", "")

	v.SetDefault("newsapi.enabled", true)
	v.SetDefault("newsapi.base_url", "https://newsapi.org")
	v.SetDefault("newsapi.api_key", "")
	v.SetDefault("newsapi.language", "en")
	v.SetDefault("newsapi.page_size", 5)
	v.SetDefault("newsapi.lookback", 48*time.Hour)
	v.SetDefault("newsapi.timeout", 15*time.Second)

	v.SetDefault("rss.feeds", []string{})
	v.SetDefault("rss.google_news", false)
	v.SetDefault("rss.google_news_lang", "en-US")
	v.SetDefault("rss.timeout", 15*time.Second)

	v.SetDefault("crawler.enabled", true)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.timeout", 10*time.Second)

	v.SetDefault("lmstudio.base_url", "http://localhost:1234")
	v.SetDefault("lmstudio.api_key", "")
	v.SetDefault("lmstudio.model", "")
	v.SetDefault("lmstudio.timeout", 120*time.Second)
	v.SetDefault("lmstudio.use_tools", false)
	v.SetDefault("lmstudio.max_tokens", 600)
	v.SetDefault("lmstudio.temperature", 0.2)

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.public_key", "")
	v.SetDefault("discord.api_base", "https://discord.com/api/v10")
	v.SetDefault("discord.review_channel_id", "")
	v.SetDefault("discord.public_channel_id", "")
	v.SetDefault("discord.timeout", 10*time.Second)
	v.SetDefault("discord.send_attempts", 3)

	v.SetDefault("review.admin_user_ids", []string{})
	v.SetDefault("review.admin_role_ids", []string{})
	v.SetDefault("review.window", 24*time.Hour)
	v.SetDefault("review.expiry_interval", time.Minute)
	v.SetDefault("review.queue_size", 64)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "localainews.decisions")
	v.SetDefault("kafka.group_id", "localainews")

	v.SetDefault("pipeline.schedule", "*/30 9-22 * * *")
	v.SetDefault("pipeline.topic_reset", "0 9 * * *")
	v.SetDefault("pipeline.max_drafts_per_cycle", 1)
	v.SetDefault("pipeline.summarize_timeout", 150*time.Second)
	v.SetDefault("pipeline.rate_limit_cooldown", 15*time.Minute)
	v.SetDefault("pipeline.run_on_start", false)

	v.SetDefault("publishers.file", "")
}

// secretEnv maps config keys onto the conventional, unprefixed variable names that
// .env files for the bot already use.
var secretEnv = map[string]string{
	"discord.token":             "DISCORD_TOKEN",
	"discord.public_key":        "DISCORD_PUBLIC_KEY",
	"discord.review_channel_id": "ADMIN_CHANNEL_ID",
	"discord.public_channel_id": "POST_CHANNEL_ID",
	"newsapi.api_key":           "NEWS_API_KEY",
	"lmstudio.base_url":         "LMSTUDIO_BASE_URL",
	"lmstudio.model":            "LMSTUDIO_MODEL",
	"lmstudio.api_key":          "LMSTUDIO_API_KEY",
	"http.admin_token":          "ADMIN_API_TOKEN",
}

// Load reads configuration from the optional .env file, the config file at path (or
// ./config.yaml when path is empty) and the environment, then sanitizes and validates it.
func Load(path, envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range secretEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	path = strings.TrimSpace(path)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg = sanitize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// sanitize trims values and applies floor defaults that viper cannot express.
func sanitize(cfg Config) Config {
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.HTTP.Addr = strings.TrimSpace(cfg.HTTP.Addr)
	cfg.HTTP.AdminToken = strings.TrimSpace(cfg.HTTP.AdminToken)

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	cfg.Store.BoltPath = strings.TrimSpace(cfg.Store.BoltPath)
	cfg.Store.RedisAddr = strings.TrimSpace(cfg.Store.RedisAddr)
	cfg.Store.RedisKey = strings.TrimSpace(cfg.Store.RedisKey)

	cfg.Topics.List = cleanList(cfg.Topics.List)
	cfg.Topics.File = strings.TrimSpace(cfg.Topics.File)

	cfg.NewsAPI.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.NewsAPI.BaseURL), "/")
	cfg.NewsAPI.APIKey = strings.TrimSpace(cfg.NewsAPI.APIKey)
	cfg.NewsAPI.Language = strings.TrimSpace(cfg.NewsAPI.Language)
	if cfg.NewsAPI.PageSize <= 0 {
		cfg.NewsAPI.PageSize = 1
	}
	if cfg.NewsAPI.PageSize > 100 {
		cfg.NewsAPI.PageSize = 100
	}
	cfg.RSS.Feeds = cleanList(cfg.RSS.Feeds)

	if cfg.Crawler.Workers <= 0 {
		cfg.Crawler.Workers = 1
	}

	cfg.LMStudio.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LMStudio.BaseURL), "/")
	cfg.LMStudio.APIKey = strings.TrimSpace(cfg.LMStudio.APIKey)
	cfg.LMStudio.Model = strings.TrimSpace(cfg.LMStudio.Model)

	cfg.Discord.Token = strings.TrimSpace(cfg.Discord.Token)
	cfg.Discord.PublicKey = strings.TrimSpace(cfg.Discord.PublicKey)
	cfg.Discord.APIBase = strings.TrimRight(strings.TrimSpace(cfg.Discord.APIBase), "/")
	cfg.Discord.ReviewChannelID = strings.TrimSpace(cfg.Discord.ReviewChannelID)
	cfg.Discord.PublicChannelID = strings.TrimSpace(cfg.Discord.PublicChannelID)
	if cfg.Discord.SendAttempts <= 0 {
		cfg.Discord.SendAttempts = 1
	}

	cfg.Review.AdminUserIDs = cleanList(cfg.Review.AdminUserIDs)
	cfg.Review.AdminRoleIDs = cleanList(cfg.Review.AdminRoleIDs)
	if cfg.Review.QueueSize <= 0 {
		cfg.Review.QueueSize = 1
	}

	cfg.Kafka.Brokers = cleanList(cfg.Kafka.Brokers)
	cfg.Kafka.Topic = strings.TrimSpace(cfg.Kafka.Topic)
	cfg.Kafka.GroupID = strings.TrimSpace(cfg.Kafka.GroupID)

	cfg.Pipeline.Schedule = strings.TrimSpace(cfg.Pipeline.Schedule)
	cfg.Pipeline.TopicReset = strings.TrimSpace(cfg.Pipeline.TopicReset)
	if cfg.Pipeline.MaxDraftsPerCycle <= 0 {
		cfg.Pipeline.MaxDraftsPerCycle = 1
	}

	cfg.Publishers.File = strings.TrimSpace(cfg.Publishers.File)
	return cfg
}

// Validate checks that required fields are present and consistent.
func (c Config) Validate() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "discord.token (DISCORD_TOKEN)")
	}
	if c.Discord.ReviewChannelID == "" {
		missing = append(missing, "discord.review_channel_id (ADMIN_CHANNEL_ID)")
	}
	if c.Discord.PublicChannelID == "" {
		missing = append(missing, "discord.public_channel_id (POST_CHANNEL_ID)")
	}
	if c.LMStudio.BaseURL == "" {
		missing = append(missing, "lmstudio.base_url (LMSTUDIO_BASE_URL)")
	}
	if c.LMStudio.Model == "" {
		missing = append(missing, "lmstudio.model (LMSTUDIO_MODEL)")
	}
	if c.NewsAPI.Enabled && c.NewsAPI.APIKey == "" {
		missing = append(missing, "newsapi.api_key (NEWS_API_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if !c.NewsAPI.Enabled && len(c.RSS.Feeds) == 0 && !c.RSS.GoogleNews {
		return errors.New("no article source configured: enable newsapi, rss.google_news or list rss.feeds")
	}
	if len(c.Topics.List) == 0 && c.Topics.File == "" {
		return errors.New("topics.list or topics.file is required")
	}

	switch c.Store.Backend {
	case StoreBolt:
		if c.Store.BoltPath == "" {
			return errors.New("store.bolt_path is required for the bolt backend")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" || c.Store.RedisKey == "" {
			return errors.New("store.redis_addr and store.redis_key are required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q not supported", c.Store.Backend)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" || c.Kafka.GroupID == "" {
			return errors.New("kafka.topic and kafka.group_id are required when kafka is enabled")
		}
	}

	if c.Review.Window <= 0 {
		return errors.New("review.window must be positive")
	}
	if c.Review.ExpiryInterval <= 0 {
		return errors.New("review.expiry_interval must be positive")
	}
	if c.Pipeline.Schedule == "" {
		return errors.New("pipeline.schedule is required")
	}
	if len(c.Review.AdminUserIDs) == 0 && len(c.Review.AdminRoleIDs) == 0 {
		return errors.New("review.admin_user_ids or review.admin_role_ids is required")
	}
	return nil
}

// cleanList trims entries, drops empties and splits comma-joined values that arrive from
// a single environment variable.
func cleanList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
