package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	ReadTimeout        int      `yaml:"readTimeout"`
	WriteTimeout       int      `yaml:"writeTimeout"`
	BodyLimit          int      `yaml:"bodyLimit"`
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	AllowedOrigins     []string `yaml:"allowedOrigins"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	UploadDir     string `yaml:"uploadDir"`
	MaxImageBytes int64  `yaml:"maxImageBytes"`
}

type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Password    string `yaml:"-"`
	DB          int    `yaml:"db"`
	CacheTTLSec int    `yaml:"cacheTTLSec"`
	LeaseTTLSec int    `yaml:"leaseTTLSec"`
}

type LLMConfig struct {
	Provider     string  `yaml:"provider"`
	APIKey       string  `yaml:"-"`
	BaseURL      string  `yaml:"baseURL"`
	Model        string  `yaml:"model"`
	SearchModel  string  `yaml:"searchModel"`
	SummaryModel string  `yaml:"summaryModel"`
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"maxTokens"`
	TimeoutSec   int     `yaml:"timeoutSec"`
}

type SearchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	SerpAPIKey      string `yaml:"-"`
	BaseURL         string `yaml:"baseURL"`
	FallbackURL     string `yaml:"fallbackURL"`
	ResultsPerQuery int    `yaml:"resultsPerQuery"`
	MaxQueries      int    `yaml:"maxQueries"`
	MaxResults      int    `yaml:"maxResults"`
	TimeoutSec      int    `yaml:"timeoutSec"`
}

type CrawlerConfig struct {
	UserAgent         string  `yaml:"userAgent"`
	TimeoutSec        int     `yaml:"timeoutSec"`
	MaxPages          int     `yaml:"maxPages"`
	MaxBodyBytes      int64   `yaml:"maxBodyBytes"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
	RespectRobots     bool    `yaml:"respectRobots"`
	SummaryChars      int     `yaml:"summaryChars"`
}

type AnalysisConfig struct {
	Workers        int `yaml:"workers"`
	QueueSize      int `yaml:"queueSize"`
	StepTimeoutSec int `yaml:"stepTimeoutSec"`
	FanOutLimit    int `yaml:"fanOutLimit"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"outputPath"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c CrawlerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c AnalysisConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSec) * time.Second
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads config.yaml (optional) and FACTCHECK_* environment overrides.
// An explicit path, when non-empty, replaces the search paths.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/factcheck")
	}

	v.SetEnvPrefix("FACTCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.rateLimitPerMinute", 60)
	v.SetDefault("server.allowedOrigins", []string{"*"})

	v.SetDefault("sqlite.path", "./data/factcheck.db")

	v.SetDefault("storage.uploadDir", "./data/uploads")
	v.SetDefault("storage.maxImageBytes", 5242880)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTLSec", 3600)
	v.SetDefault("redis.leaseTTLSec", 900)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.searchModel", "gpt-4.1")
	v.SetDefault("llm.summaryModel", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.maxTokens", 2000)
	v.SetDefault("llm.timeoutSec", 120)

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.serpAPIKey", "")
	v.SetDefault("search.baseURL", "https://serpapi.com/search.json")
	v.SetDefault("search.fallbackURL", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.resultsPerQuery", 5)
	v.SetDefault("search.maxQueries", 3)
	v.SetDefault("search.maxResults", 10)
	v.SetDefault("search.timeoutSec", 10)

	v.SetDefault("crawler.userAgent", "FactCheckBot/1.0 (+https://github.com/BroWo1/factcheck-backend)")
	v.SetDefault("crawler.timeoutSec", 15)
	v.SetDefault("crawler.maxPages", 10)
	v.SetDefault("crawler.maxBodyBytes", 2097152)
	v.SetDefault("crawler.requestsPerSecond", 1.0)
	v.SetDefault("crawler.burst", 2)
	v.SetDefault("crawler.respectRobots", true)
	v.SetDefault("crawler.summaryChars", 1000)

	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.queueSize", 100)
	v.SetDefault("analysis.stepTimeoutSec", 300)
	v.SetDefault("analysis.fanOutLimit", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
