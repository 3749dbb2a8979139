// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable that points at an optional
// config file. The --config flag takes precedence.
const ConfigFileEnv = "CLASSGRADE_CONFIG"

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string
	CORSOrigins []string
	DBPath      string
	LogLevel    string

	Cache      CacheConfig
	Agent      AgentConfig
	LLM        LLMConfig
	Search     SearchConfig
	Transcript TranscriptConfig

	TraceEnabled    bool
	FreshRateLimit  int
	FreshRateWindow time.Duration
	WarmCourses     []string
	WarmInterval    time.Duration
}

// CacheConfig selects and tunes the assessment cache backend.
type CacheConfig struct {
	Backend     string // memory, sqlite or postgres
	DatabaseURL string // postgres only
	TTL         time.Duration
	Capacity    int // memory only; 0 is unbounded
}

// AgentConfig bounds each research run.
type AgentConfig struct {
	MaxRounds           int
	Timeout             time.Duration
	SearchRetries       int
	SearchBackoff       time.Duration
	MaxSearchesPerRound int
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider      string // openai or gemini
	Model         string
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	GeminiModel   string
}

// SearchConfig selects the web search provider.
type SearchConfig struct {
	Provider    string // tavily or brave
	TavilyKey   string
	TavilyDepth string
	BraveKey    string
}

// TranscriptConfig controls NDJSON research transcripts.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("grpc_port", "9090")
	v.SetDefault("frontend_url", "")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("db_path", "./data/classgrade.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("cache_backend", "sqlite")
	v.SetDefault("database_url", "")
	v.SetDefault("cache_ttl_seconds", 21600)
	v.SetDefault("cache_capacity", 0)

	v.SetDefault("agent_max_rounds", 8)
	v.SetDefault("research_timeout", "45s")
	v.SetDefault("search_retries", 2)
	v.SetDefault("search_retry_backoff", "250ms")
	v.SetDefault("search_max_per_round", 3)

	v.SetDefault("llm_provider", "openai")
	v.SetDefault("llm_model", "gpt-5-mini")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.5-flash")

	v.SetDefault("search_provider", "tavily")
	v.SetDefault("tavily_api_key", "")
	v.SetDefault("tavily_depth", "basic")
	v.SetDefault("brave_api_key", "")

	v.SetDefault("trace_enabled", false)
	v.SetDefault("transcript_log_enabled", true)
	v.SetDefault("transcript_log_dir", "./data/logs/research")
	v.SetDefault("transcript_log_queue_size", 256)

	v.SetDefault("fresh_rate_limit", 5)
	v.SetDefault("fresh_rate_window", "1m")

	v.SetDefault("warm_courses", "")
	v.SetDefault("warm_interval", "30m")
}

// Load reads configuration from environment variables and, when configFile
// (or $CLASSGRADE_CONFIG) is set, from that file. Environment variables win.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile == "" {
		configFile = v.GetString(strings.ToLower(ConfigFileEnv))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:        v.GetString("port"),
		GRPCPort:    v.GetString("grpc_port"),
		FrontendURL: v.GetString("frontend_url"),
		CORSOrigins: splitList(v.GetString("cors_origins")),
		DBPath:      v.GetString("db_path"),
		LogLevel:    v.GetString("log_level"),
		Cache: CacheConfig{
			Backend:     strings.ToLower(v.GetString("cache_backend")),
			DatabaseURL: v.GetString("database_url"),
			TTL:         time.Duration(v.GetInt("cache_ttl_seconds")) * time.Second,
			Capacity:    v.GetInt("cache_capacity"),
		},
		Agent: AgentConfig{
			MaxRounds:           v.GetInt("agent_max_rounds"),
			Timeout:             v.GetDuration("research_timeout"),
			SearchRetries:       v.GetInt("search_retries"),
			SearchBackoff:       v.GetDuration("search_retry_backoff"),
			MaxSearchesPerRound: v.GetInt("search_max_per_round"),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(v.GetString("llm_provider")),
			Model:         v.GetString("llm_model"),
			OpenAIKey:     v.GetString("openai_api_key"),
			OpenAIBaseURL: v.GetString("openai_base_url"),
			GeminiKey:     v.GetString("gemini_api_key"),
			GeminiModel:   v.GetString("gemini_model"),
		},
		Search: SearchConfig{
			Provider:    strings.ToLower(v.GetString("search_provider")),
			TavilyKey:   v.GetString("tavily_api_key"),
			TavilyDepth: v.GetString("tavily_depth"),
			BraveKey:    v.GetString("brave_api_key"),
		},
		Transcript: TranscriptConfig{
			Enabled:   v.GetBool("transcript_log_enabled"),
			Dir:       v.GetString("transcript_log_dir"),
			QueueSize: v.GetInt("transcript_log_queue_size"),
		},
		TraceEnabled:    v.GetBool("trace_enabled"),
		FreshRateLimit:  v.GetInt("fresh_rate_limit"),
		FreshRateWindow: v.GetDuration("fresh_rate_window"),
		WarmCourses:     splitList(v.GetString("warm_courses")),
		WarmInterval:    v.GetDuration("warm_interval"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	switch c.Cache.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when CACHE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory, sqlite or postgres, got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("CACHE_TTL_SECONDS must be > 0")
	}
	if c.Cache.Capacity < 0 {
		return errors.New("CACHE_CAPACITY must be >= 0")
	}
	if c.Agent.Timeout <= 0 {
		return errors.New("RESEARCH_TIMEOUT must be > 0")
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or gemini, got %q", c.LLM.Provider)
	}
	switch c.Search.Provider {
	case "tavily", "brave":
	default:
		return fmt.Errorf("SEARCH_PROVIDER must be tavily or brave, got %q", c.Search.Provider)
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return errors.New("TRANSCRIPT_LOG_DIR cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return errors.New("TRANSCRIPT_LOG_QUEUE_SIZE must be > 0")
	}
	if c.FreshRateLimit <= 0 || c.FreshRateWindow <= 0 {
		return errors.New("FRESH_RATE_LIMIT and FRESH_RATE_WINDOW must be > 0")
	}
	return nil
}

// ValidateResearch checks the credentials needed to run research. Commands
// that never research, such as migrate, skip it.
func (c *Config) ValidateResearch() error {
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "gemini":
		if c.LLM.GeminiKey == "" {
			return errors.New("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	}
	switch c.Search.Provider {
	case "tavily":
		if c.Search.TavilyKey == "" {
			return errors.New("TAVILY_API_KEY is required when SEARCH_PROVIDER=tavily")
		}
	case "brave":
		if c.Search.BraveKey == "" {
			return errors.New("BRAVE_API_KEY is required when SEARCH_PROVIDER=brave")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
