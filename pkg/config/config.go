// Package config loads transit settings from an optional YAML file and
// TRANSIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TRANSIT_HTTP_ADDR.
const EnvPrefix = "TRANSIT"

// Config is the full process configuration.
type Config struct {
	HTTP          HTTPConfig          `mapstructure:"http"`
	Log           LogConfig           `mapstructure:"log"`
	Fleet         FleetConfig         `mapstructure:"fleet"`
	Neo4j         Neo4jConfig         `mapstructure:"neo4j"`
	RAG           RAGConfig           `mapstructure:"rag"`
	Embed         EmbedConfig         `mapstructure:"embed"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Weather       WeatherConfig       `mapstructure:"weather"`
	Cache         CacheConfig         `mapstructure:"cache"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
}

type HTTPConfig struct {
	Addr          string `mapstructure:"addr"`
	CORSOrigin    string `mapstructure:"cors_origin"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SlogLevel maps Level onto a slog level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lv
}

type FleetConfig struct {
	Backend     string        `mapstructure:"backend"`
	DataDir     string        `mapstructure:"data_dir"`
	LiveURL     string        `mapstructure:"live_url"`
	LiveTimeout time.Duration `mapstructure:"live_timeout"`
}

type Neo4jConfig struct {
	URL  string `mapstructure:"url"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
}

type RAGConfig struct {
	// MinSimilarity defaults per embed.backend when unset.
	MinSimilarity float64 `mapstructure:"min_similarity"`
	TopK          int     `mapstructure:"top_k"`
	HintsGlob     string  `mapstructure:"hints_glob"`
}

type EmbedConfig struct {
	Backend   string        `mapstructure:"backend"`
	OllamaURL string        `mapstructure:"ollama_url"`
	Model     string        `mapstructure:"model"`
	Dims      int           `mapstructure:"dims"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type QdrantConfig struct {
	Addr       string `mapstructure:"addr"`
	Collection string `mapstructure:"collection"`
}

type LLMConfig struct {
	Backend string        `mapstructure:"backend"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WeatherConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Backend   string        `mapstructure:"backend"`
	BoltPath  string        `mapstructure:"bolt_path"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type NotifyConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	Batch          int           `mapstructure:"batch"`
	Pacing         time.Duration `mapstructure:"pacing"`
	ChannelBackend string        `mapstructure:"channel_backend"`
}

type SubscriptionsConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	File    string `mapstructure:"file"`
}

// minSimilarityByBackend is the rag.min_similarity applied when none is
// configured. Hash embeddings score far lower than model embeddings.
var minSimilarityByBackend = map[string]float64{
	"hash":   0.1,
	"ollama": 0.35,
}

var defaults = map[string]any{
	"http.addr":            ":8080",
	"http.cors_origin":     "*",
	"http.rate_per_minute": 120,

	"log.level": "info",

	"fleet.backend":      "memory",
	"fleet.data_dir":     "data",
	"fleet.live_url":     "http://localhost:8002",
	"fleet.live_timeout": time.Second,

	"neo4j.url":  "neo4j://localhost:7687",
	"neo4j.user": "neo4j",
	"neo4j.pass": "password",

	"rag.top_k":      3,
	"rag.hints_glob": "hints/**/*.{txt,md,pdf}",

	"embed.backend":    "hash",
	"embed.ollama_url": "http://localhost:11434",
	"embed.model":      "nomic-embed-text",
	"embed.dims":       256,
	"embed.timeout":    10 * time.Second,

	"qdrant.addr":       "",
	"qdrant.collection": "transit_context",

	"llm.backend":  "none",
	"llm.base_url": "https://api.groq.com/openai/v1",
	"llm.api_key":  "",
	"llm.model":    "llama-3.1-8b-instant",
	"llm.timeout":  15 * time.Second,

	"weather.api_key": "",
	"weather.url":     "https://api.openweathermap.org/data/2.5/weather",
	"weather.timeout": 5 * time.Second,

	"cache.backend":    "memory",
	"cache.bolt_path":  "transit-cache.db",
	"cache.op_timeout": 500 * time.Millisecond,

	"nats.url":            "nats://localhost:4222",
	"nats.subject_prefix": "transit.notify",

	"notify.interval":        60 * time.Second,
	"notify.batch":           20,
	"notify.pacing":          100 * time.Millisecond,
	"notify.channel_backend": "console",

	"subscriptions.backend": "sqlite",
	"subscriptions.dsn":     "transit.db",
	"subscriptions.file":    "subscriptions.yaml",
}

// Load reads configuration. With an empty path, transit.yaml is searched
// for in ., ./config and $HOME/.transit and may be absent; an explicit
// path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("transit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.transit")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if v.IsSet("rag.min_similarity") {
		cfg.RAG.MinSimilarity = v.GetFloat64("rag.min_similarity")
	} else {
		cfg.RAG.MinSimilarity = minSimilarityByBackend[cfg.Embed.Backend]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown backends and out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(key, val string, allowed ...string) {
		for _, a := range allowed {
			if val == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("config: %s: %q is not one of %v", key, val, allowed))
	}
	oneOf("fleet.backend", c.Fleet.Backend, "memory", "neo4j")
	oneOf("embed.backend", c.Embed.Backend, "hash", "ollama")
	oneOf("llm.backend", c.LLM.Backend, "none", "openai", "ollama")
	oneOf("cache.backend", c.Cache.Backend, "memory", "bolt", "nats")
	oneOf("notify.channel_backend", c.Notify.ChannelBackend, "console", "nats")
	oneOf("subscriptions.backend", c.Subscriptions.Backend, "sqlite", "file")
	if c.RAG.MinSimilarity < -1 || c.RAG.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("config: rag.min_similarity %v outside [-1, 1]", c.RAG.MinSimilarity))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("config: rag.top_k must be positive"))
	}
	return errors.Join(errs...)
}
