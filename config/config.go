// Package config holds the service configuration decoded from the
// `plstats` section of config.yaml/secrets.yaml.
package config

import (
	"os"
	"runtime"
	"strings"
	"time"
)

const (
	DefaultListenAddr      = "0.0.0.0:8001"
	DefaultDatabasePath    = "plstats.db"
	DefaultDataDir         = "data"
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel     = "text-embedding-3-small"
	DefaultHFBaseURL       = "https://router.huggingface.co/hf-inference/models"
	DefaultHFModel         = "sentence-transformers/all-mpnet-base-v2"
	DefaultSpacyModel      = "pl_core_news_sm"
	DefaultStanzaLang      = "pl"
	DefaultStanzaProcessor = "tokenize,mwt,pos,lemma"
	DefaultDistance        = "l2"
	DefaultTopN            = 5
	DefaultFetchWorkers    = 8
	DefaultEmbedBatchSize  = 16
	DefaultStatsCacheTTL   = 600
	DefaultHTTPTimeout     = 90
	DefaultUserAgent       = "plstats/1.0 (+https://github.com/adonese/plstats)"
)

// Config is the top level service configuration.
type Config struct {
	Port    string `json:"port" binding:"required"`
	IsDebug bool   `json:"is_debug"`

	DatabasePath   string `json:"db_path"`
	DatabaseURL    string `json:"db_url"`
	DatabaseDriver string `json:"db_driver" binding:"omitempty,oneof=default sqlite sqlite3 postgres pgx"`
	DataDir        string `json:"data_dir" binding:"required"`

	RedisURL          string `json:"redis_url" binding:"omitempty,url"`
	StatsCacheTTLSecs int    `json:"stats_cache_ttl_s" binding:"gte=0"`

	OpenAI      EmbeddingProvider `json:"openai"`
	HuggingFace EmbeddingProvider `json:"huggingface"`
	Stanza      Tagger            `json:"stanza"`
	Spacy       Tagger            `json:"spacy"`

	Distance         string `json:"distance" binding:"oneof=l2 cosine ip"`
	TopN             int    `json:"top_n" binding:"gte=1"`
	FetchConcurrency int    `json:"fetch_concurrency" binding:"gte=1"`
	NLPConcurrency   int    `json:"nlp_concurrency" binding:"gte=1"`
	EmbedBatchSize   int    `json:"embed_batch_size" binding:"gte=1"`
	HTTPTimeoutSecs  int    `json:"http_timeout_s" binding:"gte=1"`
	UserAgent        string `json:"user_agent"`

	LogSamplingTickMs  int `json:"log_sampling_tick_ms"`
	LogSamplingAfterMs int `json:"log_sampling_after_ms"`

	OtelEnabled        bool    `json:"otel_enabled"`
	OtelEndpoint       string  `json:"otel_endpoint"`
	OtelInsecure       bool    `json:"otel_insecure"`
	OtelServiceName    string  `json:"otel_service_name"`
	OtelServiceVersion string  `json:"otel_service_version"`
	OtelSampleRate     float64 `json:"otel_sample_rate"`
}

// EmbeddingProvider configures one remote embedding API.
type EmbeddingProvider struct {
	BaseURL string `json:"base_url" binding:"required,url"`
	Model   string `json:"model" binding:"required"`
	APIKey  string `json:"api_key"`
}

// Tagger configures one NLP sidecar serving a Polish pipeline.
type Tagger struct {
	BaseURL    string `json:"base_url" binding:"omitempty,url"`
	Model      string `json:"model"`
	Lang       string `json:"lang"`
	Processors string `json:"processors"`
}

// Defaults fills every unset field.
func (c *Config) Defaults() {
	if c.Port == "" {
		c.Port = DefaultListenAddr
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.StatsCacheTTLSecs == 0 {
		c.StatsCacheTTLSecs = DefaultStatsCacheTTL
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = DefaultOpenAIBaseURL
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultOpenAIModel
	}
	if c.HuggingFace.BaseURL == "" {
		c.HuggingFace.BaseURL = DefaultHFBaseURL
	}
	if c.HuggingFace.Model == "" {
		c.HuggingFace.Model = DefaultHFModel
	}
	if c.Stanza.Lang == "" {
		c.Stanza.Lang = DefaultStanzaLang
	}
	if c.Stanza.Processors == "" {
		c.Stanza.Processors = DefaultStanzaProcessor
	}
	if c.Spacy.Lang == "" {
		c.Spacy.Lang = DefaultStanzaLang
	}
	if c.Spacy.Model == "" {
		c.Spacy.Model = DefaultSpacyModel
	}
	if c.Distance == "" {
		c.Distance = DefaultDistance
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = DefaultFetchWorkers
	}
	if c.NLPConcurrency <= 0 {
		c.NLPConcurrency = runtime.NumCPU()
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if c.HTTPTimeoutSecs <= 0 {
		c.HTTPTimeoutSecs = DefaultHTTPTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// ApplyEnv lets the environment override secrets and deployment specifics.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setFromEnv(&c.HuggingFace.APIKey, "HF_API_TOKEN")
	setFromEnv(&c.Port, "PLSTATS_PORT")
	setFromEnv(&c.DatabaseURL, "DATABASE_URL")
	setFromEnv(&c.RedisURL, "REDIS_URL")
	setFromEnv(&c.Stanza.BaseURL, "STANZA_URL")
	setFromEnv(&c.Spacy.BaseURL, "SPACY_URL")
	setFromEnv(&c.OtelEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setFromEnv(&c.OtelServiceName, "OTEL_SERVICE_NAME")
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

func (c Config) StatsCacheTTL() time.Duration {
	return time.Duration(c.StatsCacheTTLSecs) * time.Second
}
